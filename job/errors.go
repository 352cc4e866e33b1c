package job

import "fmt"

// StateKind classifies a job-state-machine misuse per spec.md §7's "state
// violation" error kind.
type StateKind int

const (
	// ErrUnknownJob: the job id does not name any job the Runner holds.
	ErrUnknownJob StateKind = iota
	// ErrNotTerminal: expunge called on a job still RUNNING.
	ErrNotTerminal
	// ErrAlreadyCanceled: a second cancel of the same job.
	ErrAlreadyCanceled
	// ErrEmptyPipeline: run called with a pipeline with no commands.
	ErrEmptyPipeline
)

// StateError is the struct-typed error job's contract returns as -1 for,
// in the teacher's ErrINVAL/ErrILSEQ idiom: a Kind plus the job id it
// concerns (0 when not applicable, e.g. ErrEmptyPipeline).
type StateError struct {
	Kind  StateKind
	JobID int
}

func (e *StateError) Error() string {
	switch e.Kind {
	case ErrUnknownJob:
		return fmt.Sprintf("job: no such job %d", e.JobID)
	case ErrNotTerminal:
		return fmt.Sprintf("job: job %d is not in a terminal state", e.JobID)
	case ErrAlreadyCanceled:
		return fmt.Sprintf("job: job %d was already canceled", e.JobID)
	case ErrEmptyPipeline:
		return "job: pipeline has no commands"
	default:
		return fmt.Sprintf("job: state violation on job %d", e.JobID)
	}
}
