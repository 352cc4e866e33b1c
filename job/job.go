package job

import (
	"go.uber.org/atomic"

	"github.com/tgrossb/corelab/collab"
)

// Status is a Job's lifecycle state. NEW is construction-time only — by
// the time Run returns a job id, the Job is already Running (spec.md §9's
// resolution of its own open question) — so NEW is never observed through
// a public accessor.
type Status int32

const (
	StatusNew Status = iota
	StatusRunning
	StatusCompleted
	StatusAborted
	StatusCanceled
)

// String lowercases exactly as spec.md §6's show contract requires.
func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusAborted:
		return "aborted"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// terminal reports whether s is one of the three states Run can never
// leave once entered.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusAborted || s == StatusCanceled
}

// Job is one pipeline launched through Runner.Run. Its status is written
// by the goroutine that waits on the leader (finishJob) while callers read
// it without a lock, hence the atomic —
// spec.md §9's "represent status as an atomic field" carried out literally
// with go.uber.org/atomic rather than a mutex.
type Job struct {
	ID         int
	LeaderPGID int

	status   atomic.Int32
	canceled atomic.Bool

	Pipeline *collab.Pipeline

	capturedOutput []byte
	captureDone    chan struct{} // closed once the capture-reader goroutine hits EOF

	waitStatus int
	waitCh     chan struct{} // closed once the leader has been reaped

	next *Job
}

func newJob(id int, pgid int, p *collab.Pipeline) *Job {
	j := &Job{ID: id, LeaderPGID: pgid, Pipeline: p, waitCh: make(chan struct{})}
	j.status.Store(int32(StatusRunning))
	return j
}

// Status returns the job's current lifecycle state.
func (j *Job) Status() Status { return Status(j.status.Load()) }
