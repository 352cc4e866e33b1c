package job

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/tgrossb/corelab/collab"
)

// Runner is the parent-process half of the job runner: it starts leader
// processes, tracks their Jobs in an append-only intrusive list (spec.md
// §9: only status is ever mutated asynchronously), and reaps each leader
// from its own cmd.Wait goroutine. A Runner is not safe for concurrent
// use from more than one control-flow goroutine, matching spec.md §5.
type Runner struct {
	cfg Config

	mu   sync.Mutex
	jobs map[int]*Job
	head *Job

	sigCh  chan os.Signal
	done   chan struct{}
	notify chan struct{} // Pause() blocks on this; posted to after every transition
	wg     sync.WaitGroup

	lastErr *StateError
}

// LastError returns the reason the most recent call that returned -1
// failed, or nil if that call succeeded or no call has failed yet.
func (r *Runner) LastError() *StateError { return r.lastErr }

// NewRunner is job's init(): one-shot setup of the signal-driven reaper.
// Call Fini when done.
func NewRunner(cfg Config) *Runner {
	cfg.populateDefaults()
	r := &Runner{
		cfg:    cfg,
		jobs:   make(map[int]*Job),
		sigCh:  make(chan os.Signal, 16),
		done:   make(chan struct{}),
		notify: make(chan struct{}, 16),
	}
	signal.Notify(r.sigCh, syscall.SIGCHLD)
	r.wg.Add(1)
	go r.reap()
	return r
}

// Fini cancels every non-terminal job, waits for each to be reaped, frees
// every Job's resources, and stops the reaper goroutine.
func (r *Runner) Fini() {
	r.mu.Lock()
	var live []int
	for id, j := range r.jobs {
		if !j.Status().terminal() {
			live = append(live, id)
		}
	}
	r.mu.Unlock()

	for _, id := range live {
		r.Cancel(id)
	}
	for _, id := range live {
		r.Wait(id)
	}

	r.mu.Lock()
	ids := make([]int, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Expunge(id)
	}

	signal.Stop(r.sigCh)
	close(r.done)
	r.wg.Wait()
}

// Run starts a leader process for p and returns its job id, or -1 if the
// pipeline is empty or the leader could not be started.
func (r *Runner) Run(p *collab.Pipeline) int {
	r.lastErr = nil
	if len(p.Commands) == 0 {
		r.lastErr = &StateError{Kind: ErrEmptyPipeline}
		return -1
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return -1
	}

	var capR, capW *os.File
	if p.CaptureOutput {
		capR, capW, err = os.Pipe()
		if err != nil {
			pr.Close()
			pw.Close()
			return -1
		}
	}

	exe, err := os.Executable()
	if err != nil {
		pr.Close()
		pw.Close()
		if capR != nil {
			capR.Close()
			capW.Close()
		}
		return -1
	}

	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), leaderEnvVar+"=1")
	cmd.ExtraFiles = []*os.File{pr}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = os.Stdin
	cmd.Stderr = os.Stderr
	if p.CaptureOutput {
		cmd.Stdout = capW
	} else {
		cmd.Stdout = os.Stdout
	}

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		if capR != nil {
			capR.Close()
			capW.Close()
		}
		return -1
	}
	pr.Close()
	if capW != nil {
		capW.Close()
	}

	wp := toWire(p)
	go func() {
		gob.NewEncoder(pw).Encode(&wp)
		pw.Close()
	}()

	r.mu.Lock()
	id := maxID(r.jobs) + 1
	j := newJob(id, cmd.Process.Pid, p)
	j.next = r.head
	r.head = j
	r.jobs[id] = j
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := cmd.Wait()
		r.finishJob(j, err)
	}()

	if capR != nil {
		j.captureDone = make(chan struct{})
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			j.capturedOutput = readToEOF(capR, r.cfg.CaptureBufferSize)
			capR.Close()
			close(j.captureDone)
		}()
	} else {
		j.captureDone = make(chan struct{})
		close(j.captureDone)
	}

	return id
}

func maxID(jobs map[int]*Job) int {
	max := -1
	for id := range jobs {
		if id > max {
			max = id
		}
	}
	return max
}

// readToEOF loops Read calls until EOF, unlike the teacher-language
// source's single short read (spec.md §9 flags that as a bug to fix).
func readToEOF(r io.Reader, chunk int) []byte {
	var buf bytes.Buffer
	tmp := make([]byte, chunk)
	for {
		n, err := r.Read(tmp)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil {
			break
		}
	}
	return buf.Bytes()
}

// finishJob is called by cmd.Wait's goroutine. os/exec's Cmd.Wait already
// performs the wait4(pid)/reap itself, and it is the sole reaper of a
// leader's pid: reap below must not also call Wait4(-1, ...), since a
// catch-all reap can steal the leader's zombie out from under cmd.Wait,
// which would then return ECHILD and lose the real WaitStatus.
func (r *Runner) finishJob(j *Job, waitErr error) {
	status := StatusCompleted
	var ws syscall.WaitStatus
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			if w, ok := exitErr.Sys().(syscall.WaitStatus); ok {
				ws = w
			}
		}
	}
	if ws.Signaled() {
		if ws.Signal() == syscall.SIGKILL && j.canceled.Load() {
			status = StatusCanceled
		} else {
			status = StatusAborted
		}
	}
	j.waitStatus = int(ws)
	j.status.Store(int32(status))
	close(j.waitCh)
	r.postNotify()
}

func (r *Runner) postNotify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// reap drains SIGCHLD deliveries without acting on them: every leader pid
// is reaped by its own Run-started cmd.Wait goroutine (a leader's stage
// children, in turn, are reaped inside the leader itself), so a catch-all
// Wait4(-1, ...) here would race cmd.Wait for the same pid and can steal
// its zombie, leaving cmd.Wait to report ECHILD. This goroutine exists only
// to keep signal.Notify's channel from filling up and blocking delivery.
func (r *Runner) reap() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case <-r.sigCh:
		}
	}
}

func (r *Runner) lookup(jobID int) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[jobID]
}

// Wait blocks until jobID's leader has been reaped and returns its raw
// wait status, or -1 if no such job.
func (r *Runner) Wait(jobID int) int {
	j := r.lookup(jobID)
	if j == nil {
		r.lastErr = &StateError{Kind: ErrUnknownJob, JobID: jobID}
		return -1
	}
	<-j.waitCh
	return j.waitStatus
}

// Poll returns 0 if jobID is in a terminal state, -1 otherwise (including
// when jobID is unknown).
func (r *Runner) Poll(jobID int) int {
	j := r.lookup(jobID)
	if j == nil {
		r.lastErr = &StateError{Kind: ErrUnknownJob, JobID: jobID}
		return -1
	}
	if j.Status().terminal() {
		return 0
	}
	return -1
}

// Cancel sends SIGKILL to jobID's process group and marks it
// cancel-requested, or returns -1 if the job is unknown, already
// terminal, or already cancel-requested.
func (r *Runner) Cancel(jobID int) int {
	r.lastErr = nil
	j := r.lookup(jobID)
	if j == nil {
		r.lastErr = &StateError{Kind: ErrUnknownJob, JobID: jobID}
		return -1
	}
	if j.Status().terminal() {
		r.lastErr = &StateError{Kind: ErrNotTerminal, JobID: jobID}
		return -1
	}
	if !j.canceled.CompareAndSwap(false, true) {
		r.lastErr = &StateError{Kind: ErrAlreadyCanceled, JobID: jobID}
		return -1
	}
	if err := unix.Kill(-j.LeaderPGID, unix.SIGKILL); err != nil {
		return -1
	}
	return 0
}

// Expunge unlinks jobID and frees its resources, or returns -1 if the job
// is unknown or not yet terminal.
func (r *Runner) Expunge(jobID int) int {
	r.lastErr = nil
	r.mu.Lock()
	j, ok := r.jobs[jobID]
	if !ok {
		r.mu.Unlock()
		r.lastErr = &StateError{Kind: ErrUnknownJob, JobID: jobID}
		return -1
	}
	if !j.Status().terminal() {
		r.mu.Unlock()
		r.lastErr = &StateError{Kind: ErrNotTerminal, JobID: jobID}
		return -1
	}
	delete(r.jobs, jobID)
	r.unlink(j)
	r.mu.Unlock()

	collab.FreePipeline(j.Pipeline)
	j.capturedOutput = nil
	return 0
}

// unlink removes j from the intrusive list. Callers hold r.mu.
func (r *Runner) unlink(j *Job) {
	if r.head == j {
		r.head = j.next
		return
	}
	for p := r.head; p != nil; p = p.next {
		if p.next == j {
			p.next = j.next
			return
		}
	}
}

// GetOutput returns jobID's captured stdout, or nil if the job is unknown,
// not terminal, or did not request capture.
func (r *Runner) GetOutput(jobID int) []byte {
	j := r.lookup(jobID)
	if j == nil || !j.Status().terminal() {
		return nil
	}
	if j.captureDone != nil {
		<-j.captureDone
	}
	return j.capturedOutput
}

// Show writes one line per job to w: "<jobid>\t<pgid>\t<status>\t<pipeline>".
func (r *Runner) Show(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for j := r.head; j != nil; j = j.next {
		fmt.Fprintf(w, "%d\t%d\t%s\t", j.ID, j.LeaderPGID, j.Status())
		collab.ShowPipeline(w, j.Pipeline)
		fmt.Fprintln(w)
	}
}

// Pause blocks until a job transition has been observed since the last
// call (or until Fini stops the reaper), then returns 0. Unlike the
// teacher-language source's commented-out busy-spin body, this genuinely
// blocks on a channel receive (spec.md §9).
func (r *Runner) Pause() int {
	select {
	case <-r.notify:
	case <-r.done:
	}
	return 0
}
