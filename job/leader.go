package job

import (
	"encoding/gob"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/tgrossb/corelab/collab"
)

// leaderEnvVar gates the re-exec protocol: MaybeRunLeader only takes over
// the process when this is set, the same environment-marker technique
// os/exec's own test binary uses to become a "helper process" after exec
// instead of fork.
const leaderEnvVar = "CORELAB_JOB_LEADER"

// pipelineFD is the file descriptor the pipeline arrives on inside the
// leader: fd 0/1/2 are stdin/stdout/stderr, so the first entry of
// cmd.ExtraFiles lands at fd 3.
const pipelineFD = 3

// wireCommand and wirePipeline are the leader handoff's wire format: every
// collab.Arg has already been evaluated to its string form by the parent
// before the gob encode, because collab.EvalToString may depend on
// variable-store state that exists only in the parent's memory — a fork()
// based implementation gets that state for free via copy-on-write; a
// re-exec can't, so Run evaluates eagerly instead. See DESIGN.md.
type wireCommand struct {
	Name string
	Args []string
}

type wirePipeline struct {
	Commands      []wireCommand
	InputFile     string
	OutputFile    string
	CaptureOutput bool
}

func toWire(p *collab.Pipeline) wirePipeline {
	wp := wirePipeline{
		Commands:      make([]wireCommand, len(p.Commands)),
		InputFile:     p.InputFile,
		OutputFile:    p.OutputFile,
		CaptureOutput: p.CaptureOutput,
	}
	for i, c := range p.Commands {
		args := make([]string, len(c.Args))
		for j, a := range c.Args {
			args[j] = collab.EvalToString(a)
		}
		wp.Commands[i] = wireCommand{Name: c.Name, Args: args}
	}
	return wp
}

// MaybeRunLeader is the first statement any main() embedding corelab must
// execute. When the process was started as a job leader (leaderEnvVar
// set), it reads the pipeline off pipelineFD, runs the leader protocol,
// and never returns — it calls os.Exit itself. Otherwise it is a no-op.
func MaybeRunLeader() {
	if os.Getenv(leaderEnvVar) == "" {
		return
	}
	f := os.NewFile(uintptr(pipelineFD), "pipeline")
	var wp wirePipeline
	if err := gob.NewDecoder(f).Decode(&wp); err != nil {
		fmt.Fprintln(os.Stderr, "job: leader failed to decode pipeline:", err)
		os.Exit(1)
	}
	f.Close()
	os.Exit(runLeader(wp))
}

// runLeader implements spec.md §4.2's leader protocol: per-stage pipe
// chain, join-pgid, input/output redirection, reap all, propagate the
// last stage's fate.
func runLeader(wp wirePipeline) int {
	n := len(wp.Commands)
	if n == 0 {
		return 1
	}
	pgid := os.Getpid() // Setpgid:true at Start already made us our own group leader

	var prevIn *os.File
	if wp.InputFile != "" {
		f, err := os.Open(wp.InputFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "job: leader: open input:", err)
			selfAbort()
			return 1
		}
		defer f.Close()
		prevIn = f
	} else {
		prevIn = os.Stdin
	}

	var started []*exec.Cmd
	defer func() {
		for _, c := range started {
			c.Wait()
		}
	}()

	var lastCmd *exec.Cmd
	for i, wc := range wp.Commands {
		cmd := exec.Command(wc.Name, wc.Args...)
		cmd.Stdin = prevIn
		cmd.Stderr = os.Stderr
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}

		last := i == n-1
		var pipeW *os.File
		if !last {
			pr, pw, err := os.Pipe()
			if err != nil {
				fmt.Fprintln(os.Stderr, "job: leader: pipe:", err)
				selfAbort()
				return 1
			}
			cmd.Stdout = pw
			pipeW = pw
			prevIn = pr
		} else if wp.OutputFile != "" {
			f, err := os.Create(wp.OutputFile)
			if err != nil {
				fmt.Fprintln(os.Stderr, "job: leader: create output:", err)
				selfAbort()
				return 1
			}
			defer f.Close()
			cmd.Stdout = f
		} else {
			cmd.Stdout = os.Stdout // already the capture pipe when capturing, per Run's Cmd.Stdout
		}

		if err := cmd.Start(); err != nil {
			fmt.Fprintln(os.Stderr, "job: leader: start:", err)
			selfAbort()
			return 1
		}
		started = append(started, cmd)
		if pipeW != nil {
			pipeW.Close()
		}
		if last {
			lastCmd = cmd
		}
	}

	err := lastCmd.Wait()
	for _, c := range started {
		if c != lastCmd {
			c.Wait()
		}
	}
	started = nil // already reaped above; defer's loop becomes a no-op

	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				selfAbort()
				return 1
			}
			return ws.ExitStatus()
		}
	}
	selfAbort()
	return 1
}

// selfAbort raises SIGABRT on the leader itself, per spec.md §4.2 step 5:
// the parent observes this via SIGCHLD/WIFSIGNALED and transitions the
// job to Aborted.
func selfAbort() {
	syscall.Kill(os.Getpid(), syscall.SIGABRT)
}
