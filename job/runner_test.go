package job

import (
	"testing"
	"time"

	"github.com/tgrossb/corelab/collab"
)

func echoPipeline() *collab.Pipeline {
	return &collab.Pipeline{
		Commands: []collab.Command{
			{Name: "echo", Args: []collab.Arg{collab.NewArg("hi")}},
			{Name: "tr", Args: []collab.Arg{collab.NewArg("h"), collab.NewArg("H")}},
		},
		CaptureOutput: true,
	}
}

func TestPipelineCapture(t *testing.T) {
	r := NewRunner(Config{})
	defer r.Fini()

	id := r.Run(echoPipeline())
	if id < 0 {
		t.Fatal("run failed")
	}
	r.Wait(id)
	if got := r.Poll(id); got != 0 {
		t.Fatalf("poll after wait = %d, want 0", got)
	}
	if got, want := string(r.GetOutput(id)), "Hi\n"; got != want {
		t.Fatalf("captured output = %q, want %q", got, want)
	}
}

func TestCancel(t *testing.T) {
	r := NewRunner(Config{})
	defer r.Fini()

	p := &collab.Pipeline{Commands: []collab.Command{
		{Name: "sleep", Args: []collab.Arg{collab.NewArg("100")}},
	}}
	id := r.Run(p)
	if id < 0 {
		t.Fatal("run failed")
	}

	if got := r.Cancel(id); got != 0 {
		t.Fatalf("cancel = %d, want 0", got)
	}
	r.Wait(id)

	if got := r.Poll(id); got != 0 {
		t.Fatalf("poll after cancel+wait = %d, want 0", got)
	}
	j := r.lookup(id)
	if j.Status() != StatusCanceled {
		t.Fatalf("status = %v, want canceled", j.Status())
	}
	if got := r.Cancel(id); got != -1 {
		t.Fatalf("second cancel = %d, want -1", got)
	}
}

func TestPollMonotonic(t *testing.T) {
	r := NewRunner(Config{})
	defer r.Fini()

	p := &collab.Pipeline{Commands: []collab.Command{
		{Name: "sleep", Args: []collab.Arg{collab.NewArg("1")}},
	}}
	id := r.Run(p)
	if id < 0 {
		t.Fatal("run failed")
	}
	if got := r.Poll(id); got != -1 {
		t.Fatalf("poll immediately after run = %d, want -1", got)
	}
	r.Wait(id)
	for i := 0; i < 3; i++ {
		if got := r.Poll(id); got != 0 {
			t.Fatalf("poll after reap = %d, want 0", got)
		}
	}
}

func TestExpungeRequiresTerminal(t *testing.T) {
	r := NewRunner(Config{})
	defer r.Fini()

	p := &collab.Pipeline{Commands: []collab.Command{
		{Name: "sleep", Args: []collab.Arg{collab.NewArg("5")}},
	}}
	id := r.Run(p)
	if id < 0 {
		t.Fatal("run failed")
	}
	if got := r.Expunge(id); got != -1 {
		t.Fatalf("expunge of running job = %d, want -1", got)
	}
	r.Cancel(id)
	r.Wait(id)
	if got := r.Expunge(id); got != 0 {
		t.Fatalf("expunge of terminal job = %d, want 0", got)
	}
	if got := r.Poll(id); got != -1 {
		t.Fatalf("poll after expunge = %d, want -1 (unknown)", got)
	}
}

func TestRunEmptyPipelineFails(t *testing.T) {
	r := NewRunner(Config{})
	defer r.Fini()
	if got := r.Run(&collab.Pipeline{}); got != -1 {
		t.Fatalf("run(empty) = %d, want -1", got)
	}
}

func TestPauseUnblocksOnTransition(t *testing.T) {
	r := NewRunner(Config{})
	defer r.Fini()

	p := &collab.Pipeline{Commands: []collab.Command{{Name: "true"}}}
	id := r.Run(p)
	if id < 0 {
		t.Fatal("run failed")
	}

	done := make(chan struct{})
	go func() {
		r.Pause()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Pause did not unblock within 5s")
	}
	r.Wait(id)
}
