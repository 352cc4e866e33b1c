// jobdemo runs a single shell-style pipeline through the job runner and
// prints its captured output, in the teacher's lab/-style demo-main
// tradition: a small flag-driven main exercising one subsystem end to end.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/tgrossb/corelab/collab"
	"github.com/tgrossb/corelab/job"
)

func main() {
	job.MaybeRunLeader() // no-op unless re-exec'd as a leader

	pipeline := flag.String("pipeline", "echo hi | tr h H", "a '|'-separated shell pipeline to run")
	flag.Parse()

	p := parsePipeline(*pipeline)
	p.CaptureOutput = true

	r := job.NewRunner(job.Config{})
	defer r.Fini()

	id := r.Run(p)
	if id < 0 {
		fmt.Fprintln(os.Stderr, "jobdemo: run failed")
		os.Exit(1)
	}
	r.Wait(id)
	r.Show(os.Stdout)
	os.Stdout.Write(r.GetOutput(id))
}

// parsePipeline is a minimal stand-in for the out-of-scope command parser:
// it splits on "|" and whitespace only, with no quoting or redirection
// support, just enough to drive the job runner from a command line.
func parsePipeline(s string) *collab.Pipeline {
	var p collab.Pipeline
	for _, stage := range strings.Split(s, "|") {
		fields := strings.Fields(stage)
		if len(fields) == 0 {
			continue
		}
		args := make([]collab.Arg, len(fields)-1)
		for i, f := range fields[1:] {
			args[i] = collab.NewArg(f)
		}
		p.Commands = append(p.Commands, collab.Command{Name: fields[0], Args: args})
	}
	return &p
}
