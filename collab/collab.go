// Package collab holds the types the job runner consumes from the parts of
// the system that are out of scope for this module: the parser, the
// pretty-printer, the REPL, and the two stores (variable and program
// listing). Per the system's own scoping, corelab never implements these —
// it only ships the interfaces and opaque trees needed to compile and test
// the job runner against something concrete.
package collab

import (
	"fmt"
	"io"
)

// Arg is one evaluated argument of a Command. Opaque to job: the only
// operation job performs on an Arg is handing it to EvalToString.
type Arg struct {
	expr any
}

// NewArg wraps an arbitrary parsed expression as an Arg. The expression's
// shape is a parser concern; job never inspects it.
func NewArg(expr any) Arg { return Arg{expr: expr} }

// Command is one pipeline stage: a program name plus its evaluated
// argument list.
type Command struct {
	Name string
	Args []Arg
}

// Pipeline is an ordered list of Commands plus optional redirection,
// exactly the record spec.md §3.2 describes. job treats a *Pipeline as
// opaque beyond the three functions below and the fields it reads to build
// the leader's process chain.
type Pipeline struct {
	Commands      []Command
	InputFile     string
	OutputFile    string
	CaptureOutput bool
}

// FreePipeline releases a pipeline's owned resources. job calls this from
// Expunge; corelab's Pipeline has no non-GC'd resources of its own, so
// this is a no-op placeholder for whatever a real parser's Pipeline would
// need freed (arena-allocated Args, say).
func FreePipeline(p *Pipeline) {}

// ShowPipeline writes a pipeline's pretty-printed form to w, with no
// trailing newline — job.Runner.Show appends the newline itself after the
// job id/pgid/status columns it also prints.
func ShowPipeline(w io.Writer, p *Pipeline) {
	for i, c := range p.Commands {
		if i > 0 {
			io.WriteString(w, " | ")
		}
		io.WriteString(w, c.Name)
		for _, a := range c.Args {
			io.WriteString(w, " ")
			io.WriteString(w, EvalToString(a))
		}
	}
	if p.InputFile != "" {
		io.WriteString(w, " < "+p.InputFile)
	}
	if p.OutputFile != "" {
		io.WriteString(w, " > "+p.OutputFile)
	}
}

// EvalToString evaluates an argument expression against whatever variable
// store is in play and renders it as the string a shell would pass on a
// command line. corelab ships no evaluator; this default rendering covers
// the literal-string case a test pipeline needs and is the seam a real
// parser/evaluator would replace.
func EvalToString(a Arg) string {
	switch v := a.expr.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
