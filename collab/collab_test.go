package collab

import (
	"strings"
	"testing"
)

func TestEvalToStringLiteral(t *testing.T) {
	if got := EvalToString(NewArg("hi")); got != "hi" {
		t.Fatalf("EvalToString(%q) = %q", "hi", got)
	}
	if got := EvalToString(NewArg(42)); got != "42" {
		t.Fatalf("EvalToString(42) = %q", got)
	}
}

func TestShowPipelineFormat(t *testing.T) {
	p := &Pipeline{
		Commands: []Command{
			{Name: "echo", Args: []Arg{NewArg("hi")}},
			{Name: "tr", Args: []Arg{NewArg("h"), NewArg("H")}},
		},
	}
	var b strings.Builder
	ShowPipeline(&b, p)
	if got, want := b.String(), "echo hi | tr h H"; got != want {
		t.Fatalf("ShowPipeline = %q, want %q", got, want)
	}
}

func TestShowPipelineRedirection(t *testing.T) {
	p := &Pipeline{
		Commands:   []Command{{Name: "sort"}},
		InputFile:  "in.txt",
		OutputFile: "out.txt",
	}
	var b strings.Builder
	ShowPipeline(&b, p)
	if got, want := b.String(), "sort < in.txt > out.txt"; got != want {
		t.Fatalf("ShowPipeline = %q, want %q", got, want)
	}
}
