// Package job launches, observes, cancels and reaps pipeline jobs: a
// leader process that assembles a multi-stage pipe chain out of a
// collab.Pipeline, tracked by the parent through POSIX process-group
// signals rather than direct ownership of the pipeline's children.
//
// Go forbids a bare fork() once goroutines are running, so the leader is
// not forked in-process: Runner.Run re-execs the current binary with an
// environment marker, the same helper-process pattern os/exec's own test
// suite uses to become "a different program" after start. Any main that
// embeds corelab calls MaybeRunLeader as its first statement to opt into
// this protocol.
package job
