package job

import (
	"os"
	"testing"
)

// TestMain is the re-exec landing site: when this test binary is started
// as a job leader (see Runner.Run), MaybeRunLeader takes over before any
// test runs, the same helper-process idiom os/exec's own tests use.
func TestMain(m *testing.M) {
	MaybeRunLeader()
	os.Exit(m.Run())
}
