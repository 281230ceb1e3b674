package job

import (
	"runtime"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestRegistry creates a registry wired to the given hooks and makes
// sure it is fully drained and closed when the test ends.
func newTestRegistry(t *testing.T, hooks Hooks) *Registry {
	t.Helper()

	r, err := New(Options{Hooks: hooks})
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	t.Cleanup(func() {
		deadline := time.Now().Add(5 * time.Second)
		for len(r.jobs) > 0 && time.Now().Before(deadline) {
			for _, j := range r.jobs {
				if j.Kind == KindCommand && j.IsRunning() {
					j.Terminate()
				}
			}
			r.Check(false)
			time.Sleep(10 * time.Millisecond)
		}
		if len(r.jobs) > 0 {
			t.Errorf("%d job(s) still registered at cleanup", len(r.jobs))
		}
		if err := r.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}
	})

	return r
}

// requireShell skips tests that spawn children through a POSIX shell.
func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// driveUntil runs sweeps until cond holds or the timeout passes.
func driveUntil(t *testing.T, r *Registry, showErrors bool, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		r.Check(showErrors)
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %v", timeout)
}

// waitStopped polls until the job reports it is no longer running.
func waitStopped(t *testing.T, j *Job, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !j.IsRunning() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %q still running after %v", j.Cmd, timeout)
}
