package vtesting

// Small helpers shared by tests.

import (
	"testing"
	"time"
)

// WaitUntil polls cond until it holds or the deadline passes.
func WaitUntil(t *testing.T, deadline time.Duration, cond func() bool) {
	t.Helper()

	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not reached within %v", deadline)
}
