package network

import "time"

// pollTimer is an alarm checked from the tick loop.
type pollTimer struct {
	enabled  bool
	deadline time.Time
}

func (t *pollTimer) start(now time.Time, d time.Duration) {
	t.enabled = true
	t.deadline = now.Add(d)
}

func (t *pollTimer) stop() {
	t.enabled = false
}

// test reports whether the alarm has gone off, disabling it if so.
func (t *pollTimer) test(now time.Time) bool {
	if !t.enabled || now.Before(t.deadline) {
		return false
	}
	t.enabled = false
	return true
}
