// Package history keeps a bounded in-memory window of recent samples for
// collaborators that need short lookback (zone-transition detection, the
// debug snapshot). Nothing is persisted.
package history

import (
	"sync"

	"github.com/wayfinder-io/wayfinder/internal/telemetry/record"
)

// Window is a fixed-capacity ring of the most recent samples. Safe for
// concurrent use.
type Window struct {
	mu    sync.RWMutex
	buf   []record.SensorRecord
	head  int
	count int
}

// NewWindow creates a window keeping the last capacity samples. Capacity
// below 1 is raised to 1.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]record.SensorRecord, capacity)}
}

// Push appends a sample, evicting the oldest once full.
func (w *Window) Push(rec record.SensorRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf[w.head] = rec
	w.head = (w.head + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.count
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Latest returns the most recent sample, or false when empty.
func (w *Window) Latest() (record.SensorRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.count == 0 {
		return record.SensorRecord{}, false
	}
	idx := (w.head - 1 + len(w.buf)) % len(w.buf)
	return w.buf[idx], true
}

// Snapshot returns the held samples oldest-first. The slice is a copy.
func (w *Window) Snapshot() []record.SensorRecord {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]record.SensorRecord, 0, w.count)
	start := (w.head - w.count + len(w.buf)) % len(w.buf)
	for i := 0; i < w.count; i++ {
		out = append(out, w.buf[(start+i)%len(w.buf)])
	}
	return out
}
