// Package trail keeps a bounded, in-memory history of recent actions.
//
// A Trail is owned by the caller and injected into the components that
// record to it. When something goes wrong the owner flushes the trail to its
// logger so the failure arrives with the steps that preceded it.
//
// All methods are safe for concurrent use and are no-ops on a nil *Trail.
package trail

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultSize is the capacity used when New is given a non-positive size.
const DefaultSize = 200

// Entry is one recorded action.
type Entry struct {
	At      time.Time
	Message string
}

// Trail is a fixed-capacity FIFO of entries. Once full, recording drops the
// oldest entry.
type Trail struct {
	mu      sync.Mutex
	entries []Entry
	start   int
	size    int
	now     func() time.Time
}

// New creates a Trail holding at most size entries.
func New(size int) *Trail {
	if size <= 0 {
		size = DefaultSize
	}
	return &Trail{entries: make([]Entry, size), now: time.Now}
}

// Record appends a formatted message.
func (t *Trail) Record(format string, args ...any) {
	if t == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)

	t.mu.Lock()
	defer t.mu.Unlock()

	capacity := len(t.entries)
	idx := (t.start + t.size) % capacity
	t.entries[idx] = Entry{At: t.now(), Message: msg}
	if t.size < capacity {
		t.size++
	} else {
		t.start = (t.start + 1) % capacity
	}
}

// Len returns the number of entries held.
func (t *Trail) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

// Tail returns up to n of the newest entries, oldest first. n <= 0 returns all.
func (t *Trail) Tail(n int) []Entry {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if n <= 0 || n > t.size {
		n = t.size
	}
	out := make([]Entry, 0, n)
	capacity := len(t.entries)
	for i := t.size - n; i < t.size; i++ {
		out = append(out, t.entries[(t.start+i)%capacity])
	}
	return out
}

// Flush writes every entry to logger at debug level, oldest first, and
// empties the trail.
func (t *Trail) Flush(logger *slog.Logger) {
	if t == nil || logger == nil {
		return
	}
	entries := t.Tail(0)
	if len(entries) == 0 {
		return
	}
	logger.Debug("recent actions (newest last)", "count", len(entries))
	for _, e := range entries {
		logger.Debug("  "+e.Message, "at", e.At.Format(time.RFC3339Nano))
	}

	t.mu.Lock()
	t.start, t.size = 0, 0
	t.mu.Unlock()
}
