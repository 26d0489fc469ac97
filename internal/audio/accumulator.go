package audio

import (
	"sync"
)

// Accumulator holds all audio captured since a recording session started.
// The capture feed appends fragments from its own goroutine while snapshot
// readers (one per transcription request) run concurrently, so all access
// goes through a mutex and Snapshot returns a private copy.
type Accumulator struct {
	mu   sync.RWMutex
	data []byte
}

// NewAccumulator creates an empty accumulator
func NewAccumulator() *Accumulator {
	return &Accumulator{
		data: make([]byte, 0, 64*1024),
	}
}

// Append adds a fragment to the end of the buffer. It never fails; an
// empty fragment is a no-op.
func (a *Accumulator) Append(fragment []byte) {
	if len(fragment) == 0 {
		return
	}

	a.mu.Lock()
	a.data = append(a.data, fragment...)
	a.mu.Unlock()
}

// Snapshot returns a copy of the current buffer content. The copy is
// detached: appends that happen after Snapshot returns do not affect it,
// and appends racing with Snapshot never corrupt it.
func (a *Accumulator) Snapshot() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snapshot := make([]byte, len(a.data))
	copy(snapshot, a.data)
	return snapshot
}

// Len returns the current buffer length in bytes
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.data)
}

// Reset clears the buffer. Only valid between sessions, when no capture
// feed is appending.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.data = a.data[:0]
	a.mu.Unlock()
}
