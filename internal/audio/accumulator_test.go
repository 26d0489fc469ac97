package audio

import (
	"bytes"
	"sync"
	"testing"
)

func TestAccumulatorAppendAndSnapshot(t *testing.T) {
	acc := NewAccumulator()

	if acc.Len() != 0 {
		t.Errorf("Expected empty accumulator, got %d bytes", acc.Len())
	}

	acc.Append([]byte{1, 2, 3})
	acc.Append([]byte{4, 5})

	snap := acc.Snapshot()
	want := []byte{1, 2, 3, 4, 5}
	if !bytes.Equal(snap, want) {
		t.Errorf("Expected snapshot %v, got %v", want, snap)
	}
	if acc.Len() != 5 {
		t.Errorf("Expected length 5, got %d", acc.Len())
	}
}

func TestAccumulatorEmptyAppend(t *testing.T) {
	acc := NewAccumulator()

	acc.Append(nil)
	acc.Append([]byte{})

	if acc.Len() != 0 {
		t.Errorf("Expected empty appends to be no-ops, got %d bytes", acc.Len())
	}
}

func TestAccumulatorSnapshotIsDetached(t *testing.T) {
	acc := NewAccumulator()
	acc.Append([]byte{1, 2, 3})

	snap := acc.Snapshot()
	snap[0] = 99
	acc.Append([]byte{4})

	again := acc.Snapshot()
	want := []byte{1, 2, 3, 4}
	if !bytes.Equal(again, want) {
		t.Errorf("Mutating a snapshot leaked into the buffer: got %v, want %v", again, want)
	}
}

func TestAccumulatorReset(t *testing.T) {
	acc := NewAccumulator()
	acc.Append([]byte{1, 2, 3})

	acc.Reset()

	if acc.Len() != 0 {
		t.Errorf("Expected empty accumulator after reset, got %d bytes", acc.Len())
	}
	if snap := acc.Snapshot(); len(snap) != 0 {
		t.Errorf("Expected empty snapshot after reset, got %v", snap)
	}

	// Reset must not invalidate a previously taken snapshot's usability
	acc.Append([]byte{7})
	if !bytes.Equal(acc.Snapshot(), []byte{7}) {
		t.Error("Accumulator unusable after reset")
	}
}

// A snapshot taken while a single writer appends must always be a prefix of
// the final content.
func TestAccumulatorConcurrentSnapshots(t *testing.T) {
	acc := NewAccumulator()

	const frames = 200
	frame := func(i int) []byte {
		return []byte{byte(i), byte(i >> 8)}
	}

	var wg sync.WaitGroup
	snapshots := make([][]byte, 0, 64)
	var mu sync.Mutex

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < frames; i++ {
			acc.Append(frame(i))
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				snap := acc.Snapshot()
				mu.Lock()
				snapshots = append(snapshots, snap)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	final := acc.Snapshot()
	for _, snap := range snapshots {
		if len(snap)%2 != 0 {
			t.Fatalf("Snapshot of %d bytes splits a frame", len(snap))
		}
		if !bytes.HasPrefix(final, snap) {
			t.Fatalf("Snapshot is not a prefix of the final buffer (len %d)", len(snap))
		}
	}
}
