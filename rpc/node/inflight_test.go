package node

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gridkv/gridkv/rpc/common"
)

// TestInflightRegistry checks the basic put/remove contract.
func TestInflightRegistry(t *testing.T) {
	r := newInflightRegistry()

	op := NewOperation(common.DefaultProtocolPreference, noopEncode)
	r.Put(7, common.ProtocolBinary, op)
	if got := r.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}

	entry, ok := r.Remove(7)
	if !ok {
		t.Fatal("Remove did not find the entry")
	}
	if entry.protocol != common.ProtocolBinary || entry.operation != op {
		t.Fatal("Remove returned a different entry")
	}

	if _, ok := r.Remove(7); ok {
		t.Fatal("second Remove found an already removed entry")
	}
	if _, ok := r.Remove(99); ok {
		t.Fatal("Remove found an entry that was never put")
	}
}

// TestInflightRegistryConcurrentRemove checks that exactly one of many
// concurrent removers wins the entry. This is the property the exactly-once
// resolution of operations rests on.
func TestInflightRegistryConcurrentRemove(t *testing.T) {
	r := newInflightRegistry()

	const rounds = 200
	const removers = 8
	for i := 0; i < rounds; i++ {
		id := uint64(i)
		r.Put(id, common.ProtocolJSON, NewOperation(common.DefaultProtocolPreference, noopEncode))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for w := 0; w < removers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, ok := r.Remove(id); ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		if got := wins.Load(); got != 1 {
			t.Fatalf("round %d: %d removers won, want exactly 1", i, got)
		}
	}
}
