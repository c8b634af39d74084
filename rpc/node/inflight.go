package node

import (
	"github.com/gridkv/gridkv/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// In-flight registry
// --------------------------------------------------------------------------

// inflight records the operation a live connection currently carries and the
// protocol it was acquired for. At most one entry exists per connection.
type inflight struct {
	protocol  common.Protocol
	operation Operation
}

// inflightRegistry maps connection identity to the in-flight operation.
// Remove has atomic remove-and-return semantics, so racing completion
// handlers naturally degrade to no-ops on a lost race instead of needing
// separate presence checks.
type inflightRegistry struct {
	entries *xsync.MapOf[uint64, inflight]
}

func newInflightRegistry() *inflightRegistry {
	return &inflightRegistry{
		entries: xsync.NewMapOf[uint64, inflight](),
	}
}

// Put installs the in-flight entry for a connection. Called before the send
// is initiated, closing the race between send completion and response
// arrival.
func (r *inflightRegistry) Put(connID uint64, p common.Protocol, op Operation) {
	r.entries.Store(connID, inflight{protocol: p, operation: op})
}

// Remove pops the entry for a connection. The second return value is false
// when no entry exists, which callers treat as a benign lost race.
func (r *inflightRegistry) Remove(connID uint64) (inflight, bool) {
	return r.entries.LoadAndDelete(connID)
}

// Len returns the number of operations currently in flight.
func (r *inflightRegistry) Len() int {
	return r.entries.Size()
}
