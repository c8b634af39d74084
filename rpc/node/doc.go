// Package node implements the per-endpoint dispatch layer of the gridKV
// client.
//
// A Node represents exactly one remote server. It owns one connection pool
// per protocol the server speaks, selects a protocol for each operation from
// the operation's ordered preference list, dispatches the encoded payload on
// a pooled connection and resolves the operation exactly once when the
// transport reports a response, an error or a write failure.
//
// The node aggregates the states of its pools into a single state machine:
//
//	CREATED -> RUNNING <-> HEALTH_CHECKING -> SHUTTING_DOWN -> SHUTDOWN
//
// RUNNING means at least one pool has a usable path to the server; SHUTDOWN
// is terminal and only reached once every pool has fully drained. All state
// transitions are observed from pool notifications rather than assumed,
// and are broadcast to registered listeners in a strict global order.
package node
