// Package pool implements the per-protocol connection pool owned by a node.
// A pool keeps a minimum number of framed connections open to one endpoint,
// grows on demand up to a cap, hands connections out one owner at a time and
// reports its lifecycle (RUNNING, HEALTH_CHECKING, SHUTTING_DOWN, SHUTDOWN)
// to registered listeners.
//
// The package focuses on:
//   - Non-blocking admission control: Acquire returns false under exhaustion
//     instead of queueing
//   - Lazy repair: dead connections are discarded on acquire or release and
//     replaced by on-demand dials
//   - Health checking: dial failures move the pool to HEALTH_CHECKING and a
//     scheduled probe loop restores RUNNING on the first successful dial
//   - Ordered, asynchronous state notifications from a single goroutine per
//     pool, so listeners can safely call back into the pool or its node
//
// The terminal SHUTDOWN transition is observed, not assumed: it fires only
// after the last acquired connection has been released back.
package pool
