// Package transport defines the connection-level contracts of the gridKV
// client: framed connections with stable identities, asynchronous sends with
// observable write outcomes, per-connection response handlers and read-timeout
// watchdogs, and the factory that dials connections for a node's pools.
//
// The package focuses on:
//   - Separating the outcome of a write (SendFuture) from the application-level
//     response delivered through the ResponseHandler
//   - Keeping all blocking at the transport boundary; callers attach handlers
//     and listeners instead of waiting
//   - Enabling multiple factory implementations (TCP in production, in-memory
//     fakes in tests)
//
// Key Components:
//
//   - Conn: a single framed connection with a process-wide unique ID used to
//     key in-flight bookkeeping.
//
//   - ResponseHandler: callback interface invoked from transport-internal
//     goroutines for responses and transport errors.
//
//   - Factory: dials connections; either shared between nodes or owned by one.
package transport
