package transport

import (
	"errors"
	"time"
)

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

var (
	// ErrReadTimeout is surfaced through ResponseHandler.OnException when an
	// armed read-timeout watchdog fires before a response arrives.
	ErrReadTimeout = errors.New("read timed out waiting for response")

	// ErrConnClosed is returned by Send on a closed connection.
	ErrConnClosed = errors.New("connection is closed")

	// ErrFactoryShutdown is returned by Dial after the factory was shut down.
	ErrFactoryShutdown = errors.New("transport factory is shut down")
)

// --------------------------------------------------------------------------
// Connection contract
// --------------------------------------------------------------------------

// ResponseHandler receives application-level completions for a connection.
// Both methods are invoked from transport-internal goroutines.
type ResponseHandler interface {
	// OnSuccess delivers a complete response frame read from the connection
	OnSuccess(conn Conn, response []byte)
	// OnException delivers a transport error (read failure, read timeout)
	OnException(conn Conn, err error)
}

// SendFuture reports the outcome of the write itself, distinct from the
// application-level response that may follow it.
type SendFuture interface {
	// AddListener registers fn to run exactly once when the write completes.
	// If the write already completed, fn runs synchronously.
	AddListener(fn func(conn Conn, err error))
	// Done is closed once the write has completed
	Done() <-chan struct{}
	// Err returns the write error, valid after Done is closed
	Err() error
}

// Conn is a single framed connection to a server endpoint. A Conn has a
// process-wide unique identity used to key in-flight bookkeeping. At most
// one request/response exchange is expected on a Conn at a time.
type Conn interface {
	// ID returns the stable identity of this connection
	ID() uint64
	// RemoteAddr returns the remote endpoint this connection is dialed to
	RemoteAddr() string
	// Send writes one framed payload asynchronously
	Send(payload []byte) SendFuture
	// SetHandler attaches the per-connection response handler
	SetHandler(h ResponseHandler)
	// ClearHandler detaches the response handler
	ClearHandler()
	// ArmReadTimeout starts a watchdog that fires OnException(ErrReadTimeout)
	// if no response frame arrives within d
	ArmReadTimeout(d time.Duration)
	// DisarmReadTimeout stops a previously armed watchdog
	DisarmReadTimeout()
	// Healthy reports whether the connection is still usable
	Healthy() bool
	// Close closes the underlying connection
	Close() error
}

// --------------------------------------------------------------------------
// Factory contract
// --------------------------------------------------------------------------

// Factory dials connections for the pools of a node. A factory is either
// supplied to the node at construction (shared, the caller shuts it down) or
// created by the node itself (owned, released when the node shuts down).
type Factory interface {
	// Dial establishes a connection to the endpoint within timeout
	Dial(endpoint string, timeout time.Duration) (Conn, error)
	// Shutdown releases the factory; subsequent Dial calls fail
	Shutdown()
}
