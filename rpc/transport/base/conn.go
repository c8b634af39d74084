package base

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridkv/gridkv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

// nextConnID hands out process-wide unique connection identities
var nextConnID atomic.Uint64

// -----------------------------------------------------------
// Framed connection
// -----------------------------------------------------------

// frameConn implements transport.Conn on top of a net.Conn using the
// length-prefixed frame format from frame.go. A single reader goroutine
// routes incoming frames to the currently attached handler.
type frameConn struct {
	id     uint64
	nc     netConn
	remote string

	writeMu sync.Mutex // serializes frame writes

	handlerMu sync.RWMutex
	handler   transport.ResponseHandler

	timerMu   sync.Mutex
	readTimer *time.Timer

	healthy atomic.Bool
	closed  atomic.Bool
}

// netConn is the subset of net.Conn the frame codec needs; it keeps the
// reader testable with in-memory pipes.
type netConn = io.ReadWriteCloser

// NewConn wraps an established network connection and starts its reader
// goroutine. remote is the endpoint string the connection was dialed to.
func NewConn(nc netConn, remote string) transport.Conn {
	c := &frameConn{
		id:     nextConnID.Add(1),
		nc:     nc,
		remote: remote,
	}
	c.healthy.Store(true)
	go c.readLoop()
	return c
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.Conn)
// --------------------------------------------------------------------------

func (c *frameConn) ID() uint64 {
	return c.id
}

func (c *frameConn) RemoteAddr() string {
	return c.remote
}

func (c *frameConn) Send(payload []byte) transport.SendFuture {
	f := newSendFuture(c)

	if c.closed.Load() || !c.healthy.Load() {
		f.complete(transport.ErrConnClosed)
		return f
	}

	// The write happens off the caller's goroutine; the future reports its
	// outcome. writeMu keeps frames from interleaving.
	go func() {
		c.writeMu.Lock()
		err := WriteFrame(c.nc, payload)
		c.writeMu.Unlock()

		if err != nil {
			c.healthy.Store(false)
		}
		f.complete(err)
	}()

	return f
}

func (c *frameConn) SetHandler(h transport.ResponseHandler) {
	c.handlerMu.Lock()
	c.handler = h
	c.handlerMu.Unlock()
}

func (c *frameConn) ClearHandler() {
	c.handlerMu.Lock()
	c.handler = nil
	c.handlerMu.Unlock()
}

func (c *frameConn) ArmReadTimeout(d time.Duration) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.readTimer != nil {
		c.readTimer.Stop()
	}
	c.readTimer = time.AfterFunc(d, c.onReadTimeout)
}

func (c *frameConn) DisarmReadTimeout() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.readTimer != nil {
		c.readTimer.Stop()
		c.readTimer = nil
	}
}

func (c *frameConn) Healthy() bool {
	return c.healthy.Load() && !c.closed.Load()
}

func (c *frameConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.healthy.Store(false)
	c.DisarmReadTimeout()
	return c.nc.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// onReadTimeout fires when the watchdog expires before a response arrived.
// The connection has a stale response in flight afterwards and is no longer
// reusable.
func (c *frameConn) onReadTimeout() {
	c.healthy.Store(false)
	if h := c.currentHandler(); h != nil {
		h.OnException(c, transport.ErrReadTimeout)
	} else {
		Logger.Warningf("Read timeout on %s with no handler attached", c.remote)
	}
}

func (c *frameConn) currentHandler() transport.ResponseHandler {
	c.handlerMu.RLock()
	defer c.handlerMu.RUnlock()
	return c.handler
}

// readLoop reads response frames in a loop and delivers them to the attached
// handler. It exits on the first read error.
func (c *frameConn) readLoop() {
	var buf []byte
	for {
		frame, err := ReadFrame(c.nc, buf)
		if len(frame) > len(buf) {
			buf = frame[:cap(frame)]
		}
		if err != nil {
			c.healthy.Store(false)
			if c.closed.Load() {
				return // expected after Close
			}
			if h := c.currentHandler(); h != nil {
				h.OnException(c, err)
			} else {
				Logger.Debugf("Read error on idle connection %s: %v", c.remote, err)
			}
			return
		}

		// The read buffer is reused, hand the handler its own copy
		response := append([]byte(nil), frame...)

		if h := c.currentHandler(); h != nil {
			h.OnSuccess(c, response)
		} else {
			Logger.Warningf("Received unsolicited response on %s (%d bytes)", c.remote, len(response))
		}
	}
}

// -----------------------------------------------------------
// Send future
// -----------------------------------------------------------

// sendFuture implements transport.SendFuture. complete is called exactly once
// by the writer goroutine.
type sendFuture struct {
	conn transport.Conn
	done chan struct{}

	mu        sync.Mutex
	err       error
	completed bool
	listeners []func(conn transport.Conn, err error)
}

func newSendFuture(conn transport.Conn) *sendFuture {
	return &sendFuture{
		conn: conn,
		done: make(chan struct{}),
	}
}

func (f *sendFuture) AddListener(fn func(conn transport.Conn, err error)) {
	f.mu.Lock()
	if f.completed {
		err := f.err
		f.mu.Unlock()
		fn(f.conn, err)
		return
	}
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

func (f *sendFuture) Done() <-chan struct{} {
	return f.done
}

func (f *sendFuture) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *sendFuture) complete(err error) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return
	}
	f.completed = true
	f.err = err
	listeners := f.listeners
	f.listeners = nil
	f.mu.Unlock()

	close(f.done)
	for _, fn := range listeners {
		fn(f.conn, err)
	}
}
