package node

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridkv/gridkv/rpc/transport"
)

// In-memory transport stand-ins. They implement the transport interfaces
// without any network so tests can control connection behavior directly.

var fakeConnID atomic.Uint64

type fakeFuture struct {
	mu        sync.Mutex
	done      chan struct{}
	err       error
	completed bool
	conn      transport.Conn
	listeners []func(transport.Conn, error)
}

func newFakeFuture(conn transport.Conn) *fakeFuture {
	return &fakeFuture{done: make(chan struct{}), conn: conn}
}

func (f *fakeFuture) AddListener(fn func(transport.Conn, error)) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		fn(f.conn, f.err)
		return
	}
	f.listeners = append(f.listeners, fn)
	f.mu.Unlock()
}

func (f *fakeFuture) Done() <-chan struct{} { return f.done }

func (f *fakeFuture) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeFuture) complete(err error) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return
	}
	f.completed = true
	f.err = err
	listeners := f.listeners
	f.listeners = nil
	close(f.done)
	f.mu.Unlock()
	for _, fn := range listeners {
		fn(f.conn, err)
	}
}

type fakeConn struct {
	id     uint64
	remote string

	mu      sync.Mutex
	handler transport.ResponseHandler
	sent    [][]byte
	futures []*fakeFuture
	armed   time.Duration
	closed  bool

	healthy atomic.Bool

	// sendErr, when set, completes every send future with this error
	sendErr error
	// holdSends leaves send futures pending until completed by the test
	holdSends bool
}

func newFakeConn(remote string) *fakeConn {
	c := &fakeConn{id: fakeConnID.Add(1), remote: remote}
	c.healthy.Store(true)
	return c
}

func (c *fakeConn) ID() uint64         { return c.id }
func (c *fakeConn) RemoteAddr() string { return c.remote }

func (c *fakeConn) Send(data []byte) transport.SendFuture {
	f := newFakeFuture(c)
	c.mu.Lock()
	c.sent = append(c.sent, data)
	c.futures = append(c.futures, f)
	sendErr, hold := c.sendErr, c.holdSends
	c.mu.Unlock()
	if !hold {
		f.complete(sendErr)
	}
	return f
}

func (c *fakeConn) SetHandler(h transport.ResponseHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *fakeConn) ClearHandler() {
	c.mu.Lock()
	c.handler = nil
	c.mu.Unlock()
}

func (c *fakeConn) ArmReadTimeout(d time.Duration) {
	c.mu.Lock()
	c.armed = d
	c.mu.Unlock()
}

func (c *fakeConn) DisarmReadTimeout() {
	c.mu.Lock()
	c.armed = 0
	c.mu.Unlock()
}

func (c *fakeConn) Healthy() bool { return c.healthy.Load() }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.healthy.Store(false)
	return nil
}

// deliverSuccess feeds a response to the conn's current handler, the same
// way the real read loop would.
func (c *fakeConn) deliverSuccess(response []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h.OnSuccess(c, response)
	}
}

func (c *fakeConn) deliverException(err error) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h.OnException(c, err)
	}
}

func (c *fakeConn) armedTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

func (c *fakeConn) lastSent() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return nil
	}
	return c.sent[len(c.sent)-1]
}

var errDialRefused = errors.New("dial refused")

type fakeFactory struct {
	mu       sync.Mutex
	conns    []*fakeConn
	failDial bool
	shutdown bool

	// configureConn, when set, adjusts each new conn before it is handed out
	configureConn func(*fakeConn)
}

func newFakeFactory() *fakeFactory { return &fakeFactory{} }

func (f *fakeFactory) Dial(endpoint string, timeout time.Duration) (transport.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shutdown {
		return nil, transport.ErrFactoryShutdown
	}
	if f.failDial {
		return nil, errDialRefused
	}
	c := newFakeConn(endpoint)
	if f.configureConn != nil {
		f.configureConn(c)
	}
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeFactory) Shutdown() {
	f.mu.Lock()
	f.shutdown = true
	f.mu.Unlock()
}

func (f *fakeFactory) dialed() []*fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeConn, len(f.conns))
	copy(out, f.conns)
	return out
}
