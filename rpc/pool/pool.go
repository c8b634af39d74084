package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/gridkv/gridkv/rpc/common"
	"github.com/gridkv/gridkv/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("pool")

// --------------------------------------------------------------------------
// Pool State
// --------------------------------------------------------------------------

// State is the lifecycle state of a connection pool.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateHealthChecking
	StateShuttingDown
	StateShutdown
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateRunning:
		return "RUNNING"
	case StateHealthChecking:
		return "HEALTH_CHECKING"
	case StateShuttingDown:
		return "SHUTTING_DOWN"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// StateListener is notified of pool state transitions. Notifications are
// delivered asynchronously from a single pool-owned goroutine, in the order
// the transitions happened. A listener may call back into the pool.
type StateListener interface {
	PoolStateChanged(p *Pool, newState State)
}

// --------------------------------------------------------------------------
// Pool
// --------------------------------------------------------------------------

// eventBuffer bounds the notification queue. The state machine has a handful
// of transitions over a pool's lifetime, the buffer exists only to decouple
// the transition from its delivery.
const eventBuffer = 64

// idleConn tracks when a connection was last returned, for idle reaping.
type idleConn struct {
	conn  transport.Conn
	since time.Time
}

// Pool owns the physical connections a node holds for one protocol. It hands
// them out one owner at a time (Acquire/Release), keeps MinConnections open,
// grows on demand up to MaxConnections, health checks the endpoint when
// connections fail and reports every lifecycle transition to its listeners.
type Pool struct {
	protocol common.Protocol
	endpoint string
	cfg      common.PoolConfig

	factory transport.Factory
	sched   *common.Scheduler

	mu       sync.Mutex
	state    State
	idle     []idleConn
	inUse    map[uint64]transport.Conn
	dialing  int // reserved slots for in-progress dials

	listenerMu sync.Mutex
	listeners  []StateListener

	events     chan State
	notifyDone chan struct{}

	cancelProbe  func()
	cancelReaper func()
}

// New creates a pool for one protocol of the node at remoteAddress. The pool
// is inert until Bind and Start are called.
func New(protocol common.Protocol, remoteAddress string, cfg common.PoolConfig) *Pool {
	cfg = cfg.WithDefaults()
	return &Pool{
		protocol:   protocol,
		endpoint:   fmt.Sprintf("%s:%d", remoteAddress, cfg.Port),
		cfg:        cfg,
		state:      StateCreated,
		inUse:      make(map[uint64]transport.Conn),
		events:     make(chan State, eventBuffer),
		notifyDone: make(chan struct{}),
	}
}

// Bind supplies the transport factory and scheduler the pool works with.
// Must be called before Start; the pool never shuts either of them down.
func (p *Pool) Bind(factory transport.Factory, sched *common.Scheduler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.factory = factory
	p.sched = sched
}

// Protocol returns the protocol tag this pool serves.
func (p *Pool) Protocol() common.Protocol {
	return p.protocol
}

// Endpoint returns the host:port this pool dials.
func (p *Pool) Endpoint() string {
	return p.endpoint
}

// State returns the current pool state.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// --------------------------------------------------------------------------
// Listener registration
// --------------------------------------------------------------------------

// AddStateListener registers a listener for state transitions.
func (p *Pool) AddStateListener(l StateListener) {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	p.listeners = append(p.listeners, l)
}

// RemoveStateListener removes a previously registered listener. Removing a
// listener that is not registered is a no-op.
func (p *Pool) RemoveStateListener(l StateListener) {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	for i, reg := range p.listeners {
		if reg == l {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			return
		}
	}
}

func (p *Pool) snapshotListeners() []StateListener {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	return append([]StateListener(nil), p.listeners...)
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start dials MinConnections and moves the pool to RUNNING. It fails if the
// pool was already started or no initial connection could be established.
func (p *Pool) Start() error {
	p.mu.Lock()
	if p.state != StateCreated {
		state := p.state
		p.mu.Unlock()
		return fmt.Errorf("pool %s already started; current state: %s", p.endpoint, state)
	}
	if p.factory == nil || p.sched == nil {
		p.mu.Unlock()
		return fmt.Errorf("pool %s not bound to a factory and scheduler", p.endpoint)
	}
	p.mu.Unlock()

	go p.notifyLoop()

	// Establish the initial connections
	dialed := make([]transport.Conn, 0, p.cfg.MinConnections)
	var lastErr error
	for i := 0; i < p.cfg.MinConnections; i++ {
		conn, err := p.factory.Dial(p.endpoint, p.cfg.ConnectTimeout)
		if err != nil {
			lastErr = err
			Logger.Warningf("Failed to connect to %s (connection %d/%d): %v",
				p.endpoint, i+1, p.cfg.MinConnections, err)
			continue
		}
		dialed = append(dialed, conn)
	}

	if len(dialed) == 0 && p.cfg.MinConnections > 0 {
		// The pool never became usable; no transition is broadcast, the
		// caller gets the error instead.
		p.mu.Lock()
		p.state = StateShutdown
		p.mu.Unlock()
		close(p.events)
		return fmt.Errorf("failed to connect to %s: %v", p.endpoint, lastErr)
	}

	p.mu.Lock()
	now := time.Now()
	for _, conn := range dialed {
		p.idle = append(p.idle, idleConn{conn: conn, since: now})
	}
	p.state = StateRunning
	p.mu.Unlock()

	if p.cfg.IdleTimeout > 0 {
		p.cancelReaper = p.sched.Every(p.cfg.IdleTimeout, p.reapIdle)
	}

	Logger.Infof("Pool running; %s (%s), %d/%d initial connections",
		p.endpoint, p.protocol, len(dialed), p.cfg.MinConnections)
	return nil
}

// Shutdown closes idle connections and moves the pool to SHUTTING_DOWN.
// The terminal SHUTDOWN transition happens once the last in-use connection
// is released. Calling Shutdown more than once is a no-op.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.state == StateShuttingDown || p.state == StateShutdown {
		p.mu.Unlock()
		return
	}
	p.state = StateShuttingDown
	idle := p.idle
	p.idle = nil
	drained := len(p.inUse) == 0 && p.dialing == 0
	p.events <- StateShuttingDown
	if drained {
		p.state = StateShutdown
		p.events <- StateShutdown
	}
	p.mu.Unlock()

	p.stopTasks()
	for _, e := range idle {
		e.conn.Close()
	}

	Logger.Infof("Pool shutting down; %s (%s)", p.endpoint, p.protocol)
}

// --------------------------------------------------------------------------
// Acquire / Release
// --------------------------------------------------------------------------

// Acquire hands out one connection, or reports false when the pool is
// exhausted or not in a usable state. A false return is the admission
// control signal, not an error.
func (p *Pool) Acquire() (transport.Conn, bool) {
	p.mu.Lock()
	if p.state != StateRunning && p.state != StateHealthChecking {
		p.mu.Unlock()
		return nil, false
	}

	// Prefer an idle connection, discarding any that died while pooled
	for len(p.idle) > 0 {
		last := len(p.idle) - 1
		e := p.idle[last]
		p.idle = p.idle[:last]
		if !e.conn.Healthy() {
			Logger.Debugf("Discarding dead idle connection to %s", p.endpoint)
			e.conn.Close()
			continue
		}
		p.inUse[e.conn.ID()] = e.conn
		p.mu.Unlock()
		return e.conn, true
	}

	// Grow on demand while under the cap; reserve the slot before dialing
	// so concurrent acquires cannot overshoot MaxConnections.
	if len(p.inUse)+p.dialing >= p.cfg.MaxConnections {
		p.mu.Unlock()
		return nil, false
	}
	p.dialing++
	p.mu.Unlock()

	conn, err := p.factory.Dial(p.endpoint, p.cfg.ConnectTimeout)

	p.mu.Lock()
	p.dialing--
	if err != nil {
		shuttingDown := p.state == StateShuttingDown || p.state == StateShutdown
		p.maybeFinishShutdownLocked()
		p.mu.Unlock()
		if !shuttingDown {
			p.onEndpointUnhealthy(fmt.Sprintf("dial failed: %v", err))
		}
		return nil, false
	}
	if p.state == StateShuttingDown || p.state == StateShutdown {
		p.maybeFinishShutdownLocked()
		p.mu.Unlock()
		conn.Close()
		return nil, false
	}
	p.inUse[conn.ID()] = conn
	p.mu.Unlock()
	return conn, true
}

// Release returns a connection obtained from Acquire. Dead connections are
// closed and trigger a health check; a connection released during shutdown
// is closed, and the last one completes the SHUTDOWN transition.
func (p *Pool) Release(conn transport.Conn) {
	conn.ClearHandler()

	p.mu.Lock()
	if _, ok := p.inUse[conn.ID()]; !ok {
		p.mu.Unlock()
		Logger.Warningf("Released connection %d not owned by pool %s", conn.ID(), p.endpoint)
		conn.Close()
		return
	}
	delete(p.inUse, conn.ID())

	if p.state == StateShuttingDown || p.state == StateShutdown {
		p.maybeFinishShutdownLocked()
		p.mu.Unlock()
		conn.Close()
		return
	}

	if !conn.Healthy() {
		p.mu.Unlock()
		conn.Close()
		p.onEndpointUnhealthy("released connection is dead")
		return
	}

	p.idle = append(p.idle, idleConn{conn: conn, since: time.Now()})
	p.mu.Unlock()
}

// NumIdle returns the number of pooled idle connections.
func (p *Pool) NumIdle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// NumInUse returns the number of currently acquired connections.
func (p *Pool) NumInUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// --------------------------------------------------------------------------
// Health checking
// --------------------------------------------------------------------------

// onEndpointUnhealthy moves the pool to HEALTH_CHECKING and starts the
// periodic probe loop. Only the RUNNING -> HEALTH_CHECKING edge emits.
func (p *Pool) onEndpointUnhealthy(reason string) {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return
	}
	p.state = StateHealthChecking
	p.events <- StateHealthChecking
	p.mu.Unlock()

	Logger.Infof("Pool health checking; %s (%s): %s", p.endpoint, p.protocol, reason)

	cancel := p.sched.Every(p.cfg.HealthCheckInterval, p.probe)
	p.mu.Lock()
	if p.state == StateHealthChecking {
		p.cancelProbe = cancel
		p.mu.Unlock()
		return
	}
	// Pool moved on (shutdown or recovered) before the probe was registered
	p.mu.Unlock()
	cancel()
}

// probe attempts one dial; success restores RUNNING and keeps the new
// connection.
func (p *Pool) probe() {
	conn, err := p.factory.Dial(p.endpoint, p.cfg.ConnectTimeout)
	if err != nil {
		Logger.Debugf("Health check of %s failed: %v", p.endpoint, err)
		return
	}

	p.mu.Lock()
	if p.state != StateHealthChecking {
		p.mu.Unlock()
		conn.Close()
		return
	}
	p.state = StateRunning
	p.idle = append(p.idle, idleConn{conn: conn, since: time.Now()})
	p.events <- StateRunning
	cancel := p.cancelProbe
	p.cancelProbe = nil
	p.mu.Unlock()

	Logger.Infof("Pool running; %s (%s)", p.endpoint, p.protocol)
	if cancel != nil {
		cancel()
	}
}

// reapIdle closes idle connections beyond MinConnections that have been
// unused for longer than IdleTimeout.
func (p *Pool) reapIdle() {
	cutoff := time.Now().Add(-p.cfg.IdleTimeout)
	var victims []transport.Conn

	p.mu.Lock()
	if p.state != StateRunning && p.state != StateHealthChecking {
		p.mu.Unlock()
		return
	}
	// Oldest entries sit at the front of the slice
	for len(p.idle) > p.cfg.MinConnections && p.idle[0].since.Before(cutoff) {
		victims = append(victims, p.idle[0].conn)
		p.idle = p.idle[1:]
	}
	p.mu.Unlock()

	for _, conn := range victims {
		conn.Close()
	}
	if len(victims) > 0 {
		Logger.Debugf("Reaped %d idle connections to %s", len(victims), p.endpoint)
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// maybeFinishShutdownLocked completes the SHUTDOWN transition once no
// connection is in use or being dialed. Caller must hold p.mu.
func (p *Pool) maybeFinishShutdownLocked() {
	if p.state != StateShuttingDown {
		return
	}
	if len(p.inUse) == 0 && p.dialing == 0 {
		p.state = StateShutdown
		p.events <- StateShutdown
	}
}

// stopTasks cancels the probe and reaper tasks if they are running.
func (p *Pool) stopTasks() {
	p.mu.Lock()
	probe, reaper := p.cancelProbe, p.cancelReaper
	p.cancelProbe, p.cancelReaper = nil, nil
	p.mu.Unlock()

	if probe != nil {
		probe()
	}
	if reaper != nil {
		reaper()
	}
}

// notifyLoop delivers state transitions to listeners, one at a time, in the
// order they happened. Running it on a dedicated goroutine keeps listener
// callbacks from re-entering the pool on the goroutine that caused the
// transition.
func (p *Pool) notifyLoop() {
	defer close(p.notifyDone)
	for s := range p.events {
		for _, l := range p.snapshotListeners() {
			l.PoolStateChanged(p, s)
		}
		if s == StateShutdown {
			return
		}
	}
}
