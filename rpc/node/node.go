package node

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gridkv/gridkv/rpc/common"
	"github.com/gridkv/gridkv/rpc/pool"
	"github.com/gridkv/gridkv/rpc/transport"
	"github.com/gridkv/gridkv/rpc/transport/tcp"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("node")

// --------------------------------------------------------------------------
// Node
// --------------------------------------------------------------------------

// Node is the client-side representative of one server endpoint. It owns one
// connection pool per supported protocol, aggregates the pool states into a
// single node state, dispatches operations onto pooled connections and
// resolves each operation exactly once when the transport reports back.
//
// A node is identified by its remote address, independent of protocols and
// ports. Pools never outlive their owning node.
type Node struct {
	remoteAddress string
	cfg           common.NodeConfig

	// state holds a State value; reads are lock-free, transitions are
	// serialized by transitionMu
	state        atomic.Int32
	transitionMu sync.Mutex

	poolMu sync.RWMutex
	pools  map[common.Protocol]*pool.Pool

	inflight  *inflightRegistry
	listeners listenerList

	readTimeout atomic.Int64 // nanoseconds

	// scheduler and transport factory are either supplied (shared, never
	// released here) or created at Start (owned, released exactly once at
	// SHUTDOWN)
	sched       *common.Scheduler
	ownsSched   bool
	factory     transport.Factory
	ownsFactory bool
	releaseOnce sync.Once

	mExecuted  *metrics.Counter
	mRejected  *metrics.Counter
	mCompleted *metrics.Counter
	mFailed    *metrics.Counter
}

// Option customizes a node beyond its configuration value.
type Option func(*Node)

// WithScheduler supplies a shared scheduler. The node will not shut it down.
func WithScheduler(s *common.Scheduler) Option {
	return func(n *Node) {
		n.sched = s
	}
}

// WithFactory supplies a shared transport factory. The node will not shut it
// down.
func WithFactory(f transport.Factory) Option {
	return func(n *Node) {
		n.factory = f
	}
}

// New creates a node from an immutable configuration value. The node owns
// one pool per configured protocol; it is inert until Start is called.
func New(cfg common.NodeConfig, opts ...Option) (*Node, error) {
	if len(cfg.Pools) == 0 {
		return nil, fmt.Errorf("node config declares no protocols")
	}
	if cfg.RemoteAddress == "" {
		cfg.RemoteAddress = common.DefaultRemoteAddress
	}

	n := &Node{
		remoteAddress: cfg.RemoteAddress,
		cfg:           cfg,
		pools:         make(map[common.Protocol]*pool.Pool, len(cfg.Pools)),
		inflight:      newInflightRegistry(),
	}
	n.state.Store(int32(StateCreated))
	n.readTimeout.Store(int64(cfg.ReadTimeout))

	for _, p := range cfg.Protocols() {
		n.pools[p] = pool.New(p, cfg.RemoteAddress, cfg.Pools[p])
	}

	for _, opt := range opts {
		opt(n)
	}

	n.mExecuted = metrics.GetOrCreateCounter(fmt.Sprintf(`gridkv_node_operations_executed_total{node=%q}`, n.remoteAddress))
	n.mRejected = metrics.GetOrCreateCounter(fmt.Sprintf(`gridkv_node_operations_rejected_total{node=%q}`, n.remoteAddress))
	n.mCompleted = metrics.GetOrCreateCounter(fmt.Sprintf(`gridkv_node_operations_completed_total{node=%q}`, n.remoteAddress))
	n.mFailed = metrics.GetOrCreateCounter(fmt.Sprintf(`gridkv_node_operations_failed_total{node=%q}`, n.remoteAddress))

	return n, nil
}

// NewNodes builds one node per remote address, all sharing the same
// configuration template and options.
func NewNodes(cfg common.NodeConfig, remoteAddresses []string, opts ...Option) ([]*Node, error) {
	nodes := make([]*Node, 0, len(remoteAddresses))
	for _, addr := range remoteAddresses {
		c := cfg
		c.RemoteAddress = addr
		n, err := New(c, opts...)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// RemoteAddress returns the host or IP this node represents.
func (n *Node) RemoteAddress() string {
	return n.remoteAddress
}

// NodeState returns the current aggregate state.
func (n *Node) NodeState() State {
	return State(n.state.Load())
}

// ReadTimeout returns the configured response timeout.
func (n *Node) ReadTimeout() (time.Duration, error) {
	if err := n.stateCheck(StateCreated, StateRunning, StateHealthChecking); err != nil {
		return 0, err
	}
	return time.Duration(n.readTimeout.Load()), nil
}

// SetReadTimeout changes the response timeout for subsequent operations.
func (n *Node) SetReadTimeout(d time.Duration) error {
	if err := n.stateCheck(StateCreated, StateRunning, StateHealthChecking); err != nil {
		return err
	}
	n.readTimeout.Store(int64(d))
	return nil
}

// InFlight returns the number of operations currently dispatched and not yet
// resolved.
func (n *Node) InFlight() int {
	return n.inflight.Len()
}

// AddStateListener registers a listener for node state transitions.
func (n *Node) AddStateListener(l StateListener) {
	n.listeners.Add(l)
}

// RemoveStateListener removes a previously registered listener; removing an
// unknown listener is a no-op.
func (n *Node) RemoveStateListener(l StateListener) bool {
	return n.listeners.Remove(l)
}

// stateCheck fails with a StateError unless the current state is one of the
// allowed ones.
func (n *Node) stateCheck(allowed ...State) error {
	current := n.NodeState()
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	Logger.Debugf("State check failed; remote: %s required: %v current: %s",
		n.remoteAddress, allowed, current)
	return &StateError{Required: allowed, Current: current}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start brings the node up: it creates the scheduler and transport factory
// if none were supplied, starts every pool and moves the node to RUNNING.
func (n *Node) Start() error {
	if err := n.stateCheck(StateCreated); err != nil {
		return err
	}

	if n.sched == nil {
		n.sched = common.NewScheduler()
		n.ownsSched = true
	}
	if n.factory == nil {
		n.factory = tcp.NewFactory(n.cfg.Socket)
		n.ownsFactory = true
	}

	n.poolMu.RLock()
	pools := make([]*pool.Pool, 0, len(n.pools))
	for _, p := range n.pools {
		pools = append(pools, p)
	}
	n.poolMu.RUnlock()

	started := make([]*pool.Pool, 0, len(pools))
	for _, p := range pools {
		p.AddStateListener(n)
		p.Bind(n.factory, n.sched)
		if err := p.Start(); err != nil {
			// Roll back: the node never becomes usable
			for _, s := range started {
				s.Shutdown()
			}
			n.state.Store(int32(StateShutdown))
			n.releaseOwned()
			return fmt.Errorf("failed to start node %s: %v", n.remoteAddress, err)
		}
		started = append(started, p)
	}

	n.transitionMu.Lock()
	n.setStateAndNotifyLocked(StateRunning)
	n.transitionMu.Unlock()

	Logger.Infof("Node running; %s", n.remoteAddress)
	return nil
}

// Shutdown forwards shutdown to every owned pool. The node's own state
// change is driven entirely by the resulting pool notifications: shutdown
// completion is observed, not assumed.
func (n *Node) Shutdown() error {
	if err := n.stateCheck(StateRunning, StateHealthChecking); err != nil {
		return err
	}
	Logger.Infof("Node shutting down; %s", n.remoteAddress)

	n.poolMu.RLock()
	pools := make([]*pool.Pool, 0, len(n.pools))
	for _, p := range n.pools {
		pools = append(pools, p)
	}
	n.poolMu.RUnlock()

	for _, p := range pools {
		p.Shutdown()
	}
	return nil
}

// releaseOwned shuts down the scheduler and transport factory if this node
// created them. Runs at most once.
func (n *Node) releaseOwned() {
	n.releaseOnce.Do(func() {
		if n.ownsSched {
			n.sched.Shutdown()
		}
		if n.ownsFactory {
			n.factory.Shutdown()
		}
	})
}

// --------------------------------------------------------------------------
// Dispatch
// --------------------------------------------------------------------------

// Execute submits the operation to be executed on this node.
//
// It returns true if the operation was accepted, and false without error if
// no connection was available; the caller, typically a cluster-level
// scheduler, should then try another node. It returns a StateError if the
// node is not RUNNING or HEALTH_CHECKING and ErrUnsupportedProtocol if the
// operation's preference list has no protocol in common with this node.
func (n *Node) Execute(op Operation) (bool, error) {
	if err := n.stateCheck(StateRunning, StateHealthChecking); err != nil {
		return false, err
	}

	n.poolMu.RLock()
	supported := make(map[common.Protocol]bool, len(n.pools))
	for p := range n.pools {
		supported[p] = true
	}
	n.poolMu.RUnlock()

	proto, ok := chooseProtocol(op.ProtocolPreference(), supported)
	if !ok {
		return false, ErrUnsupportedProtocol
	}

	op.SetLastNode(n)

	n.poolMu.RLock()
	pl := n.pools[proto]
	n.poolMu.RUnlock()
	if pl == nil {
		// The pool shut down between selection and acquisition
		return false, ErrUnsupportedProtocol
	}

	conn, ok := pl.Acquire()
	if !ok {
		n.mRejected.Inc()
		return false, nil
	}

	payload, err := op.Payload(proto)
	if err != nil {
		pl.Release(conn)
		return false, fmt.Errorf("failed to encode operation for %s: %v", proto, err)
	}

	if rt := time.Duration(n.readTimeout.Load()); rt > 0 {
		conn.ArmReadTimeout(rt)
	}
	conn.SetHandler(n)

	// The in-flight entry must exist before the send is initiated, so a
	// completion racing the send cannot miss it.
	n.inflight.Put(conn.ID(), proto, op)

	future := conn.Send(payload)
	future.AddListener(n.onSendComplete)

	n.mExecuted.Inc()
	Logger.Debugf("Operation executed on node %s %s", n.remoteAddress, conn.RemoteAddr())
	return true, nil
}

// --------------------------------------------------------------------------
// Completion resolution
// --------------------------------------------------------------------------

// OnSuccess resolves the in-flight operation of a connection with its
// response. A missing entry is a legal race with another completion path
// and is ignored.
func (n *Node) OnSuccess(conn transport.Conn, response []byte) {
	Logger.Debugf("Operation OnSuccess() connection: %s", conn.RemoteAddr())
	conn.DisarmReadTimeout()

	entry, ok := n.inflight.Remove(conn.ID())
	if !ok {
		return
	}
	n.returnConnection(entry.protocol, conn)
	entry.operation.SetResponse(response)
	n.mCompleted.Inc()
}

// OnException resolves the in-flight operation of a connection with a
// transport error. Without an entry the error is a node-level diagnostic
// only: a write failure can arrive after the response handler already
// completed the operation. Known race, no operation is touched.
func (n *Node) OnException(conn transport.Conn, err error) {
	Logger.Debugf("Operation OnException() connection: %s %v", conn.RemoteAddr(), err)
	conn.DisarmReadTimeout()

	entry, ok := n.inflight.Remove(conn.ID())
	if !ok {
		Logger.Warningf("Transport error on node %s with no operation in flight: %v",
			n.remoteAddress, err)
		return
	}
	n.returnConnection(entry.protocol, conn)
	entry.operation.SetException(err)
	n.mFailed.Inc()
}

// onSendComplete observes the outcome of the write itself, as opposed to the
// response. A failed write resolves the operation with the write's cause.
func (n *Node) onSendComplete(conn transport.Conn, err error) {
	if err == nil {
		return
	}

	entry, ok := n.inflight.Remove(conn.ID())
	if !ok {
		// Lost the race against OnException for the same failure
		return
	}
	Logger.Infof("Write failed on node %s %s", n.remoteAddress, entry.protocol)
	conn.DisarmReadTimeout()
	n.returnConnection(entry.protocol, conn)
	entry.operation.SetException(err)
	n.mFailed.Inc()
}

// returnConnection gives a connection back to the pool it was acquired
// from. If that pool is already gone the connection is closed instead of
// being dropped silently.
func (n *Node) returnConnection(proto common.Protocol, conn transport.Conn) {
	n.poolMu.RLock()
	pl := n.pools[proto]
	n.poolMu.RUnlock()

	if pl == nil {
		Logger.Warningf("Pool for %s gone on node %s, closing connection %d",
			proto, n.remoteAddress, conn.ID())
		conn.ClearHandler()
		conn.Close()
		return
	}
	pl.Release(conn)
}

// --------------------------------------------------------------------------
// Pool state aggregation
// --------------------------------------------------------------------------

// PoolStateChanged drives the node state machine. It is invoked from each
// pool's notifier goroutine; transitionMu makes the transitions and their
// broadcasts strictly sequential. The aggregate is event-driven on purpose:
// polling all pools could observe a torn combination of states.
func (n *Node) PoolStateChanged(p *pool.Pool, newState pool.State) {
	n.transitionMu.Lock()
	defer n.transitionMu.Unlock()

	switch newState {
	case pool.StateHealthChecking:
		// A node is only as healthy as its least healthy pool
		n.setStateAndNotifyLocked(StateHealthChecking)
		Logger.Infof("Node offline, health checking; %s", n.remoteAddress)

	case pool.StateRunning:
		// RUNNING means at least one usable path exists, not that every
		// pool recovered
		n.setStateAndNotifyLocked(StateRunning)
		Logger.Infof("Node running; %s", n.remoteAddress)

	case pool.StateShuttingDown:
		if s := n.NodeState(); s == StateRunning || s == StateHealthChecking {
			n.setStateAndNotifyLocked(StateShuttingDown)
			Logger.Infof("Node shutting down due to pool shutdown; %s", n.remoteAddress)
		}

	case pool.StateShutdown:
		n.poolMu.Lock()
		delete(n.pools, p.Protocol())
		empty := len(n.pools) == 0
		n.poolMu.Unlock()

		if empty {
			n.setStateAndNotifyLocked(StateShutdown)
			n.releaseOwned()
			Logger.Infof("Node shut down due to pool shutdown; %s", n.remoteAddress)
		}
	}
}

// setStateAndNotifyLocked applies a state and notifies every listener,
// synchronously and in registration order. Caller holds transitionMu, which
// is taken by no caller-facing method, so listeners are free to call back
// into the node.
func (n *Node) setStateAndNotifyLocked(s State) {
	n.state.Store(int32(s))
	for _, l := range n.listeners.Snapshot() {
		l.NodeStateChanged(n, s)
	}
}
