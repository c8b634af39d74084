package node

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gridkv/gridkv/rpc/common"
	"github.com/gridkv/gridkv/rpc/pool"
)

func testConfig(protocols ...common.Protocol) common.NodeConfig {
	pools := make(map[common.Protocol]common.PoolConfig, len(protocols))
	for i, p := range protocols {
		pools[p] = common.PoolConfig{
			Port:           9000 + i,
			MinConnections: 1,
			MaxConnections: 2,
		}
	}
	return common.NodeConfig{
		RemoteAddress: "10.0.0.1",
		Pools:         pools,
	}
}

// startTestNode builds and starts a node backed by an in-memory transport.
func startTestNode(t *testing.T, cfg common.NodeConfig) (*Node, *fakeFactory, *common.Scheduler) {
	t.Helper()

	factory := newFakeFactory()
	sched := common.NewScheduler()
	t.Cleanup(sched.Shutdown)

	n, err := New(cfg, WithFactory(factory), WithScheduler(sched))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return n, factory, sched
}

// waitForNodeState polls until the node reaches the wanted state. Pool
// notifications are asynchronous, so tests cannot assert transitions
// immediately.
func waitForNodeState(t *testing.T, n *Node, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if n.NodeState() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("node never reached %s, stuck at %s", want, n.NodeState())
}

type recordingNodeListener struct {
	mu     sync.Mutex
	states []State
}

func (l *recordingNodeListener) NodeStateChanged(_ *Node, s State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *recordingNodeListener) snapshot() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]State, len(l.states))
	copy(out, l.states)
	return out
}

func noopEncode(p common.Protocol) ([]byte, error) {
	return []byte("payload:" + p.String()), nil
}

// TestNodeLifecycle checks the happy path CREATED -> RUNNING -> SHUTTING_DOWN
// -> SHUTDOWN and that every method guards against use in the wrong state.
func TestNodeLifecycle(t *testing.T) {
	cfg := testConfig(common.ProtocolBinary, common.ProtocolJSON)

	factory := newFakeFactory()
	sched := common.NewScheduler()
	defer sched.Shutdown()

	n, err := New(cfg, WithFactory(factory), WithScheduler(sched))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if got := n.NodeState(); got != StateCreated {
		t.Fatalf("fresh node in state %s, want %s", got, StateCreated)
	}
	if _, err := n.Execute(NewOperation(common.DefaultProtocolPreference, noopEncode)); !IsStateError(err) {
		t.Fatalf("Execute before Start returned %v, want state error", err)
	}
	if err := n.Shutdown(); !IsStateError(err) {
		t.Fatalf("Shutdown before Start returned %v, want state error", err)
	}

	if err := n.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := n.NodeState(); got != StateRunning {
		t.Fatalf("started node in state %s, want %s", got, StateRunning)
	}
	if err := n.Start(); !IsStateError(err) {
		t.Fatalf("second Start returned %v, want state error", err)
	}

	// One connection per pool was pre-established
	if got := len(factory.dialed()); got != 2 {
		t.Fatalf("factory dialed %d connections, want 2", got)
	}

	if err := n.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	waitForNodeState(t, n, StateShutdown)

	if _, err := n.Execute(NewOperation(common.DefaultProtocolPreference, noopEncode)); !IsStateError(err) {
		t.Fatalf("Execute after shutdown returned %v, want state error", err)
	}
	for _, c := range factory.dialed() {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			t.Fatalf("connection %d not closed after shutdown", c.ID())
		}
	}
}

// TestNodeExecute checks the dispatch path: protocol selection, payload
// encoding, watchdog arming and registration of the in-flight operation.
func TestNodeExecute(t *testing.T) {
	cfg := testConfig(common.ProtocolBinary)
	cfg.ReadTimeout = 250 * time.Millisecond
	n, factory, _ := startTestNode(t, cfg)

	op := NewOperation([]common.Protocol{common.ProtocolJSON, common.ProtocolBinary}, noopEncode)
	accepted, err := n.Execute(op)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !accepted {
		t.Fatal("Execute not accepted despite idle connection")
	}
	if got := n.InFlight(); got != 1 {
		t.Fatalf("in-flight count %d, want 1", got)
	}
	if got := op.LastNode(); got != n {
		t.Fatal("operation does not record the executing node")
	}

	conn := factory.dialed()[0]
	// JSON is preferred but unsupported here, so binary must have been chosen
	if got, want := string(conn.lastSent()), "payload:binary"; got != want {
		t.Fatalf("sent payload %q, want %q", got, want)
	}
	if got := conn.armedTimeout(); got != cfg.ReadTimeout {
		t.Fatalf("read timeout armed with %v, want %v", got, cfg.ReadTimeout)
	}

	conn.deliverSuccess([]byte("pong"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := op.Await(ctx)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if string(resp) != "pong" {
		t.Fatalf("response %q, want %q", resp, "pong")
	}
	if got := n.InFlight(); got != 0 {
		t.Fatalf("in-flight count %d after completion, want 0", got)
	}
	if got := conn.armedTimeout(); got != 0 {
		t.Fatal("read timeout still armed after completion")
	}
}

// TestNodeExecuteUnsupportedProtocol checks that an operation whose
// preference list shares no protocol with the node is refused outright.
func TestNodeExecuteUnsupportedProtocol(t *testing.T) {
	n, _, _ := startTestNode(t, testConfig(common.ProtocolBinary))

	op := NewOperation([]common.Protocol{common.ProtocolJSON}, noopEncode)
	accepted, err := n.Execute(op)
	if !errors.Is(err, ErrUnsupportedProtocol) {
		t.Fatalf("Execute returned %v, want %v", err, ErrUnsupportedProtocol)
	}
	if accepted {
		t.Fatal("Execute reported accepted for unsupported protocol")
	}
	if op.Resolved() {
		t.Fatal("refused operation must stay unresolved")
	}
}

// TestNodeExecuteAdmissionRejection checks that a saturated pool makes
// Execute return false without error, and that a completed operation frees
// its connection for the next one.
func TestNodeExecuteAdmissionRejection(t *testing.T) {
	cfg := testConfig(common.ProtocolBinary)
	pc := cfg.Pools[common.ProtocolBinary]
	pc.MaxConnections = 1
	cfg.Pools[common.ProtocolBinary] = pc
	n, factory, _ := startTestNode(t, cfg)

	first := NewOperation(common.DefaultProtocolPreference, noopEncode)
	if accepted, err := n.Execute(first); err != nil || !accepted {
		t.Fatalf("first Execute = (%v, %v), want (true, nil)", accepted, err)
	}

	// The single connection is busy now
	second := NewOperation(common.DefaultProtocolPreference, noopEncode)
	accepted, err := n.Execute(second)
	if err != nil {
		t.Fatalf("second Execute failed: %v", err)
	}
	if accepted {
		t.Fatal("second Execute accepted despite exhausted pool")
	}
	if got := n.InFlight(); got != 1 {
		t.Fatalf("rejected Execute changed the in-flight count to %d", got)
	}
	if second.Resolved() {
		t.Fatal("rejected operation must stay unresolved")
	}

	factory.dialed()[0].deliverSuccess([]byte("ok"))

	third := NewOperation(common.DefaultProtocolPreference, noopEncode)
	if accepted, err := n.Execute(third); err != nil || !accepted {
		t.Fatalf("Execute after completion = (%v, %v), want (true, nil)", accepted, err)
	}
}

// TestNodeExecuteEncodeFailure checks that a payload encoding error is
// surfaced to the caller and the acquired connection goes back to the pool.
func TestNodeExecuteEncodeFailure(t *testing.T) {
	cfg := testConfig(common.ProtocolBinary)
	pc := cfg.Pools[common.ProtocolBinary]
	pc.MaxConnections = 1
	cfg.Pools[common.ProtocolBinary] = pc
	n, _, _ := startTestNode(t, cfg)

	encodeErr := errors.New("bad message")
	op := NewOperation(common.DefaultProtocolPreference, func(common.Protocol) ([]byte, error) {
		return nil, encodeErr
	})
	accepted, err := n.Execute(op)
	if accepted || !errors.Is(err, encodeErr) {
		t.Fatalf("Execute = (%v, %v), want (false, %v)", accepted, err, encodeErr)
	}

	// The connection must be usable again
	ok := NewOperation(common.DefaultProtocolPreference, noopEncode)
	if accepted, err := n.Execute(ok); err != nil || !accepted {
		t.Fatalf("Execute after encode failure = (%v, %v), want (true, nil)", accepted, err)
	}
}

// TestNodeResolutionExactlyOnce checks that racing completion paths resolve
// the operation once: the second arrival finds no in-flight entry and backs
// off instead of touching the operation again.
func TestNodeResolutionExactlyOnce(t *testing.T) {
	n, factory, _ := startTestNode(t, testConfig(common.ProtocolBinary))

	op := NewOperation(common.DefaultProtocolPreference, noopEncode)
	if accepted, err := n.Execute(op); err != nil || !accepted {
		t.Fatalf("Execute = (%v, %v), want (true, nil)", accepted, err)
	}

	conn := factory.dialed()[0]
	conn.deliverSuccess([]byte("winner"))
	// A transport error for the same exchange arrives late; it must not
	// panic and must not override the response
	conn.deliverException(errors.New("late failure"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := op.Await(ctx)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if string(resp) != "winner" {
		t.Fatalf("response %q, want %q", resp, "winner")
	}
}

// TestNodeTransportException checks that a transport error resolves the
// operation with that error.
func TestNodeTransportException(t *testing.T) {
	n, factory, _ := startTestNode(t, testConfig(common.ProtocolBinary))

	op := NewOperation(common.DefaultProtocolPreference, noopEncode)
	if accepted, err := n.Execute(op); err != nil || !accepted {
		t.Fatalf("Execute = (%v, %v), want (true, nil)", accepted, err)
	}

	cause := errors.New("connection reset")
	factory.dialed()[0].deliverException(cause)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := op.Await(ctx); !errors.Is(err, cause) {
		t.Fatalf("Await returned %v, want %v", err, cause)
	}
}

// TestNodeSendFailure checks that a failed write resolves the operation with
// the write's cause even though no response will ever arrive.
func TestNodeSendFailure(t *testing.T) {
	cfg := testConfig(common.ProtocolBinary)
	factory := newFakeFactory()
	sendErr := errors.New("broken pipe")
	factory.configureConn = func(c *fakeConn) { c.sendErr = sendErr }
	sched := common.NewScheduler()
	defer sched.Shutdown()

	n, err := New(cfg, WithFactory(factory), WithScheduler(sched))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	op := NewOperation(common.DefaultProtocolPreference, noopEncode)
	if accepted, err := n.Execute(op); err != nil || !accepted {
		t.Fatalf("Execute = (%v, %v), want (true, nil)", accepted, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := op.Await(ctx); !errors.Is(err, sendErr) {
		t.Fatalf("Await returned %v, want %v", err, sendErr)
	}
	if got := n.InFlight(); got != 0 {
		t.Fatalf("in-flight count %d after send failure, want 0", got)
	}
}

// TestNodePoolStateAggregation checks how pool transitions fold into the
// node state: HEALTH_CHECKING and RUNNING are mirrored, SHUTDOWN removes the
// pool and only the last pool's SHUTDOWN takes the node down.
func TestNodePoolStateAggregation(t *testing.T) {
	n, _, _ := startTestNode(t, testConfig(common.ProtocolBinary, common.ProtocolJSON))

	listener := &recordingNodeListener{}
	n.AddStateListener(listener)

	binaryPool := pool.New(common.ProtocolBinary, "10.0.0.1", common.PoolConfig{})
	jsonPool := pool.New(common.ProtocolJSON, "10.0.0.1", common.PoolConfig{})

	n.PoolStateChanged(binaryPool, pool.StateHealthChecking)
	if got := n.NodeState(); got != StateHealthChecking {
		t.Fatalf("node state %s after pool went health checking, want %s", got, StateHealthChecking)
	}

	n.PoolStateChanged(binaryPool, pool.StateRunning)
	if got := n.NodeState(); got != StateRunning {
		t.Fatalf("node state %s after pool recovered, want %s", got, StateRunning)
	}

	// First pool drains completely: the node keeps running on the other one
	n.PoolStateChanged(binaryPool, pool.StateShutdown)
	if got := n.NodeState(); got != StateRunning {
		t.Fatalf("node state %s with one pool left, want %s", got, StateRunning)
	}

	// An operation that only speaks the removed protocol is now refused
	op := NewOperation([]common.Protocol{common.ProtocolBinary}, noopEncode)
	if _, err := n.Execute(op); !errors.Is(err, ErrUnsupportedProtocol) {
		t.Fatalf("Execute for removed protocol returned %v, want %v", err, ErrUnsupportedProtocol)
	}

	n.PoolStateChanged(jsonPool, pool.StateShuttingDown)
	if got := n.NodeState(); got != StateShuttingDown {
		t.Fatalf("node state %s, want %s", got, StateShuttingDown)
	}

	n.PoolStateChanged(jsonPool, pool.StateShutdown)
	if got := n.NodeState(); got != StateShutdown {
		t.Fatalf("node state %s after last pool, want %s", got, StateShutdown)
	}

	want := []State{StateHealthChecking, StateRunning, StateShuttingDown, StateShutdown}
	got := listener.snapshot()
	if len(got) != len(want) {
		t.Fatalf("listener saw %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("listener saw %v, want %v", got, want)
		}
	}
}

// TestNodeStateListenerRemoval checks that a removed listener stops
// receiving notifications and that removing an unknown listener reports
// false.
func TestNodeStateListenerRemoval(t *testing.T) {
	n, _, _ := startTestNode(t, testConfig(common.ProtocolBinary))

	listener := &recordingNodeListener{}
	n.AddStateListener(listener)
	if !n.RemoveStateListener(listener) {
		t.Fatal("RemoveStateListener did not find the registered listener")
	}
	if n.RemoveStateListener(listener) {
		t.Fatal("RemoveStateListener found an already removed listener")
	}

	if err := n.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	waitForNodeState(t, n, StateShutdown)

	if got := listener.snapshot(); len(got) != 0 {
		t.Fatalf("removed listener still notified: %v", got)
	}
}

// TestNodeReadTimeoutGuard checks the state guard on reading and changing
// the response timeout.
func TestNodeReadTimeoutGuard(t *testing.T) {
	n, _, _ := startTestNode(t, testConfig(common.ProtocolBinary))

	if err := n.SetReadTimeout(time.Second); err != nil {
		t.Fatalf("SetReadTimeout failed: %v", err)
	}
	if d, err := n.ReadTimeout(); err != nil || d != time.Second {
		t.Fatalf("ReadTimeout = (%v, %v), want (1s, nil)", d, err)
	}

	if err := n.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	waitForNodeState(t, n, StateShutdown)

	if err := n.SetReadTimeout(time.Minute); !IsStateError(err) {
		t.Fatalf("SetReadTimeout after shutdown returned %v, want state error", err)
	}
	if _, err := n.ReadTimeout(); !IsStateError(err) {
		t.Fatalf("ReadTimeout after shutdown returned %v, want state error", err)
	}
}

// TestNodeStartFailure checks that a node whose pools cannot establish a
// single connection never becomes RUNNING.
func TestNodeStartFailure(t *testing.T) {
	factory := newFakeFactory()
	factory.failDial = true
	sched := common.NewScheduler()
	defer sched.Shutdown()

	n, err := New(testConfig(common.ProtocolBinary), WithFactory(factory), WithScheduler(sched))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := n.Start(); err == nil {
		t.Fatal("Start succeeded although no connection could be established")
	}
	if got := n.NodeState(); got != StateShutdown {
		t.Fatalf("failed node in state %s, want %s", got, StateShutdown)
	}
}

// TestNewNodes checks fan-out construction over several remote addresses.
func TestNewNodes(t *testing.T) {
	addrs := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}
	nodes, err := NewNodes(testConfig(common.ProtocolBinary), addrs)
	if err != nil {
		t.Fatalf("NewNodes failed: %v", err)
	}
	if len(nodes) != len(addrs) {
		t.Fatalf("got %d nodes, want %d", len(nodes), len(addrs))
	}
	for i, n := range nodes {
		if n.RemoteAddress() != addrs[i] {
			t.Fatalf("node %d has address %s, want %s", i, n.RemoteAddress(), addrs[i])
		}
		if n.NodeState() != StateCreated {
			t.Fatalf("node %d in state %s, want %s", i, n.NodeState(), StateCreated)
		}
	}
}
