package node

// --------------------------------------------------------------------------
// Node State
// --------------------------------------------------------------------------

// State is the aggregate lifecycle state of a node, derived solely from the
// states of its connection pools after Start.
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

// StateListener is notified of node state transitions, synchronously and in
// registration order. Listeners may call back into the node.
type StateListener interface {
	NodeStateChanged(n *Node, newState State)
}
