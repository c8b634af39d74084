package node

import "sync"

// listenerList holds the registered node-state listeners. Broadcast iterates
// a snapshot, so a listener adding or removing listeners (including itself)
// during notification cannot corrupt the iteration.
type listenerList struct {
	mu        sync.Mutex
	listeners []StateListener
}

func (l *listenerList) Add(listener StateListener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, listener)
}

// Remove removes the first registration of listener. Removing a listener
// that is not registered is a no-op, so removal is idempotent.
func (l *listenerList) Remove(listener StateListener) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, reg := range l.listeners {
		if reg == listener {
			l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
			return true
		}
	}
	return false
}

func (l *listenerList) Snapshot() []StateListener {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]StateListener(nil), l.listeners...)
}
