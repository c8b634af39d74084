package common

import (
	"sync"
	"time"
)

// --------------------------------------------------------------------------
// Scheduler
// --------------------------------------------------------------------------

// Scheduler runs deferred and periodic maintenance tasks for a node and its
// connection pools. A node either receives a shared scheduler at construction
// or creates its own; whoever created it is responsible for calling Shutdown
// exactly once. After Shutdown no new tasks are accepted and pending timers
// are stopped.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[uint64]*time.Timer
	tickers map[uint64]chan struct{}
	nextID  uint64
	closed  bool
}

// NewScheduler creates a ready-to-use scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{
		timers:  make(map[uint64]*time.Timer),
		tickers: make(map[uint64]chan struct{}),
	}
}

// Schedule runs fn once after d. The returned cancel func stops the task if
// it has not fired yet; calling it multiple times is harmless.
func (s *Scheduler) Schedule(d time.Duration, fn func()) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return func() {}
	}

	s.nextID++
	id := s.nextID

	t := time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()
		fn()
	})
	s.timers[id] = t

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t, ok := s.timers[id]; ok {
			t.Stop()
			delete(s.timers, id)
		}
	}
}

// Every runs fn every interval until the returned cancel func is called or
// the scheduler shuts down. The first invocation happens after one interval.
func (s *Scheduler) Every(interval time.Duration, fn func()) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return func() {}
	}

	s.nextID++
	id := s.nextID
	stop := make(chan struct{})
	s.tickers[id] = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-stop:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if ch, ok := s.tickers[id]; ok {
				close(ch)
				delete(s.tickers, id)
			}
		})
	}
}

// Shutdown stops all pending and periodic tasks. Safe to call once; the
// scheduler is unusable afterwards.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	for id, ch := range s.tickers {
		close(ch)
		delete(s.tickers, id)
	}
}
