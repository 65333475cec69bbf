package mechanic

import (
	"sync"
	"time"
)

// Scheduler runs a callback once after a delay. Schedule returns a cancel
// func; cancelling after the callback has started running is a no-op.
// Mechanics guard every scheduled callback against staleness anyway, by
// re-checking the state it was armed for before acting on it.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

// NewTimerScheduler returns the wall-clock Scheduler used in production,
// backed by time.AfterFunc.
func NewTimerScheduler() Scheduler { return timerScheduler{} }

type timerScheduler struct{}

func (timerScheduler) Schedule(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// ManualScheduler queues callbacks instead of arming timers, so tests can
// fire delayed transitions deterministically and in order.
type ManualScheduler struct {
	mu    sync.Mutex
	queue []*manualEntry
}

type manualEntry struct {
	delay    time.Duration
	fn       func()
	canceled bool
}

// Schedule queues fn. The returned cancel marks the entry so firing
// skips it.
func (s *ManualScheduler) Schedule(d time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &manualEntry{delay: d, fn: fn}
	s.queue = append(s.queue, e)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		e.canceled = true
	}
}

// FireNext runs the oldest pending callback and reports whether one ran.
// The callback runs without the scheduler lock held, so it may schedule
// or cancel further work.
func (s *ManualScheduler) FireNext() bool {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return false
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		canceled := e.canceled
		s.mu.Unlock()
		if canceled {
			continue
		}
		e.fn()
		return true
	}
}

// Fire drains the queue, including callbacks scheduled while firing, and
// returns how many ran.
func (s *ManualScheduler) Fire() int {
	n := 0
	for s.FireNext() {
		n++
	}
	return n
}

// Pending counts queued callbacks that have not been cancelled.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.queue {
		if !e.canceled {
			n++
		}
	}
	return n
}

// PendingDelays lists the delays of the queued, uncancelled callbacks in
// schedule order. Tests use it to assert pacing without waiting.
func (s *ManualScheduler) PendingDelays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.queue))
	for _, e := range s.queue {
		if !e.canceled {
			out = append(out, e.delay)
		}
	}
	return out
}
