// Package clock provides the timer capability injected into interpreters.
// The interpreter never reads wall-clock time; it only asks a Scheduler to
// run a callback after a duration and to cancel it again. System wraps the
// runtime timers; Manual is a deterministic scheduler for tests.
package clock

import (
	"sync"
	"time"
)

// Scheduler schedules a callback after a delay. The returned cancel
// function stops the timer best-effort: the callback may still fire if
// cancellation races the timer, so callers must tolerate late callbacks.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

type system struct{}

// System returns a Scheduler backed by runtime timers.
func System() Scheduler {
	return system{}
}

func (system) Schedule(d time.Duration, fn func()) func() {
	timer := time.AfterFunc(d, fn)
	return func() { timer.Stop() }
}

// Manual is a Scheduler driven explicitly by Advance. Callbacks run
// synchronously on the advancing goroutine, in deadline order with
// scheduling order as the tie-break. Callbacks may schedule further timers;
// those fire within the same Advance when their deadline is reached.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	deadline time.Duration
	seq      int
	fn       func()
	stopped  bool
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Schedule(d time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{deadline: m.now + d, seq: m.seq, fn: fn}
	m.seq++
	m.timers = append(m.timers, t)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		t.stopped = true
	}
}

// Advance moves the scheduler's notion of time forward by d, firing every
// pending timer whose deadline is reached, in order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	for {
		next := m.due(target)
		if next == nil {
			break
		}
		m.now = next.deadline
		fn := next.fn
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
}

// Pending returns the number of timers that have neither fired nor been
// canceled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// due pops the earliest live timer with deadline <= target. Callers hold mu.
func (m *Manual) due(target time.Duration) *manualTimer {
	idx := -1
	for i, t := range m.timers {
		if t.stopped || t.deadline > target {
			continue
		}
		if idx == -1 || t.deadline < m.timers[idx].deadline ||
			(t.deadline == m.timers[idx].deadline && t.seq < m.timers[idx].seq) {
			idx = i
		}
	}
	if idx == -1 {
		return nil
	}
	t := m.timers[idx]
	m.timers = append(m.timers[:idx], m.timers[idx+1:]...)
	return t
}
