// Package looptest provides a manual Scheduler for deterministic timer tests.
package looptest

import (
	"sync"
	"time"

	"github.com/akashasong-ai/chess.ai/internal/loop"
)

type Doer interface {
	Do(fn func()) error
}

// Scheduler records every AfterFunc call; nothing fires until the test says so.
type Scheduler struct {
	exec Doer

	mu     sync.Mutex
	timers []*Timer
}

func NewScheduler(exec Doer) *Scheduler {
	return &Scheduler{exec: exec}
}

func (s *Scheduler) AfterFunc(d time.Duration, fn func()) loop.Timer {
	t := &Timer{D: d, fn: fn, s: s}
	s.mu.Lock()
	s.timers = append(s.timers, t)
	s.mu.Unlock()
	return t
}

// Delays lists every scheduled delay in order, fired or not.
func (s *Scheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.timers))
	for i, t := range s.timers {
		out[i] = t.D
	}
	return out
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) Last() *Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

// Pending returns timers that were neither fired nor stopped.
func (s *Scheduler) Pending() []*Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Timer
	for _, t := range s.timers {
		if !t.Done() {
			out = append(out, t)
		}
	}
	return out
}

type Timer struct {
	D  time.Duration
	fn func()
	s  *Scheduler

	mu   sync.Mutex
	done bool
}

// Fire runs the callback on the loop unless the timer was stopped. Do not call from the loop.
func (t *Timer) Fire() error {
	return t.s.exec.Do(func() {
		t.mu.Lock()
		if t.done {
			t.mu.Unlock()
			return
		}
		t.done = true
		t.mu.Unlock()
		t.fn()
	})
}

func (t *Timer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (t *Timer) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}
