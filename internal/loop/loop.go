package loop

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("loop closed")

type Msg interface{ isLoopMsg() }

// Call runs Fn on the loop goroutine.
type Call struct {
	Fn   func()
	Done chan struct{} // closed after Fn returns; may be nil
}

func (Call) isLoopMsg() {}

type Shutdown struct{}

func (Shutdown) isLoopMsg() {}

// Executor queues work onto a single goroutine.
type Executor interface {
	Post(fn func()) bool
}

// Timer is a cancellable pending callback. Stop must be called on the loop
// goroutine; once it returns the callback will not run.
type Timer interface {
	Stop() bool
}

type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop serializes every state mutation of the client onto one goroutine.
type Loop struct {
	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, size int) *Loop {
	ctx, cancel := context.WithCancel(parent)

	l := &Loop{
		inbox:  make(chan Msg, size),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Call:
				msg.Fn()
				if msg.Done != nil {
					close(msg.Done)
				}

			case Shutdown:
				l.cancel()
				return
			}
		}
	}
}

// Post queues fn. It blocks while the inbox is full and reports false once the loop is closed.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.ctx.Done():
		return false
	default:
	}
	select {
	case l.inbox <- Call{Fn: fn}:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Do runs fn on the loop and waits for it. Never call Do from the loop goroutine.
func (l *Loop) Do(fn func()) error {
	done := make(chan struct{})
	select {
	case l.inbox <- Call{Fn: fn, Done: done}:
	case <-l.ctx.Done():
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-l.done:
		// the loop may have run fn right before exiting
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	}
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	tm := &timer{}
	tm.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if tm.stopped {
				return
			}
			tm.stopped = true
			fn()
		})
	})
	return tm
}

func (l *Loop) Close() {
	l.cancel()
	<-l.done
}

func (l *Loop) Done() <-chan struct{} { return l.done }

// Inbox exposes the raw message channel, mostly for Shutdown.
func (l *Loop) Inbox() chan<- Msg { return l.inbox }

type timer struct {
	t       *time.Timer
	stopped bool // loop goroutine only
}

func (tm *timer) Stop() bool {
	if tm.stopped {
		return false
	}
	tm.stopped = true
	tm.t.Stop()
	return true
}
