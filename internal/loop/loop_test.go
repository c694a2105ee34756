package loop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func recvInt(t *testing.T, ch <-chan int, within time.Duration) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for value")
		return 0 // unreachable
	}
}

func recvNoInt(t *testing.T, ch <-chan int, within time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("expected nothing within %v, got %d", within, v)
	case <-time.After(within):
	}
}

func TestLoop_PostRunsInOrder(t *testing.T) {
	l := New(context.Background(), 8)
	defer l.Close()

	out := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		i := i
		l.Post(func() { out <- i })
	}
	for want := 1; want <= 3; want++ {
		if got := recvInt(t, out, 100*time.Millisecond); got != want {
			t.Fatalf("want %d, got %d", want, got)
		}
	}
}

func TestLoop_DoWaits(t *testing.T) {
	l := New(context.Background(), 1)
	defer l.Close()

	var n int
	if err := l.Do(func() { n = 42 }); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 42 {
		t.Fatalf("Do returned before fn ran")
	}
}

func TestLoop_ClosedRejectsWork(t *testing.T) {
	l := New(context.Background(), 1)
	l.Close()

	if l.Post(func() {}) {
		t.Fatalf("Post after Close should report false")
	}
	if err := l.Do(func() {}); err != ErrClosed {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}

func TestLoop_ShutdownMsg(t *testing.T) {
	l := New(context.Background(), 1)
	l.Inbox() <- Shutdown{}
	select {
	case <-l.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("loop did not stop on Shutdown")
	}
}

func TestLoop_AfterFuncFires(t *testing.T) {
	l := New(context.Background(), 4)
	defer l.Close()

	out := make(chan int, 1)
	l.Post(func() { l.AfterFunc(20*time.Millisecond, func() { out <- 1 }) })
	recvInt(t, out, 500*time.Millisecond)
}

func TestLoop_AfterFuncStop_NoFire(t *testing.T) {
	l := New(context.Background(), 4)
	defer l.Close()

	out := make(chan int, 1)
	var tm Timer
	_ = l.Do(func() { tm = l.AfterFunc(30*time.Millisecond, func() { out <- 1 }) })
	_ = l.Do(func() {
		if !tm.Stop() {
			t.Errorf("first Stop should report true")
		}
	})
	recvNoInt(t, out, 100*time.Millisecond)
}

func TestLoop_StopAfterExpiryBeforeRun(t *testing.T) {
	l := New(context.Background(), 4)
	defer l.Close()

	var fired atomic.Bool
	_ = l.Do(func() {
		tm := l.AfterFunc(time.Millisecond, func() { fired.Store(true) })
		// the timer goroutine posts while we hold the loop; Stop must still win
		time.Sleep(20 * time.Millisecond)
		tm.Stop()
	})
	_ = l.Do(func() {})
	if fired.Load() {
		t.Fatalf("stopped timer callback ran")
	}
}
