package room

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/akashasong-ai/chess.ai/internal/authority/engine"
	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

// helper: receive one frame with a timeout so tests never hang
func recvFrame(t *testing.T, ch <-chan []byte, within time.Duration) types.Envelope {
	t.Helper()
	select {
	case f, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		var env types.Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("bad frame %q: %v", f, err)
		}
		return env
	case <-time.After(within):
		t.Fatalf("timed out waiting for frame")
		return types.Envelope{} // unreachable
	}
}

func recvSnapshot(t *testing.T, ch <-chan []byte, within time.Duration) types.GameSnapshot {
	t.Helper()
	env := recvFrame(t, ch, within)
	if env.Event != types.EventGameUpdate {
		t.Fatalf("want gameUpdate, got %s: %s", env.Event, env.Data)
	}
	var snap types.GameSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("bad snapshot: %v", err)
	}
	return snap
}

func recvNoFrame(t *testing.T, ch <-chan []byte, within time.Duration) {
	t.Helper()
	select {
	case f, ok := <-ch:
		if !ok {
			// channel closed → that's fine; no further frames possible
			return
		}
		t.Fatalf("expected no frame within %v, but got: %s", within, f)
	case <-time.After(within):
		// good: no frame
	}
}

func newState(t *testing.T, kind domain.Kind) engine.State {
	t.Helper()
	s, err := engine.NewState(kind, "alpha", "beta")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRoom_Move_BroadcastsSnapshotAndVersionIncrements(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "g1", newState(t, domain.KindChess), Options{})

	a := make(chan []byte, 4)
	b := make(chan []byte, 4)
	r.Inbox() <- Join{ClientID: "a", Outbox: a}
	r.Inbox() <- Join{ClientID: "b", Outbox: b}

	first := recvSnapshot(t, a, 100*time.Millisecond)
	if first.Version != 0 || first.CurrentTurn != "white" {
		t.Fatalf("after join: want version=0 white to move, got %d %s", first.Version, first.CurrentTurn)
	}
	recvSnapshot(t, b, 100*time.Millisecond)

	r.Inbox() <- FromClient{ClientID: "a", Cmd: engine.Command{Type: engine.CmdMove, Color: domain.ColorWhite, From: "e2", To: "e4"}}

	for _, ch := range []chan []byte{a, b} {
		next := recvSnapshot(t, ch, 100*time.Millisecond)
		if next.Version != 1 || next.CurrentTurn != "black" {
			t.Fatalf("after move: want version=1 black to move, got %d %s", next.Version, next.CurrentTurn)
		}
	}

	r.Inbox() <- Shutdown{}
}

func TestRoom_RejectionOnlyReachesSender(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "g1", newState(t, domain.KindGo), Options{})
	a := make(chan []byte, 4)
	b := make(chan []byte, 4)
	r.Inbox() <- Join{ClientID: "a", Outbox: a}
	r.Inbox() <- Join{ClientID: "b", Outbox: b}
	recvSnapshot(t, a, 100*time.Millisecond)
	recvSnapshot(t, b, 100*time.Millisecond)

	r.Inbox() <- FromClient{ClientID: "a", IntentID: "i-1", Cmd: engine.Command{Type: engine.CmdPlace, Color: domain.ColorWhite, X: 1, Y: 1}}

	env := recvFrame(t, a, 100*time.Millisecond)
	if env.Event != types.EventError {
		t.Fatalf("want error, got %s", env.Event)
	}
	var em types.ErrorMessage
	_ = json.Unmarshal(env.Data, &em)
	if em.IntentID != "i-1" || em.Message == "" {
		t.Fatalf("bad error payload: %+v", em)
	}
	recvNoFrame(t, b, 50*time.Millisecond)
}

func TestRoom_EmptyColorMeansSideToMove(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "g1", newState(t, domain.KindGo), Options{})
	out := make(chan []byte, 4)
	r.Inbox() <- Join{ClientID: "a", Outbox: out}
	recvSnapshot(t, out, 100*time.Millisecond)

	r.Inbox() <- FromClient{ClientID: "a", Cmd: engine.Command{Type: engine.CmdPlace, X: 3, Y: 3}}
	snap := recvSnapshot(t, out, 100*time.Millisecond)
	grid := snap.Board.([]any)
	if v := grid[3].([]any)[3].(float64); v != float64(domain.StoneBlack) {
		t.Fatalf("want black stone at 3,3, got %v", v)
	}
}

func TestRoom_DropSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "g1", newState(t, domain.KindChess), Options{})

	clientOut := make(chan []byte, 1)
	r.Inbox() <- Join{ClientID: "ch1", Outbox: clientOut}

	r.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdMove, Color: domain.ColorWhite, From: "e2", To: "e4"}}

	view, ok := r.State()
	if !ok {
		t.Fatalf("room stopped")
	}
	if view.NumClients != 0 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
}

func TestRoom_LeaveClosesOutbox(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "g1", newState(t, domain.KindChess), Options{})
	out := make(chan []byte, 2)
	r.Inbox() <- Join{ClientID: "a", Outbox: out}
	recvSnapshot(t, out, 100*time.Millisecond)
	r.Inbox() <- Leave{ClientID: "a"}

	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected closed outbox")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("outbox not closed after leave")
	}
}

func TestRoom_AutoplayPlaysBothSidesUntilFinished(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := make(chan engine.State, 1)
	s := newState(t, domain.KindGo)
	s.Size = 3
	s.Stones = [][]domain.Stone{{0, 0, 0}, {0, 0, 0}, {0, 0, 0}}

	r := NewRoom(ctx, "g1", s, Options{
		Auto:          map[domain.Color]bool{domain.ColorBlack: true, domain.ColorWhite: true},
		AutoplayDelay: time.Millisecond,
		OnFinish:      func(_ string, st engine.State) { finished <- st },
		Rand:          rand.New(rand.NewPCG(7, 7)),
	})

	select {
	case st := <-finished:
		if !st.Finished() || st.MoveCount != 9 {
			t.Fatalf("want full 3x3 board, got moves=%d result=%q", st.MoveCount, st.Result)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("autoplay never finished the game")
	}
	r.Inbox() <- Shutdown{}
}

func TestRoom_HumanMoveReschedulesAutoplay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "g1", newState(t, domain.KindChess), Options{
		Auto:          map[domain.Color]bool{domain.ColorBlack: true},
		AutoplayDelay: 20 * time.Millisecond,
	})
	out := make(chan []byte, 8)
	r.Inbox() <- Join{ClientID: "a", Outbox: out}
	recvSnapshot(t, out, 100*time.Millisecond)

	// white is human: nothing happens on its own
	recvNoFrame(t, out, 60*time.Millisecond)

	r.Inbox() <- FromClient{ClientID: "a", Cmd: engine.Command{Type: engine.CmdMove, Color: domain.ColorWhite, From: "d2", To: "d4"}}
	if snap := recvSnapshot(t, out, 100*time.Millisecond); snap.Version != 1 {
		t.Fatalf("want version 1, got %d", snap.Version)
	}
	if snap := recvSnapshot(t, out, 500*time.Millisecond); snap.Version != 2 || snap.CurrentTurn != "white" {
		t.Fatalf("want black autoplay reply, got version=%d turn=%s", snap.Version, snap.CurrentTurn)
	}
}

func TestRoom_Shutdown_StopsTimer_NoFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "g1", newState(t, domain.KindChess), Options{
		Auto:          map[domain.Color]bool{domain.ColorWhite: true},
		AutoplayDelay: 50 * time.Millisecond,
	})
	out := make(chan []byte, 4)
	r.Inbox() <- Join{ClientID: "a", Outbox: out}
	recvSnapshot(t, out, 100*time.Millisecond)

	r.Inbox() <- Shutdown{}
	recvNoFrame(t, out, 150*time.Millisecond)

	select {
	case <-r.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("room did not stop")
	}
	if r.Send(Leave{ClientID: "a"}) {
		t.Fatalf("Send after shutdown should fail")
	}
}
