package eventsync

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akashasong-ai/chess.ai/internal/backoff"
	"github.com/akashasong-ai/chess.ai/internal/conn"
	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/internal/loop"
	"github.com/akashasong-ai/chess.ai/internal/loop/looptest"
	"github.com/akashasong-ai/chess.ai/internal/transport/transporttest"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

const wait = 500 * time.Millisecond

type fixture struct {
	t      *testing.T
	lp     *loop.Loop
	sched  *looptest.Scheduler
	dialer *transporttest.Dialer
	m      *conn.Manager
	s      *Synchronizer
	perrs  chan *domain.ProtocolError
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lp := loop.New(context.Background(), 64)
	t.Cleanup(lp.Close)
	f := &fixture{
		t:      t,
		lp:     lp,
		sched:  looptest.NewScheduler(lp),
		dialer: transporttest.NewDialer(),
		perrs:  make(chan *domain.ProtocolError, 16),
	}
	f.m = conn.NewManager(lp, f.sched, f.dialer, conn.Options{Policy: backoff.Default(), DisableUpgrade: true})
	f.do(func() {
		f.s = New(f.m, nil)
		f.m.OnProtocolError(func(p *domain.ProtocolError) { f.perrs <- p })
	})
	return f
}

func (f *fixture) do(fn func()) {
	f.t.Helper()
	require.NoError(f.t, f.lp.Do(fn))
}

func (f *fixture) connect() *transporttest.Transport {
	f.t.Helper()
	f.do(f.m.Connect)
	return f.dialer.NextDialed(f.t, wait)
}

// settle waits until every frame already handed to the loop has been handled.
func (f *fixture) settle() {
	f.t.Helper()
	time.Sleep(20 * time.Millisecond)
	f.do(func() {})
}

func recv[T any](t *testing.T, ch <-chan T, within time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		var zero T
		t.Fatalf("timed out waiting for %T", zero)
		return zero
	}
}

func recvNone[T any](t *testing.T, ch <-chan T, within time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("expected nothing within %v, got %+v", within, v)
	case <-time.After(within):
	}
}

func TestAttach_JoinsAndForwardsScopedUpdates(t *testing.T) {
	f := newFixture(t)
	tr := f.connect()

	updates := make(chan *domain.GameSession, 4)
	f.do(func() {
		require.NoError(t, f.s.Attach("g1", domain.KindChess))
		f.s.OnGameUpdate(func(s *domain.GameSession) { updates <- s })
	})
	env := tr.NextSent(t, wait)
	assert.Equal(t, types.EventJoinGame, env.Event)
	assert.JSONEq(t, `{"gameId":"g1"}`, string(env.Data))

	tr.Push(types.EventGameUpdate, map[string]any{"gameId": "other", "board": map[string]any{}, "currentTurn": "white"})
	tr.Push(types.EventGameUpdate, map[string]any{"gameId": "g1", "board": map[string]any{}, "currentTurn": "black"})

	got := recv(t, updates, wait)
	assert.Equal(t, "g1", got.GameID)
	assert.Equal(t, domain.ColorBlack, got.CurrentTurn)
	recvNone(t, updates, 50*time.Millisecond)

	var cached *domain.GameSession
	f.do(func() { cached = f.s.Session() })
	assert.Same(t, got, cached)
}

func TestDetach_NoHandlerFiresAfterwards(t *testing.T) {
	f := newFixture(t)
	tr := f.connect()

	updates := make(chan *domain.GameSession, 4)
	f.do(func() {
		require.NoError(t, f.s.Attach("g1", domain.KindGo))
		f.s.OnGameUpdate(func(s *domain.GameSession) { updates <- s })
	})
	tr.NextSent(t, wait) // join

	f.do(f.s.Detach)
	env := tr.NextSent(t, wait)
	assert.Equal(t, types.EventLeaveGame, env.Event)

	tr.Push(types.EventGameUpdate, map[string]any{"gameId": "g1", "board": [][]int{{0}}, "currentPlayer": 1})
	f.settle()
	recvNone(t, updates, 50*time.Millisecond)

	f.do(func() {
		assert.Nil(t, f.s.Session())
		_, _, attached := f.s.Attached()
		assert.False(t, attached)
	})
}

func TestGameUpdate_DefensiveDecoding(t *testing.T) {
	f := newFixture(t)
	tr := f.connect()

	updates := make(chan *domain.GameSession, 4)
	f.do(func() {
		require.NoError(t, f.s.Attach("g1", domain.KindGo))
		f.s.OnGameUpdate(func(s *domain.GameSession) { updates <- s })
	})

	tr.Push(types.EventGameUpdate, map[string]any{})
	got := recv(t, updates, wait)
	b, ok := got.Go()
	require.True(t, ok)
	assert.Equal(t, domain.DefaultGoSize, b.Size)
	assert.Equal(t, domain.StatusActive, got.Status)
	perr := recv(t, f.perrs, wait)
	assert.False(t, perr.Fatal())

	tr.Push(types.EventGameUpdate, []int{1, 2})
	perr = recv(t, f.perrs, wait)
	assert.True(t, perr.Fatal())
	recvNone(t, updates, 50*time.Millisecond)
	f.do(func() { assert.Equal(t, conn.PhaseConnected, f.m.State().Phase) })
}

func TestGameUpdate_OlderVersionDropped(t *testing.T) {
	f := newFixture(t)
	tr := f.connect()

	updates := make(chan *domain.GameSession, 4)
	f.do(func() {
		require.NoError(t, f.s.Attach("g1", domain.KindChess))
		f.s.OnGameUpdate(func(s *domain.GameSession) { updates <- s })
	})
	tr.Push(types.EventGameUpdate, map[string]any{"gameId": "g1", "version": 3, "board": map[string]any{}, "currentTurn": "white"})
	tr.Push(types.EventGameUpdate, map[string]any{"gameId": "g1", "version": 2, "board": map[string]any{}, "currentTurn": "black"})
	assert.Equal(t, 3, recv(t, updates, wait).Version)
	recvNone(t, updates, 50*time.Millisecond)
}

func TestLeaderboard_FirstSubscriberRequestsOnce(t *testing.T) {
	f := newFixture(t)
	tr := f.connect()

	first := make(chan *domain.Leaderboard, 2)
	second := make(chan *domain.Leaderboard, 2)
	f.do(func() { f.s.OnLeaderboardUpdate(func(lb *domain.Leaderboard) { first <- lb }) })
	assert.Equal(t, types.EventGetLeaderboard, tr.NextSent(t, wait).Event)

	f.do(func() { f.s.OnLeaderboardUpdate(func(lb *domain.Leaderboard) { second <- lb }) })
	tr.NoSent(t, 50*time.Millisecond)

	tr.Push(types.EventLeaderboardUpdate, []map[string]any{
		{"player": "c", "score": 1},
		{"player": "a", "score": 7},
		{"player": "b", "score": 3},
	})
	lb := recv(t, first, wait)
	recv(t, second, wait)
	var order []string
	for _, e := range lb.Entries() {
		order = append(order, e.Player)
	}
	assert.Equal(t, []string{"c", "a", "b"}, order)
}

func TestLeaderboard_RequestBeforeConnectIsSentOnConnect(t *testing.T) {
	f := newFixture(t)
	f.do(func() { f.s.OnLeaderboardUpdate(func(*domain.Leaderboard) {}) })
	tr := f.connect()
	assert.Equal(t, types.EventGetLeaderboard, tr.NextSent(t, wait).Event)
}

func TestTournamentAndLeaderboard_NotSessionScoped(t *testing.T) {
	f := newFixture(t)
	tr := f.connect()

	ts := make(chan *domain.TournamentStatus, 1)
	f.do(func() { f.s.OnTournamentUpdate(func(s *domain.TournamentStatus) { ts <- s }) })

	tr.Push(types.EventTournamentUpdate, map[string]any{
		"currentMatch": 0, "totalMatches": 1,
		"matches": []map[string]any{{"white": "a", "black": "b"}},
	})
	got := recv(t, ts, wait)
	assert.Equal(t, 1, got.TotalMatches)
}

func TestRejoinAfterReconnect(t *testing.T) {
	f := newFixture(t)
	tr := f.connect()
	f.do(func() { require.NoError(t, f.s.Attach("g9", domain.KindChess)) })
	tr.NextSent(t, wait)

	tr.Fail(io.EOF)
	require.Eventually(t, func() bool { return f.sched.Len() == 1 }, wait, 5*time.Millisecond)
	require.NoError(t, f.sched.Last().Fire())

	next := f.dialer.NextDialed(t, wait)
	env := next.NextSent(t, wait)
	assert.Equal(t, types.EventJoinGame, env.Event)
	assert.JSONEq(t, `{"gameId":"g9"}`, string(env.Data))
}

func TestAttachBeforeConnectJoinsOnConnect(t *testing.T) {
	f := newFixture(t)
	f.do(func() { require.NoError(t, f.s.Attach("g2", domain.KindGo)) })
	tr := f.connect()
	assert.Equal(t, types.EventJoinGame, tr.NextSent(t, wait).Event)
}

func TestRejectionForwarded(t *testing.T) {
	f := newFixture(t)
	tr := f.connect()

	got := make(chan types.ErrorMessage, 2)
	f.do(func() { f.s.OnRejection(func(m types.ErrorMessage) { got <- m }) })
	tr.Push(types.EventError, types.ErrorMessage{Message: "Invalid move"})
	tr.Push(types.EventError, "plain text")
	assert.Equal(t, "Invalid move", recv(t, got, wait).Message)
	assert.Equal(t, "plain text", recv(t, got, wait).Message)
}
