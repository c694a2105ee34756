package hub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/akashasong-ai/chess.ai/internal/authority/engine"
	"github.com/akashasong-ai/chess.ai/internal/authority/room"
	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

func create(t *testing.T, h *Hub, kind domain.Kind, white, black string, auto map[domain.Color]bool) *room.Room {
	t.Helper()
	reply := make(chan CreateResult, 1)
	h.Inbox() <- CreateRoom{Kind: kind, White: white, Black: black, Auto: auto, Reply: reply}
	res := <-reply
	if res.Err != nil {
		t.Fatalf("create room: %v", res.Err)
	}
	return res.Room
}

func recvEvent(t *testing.T, ch <-chan []byte, event string, within time.Duration) json.RawMessage {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				t.Fatalf("subscriber outbox closed")
			}
			var env types.Envelope
			if err := json.Unmarshal(f, &env); err != nil {
				t.Fatalf("bad frame: %v", err)
			}
			if env.Event == event {
				return env.Data
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
			return nil
		}
	}
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, Options{})

	r1 := create(t, h, domain.KindChess, "a", "b", nil)
	r2 := h.Room(r1.ID())
	if r1 == nil || r2 == nil || r1 != r2 {
		t.Fatalf("expected same room pointer")
	}
	if len(r1.ID()) != 6 {
		t.Fatalf("unexpected game id %q", r1.ID())
	}
	if h.Room("NOPE00") != nil {
		t.Fatalf("unknown id should be nil")
	}

	reply := make(chan CreateResult, 1)
	h.Inbox() <- CreateRoom{Kind: "checkers", Reply: reply}
	if res := <-reply; !errors.Is(res.Err, engine.ErrUnknownKind) {
		t.Fatalf("want ErrUnknownKind, got %v", res.Err)
	}
}

func TestHub_FinishedGameUpdatesLeaderboard(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, Options{})

	sub := make(chan []byte, 8)
	h.Inbox() <- Subscribe{ClientID: "s1", Outbox: sub}

	r := create(t, h, domain.KindChess, "gpt", "claude", nil)
	r.Inbox() <- room.FromClient{Cmd: engine.Command{Type: engine.CmdResign, Color: domain.ColorWhite}}

	var entries []types.LeaderboardEntry
	if err := json.Unmarshal(recvEvent(t, sub, types.EventLeaderboardUpdate, time.Second), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Player != "claude" || entries[0].Score != 2 {
		t.Fatalf("unexpected leaderboard: %+v", entries)
	}
	if *entries[1].Losses != 1 {
		t.Fatalf("gpt should have one loss")
	}

	reply := make(chan []types.LeaderboardEntry, 1)
	h.Inbox() <- GetLeaderboard{Kind: domain.KindGo, Reply: reply}
	if got := <-reply; len(got) != 0 {
		t.Fatalf("go leaderboard should be empty, got %+v", got)
	}
}

func TestHub_LeaderboardOrdering(t *testing.T) {
	h := &Hub{records: map[domain.Kind]map[string]*record{}}
	h.record(engine.State{Kind: domain.KindGo, White: "a", Black: "b", Result: engine.ResultDraw})
	h.record(engine.State{Kind: domain.KindGo, White: "c", Black: "b", Result: engine.ResultBlack})
	h.record(engine.State{Kind: domain.KindChess, White: "a", Black: "c", Result: engine.ResultWhite})

	goBoard := h.leaderboard(domain.KindGo)
	if goBoard[0].Player != "b" || goBoard[0].Score != 3 {
		t.Fatalf("b should lead go with 3, got %+v", goBoard[0])
	}
	all := h.leaderboard("")
	if all[0].Player != "a" || all[0].Score != 3 || *all[0].Wins != 1 {
		t.Fatalf("a should lead overall on wins tiebreak, got %+v", all[0])
	}
}

func TestTournament_RoundRobinShape(t *testing.T) {
	noShuffle := func(int, func(i, j int)) {}
	tr := newTournament(domain.KindChess, []string{"a", "b", "c"}, 2, noShuffle)
	if len(tr.matches) != 6 {
		t.Fatalf("3 players x 2 rounds should be 6 matches, got %d", len(tr.matches))
	}
	if tr.matches[0].white != "a" || tr.matches[3].white != "b" {
		t.Fatalf("colors should swap in the second round: %+v %+v", tr.matches[0], tr.matches[3])
	}
}

func TestHub_TournamentRunsToCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, Options{AutoplayDelay: time.Millisecond})

	sub := make(chan []byte, 256)
	h.Inbox() <- Subscribe{ClientID: "s1", Outbox: sub}

	reply := make(chan TournamentResult, 1)
	h.Inbox() <- StartTournament{Kind: domain.KindGo, Participants: []string{"x", "y", "x"}, Rounds: 1, Reply: reply}
	res := <-reply
	if res.Err != nil {
		t.Fatalf("start: %v", res.Err)
	}
	if res.Status.TotalMatches != 1 || res.Status.CurrentGame == nil || res.Status.CurrentGame.GameID == "" {
		t.Fatalf("unexpected start status: %+v", res.Status)
	}

	again := make(chan TournamentResult, 1)
	h.Inbox() <- StartTournament{Kind: domain.KindGo, Participants: []string{"x", "y"}, Reply: again}
	if r := <-again; !errors.Is(r.Err, ErrTournamentRunning) {
		t.Fatalf("want ErrTournamentRunning, got %v", r.Err)
	}

	stop := make(chan error, 1)
	h.Inbox() <- StopTournament{Reply: stop}
	if err := <-stop; err != nil {
		t.Fatalf("stop: %v", err)
	}

	status := make(chan types.TournamentSnapshot, 1)
	h.Inbox() <- GetTournament{Reply: status}
	if st := <-status; st.Running {
		t.Fatalf("tournament should be stopped")
	}

	h.Inbox() <- StopTournament{Reply: stop}
	if err := <-stop; !errors.Is(err, ErrNoTournament) {
		t.Fatalf("want ErrNoTournament, got %v", err)
	}
}

func TestHub_TournamentTooFewPlayers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, Options{})

	reply := make(chan TournamentResult, 1)
	h.Inbox() <- StartTournament{Kind: domain.KindChess, Participants: []string{"solo", "solo"}, Reply: reply}
	if r := <-reply; !errors.Is(r.Err, ErrTooFewPlayers) {
		t.Fatalf("want ErrTooFewPlayers, got %v", r.Err)
	}
}
