package hub

import (
	"go.uber.org/zap"

	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

type match struct {
	white, black string
	gameID       string
	result       string
}

// tournament is a shuffled round robin; every pair meets once per round with
// colors swapped on odd rounds. Games are played by the random mover.
type tournament struct {
	kind    domain.Kind
	matches []*match
	next    int // index of the match after current
	current *match
	running bool
}

func newTournament(kind domain.Kind, players []string, rounds int, shuffle func(n int, swap func(i, j int))) *tournament {
	t := &tournament{kind: kind, running: true}
	for r := 0; r < rounds; r++ {
		for i := 0; i < len(players); i++ {
			for j := i + 1; j < len(players); j++ {
				w, b := players[i], players[j]
				if r%2 == 1 {
					w, b = b, w
				}
				t.matches = append(t.matches, &match{white: w, black: b})
			}
		}
	}
	shuffle(len(t.matches), func(i, j int) { t.matches[i], t.matches[j] = t.matches[j], t.matches[i] })
	return t
}

// advance moves past the current match; the tournament stops after the last one.
func (t *tournament) advance() {
	t.current = nil
	if t.next >= len(t.matches) {
		t.running = false
	}
}

func (t *tournament) snapshot() types.TournamentSnapshot {
	if t == nil {
		return types.TournamentSnapshot{Matches: []types.MatchSnapshot{}}
	}
	snap := types.TournamentSnapshot{
		CurrentMatch: t.next,
		TotalMatches: len(t.matches),
		Matches:      make([]types.MatchSnapshot, 0, len(t.matches)),
		GameType:     string(t.kind),
		Running:      t.running,
	}
	for _, m := range t.matches {
		snap.Matches = append(snap.Matches, m.snapshot())
	}
	if t.current != nil {
		cur := t.current.snapshot()
		snap.CurrentGame = &cur
	}
	return snap
}

func (m *match) snapshot() types.MatchSnapshot {
	return types.MatchSnapshot{White: m.white, Black: m.black, Result: m.result, GameID: m.gameID}
}

func (h *Hub) startTournament(kind domain.Kind, players []string, rounds int) (types.TournamentSnapshot, error) {
	if h.tour != nil && h.tour.running {
		return types.TournamentSnapshot{}, ErrTournamentRunning
	}
	if _, ok := domain.ParseKind(string(kind)); !ok {
		return types.TournamentSnapshot{}, ErrUnknownKind
	}
	seen := map[string]bool{}
	var uniq []string
	for _, p := range players {
		if p != "" && !seen[p] {
			seen[p] = true
			uniq = append(uniq, p)
		}
	}
	if len(uniq) < 2 {
		return types.TournamentSnapshot{}, ErrTooFewPlayers
	}
	if rounds < 1 {
		rounds = 1
	}

	h.tour = newTournament(kind, uniq, rounds, h.opts.Rand.Shuffle)
	h.log.Info("tournament started", zap.String("kind", string(kind)), zap.Int("matches", len(h.tour.matches)))
	h.startMatch()
	snap := h.tour.snapshot()
	h.broadcast(types.EventTournamentUpdate, snap)
	return snap, nil
}

// startMatch creates the room for the next pending match.
func (h *Hub) startMatch() {
	t := h.tour
	for t.running && t.current == nil && t.next < len(t.matches) {
		m := t.matches[t.next]
		t.next++
		auto := map[domain.Color]bool{domain.ColorWhite: true, domain.ColorBlack: true}
		r, err := h.createRoom(t.kind, m.white, m.black, auto)
		if err != nil {
			h.log.Error("tournament match not started", zap.Error(err))
			m.result = "error"
			continue
		}
		m.gameID = r.ID()
		t.current = m
	}
	if t.current == nil {
		t.running = false
	}
}
