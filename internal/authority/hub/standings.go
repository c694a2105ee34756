package hub

import (
	"cmp"
	"slices"

	"github.com/akashasong-ai/chess.ai/internal/authority/engine"
	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

type record struct {
	player              string
	wins, losses, draws int
}

func (r *record) score() float64 { return float64(r.wins*2 + r.draws) }

func (h *Hub) record(s engine.State) {
	byPlayer := h.records[s.Kind]
	if byPlayer == nil {
		byPlayer = map[string]*record{}
		h.records[s.Kind] = byPlayer
	}
	get := func(name string) *record {
		r := byPlayer[name]
		if r == nil {
			r = &record{player: name}
			byPlayer[name] = r
		}
		return r
	}
	white, black := get(s.White), get(s.Black)
	switch s.Result {
	case engine.ResultWhite:
		white.wins++
		black.losses++
	case engine.ResultBlack:
		black.wins++
		white.losses++
	case engine.ResultDraw:
		white.draws++
		black.draws++
	}
}

// leaderboard ranks by score, then wins, then name. An empty kind merges both games.
func (h *Hub) leaderboard(kind domain.Kind) []types.LeaderboardEntry {
	merged := map[string]*record{}
	for k, byPlayer := range h.records {
		if kind != "" && k != kind {
			continue
		}
		for name, r := range byPlayer {
			m := merged[name]
			if m == nil {
				m = &record{player: name}
				merged[name] = m
			}
			m.wins += r.wins
			m.losses += r.losses
			m.draws += r.draws
		}
	}

	list := make([]*record, 0, len(merged))
	for _, r := range merged {
		list = append(list, r)
	}
	slices.SortFunc(list, func(a, b *record) int {
		if c := cmp.Compare(b.score(), a.score()); c != 0 {
			return c
		}
		if c := cmp.Compare(b.wins, a.wins); c != 0 {
			return c
		}
		return cmp.Compare(a.player, b.player)
	})

	out := make([]types.LeaderboardEntry, 0, len(list))
	for _, r := range list {
		wins, losses, draws := r.wins, r.losses, r.draws
		e := types.LeaderboardEntry{Player: r.player, Score: r.score(), Wins: &wins, Losses: &losses, Draws: &draws}
		if played := wins + losses + draws; played > 0 {
			rate := float64(wins) / float64(played)
			e.WinRate = &rate
		}
		out = append(out, e)
	}
	return out
}
