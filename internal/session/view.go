package session

import (
	"github.com/akashasong-ai/chess.ai/internal/conn"
	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/internal/interaction"
)

// View is an immutable snapshot of everything a UI renders.
type View struct {
	Connection  conn.State                `json:"connection"`
	GameID      string                    `json:"gameId,omitempty"`
	Kind        domain.Kind               `json:"kind,omitempty"`
	LocalColor  domain.Color              `json:"localColor,omitempty"`
	CanInteract bool                      `json:"canInteract"`
	Interaction interaction.State         `json:"interaction"`
	Selection   *interaction.Selection    `json:"selection,omitempty"`
	Pending     *interaction.Intent       `json:"pending,omitempty"`
	Game        *GameView                 `json:"game,omitempty"`
	Notice      *interaction.Notice       `json:"notice,omitempty"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard,omitempty"`
	Tournament  *domain.TournamentStatus  `json:"tournament,omitempty"`
}

type GameView struct {
	Version     int                          `json:"version"`
	Status      domain.Status                `json:"status"`
	CurrentTurn domain.Color                 `json:"currentTurn"`
	Winner      domain.Color                 `json:"winner,omitempty"`
	White       string                       `json:"white,omitempty"`
	Black       string                       `json:"black,omitempty"`
	FEN         string                       `json:"fen,omitempty"`
	Squares     map[domain.Cell]domain.Piece `json:"squares,omitempty"`
	Check       bool                         `json:"check,omitempty"`
	Stones      [][]domain.Stone             `json:"stones,omitempty"`
	LastMove    *domain.Point                `json:"lastMove,omitempty"`
}

func gameView(s *domain.GameSession) *GameView {
	if s == nil {
		return nil
	}
	g := &GameView{
		Version:     s.Version,
		Status:      s.Status,
		CurrentTurn: s.CurrentTurn,
		Winner:      s.Winner,
		White:       s.White,
		Black:       s.Black,
	}
	if b, ok := s.Chess(); ok {
		g.FEN = b.FEN
		g.Check = b.Check
		g.Squares = make(map[domain.Cell]domain.Piece, len(b.Squares))
		for c, p := range b.Squares {
			g.Squares[c] = p
		}
	}
	if b, ok := s.Go(); ok {
		g.Stones = make([][]domain.Stone, len(b.Stones))
		for x, col := range b.Stones {
			g.Stones[x] = append([]domain.Stone(nil), col...)
		}
		if b.LastMove != nil {
			p := *b.LastMove
			g.LastMove = &p
		}
	}
	return g
}
