package engine

import (
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/notnil/chess"

	"github.com/akashasong-ai/chess.ai/internal/domain"
)

const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func chessGame(fen string) (*chess.Game, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, err
	}
	return chess.NewGame(opt), nil
}

func applyChess(s State, cmd Command) ([]Event, State, error) {
	g, err := chessGame(s.FEN)
	if err != nil {
		return nil, s, err
	}
	m, err := decodeUCI(g.Position(), strings.ToLower(cmd.From+cmd.To))
	if err != nil {
		return nil, s, ErrIllegalMove
	}
	if err := g.Move(m); err != nil {
		return nil, s, ErrIllegalMove
	}

	next := s
	next.FEN = g.Position().String()
	next.MoveCount++
	next.Turn = s.Turn.Opponent()
	played := g.Moves()
	next.Check = played[len(played)-1].HasTag(chess.Check)
	next.Checkmate = g.Method() == chess.Checkmate
	next.Stalemate = g.Method() == chess.Stalemate

	events := []Event{{Type: EvtPieceMoved, Color: cmd.Color, From: cmd.From, To: cmd.To}}
	switch g.Outcome() {
	case chess.NoOutcome:
		return append(events, Event{Type: EvtTurnAdvanced}), next, nil
	case chess.WhiteWon:
		next.Result = ResultWhite
	case chess.BlackWon:
		next.Result = ResultBlack
	default:
		next.Result = ResultDraw
	}
	return append(events, Event{Type: EvtGameCompleted, Result: next.Result}), next, nil
}

// decodeUCI auto-queens a bare promotion.
func decodeUCI(pos *chess.Position, uci string) (*chess.Move, error) {
	m, err := chess.UCINotation{}.Decode(pos, uci)
	if err == nil || !isPromotionToLastRank(uci) {
		return m, err
	}
	return chess.UCINotation{}.Decode(pos, uci+"q")
}

func isPromotionToLastRank(uci string) bool {
	if len(uci) != 4 {
		return false
	}
	to := uci[2:]
	return to[1] == '1' || to[1] == '8'
}

// LegalMoves groups the legal chess moves of the side to move by origin square.
func LegalMoves(s State) map[string][]string {
	if s.Kind != domain.KindChess || s.Finished() {
		return nil
	}
	g, err := chessGame(s.FEN)
	if err != nil {
		return nil
	}
	out := map[string][]string{}
	for _, m := range g.ValidMoves() {
		from, to := m.S1().String(), m.S2().String()
		if !slices.Contains(out[from], to) {
			out[from] = append(out[from], to)
		}
	}
	return out
}

// RandomMove picks a legal command for the side to move, or false when there is none.
func RandomMove(s State, rnd *rand.Rand) (Command, bool) {
	if s.Finished() {
		return Command{}, false
	}
	switch s.Kind {
	case domain.KindChess:
		g, err := chessGame(s.FEN)
		if err != nil {
			return Command{}, false
		}
		moves := g.ValidMoves()
		if len(moves) == 0 {
			return Command{}, false
		}
		m := moves[rnd.IntN(len(moves))]
		return Command{Type: CmdMove, Color: s.Turn, From: m.S1().String(), To: m.S2().String()}, true

	case domain.KindGo:
		var empty []domain.Point
		for x, col := range s.Stones {
			for y, st := range col {
				if st == domain.StoneEmpty {
					empty = append(empty, domain.Point{X: x, Y: y})
				}
			}
		}
		if len(empty) == 0 {
			return Command{Type: CmdPass, Color: s.Turn}, true
		}
		p := empty[rnd.IntN(len(empty))]
		return Command{Type: CmdPlace, Color: s.Turn, X: p.X, Y: p.Y}, true
	}
	return Command{}, false
}
