package engine

import (
	"github.com/notnil/chess"

	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

var pieceNames = map[chess.PieceType]string{
	chess.Pawn:   "pawn",
	chess.Knight: "knight",
	chess.Bishop: "bishop",
	chess.Rook:   "rook",
	chess.Queen:  "queen",
	chess.King:   "king",
}

// Snapshot renders s as a gameUpdate payload.
func Snapshot(gameID string, version int, s State) types.GameSnapshot {
	snap := types.GameSnapshot{
		GameID:      gameID,
		GameType:    string(s.Kind),
		Version:     version,
		Status:      string(domain.StatusActive),
		CurrentTurn: string(s.Turn),
		White:       s.White,
		Black:       s.Black,
		MoveCount:   s.MoveCount,
	}
	if s.Finished() {
		snap.Status = string(domain.StatusFinished)
		snap.Winner = string(s.Result)
	}

	switch s.Kind {
	case domain.KindChess:
		snap.FEN = s.FEN
		snap.IsCheck = s.Check
		snap.IsCheckmate = s.Checkmate
		snap.IsStalemate = s.Stalemate
		snap.LegalMoves = LegalMoves(s)
		board := map[string]*types.PieceInfo{}
		if g, err := chessGame(s.FEN); err == nil {
			for sq, p := range g.Position().Board().SquareMap() {
				color := "black"
				if p.Color() == chess.White {
					color = "white"
				}
				board[sq.String()] = &types.PieceInfo{Type: pieceNames[p.Type()], Color: color}
			}
		}
		snap.Board = board

	case domain.KindGo:
		grid := make([][]int, len(s.Stones))
		for x, col := range s.Stones {
			grid[x] = make([]int, len(col))
			for y, st := range col {
				grid[x][y] = int(st)
			}
		}
		snap.Board = grid
		if s.LastMove != nil {
			snap.LastMove = &types.Point{X: s.LastMove.X, Y: s.LastMove.Y}
		}
		snap.CapBlack = s.CapturedBlack
		snap.CapWhite = s.CapturedWhite
	}
	return snap
}
