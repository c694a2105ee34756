package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChessBoard_TargetsFrom(t *testing.T) {
	start := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	squares, _, err := squaresFromFEN(start)
	if err != nil {
		t.Fatalf("parse fen: %v", err)
	}

	t.Run("server moves win", func(t *testing.T) {
		b := &ChessBoard{Squares: squares, FEN: start, LegalMoves: map[Cell][]Cell{"e2": {"e4"}}}
		assert.Equal(t, []Cell{"e4"}, b.TargetsFrom("e2"))
		assert.Empty(t, b.TargetsFrom("d2"))
	})

	t.Run("derived from fen", func(t *testing.T) {
		b := &ChessBoard{Squares: squares, FEN: start}
		assert.ElementsMatch(t, []Cell{"e3", "e4"}, b.TargetsFrom("e2"))
		assert.ElementsMatch(t, []Cell{"a3", "c3"}, b.TargetsFrom("b1"))
	})

	t.Run("no move source", func(t *testing.T) {
		b := &ChessBoard{Squares: map[Cell]Piece{
			"a1": {Type: "rook", Color: ColorWhite},
			"a2": {Type: "pawn", Color: ColorWhite},
			"a7": {Type: "pawn", Color: ColorBlack},
		}}
		got := b.TargetsFrom("a1")
		assert.Len(t, got, 62)
		assert.Contains(t, got, Cell("a7"))
		assert.NotContains(t, got, Cell("a2"))
	})

	t.Run("empty square", func(t *testing.T) {
		b := &ChessBoard{Squares: squares}
		assert.Nil(t, b.TargetsFrom("e4"))
	})
}

func TestPieceFromSymbol(t *testing.T) {
	p, ok := pieceFromSymbol("Q")
	assert.True(t, ok)
	assert.Equal(t, Piece{Type: "queen", Color: ColorWhite}, p)
	_, ok = pieceFromSymbol("x")
	assert.False(t, ok)
}

func TestSessionColorFor(t *testing.T) {
	s := &GameSession{White: "alice", Black: "bob"}
	assert.Equal(t, ColorWhite, s.ColorFor("alice"))
	assert.Equal(t, ColorBlack, s.ColorFor("bob"))
	assert.Equal(t, ColorNone, s.ColorFor("carol"))
	assert.Equal(t, ColorNone, s.ColorFor(""))
}
