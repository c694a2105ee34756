package domain

import (
	"strconv"
	"strings"

	"github.com/notnil/chess"
)

// Cell is an algebraic square name such as "e4".
type Cell string

func (c Cell) Valid() bool {
	return len(c) == 2 && c[0] >= 'a' && c[0] <= 'h' && c[1] >= '1' && c[1] <= '8'
}

// CellAt maps a file (0..7) and rank (0..7) to a Cell.
func CellAt(file, rank int) Cell {
	return Cell([]byte{byte('a' + file), byte('1' + rank)})
}

// AllCells lists a1..h1, a2..h2 and so on up to h8.
func AllCells() []Cell {
	out := make([]Cell, 0, 64)
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			out = append(out, CellAt(file, rank))
		}
	}
	return out
}

type Piece struct {
	Type  string `json:"type"`
	Color Color  `json:"color"`
}

// PlayedMove is one entry of the authority's move history.
type PlayedMove struct {
	From      Cell
	To        Cell
	Piece     string
	Captured  string
	Promotion string
}

type ChessBoard struct {
	Squares map[Cell]Piece
	FEN     string
	// LegalMoves is nil unless the authority sent legalMoves.
	LegalMoves map[Cell][]Cell
	History    []PlayedMove
	MoveCount  int
	MovesKnown bool // false when neither moveCount nor a FEN was sent
	Check      bool
	Checkmate  bool
	Stalemate  bool
}

func (*ChessBoard) Kind() Kind { return KindChess }
func (*ChessBoard) isBoard()   {}

func (b *ChessBoard) PieceAt(c Cell) (Piece, bool) {
	p, ok := b.Squares[c]
	return p, ok
}

// TargetsFrom lists the squares the piece on from may move to. Server moves win,
// then the FEN is consulted, and without either every square not held by the
// mover is offered and the authority decides.
func (b *ChessBoard) TargetsFrom(from Cell) []Cell {
	p, ok := b.PieceAt(from)
	if !ok {
		return nil
	}
	if b.LegalMoves != nil {
		return append([]Cell(nil), b.LegalMoves[from]...)
	}
	if b.FEN != "" {
		if out, ok := fenTargets(b.FEN, from); ok {
			return out
		}
	}
	out := make([]Cell, 0, 64)
	for _, c := range AllCells() {
		if q, taken := b.Squares[c]; taken && q.Color == p.Color {
			continue
		}
		out = append(out, c)
	}
	return out
}

func fenTargets(fen string, from Cell) ([]Cell, bool) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, false
	}
	g := chess.NewGame(opt)
	seen := map[Cell]bool{}
	var out []Cell
	for _, m := range g.ValidMoves() {
		if Cell(m.S1().String()) != from {
			continue
		}
		to := Cell(m.S2().String())
		if seen[to] {
			continue // one entry per promotion choice
		}
		seen[to] = true
		out = append(out, to)
	}
	return out, true
}

var pieceNames = map[chess.PieceType]string{
	chess.Pawn:   "pawn",
	chess.Knight: "knight",
	chess.Bishop: "bishop",
	chess.Rook:   "rook",
	chess.Queen:  "queen",
	chess.King:   "king",
}

var symbolNames = map[byte]string{
	'p': "pawn", 'n': "knight", 'b': "bishop", 'r': "rook", 'q': "queen", 'k': "king",
}

// squaresFromFEN expands the placement field of a FEN.
func squaresFromFEN(fen string) (map[Cell]Piece, Color, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, ColorNone, err
	}
	pos := chess.NewGame(opt).Position()
	out := make(map[Cell]Piece, 32)
	for sq, pc := range pos.Board().SquareMap() {
		c := ColorWhite
		if pc.Color() == chess.Black {
			c = ColorBlack
		}
		out[Cell(sq.String())] = Piece{Type: pieceNames[pc.Type()], Color: c}
	}
	turn := ColorWhite
	if pos.Turn() == chess.Black {
		turn = ColorBlack
	}
	return out, turn, nil
}

// fenMoveCount derives plies played from the turn and fullmove fields.
func fenMoveCount(fen string) (int, bool) {
	parts := strings.Fields(fen)
	if len(parts) < 6 {
		return 0, false
	}
	full, err := strconv.Atoi(parts[5])
	if err != nil || full < 1 {
		return 0, false
	}
	n := (full - 1) * 2
	if parts[1] == "b" {
		n++
	}
	return n, true
}

// pieceFromSymbol reads "P", "n", etc. Upper case is white.
func pieceFromSymbol(sym string) (Piece, bool) {
	if len(sym) != 1 {
		return Piece{}, false
	}
	ch := sym[0]
	color := ColorBlack
	if ch >= 'A' && ch <= 'Z' {
		color = ColorWhite
		ch += 'a' - 'A'
	}
	name, ok := symbolNames[ch]
	if !ok {
		return Piece{}, false
	}
	return Piece{Type: name, Color: color}, true
}
