package domain

import "slices"

type Color string

const (
	ColorNone  Color = ""
	ColorWhite Color = "white"
	ColorBlack Color = "black"
)

func (c Color) Opponent() Color {
	switch c {
	case ColorWhite:
		return ColorBlack
	case ColorBlack:
		return ColorWhite
	default:
		return ColorNone
	}
}

func ParseColor(s string) (Color, bool) {
	switch s {
	case "white", "w", "W":
		return ColorWhite, true
	case "black", "b", "B":
		return ColorBlack, true
	default:
		return ColorNone, false
	}
}

type Kind string

const (
	KindChess Kind = "chess"
	KindGo    Kind = "go"
)

func ParseKind(s string) (Kind, bool) {
	switch s {
	case "chess":
		return KindChess, true
	case "go":
		return KindGo, true
	default:
		return "", false
	}
}

// StartingColor is the side that must make the first move.
func (k Kind) StartingColor() Color {
	if k == KindGo {
		return ColorBlack
	}
	return ColorWhite
}

type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Board is the game-kind specific part of a session: *ChessBoard or *GoBoard.
type Board interface {
	Kind() Kind
	isBoard()
}

// GameSession is one authoritative snapshot. It is replaced, never merged.
type GameSession struct {
	GameID      string
	Kind        Kind
	Version     int
	Board       Board
	CurrentTurn Color
	Status      Status
	Winner      Color
	White       string
	Black       string
}

func (s *GameSession) Chess() (*ChessBoard, bool) {
	if s == nil {
		return nil, false
	}
	b, ok := s.Board.(*ChessBoard)
	return b, ok
}

func (s *GameSession) Go() (*GoBoard, bool) {
	if s == nil {
		return nil, false
	}
	b, ok := s.Board.(*GoBoard)
	return b, ok
}

// ColorFor returns which side player controls in this session, if any.
func (s *GameSession) ColorFor(player string) Color {
	if s == nil || player == "" {
		return ColorNone
	}
	switch player {
	case s.White:
		return ColorWhite
	case s.Black:
		return ColorBlack
	}
	return ColorNone
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Stone int

const (
	StoneEmpty Stone = 0
	StoneBlack Stone = 1
	StoneWhite Stone = 2
)

func (s Stone) Color() Color {
	switch s {
	case StoneBlack:
		return ColorBlack
	case StoneWhite:
		return ColorWhite
	default:
		return ColorNone
	}
}

const DefaultGoSize = 19

// GoBoard stores intersections as Stones[x][y].
type GoBoard struct {
	Size          int
	Stones        [][]Stone
	LastMove      *Point
	CapturedBlack int
	CapturedWhite int
}

func (*GoBoard) Kind() Kind { return KindGo }
func (*GoBoard) isBoard()   {}

func NewGoBoard(size int) *GoBoard {
	stones := make([][]Stone, size)
	for x := range stones {
		stones[x] = make([]Stone, size)
	}
	return &GoBoard{Size: size, Stones: stones}
}

func (b *GoBoard) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < b.Size && y < b.Size
}

func (b *GoBoard) At(x, y int) (Stone, bool) {
	if !b.InBounds(x, y) || x >= len(b.Stones) || y >= len(b.Stones[x]) {
		return StoneEmpty, false
	}
	return b.Stones[x][y], true
}

// LeaderboardEntry counts are optional; the authority does not always send them.
type LeaderboardEntry struct {
	Player  string
	Score   float64
	Wins    *int
	Losses  *int
	Draws   *int
	WinRate *float64
}

// Leaderboard keeps the server's ranking order. It is never re-sorted locally.
type Leaderboard struct {
	entries []LeaderboardEntry
	index   map[string]int
}

func NewLeaderboard(entries []LeaderboardEntry) *Leaderboard {
	lb := &Leaderboard{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		if _, dup := lb.index[e.Player]; dup {
			continue
		}
		lb.index[e.Player] = len(lb.entries)
		lb.entries = append(lb.entries, e)
	}
	return lb
}

func (lb *Leaderboard) Entries() []LeaderboardEntry {
	if lb == nil {
		return nil
	}
	return slices.Clone(lb.entries)
}

func (lb *Leaderboard) Get(player string) (LeaderboardEntry, bool) {
	if lb == nil {
		return LeaderboardEntry{}, false
	}
	i, ok := lb.index[player]
	if !ok {
		return LeaderboardEntry{}, false
	}
	return lb.entries[i], true
}

func (lb *Leaderboard) Len() int {
	if lb == nil {
		return 0
	}
	return len(lb.entries)
}

type Match struct {
	CompetitorA string
	CompetitorB string
	Result      string // empty until played
}

type TournamentStatus struct {
	CurrentMatch int
	TotalMatches int
	Matches      []Match
	CurrentGame  *Match
}
