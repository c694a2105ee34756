// Package engine is the pure rules core of the reference authority:
// Apply(state, cmd) returns the events and the next state, never mutating its input.
package engine

import (
	"errors"
	"slices"

	"github.com/akashasong-ai/chess.ai/internal/domain"
)

var ErrWrongTurn = errors.New("not your turn")
var ErrIllegalMove = errors.New("illegal move")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrGameAlreadyCompleted = errors.New("game already completed")
var ErrUnknownKind = errors.New("unknown game kind")

// Result is "" while the game runs.
type Result string

const (
	ResultNone  Result = ""
	ResultWhite Result = "white"
	ResultBlack Result = "black"
	ResultDraw  Result = "draw"
)

type State struct {
	Kind      domain.Kind
	White     string
	Black     string
	Turn      domain.Color
	Result    Result
	MoveCount int

	// chess
	FEN       string
	Check     bool
	Checkmate bool
	Stalemate bool

	// go
	Size          int
	Stones        [][]domain.Stone // Stones[x][y]
	LastMove      *domain.Point
	Passes        int
	CapturedBlack int
	CapturedWhite int
}

func (s State) Finished() bool { return s.Result != ResultNone }

// PlayerFor returns the name playing c.
func (s State) PlayerFor(c domain.Color) string {
	switch c {
	case domain.ColorWhite:
		return s.White
	case domain.ColorBlack:
		return s.Black
	}
	return ""
}

type CommandType string

const (
	CmdMove   CommandType = "Move"   // chess from/to
	CmdPlace  CommandType = "Place"  // go x/y
	CmdPass   CommandType = "Pass"   // go
	CmdResign CommandType = "Resign" // either kind
)

/*
	CmdMove   -> EvtPieceMoved  -> EvtTurnAdvanced or EvtGameCompleted
	CmdPlace  -> EvtStonePlaced -> EvtTurnAdvanced
	CmdPass   -> EvtPassed      -> EvtTurnAdvanced, or EvtGameCompleted on the second pass in a row
	CmdResign -> EvtGameCompleted
*/

type Command struct {
	Type  CommandType
	Color domain.Color
	From  string
	To    string
	X     int
	Y     int
}

type EventType string

const (
	EvtPieceMoved    EventType = "PieceMoved"
	EvtStonePlaced   EventType = "StonePlaced"
	EvtPassed        EventType = "Passed"
	EvtTurnAdvanced  EventType = "TurnAdvanced"
	EvtGameCompleted EventType = "GameCompleted"
)

type Event struct {
	Type   EventType
	Color  domain.Color
	From   string
	To     string
	X      int
	Y      int
	Result Result
}

func NewState(kind domain.Kind, white, black string) (State, error) {
	s := State{Kind: kind, White: white, Black: black, Turn: kind.StartingColor()}
	switch kind {
	case domain.KindChess:
		s.FEN = StartFEN
	case domain.KindGo:
		s.Size = domain.DefaultGoSize
		s.Stones = newGrid(s.Size)
	default:
		return State{}, ErrUnknownKind
	}
	return s, nil
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Finished() {
		return nil, s, ErrGameAlreadyCompleted
	}
	if cmd.Color != s.Turn {
		return nil, s, ErrWrongTurn
	}

	switch cmd.Type {
	case CmdMove:
		if s.Kind != domain.KindChess {
			return nil, s, ErrUnsupportedCommand
		}
		return applyChess(s, cmd)

	case CmdPlace:
		if s.Kind != domain.KindGo {
			return nil, s, ErrUnsupportedCommand
		}
		return applyPlace(s, cmd)

	case CmdPass:
		if s.Kind != domain.KindGo {
			return nil, s, ErrUnsupportedCommand
		}
		next := cloneGo(s)
		next.Passes++
		next.MoveCount++
		next.LastMove = nil
		events := []Event{{Type: EvtPassed, Color: cmd.Color}}
		if next.Passes >= 2 {
			next.Result = scoreGo(next)
			return append(events, Event{Type: EvtGameCompleted, Result: next.Result}), next, nil
		}
		next.Turn = s.Turn.Opponent()
		return append(events, Event{Type: EvtTurnAdvanced}), next, nil

	case CmdResign:
		next := s
		if s.Kind == domain.KindGo {
			next = cloneGo(s)
		}
		next.Result = Result(cmd.Color.Opponent())
		return []Event{{Type: EvtGameCompleted, Color: cmd.Color, Result: next.Result}}, next, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyPlace(s State, cmd Command) ([]Event, State, error) {
	if cmd.X < 0 || cmd.Y < 0 || cmd.X >= s.Size || cmd.Y >= s.Size {
		return nil, s, ErrIllegalMove
	}
	if s.Stones[cmd.X][cmd.Y] != domain.StoneEmpty {
		return nil, s, ErrIllegalMove
	}

	next := cloneGo(s)
	next.Stones[cmd.X][cmd.Y] = stoneFor(cmd.Color)
	next.LastMove = &domain.Point{X: cmd.X, Y: cmd.Y}
	next.Passes = 0
	next.MoveCount++
	next.Turn = s.Turn.Opponent()

	events := []Event{
		{Type: EvtStonePlaced, Color: cmd.Color, X: cmd.X, Y: cmd.Y},
		{Type: EvtTurnAdvanced},
	}
	if boardFull(next) {
		next.Result = scoreGo(next)
		events = append(events, Event{Type: EvtGameCompleted, Result: next.Result})
	}
	return events, next, nil
}

// scoreGo counts stones on the board; captures are not modelled.
func scoreGo(s State) Result {
	var black, white int
	for _, col := range s.Stones {
		for _, st := range col {
			switch st {
			case domain.StoneBlack:
				black++
			case domain.StoneWhite:
				white++
			}
		}
	}
	switch {
	case black > white:
		return ResultBlack
	case white > black:
		return ResultWhite
	}
	return ResultDraw
}

func boardFull(s State) bool {
	for _, col := range s.Stones {
		if slices.Contains(col, domain.StoneEmpty) {
			return false
		}
	}
	return true
}

func stoneFor(c domain.Color) domain.Stone {
	if c == domain.ColorWhite {
		return domain.StoneWhite
	}
	return domain.StoneBlack
}

func newGrid(size int) [][]domain.Stone {
	g := make([][]domain.Stone, size)
	for x := range g {
		g[x] = make([]domain.Stone, size)
	}
	return g
}

func cloneGo(s State) State {
	next := s
	next.Stones = make([][]domain.Stone, len(s.Stones))
	for x, col := range s.Stones {
		next.Stones[x] = slices.Clone(col)
	}
	if s.LastMove != nil {
		p := *s.LastMove
		next.LastMove = &p
	}
	return next
}
