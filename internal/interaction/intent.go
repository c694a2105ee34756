package interaction

import (
	"errors"

	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

var (
	ErrMoveRejected   = errors.New("move rejected")
	ErrAckTimeout     = errors.New("move not confirmed")
	ErrConnectionLost = errors.New("connection lost before confirmation")
	ErrNotSent        = errors.New("move could not be sent")
)

type State int

const (
	StateIdle State = iota
	StateSelected
	StateAwaitingAck
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelected:
		return "selected"
	case StateAwaitingAck:
		return "awaiting_ack"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Intent is a proposed move. Chess intents use From/To, go intents use X/Y.
type Intent struct {
	ID     string        `json:"id"`
	GameID string        `json:"gameId"`
	Kind   domain.Kind   `json:"kind"`
	Color  domain.Color  `json:"color"`
	From   domain.Cell   `json:"from,omitempty"`
	To     domain.Cell   `json:"to,omitempty"`
	Point  *domain.Point `json:"point,omitempty"`
}

func (i Intent) Payload() types.Move {
	m := types.Move{
		IntentID: i.ID,
		GameID:   i.GameID,
		GameType: string(i.Kind),
		Color:    string(i.Color),
	}
	if i.Point != nil {
		x, y := i.Point.X, i.Point.Y
		m.X, m.Y = &x, &y
	} else {
		m.From, m.To = string(i.From), string(i.To)
	}
	return m
}

// Selection is the chess piece picked by the local player and where it may go.
type Selection struct {
	Cell    domain.Cell   `json:"cell"`
	Targets []domain.Cell `json:"targets"`
}

func (s *Selection) allows(c domain.Cell) bool {
	for _, t := range s.Targets {
		if t == c {
			return true
		}
	}
	return false
}

type NoticeKind string

const (
	NoticeMoveRejected   NoticeKind = "move_rejected"
	NoticeAckTimeout     NoticeKind = "ack_timeout"
	NoticeConnectionLost NoticeKind = "connection_lost"
	NoticeNotSent        NoticeKind = "not_sent"
	NoticeServerError    NoticeKind = "server_error"
)

// Notice is a user visible, retryable condition.
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	Message  string     `json:"message"`
	IntentID string     `json:"intentId,omitempty"`
	Err      error      `json:"-"`
}
