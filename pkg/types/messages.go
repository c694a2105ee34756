package types

import "encoding/json"

// Client -> Server
// joinGame:
//   gameId: string
//
// leaveGame: {}
//
// move (chess):
//   intentId: string
//   gameId: string
//   gameType: "chess"
//   color: "white" | "black" (optional, the mover)
//   from: string   // "e2"
//   to: string     // "e4"
//
// move (go):
//   intentId: string
//   gameId: string
//   gameType: "go"
//   x: number
//   y: number
//
// getLeaderboard:
//   gameType: "chess" | "go" (optional)

// Server -> Client
// gameUpdate:        GameSnapshot (see snapshot.go)
// leaderboardUpdate: LeaderboardEntry[] | { leaderboard: LeaderboardEntry[] }
// tournamentUpdate:  TournamentSnapshot | { tournamentStatus: TournamentSnapshot }
// connectionStatus:  { status: string }
// error:             { message: string, intentId?: string }

const (
	EventJoinGame       = "joinGame"
	EventLeaveGame      = "leaveGame"
	EventMove           = "move"
	EventGetLeaderboard = "getLeaderboard"

	EventGameUpdate        = "gameUpdate"
	EventLeaderboardUpdate = "leaderboardUpdate"
	EventTournamentUpdate  = "tournamentUpdate"
	EventConnectionStatus  = "connectionStatus"
	EventError             = "error"
)

// Envelope is the frame shape for both directions on every transport.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data and wraps it under event.
func NewEnvelope(event string, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

type JoinGame struct {
	GameID string `json:"gameId"`
}

type LeaveGame struct {
	GameID string `json:"gameId,omitempty"`
}

type Move struct {
	IntentID string `json:"intentId,omitempty"`
	GameID   string `json:"gameId"`
	GameType string `json:"gameType"`
	Color    string `json:"color,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	X        *int   `json:"x,omitempty"`
	Y        *int   `json:"y,omitempty"`
}

type GetLeaderboard struct {
	GameType string `json:"gameType,omitempty"`
}

type ErrorMessage struct {
	Message  string `json:"message"`
	IntentID string `json:"intentId,omitempty"`
}

type ConnectionStatus struct {
	Status string `json:"status"`
}
