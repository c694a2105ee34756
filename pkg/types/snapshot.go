package types

// GameSnapshot is what the reference authority publishes as gameUpdate.
// Clients decode it leniently; see internal/domain for the accepted variants.
type GameSnapshot struct {
	GameID      string              `json:"gameId"`
	GameType    string              `json:"gameType"`
	Version     int                 `json:"version"`
	Status      string              `json:"status"`
	CurrentTurn string              `json:"currentTurn"`
	Winner      string              `json:"winner,omitempty"`
	White       string              `json:"white,omitempty"`
	Black       string              `json:"black,omitempty"`
	Board       any                 `json:"board"` // map[string]*PieceInfo (chess) or [][]int (go)
	FEN         string              `json:"fen,omitempty"`
	LegalMoves  map[string][]string `json:"legalMoves,omitempty"`
	MoveCount   int                 `json:"moveCount"`
	IsCheck     bool                `json:"isCheck,omitempty"`
	IsCheckmate bool                `json:"isCheckmate,omitempty"`
	IsStalemate bool                `json:"isStalemate,omitempty"`
	LastMove    *Point              `json:"lastMove,omitempty"`
	CapBlack    int                 `json:"capturedBlack,omitempty"`
	CapWhite    int                 `json:"capturedWhite,omitempty"`
}

type PieceInfo struct {
	Type  string `json:"type"`
	Color string `json:"color"`
}

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type LeaderboardEntry struct {
	Player  string   `json:"player"`
	Score   float64  `json:"score"`
	Wins    *int     `json:"wins,omitempty"`
	Losses  *int     `json:"losses,omitempty"`
	Draws   *int     `json:"draws,omitempty"`
	WinRate *float64 `json:"winRate,omitempty"`
}

type MatchSnapshot struct {
	White  string `json:"white"`
	Black  string `json:"black"`
	Result string `json:"result,omitempty"`
	GameID string `json:"gameId,omitempty"`
}

type TournamentSnapshot struct {
	CurrentMatch int             `json:"currentMatch"`
	TotalMatches int             `json:"totalMatches"`
	Matches      []MatchSnapshot `json:"matches"`
	CurrentGame  *MatchSnapshot  `json:"currentGame,omitempty"`
	GameType     string          `json:"gameType,omitempty"`
	Running      bool            `json:"running"`
}
