package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// fields accumulates the names of members that were defaulted while decoding.
type fields struct {
	event string
	names []string
}

func (f *fields) miss(name string) { f.names = append(f.names, name) }

func (f *fields) result() *ProtocolError {
	if len(f.names) == 0 {
		return nil
	}
	return &ProtocolError{Event: f.event, Fields: f.names}
}

func malformed(event string, err error) *ProtocolError {
	if err == nil {
		err = ErrMalformed
	} else {
		err = fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &ProtocolError{Event: event, Err: err}
}

type object map[string]json.RawMessage

func parseObject(data []byte) (object, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("expected object")
	}
	var o object
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	return o, nil
}

func (o object) has(key string) bool {
	v, ok := o[key]
	return ok && !isNull(v)
}

// first returns the first present key among names.
func (o object) first(names ...string) (json.RawMessage, string, bool) {
	for _, n := range names {
		if o.has(n) {
			return o[n], n, true
		}
	}
	return nil, "", false
}

func (o object) str(names ...string) (string, bool) {
	raw, _, ok := o.first(names...)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func (o object) num(names ...string) (float64, bool) {
	raw, _, ok := o.first(names...)
	if !ok {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

func (o object) flag(name string) bool {
	if !o.has(name) {
		return false
	}
	var b bool
	_ = json.Unmarshal(o[name], &b)
	return b
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// DecodeGameUpdate normalizes a gameUpdate payload. hint is the kind of the
// attached session and is used when the payload does not say. A non-nil
// session is always returned unless the error is Fatal.
func DecodeGameUpdate(data []byte, hint Kind) (*GameSession, *ProtocolError) {
	const event = "gameUpdate"
	o, err := parseObject(data)
	if err != nil {
		return nil, malformed(event, err)
	}
	// REST shaped state nests most fields under gameState
	if nested, ok := o["gameState"]; ok {
		if inner, err := parseObject(nested); err == nil {
			for k, v := range inner {
				if !o.has(k) {
					o[k] = v
				}
			}
		}
	}

	f := &fields{event: event}
	s := &GameSession{Status: StatusActive}
	s.GameID, _ = o.str("gameId", "game_id", "id")
	if v, ok := o.num("version"); ok {
		s.Version = int(v)
	}
	s.White, _ = o.str("whitePlayer", "whiteAI", "white")
	s.Black, _ = o.str("blackPlayer", "blackAI", "black")

	s.Kind = decodeKind(o, hint)
	if s.Kind == "" {
		f.miss("gameType")
		s.Kind = KindChess
	}

	switch s.Kind {
	case KindGo:
		s.Board = decodeGoBoard(o, f)
	default:
		s.Board = decodeChessBoard(o, f)
	}

	if st, ok := o.str("status"); ok {
		switch strings.ToLower(st) {
		case "finished", "over", "gameover", "game_over", "completed", "ended":
			s.Status = StatusFinished
		case "active", "playing", "in_progress", "ongoing", "started":
		default:
			f.miss("status")
		}
	}
	if o.flag("gameOver") || o.flag("isCheckmate") || o.flag("isStalemate") {
		s.Status = StatusFinished
	}

	s.CurrentTurn = decodeTurn(o, s.Kind)
	if s.CurrentTurn == ColorNone {
		if cb, ok := s.Board.(*ChessBoard); ok && cb.FEN != "" {
			if _, turn, err := squaresFromFEN(cb.FEN); err == nil {
				s.CurrentTurn = turn
			}
		}
	}
	if s.CurrentTurn == ColorNone {
		f.miss("currentTurn")
		s.CurrentTurn = s.Kind.StartingColor()
	}

	if raw, _, ok := o.first("winner"); ok {
		var known bool
		if s.Winner, known = decodeWinner(raw, s); !known {
			f.miss("winner")
		}
	}
	return s, f.result()
}

func decodeKind(o object, hint Kind) Kind {
	if v, ok := o.str("gameType", "gameKind", "kind"); ok {
		if k, ok := ParseKind(strings.ToLower(v)); ok {
			return k
		}
	}
	if hint != "" {
		return hint
	}
	raw, ok := o["board"]
	if !ok || isNull(raw) {
		if o.has("fen") {
			return KindChess
		}
		return ""
	}
	var grid [][]int
	if json.Unmarshal(raw, &grid) == nil && len(grid) > 0 {
		return KindGo
	}
	return KindChess
}

func decodeTurn(o object, kind Kind) Color {
	raw, _, ok := o.first("currentTurn", "currentPlayer", "turn")
	if !ok {
		return ColorNone
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		c, _ := ParseColor(strings.ToLower(s))
		return c
	}
	var n int
	if json.Unmarshal(raw, &n) == nil {
		return Stone(n).Color()
	}
	return ColorNone
}

// decodeWinner accepts a color, a player name, a go stone value or "draw".
func decodeWinner(raw json.RawMessage, s *GameSession) (Color, bool) {
	var str string
	if json.Unmarshal(raw, &str) == nil {
		switch strings.ToLower(str) {
		case "", "draw", "none":
			return ColorNone, true
		}
		if c, ok := ParseColor(strings.ToLower(str)); ok {
			return c, true
		}
		c := s.ColorFor(str)
		return c, c != ColorNone
	}
	var n int
	if json.Unmarshal(raw, &n) == nil {
		return Stone(n).Color(), n >= 0 && n <= 2
	}
	return ColorNone, false
}

func decodeChessBoard(o object, f *fields) *ChessBoard {
	b := &ChessBoard{Squares: map[Cell]Piece{}}
	b.FEN, _ = o.str("fen")
	b.Check = o.flag("isCheck")
	b.Checkmate = o.flag("isCheckmate")
	b.Stalemate = o.flag("isStalemate")

	raw, ok := o["board"]
	switch {
	case ok && !isNull(raw):
		if !decodeSquares(raw, b.Squares) {
			f.miss("board")
			clear(b.Squares)
			fillFromFEN(b, f)
		}
	case b.FEN != "":
		fillFromFEN(b, f)
	default:
		f.miss("board")
	}

	// moves is the played history, never a list of options
	if raw, ok := o["moves"]; ok && !isNull(raw) {
		hist, ok := decodeHistory(raw)
		if !ok {
			f.miss("moves")
		}
		b.History = hist
	}

	if n, ok := o.num("moveCount"); ok {
		b.MoveCount, b.MovesKnown = int(n), true
	} else if b.FEN != "" {
		b.MoveCount, b.MovesKnown = fenMoveCount(b.FEN)
	} else if b.History != nil {
		b.MoveCount, b.MovesKnown = len(b.History), true
	}

	if raw, ok := o["legalMoves"]; ok && !isNull(raw) {
		moves, ok := decodeMoves(raw)
		if !ok {
			f.miss("legalMoves")
		} else {
			b.LegalMoves = moves
		}
	}
	return b
}

func decodeHistory(raw json.RawMessage) ([]PlayedMove, bool) {
	var list []struct {
		From      string `json:"from"`
		To        string `json:"to"`
		Piece     string `json:"piece"`
		Captured  string `json:"captured"`
		Promotion string `json:"promotion"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	out := make([]PlayedMove, 0, len(list))
	for _, m := range list {
		from, to := Cell(strings.ToLower(m.From)), Cell(strings.ToLower(m.To))
		if !from.Valid() || !to.Valid() {
			return nil, false
		}
		out = append(out, PlayedMove{From: from, To: to, Piece: m.Piece, Captured: m.Captured, Promotion: m.Promotion})
	}
	return out, true
}

func fillFromFEN(b *ChessBoard, f *fields) {
	if b.FEN == "" {
		return
	}
	sq, _, err := squaresFromFEN(b.FEN)
	if err != nil {
		f.miss("fen")
		b.FEN = ""
		return
	}
	b.Squares = sq
}

// decodeSquares accepts {cell: {type, color} | null} or an 8x8 array of
// piece symbols with row 0 being rank 8.
func decodeSquares(raw json.RawMessage, into map[Cell]Piece) bool {
	var cells map[string]*Piece
	if err := json.Unmarshal(raw, &cells); err == nil {
		for k, p := range cells {
			c := Cell(strings.ToLower(k))
			if !c.Valid() {
				return false
			}
			if p == nil || p.Type == "" {
				continue
			}
			color, ok := ParseColor(string(p.Color))
			if !ok {
				return false
			}
			into[c] = Piece{Type: strings.ToLower(p.Type), Color: color}
		}
		return true
	}

	var rows [][]string
	if err := json.Unmarshal(raw, &rows); err != nil || len(rows) != 8 {
		return false
	}
	for i, row := range rows {
		if len(row) != 8 {
			return false
		}
		for file, sym := range row {
			sym = strings.TrimSpace(sym)
			if sym == "" || sym == "." {
				continue
			}
			p, ok := pieceFromSymbol(sym)
			if !ok {
				return false
			}
			into[CellAt(file, 7-i)] = p
		}
	}
	return true
}

// decodeMoves accepts {from: [to...]} or [{from, to}...].
func decodeMoves(raw json.RawMessage) (map[Cell][]Cell, bool) {
	out := map[Cell][]Cell{}
	var byFrom map[string][]string
	if err := json.Unmarshal(raw, &byFrom); err == nil {
		for from, tos := range byFrom {
			for _, to := range tos {
				out[Cell(from)] = append(out[Cell(from)], Cell(to))
			}
		}
		return out, true
	}
	var list []struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	for _, m := range list {
		if m.From == "" || m.To == "" {
			return nil, false
		}
		out[Cell(m.From)] = append(out[Cell(m.From)], Cell(m.To))
	}
	return out, true
}

func decodeGoBoard(o object, f *fields) *GoBoard {
	var b *GoBoard
	var grid [][]int
	raw, ok := o["board"]
	switch {
	case !ok || isNull(raw):
		f.miss("board")
	case json.Unmarshal(raw, &grid) != nil || !squareGrid(grid):
		f.miss("board")
	default:
		b = NewGoBoard(len(grid))
		for x, col := range grid {
			for y, v := range col {
				if v < 0 || v > 2 {
					f.miss("board")
					b = nil
					break
				}
				b.Stones[x][y] = Stone(v)
			}
			if b == nil {
				break
			}
		}
	}
	if b == nil {
		size := DefaultGoSize
		if n, ok := o.num("size", "boardSize"); ok && n > 0 && n <= 25 {
			size = int(n)
		}
		b = NewGoBoard(size)
	}

	if raw, ok := o["lastMove"]; ok && !isNull(raw) {
		var p Point
		if err := json.Unmarshal(raw, &p); err != nil || !b.InBounds(p.X, p.Y) {
			f.miss("lastMove")
		} else {
			b.LastMove = &p
		}
	}
	if n, ok := o.num("capturedBlack"); ok {
		b.CapturedBlack = int(n)
	}
	if n, ok := o.num("capturedWhite"); ok {
		b.CapturedWhite = int(n)
	}
	return b
}

func squareGrid(g [][]int) bool {
	if len(g) == 0 {
		return false
	}
	for _, col := range g {
		if len(col) != len(g) {
			return false
		}
	}
	return true
}

// DecodeLeaderboard accepts an entry array or {"leaderboard": [...]}.
// Entries may name the player as player, name or id.
func DecodeLeaderboard(data []byte) (*Leaderboard, *ProtocolError) {
	const event = "leaderboardUpdate"
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		o, err := parseObject(data)
		if err != nil || !o.has("leaderboard") {
			return nil, malformed(event, err)
		}
		data = o["leaderboard"]
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, malformed(event, err)
	}

	f := &fields{event: event}
	entries := make([]LeaderboardEntry, 0, len(raws))
	for i, raw := range raws {
		o, err := parseObject(raw)
		if err != nil {
			f.miss(fmt.Sprintf("[%d]", i))
			continue
		}
		name, ok := o.str("player", "name", "id")
		if !ok || name == "" {
			f.miss(fmt.Sprintf("[%d].player", i))
			continue
		}
		e := LeaderboardEntry{Player: name}
		if v, ok := o.num("score", "rating", "points"); ok {
			e.Score = v
		} else {
			f.miss(fmt.Sprintf("[%d].score", i))
		}
		e.Wins = optInt(o, "wins")
		e.Losses = optInt(o, "losses")
		e.Draws = optInt(o, "draws")
		if v, ok := o.num("winRate"); ok {
			e.WinRate = &v
		}
		entries = append(entries, e)
	}
	return NewLeaderboard(entries), f.result()
}

func optInt(o object, key string) *int {
	v, ok := o.num(key)
	if !ok {
		return nil
	}
	n := int(v)
	return &n
}

// DecodeTournament accepts the status object or {"tournamentStatus": {...}}.
func DecodeTournament(data []byte) (*TournamentStatus, *ProtocolError) {
	const event = "tournamentUpdate"
	o, err := parseObject(data)
	if err != nil {
		return nil, malformed(event, err)
	}
	if inner, ok := o["tournamentStatus"]; ok {
		if o, err = parseObject(inner); err != nil {
			return nil, malformed(event, err)
		}
	}

	f := &fields{event: event}
	ts := &TournamentStatus{}
	if raw, ok := o["matches"]; ok && !isNull(raw) {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			f.miss("matches")
		}
		for i, m := range list {
			match, ok := decodeMatch(m)
			if !ok {
				f.miss(fmt.Sprintf("matches[%d]", i))
				continue
			}
			ts.Matches = append(ts.Matches, match)
		}
	}
	if v, ok := o.num("currentMatch"); ok {
		ts.CurrentMatch = int(v)
	} else {
		f.miss("currentMatch")
	}
	if v, ok := o.num("totalMatches"); ok {
		ts.TotalMatches = int(v)
	} else {
		ts.TotalMatches = len(ts.Matches)
		f.miss("totalMatches")
	}
	if raw, ok := o["currentGame"]; ok && !isNull(raw) {
		if m, ok := decodeMatch(raw); ok {
			ts.CurrentGame = &m
		} else {
			f.miss("currentGame")
		}
	}
	return ts, f.result()
}

func decodeMatch(raw json.RawMessage) (Match, bool) {
	o, err := parseObject(raw)
	if err != nil {
		return Match{}, false
	}
	a, okA := o.str("competitorA", "white", "player1")
	b, okB := o.str("competitorB", "black", "player2")
	if !okA || !okB {
		return Match{}, false
	}
	m := Match{CompetitorA: a, CompetitorB: b}
	m.Result, _ = o.str("result", "winner")
	return m, true
}
