package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeGameUpdate_ChessMapBoard(t *testing.T) {
	data := []byte(`{
		"gameId": "g1",
		"gameType": "chess",
		"board": {"e2": {"type": "pawn", "color": "white"}, "e7": {"type": "pawn", "color": "black"}, "e4": null},
		"currentTurn": "black",
		"moveCount": 1,
		"isCheck": true,
		"legalMoves": {"e7": ["e5", "e6"]}
	}`)
	s, perr := DecodeGameUpdate(data, "")
	require.Nil(t, perr)
	assert.Equal(t, "g1", s.GameID)
	assert.Equal(t, KindChess, s.Kind)
	assert.Equal(t, ColorBlack, s.CurrentTurn)
	assert.Equal(t, StatusActive, s.Status)

	b, ok := s.Chess()
	require.True(t, ok)
	assert.Len(t, b.Squares, 2)
	assert.Equal(t, Piece{Type: "pawn", Color: ColorWhite}, b.Squares["e2"])
	assert.True(t, b.Check)
	assert.Equal(t, 1, b.MoveCount)
	assert.Equal(t, []Cell{"e5", "e6"}, b.LegalMoves["e7"])
}

func TestDecodeGameUpdate_ChessHistoryIsNotLegalMoves(t *testing.T) {
	fresh := []byte(`{
		"gameType": "chess",
		"currentTurn": "white",
		"moveCount": 0,
		"moves": [],
		"board": {"e2": {"type": "pawn", "color": "white"}, "e1": {"type": "king", "color": "white"}, "e8": {"type": "king", "color": "black"}}
	}`)
	s, perr := DecodeGameUpdate(fresh, "")
	require.Nil(t, perr)
	b, _ := s.Chess()
	assert.Nil(t, b.LegalMoves)
	assert.Empty(t, b.History)
	targets := b.TargetsFrom("e2")
	assert.Contains(t, targets, Cell("e4"))
	assert.NotContains(t, targets, Cell("e1"), "own pieces are never targets")

	played := []byte(`{
		"gameType": "chess",
		"currentTurn": "black",
		"moves": [
			{"from": "e2", "to": "e4", "piece": "pawn"},
			{"from": "d7", "to": "d5", "piece": "pawn"},
			{"from": "e4", "to": "d5", "piece": "pawn", "captured": "pawn"}
		],
		"board": {"d5": {"type": "pawn", "color": "white"}, "e1": {"type": "king", "color": "white"}, "e8": {"type": "king", "color": "black"}}
	}`)
	s, perr = DecodeGameUpdate(played, "")
	require.Nil(t, perr)
	b, _ = s.Chess()
	assert.Nil(t, b.LegalMoves)
	require.Len(t, b.History, 3)
	assert.Equal(t, PlayedMove{From: "e4", To: "d5", Piece: "pawn", Captured: "pawn"}, b.History[2])
	assert.True(t, b.MovesKnown)
	assert.Equal(t, 3, b.MoveCount, "history length stands in for a missing moveCount")
	assert.Contains(t, b.TargetsFrom("e8"), Cell("a1"))
}

func TestDecodeGameUpdate_ChessSymbolRowsAndNestedState(t *testing.T) {
	data := []byte(`{
		"board": [
			["r","n","b","q","k","b","n","r"],
			["p","p","p","p","p","p","p","p"],
			[" "," "," "," "," "," "," "," "],
			[" "," "," "," "," "," "," "," "],
			[" "," "," "," ","P"," "," "," "],
			[" "," "," "," "," "," "," "," "],
			["P","P","P","P"," ","P","P","P"],
			["R","N","B","Q","K","B","N","R"]
		],
		"gameState": {"status": "active", "currentPlayer": "black", "whiteAI": "stockfish", "blackAI": "random", "winner": null}
	}`)
	s, perr := DecodeGameUpdate(data, KindChess)
	require.Nil(t, perr)
	b, _ := s.Chess()
	assert.Equal(t, Piece{Type: "pawn", Color: ColorWhite}, b.Squares["e4"])
	assert.Equal(t, Piece{Type: "king", Color: ColorBlack}, b.Squares["e8"])
	_, empty := b.Squares["e2"]
	assert.False(t, empty)
	assert.Equal(t, ColorBlack, s.CurrentTurn)
	assert.Equal(t, "stockfish", s.White)
}

func TestDecodeGameUpdate_FENOnly(t *testing.T) {
	data := []byte(`{"gameType":"chess","fen":"rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"}`)
	s, perr := DecodeGameUpdate(data, "")
	require.Nil(t, perr)
	b, _ := s.Chess()
	assert.Len(t, b.Squares, 32)
	assert.Equal(t, ColorBlack, s.CurrentTurn, "turn comes from the FEN when not sent")
	assert.True(t, b.MovesKnown)
	assert.Equal(t, 1, b.MoveCount)
}

func TestDecodeGameUpdate_GoBoard(t *testing.T) {
	data := []byte(`{
		"gameId": "g2",
		"board": [[0,0,0],[0,1,0],[0,0,2]],
		"currentPlayer": 2,
		"lastMove": {"x": 2, "y": 2},
		"capturedBlack": 1,
		"gameOver": true,
		"winner": 1
	}`)
	s, perr := DecodeGameUpdate(data, KindGo)
	require.Nil(t, perr)
	b, ok := s.Go()
	require.True(t, ok)
	assert.Equal(t, 3, b.Size)
	stone, _ := b.At(1, 1)
	assert.Equal(t, StoneBlack, stone)
	assert.Equal(t, &Point{X: 2, Y: 2}, b.LastMove)
	assert.Equal(t, ColorWhite, s.CurrentTurn)
	assert.Equal(t, StatusFinished, s.Status)
	assert.Equal(t, ColorBlack, s.Winner)
	assert.Equal(t, 1, b.CapturedBlack)
}

func TestDecodeGameUpdate_Defaults(t *testing.T) {
	cases := []struct {
		name       string
		data       string
		hint       Kind
		wantKind   Kind
		wantTurn   Color
		wantFields []string
	}{
		{"empty chess", `{}`, KindChess, KindChess, ColorWhite, []string{"board", "currentTurn"}},
		{"empty go", `{}`, KindGo, KindGo, ColorBlack, []string{"board", "currentTurn"}},
		{"unknown kind", `{"currentTurn":"white"}`, "", KindChess, ColorWhite, []string{"gameType", "board"}},
		{"bad status", `{"board":{},"currentTurn":"white","status":"paused"}`, KindChess, KindChess, ColorWhite, []string{"status"}},
		{"ragged go board", `{"board":[[0,0],[0]],"currentPlayer":"black"}`, KindGo, KindGo, ColorBlack, []string{"board"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, perr := DecodeGameUpdate([]byte(tc.data), tc.hint)
			require.NotNil(t, s)
			require.NotNil(t, perr)
			assert.False(t, perr.Fatal())
			assert.Equal(t, tc.wantKind, s.Kind)
			assert.Equal(t, tc.wantTurn, s.CurrentTurn)
			assert.Equal(t, StatusActive, s.Status)
			assert.Equal(t, tc.wantFields, perr.Fields)
			if tc.wantKind == KindGo {
				b, _ := s.Go()
				assert.Equal(t, DefaultGoSize, b.Size)
			}
		})
	}
}

func TestDecodeGameUpdate_NotAnObject(t *testing.T) {
	for _, data := range []string{`[]`, `"x"`, `null`, ``, `{bad`} {
		s, perr := DecodeGameUpdate([]byte(data), KindChess)
		assert.Nil(t, s, data)
		require.NotNil(t, perr, data)
		assert.True(t, perr.Fatal(), data)
	}
}

func TestDecodeLeaderboard_PreservesOrder(t *testing.T) {
	data := []byte(`{"leaderboard": [
		{"player": "zeta", "score": 1},
		{"name": "alpha", "score": 9, "wins": 4, "losses": 1, "draws": 1, "winRate": 0.66},
		{"player": "mid", "score": 5},
		{"player": "zeta", "score": 100}
	]}`)
	lb, perr := DecodeLeaderboard(data)
	require.Nil(t, perr)
	entries := lb.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, []string{entries[0].Player, entries[1].Player, entries[2].Player})
	alpha, ok := lb.Get("alpha")
	require.True(t, ok)
	require.NotNil(t, alpha.Wins)
	assert.Equal(t, 4, *alpha.Wins)
	z, _ := lb.Get("zeta")
	assert.Equal(t, 1.0, z.Score, "first occurrence wins")
}

func TestDecodeLeaderboard_Problems(t *testing.T) {
	lb, perr := DecodeLeaderboard([]byte(`[{"score": 3}, {"player": "p"}]`))
	require.NotNil(t, perr)
	assert.Equal(t, []string{"[0].player", "[1].score"}, perr.Fields)
	assert.Equal(t, 1, lb.Len())

	lb, perr = DecodeLeaderboard([]byte(`{"rows": []}`))
	assert.Nil(t, lb)
	assert.True(t, perr.Fatal())
}

func TestDecodeTournament(t *testing.T) {
	data := []byte(`{"tournamentStatus": {
		"currentMatch": 1,
		"totalMatches": 2,
		"matches": [{"white": "a", "black": "b", "result": "1-0"}, {"player1": "b", "player2": "a"}],
		"currentGame": {"white": "b", "black": "a"}
	}}`)
	ts, perr := DecodeTournament(data)
	require.Nil(t, perr)
	assert.Equal(t, 1, ts.CurrentMatch)
	assert.Equal(t, 2, ts.TotalMatches)
	assert.Equal(t, Match{CompetitorA: "a", CompetitorB: "b", Result: "1-0"}, ts.Matches[0])
	assert.Equal(t, "", ts.Matches[1].Result)
	assert.Equal(t, &Match{CompetitorA: "b", CompetitorB: "a"}, ts.CurrentGame)

	ts, perr = DecodeTournament([]byte(`{"matches": [{"white": "a", "black": "b"}]}`))
	require.NotNil(t, perr)
	assert.Equal(t, 1, ts.TotalMatches)
	assert.Equal(t, []string{"currentMatch", "totalMatches"}, perr.Fields)
}
