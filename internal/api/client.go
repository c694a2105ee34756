// Package api is the request/response collaborator: starting and stopping
// games and tournaments, and one-off state reads.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/internal/logging"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx answer from the authority.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %s", http.StatusText(e.Status))
	}
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

var ErrBadResponse = errors.New("api: unexpected response body")

type Client struct {
	base string
	hc   *http.Client
	log  *zap.Logger
}

func New(base string, log *zap.Logger) *Client {
	return &Client{
		base: strings.TrimSuffix(base, "/"),
		hc:   &http.Client{Timeout: defaultTimeout},
		log:  logging.OrNop(log).Named("api"),
	}
}

// StartedGame tells the caller which side each player controls.
type StartedGame struct {
	GameID string      `json:"gameId"`
	Kind   domain.Kind `json:"gameType"`
	White  string      `json:"white"`
	Black  string      `json:"black"`
}

// ColorFor maps a player name to the color it plays. Unknown players are spectators.
func (g StartedGame) ColorFor(player string) domain.Color {
	switch {
	case player == "":
		return domain.ColorNone
	case player == g.White:
		return domain.ColorWhite
	case player == g.Black:
		return domain.ColorBlack
	}
	return domain.ColorNone
}

type startGameRequest struct {
	GameType    string   `json:"gameType"`
	WhitePlayer string   `json:"whitePlayer"`
	BlackPlayer string   `json:"blackPlayer"`
	Autoplay    []string `json:"autoplay,omitempty"`
}

// StartGame creates a game with player1 as the starting side. Colors listed
// in autoplay are moved by the authority itself.
func (c *Client) StartGame(ctx context.Context, kind domain.Kind, player1, player2 string, autoplay ...domain.Color) (StartedGame, error) {
	req := startGameRequest{
		GameType:    string(kind),
		WhitePlayer: player1,
		BlackPlayer: player2,
	}
	for _, col := range autoplay {
		req.Autoplay = append(req.Autoplay, string(col))
	}
	var out StartedGame
	err := c.do(ctx, http.MethodPost, "/api/game/start", nil, req, &out)
	if err != nil {
		return StartedGame{}, err
	}
	if out.GameID == "" {
		return StartedGame{}, fmt.Errorf("%w: missing gameId", ErrBadResponse)
	}
	if out.Kind == "" {
		out.Kind = kind
	}
	if out.White == "" && out.Black == "" {
		out.White, out.Black = player1, player2
	}
	return out, nil
}

func (c *Client) StopGame(ctx context.Context, gameID string) error {
	return c.do(ctx, http.MethodPost, "/api/game/stop", nil, map[string]string{"gameId": gameID}, nil)
}

// GameState reads one snapshot. Missing fields are defaulted like pushed updates.
func (c *Client) GameState(ctx context.Context, gameID string, hint domain.Kind) (*domain.GameSession, error) {
	var raw json.RawMessage
	q := url.Values{"gameId": {gameID}}
	if err := c.do(ctx, http.MethodGet, "/api/game/state", q, nil, &raw); err != nil {
		return nil, err
	}
	s, perr := domain.DecodeGameUpdate(raw, hint)
	if perr != nil {
		if perr.Fatal() {
			return nil, perr
		}
		c.log.Debug("game state defaulted fields", zap.Strings("fields", perr.Fields))
	}
	if s.GameID == "" {
		s.GameID = gameID
	}
	return s, nil
}

func (c *Client) Leaderboard(ctx context.Context, kind domain.Kind) (*domain.Leaderboard, error) {
	var raw json.RawMessage
	var q url.Values
	if kind != "" {
		q = url.Values{"gameType": {string(kind)}}
	}
	if err := c.do(ctx, http.MethodGet, "/api/leaderboard", q, nil, &raw); err != nil {
		return nil, err
	}
	lb, perr := domain.DecodeLeaderboard(raw)
	if perr != nil && perr.Fatal() {
		return nil, perr
	}
	return lb, nil
}

type startTournamentRequest struct {
	GameType     string   `json:"gameType"`
	Participants []string `json:"participants"`
	Rounds       int      `json:"rounds"`
}

func (c *Client) StartTournament(ctx context.Context, kind domain.Kind, participants []string, rounds int) (*domain.TournamentStatus, error) {
	if len(participants) < 2 {
		return nil, fmt.Errorf("api: a tournament needs at least two participants")
	}
	if rounds < 1 {
		rounds = 1
	}
	var raw json.RawMessage
	err := c.do(ctx, http.MethodPost, "/api/tournament/start", nil, startTournamentRequest{
		GameType:     string(kind),
		Participants: participants,
		Rounds:       rounds,
	}, &raw)
	if err != nil {
		return nil, err
	}
	return decodeTournament(raw)
}

func (c *Client) TournamentStatus(ctx context.Context) (*domain.TournamentStatus, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/api/tournament/status", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeTournament(raw)
}

func (c *Client) StopTournament(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/tournament/stop", nil, nil, nil)
}

func decodeTournament(raw json.RawMessage) (*domain.TournamentStatus, error) {
	ts, perr := domain.DecodeTournament(raw)
	if perr != nil && perr.Fatal() {
		return nil, perr
	}
	return ts, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("api %s %s: %w", method, path, err)
	}
	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		c.log.Debug("request failed", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return nil
}
