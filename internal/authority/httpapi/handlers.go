// Package httpapi wires the reference authority's HTTP surface.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/akashasong-ai/chess.ai/internal/authority/hub"
	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

type startGameRequest struct {
	GameType    string   `json:"gameType"`
	WhitePlayer string   `json:"whitePlayer"`
	BlackPlayer string   `json:"blackPlayer"`
	Player1     string   `json:"player1"`
	Player2     string   `json:"player2"`
	Autoplay    []string `json:"autoplay"` // colors moved by the server
}

type startGameResponse struct {
	GameID   string `json:"gameId"`
	GameType string `json:"gameType"`
	White    string `json:"white"`
	Black    string `json:"black"`
}

func StartGame(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startGameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		kind, ok := domain.ParseKind(req.GameType)
		if !ok {
			writeError(w, http.StatusBadRequest, "gameType must be chess or go")
			return
		}
		white, black := first(req.WhitePlayer, req.Player1), first(req.BlackPlayer, req.Player2)
		if white == "" || black == "" {
			writeError(w, http.StatusBadRequest, "both players are required")
			return
		}
		auto := map[domain.Color]bool{}
		for _, c := range req.Autoplay {
			color, ok := domain.ParseColor(c)
			if !ok {
				writeError(w, http.StatusBadRequest, "autoplay entries must be white or black")
				return
			}
			auto[color] = true
		}

		reply := make(chan hub.CreateResult, 1)
		if !h.Send(hub.CreateRoom{Kind: kind, White: white, Black: black, Auto: auto, Reply: reply}) {
			writeError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		res := <-reply
		if res.Err != nil {
			writeError(w, http.StatusInternalServerError, "failed to create game")
			return
		}
		writeJSON(w, http.StatusCreated, startGameResponse{
			GameID:   res.Room.ID(),
			GameType: string(kind),
			White:    white,
			Black:    black,
		})
	}
}

func StopGame(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GameID string `json:"gameId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GameID == "" {
			writeError(w, http.StatusBadRequest, "gameId is required")
			return
		}
		if h.Room(req.GameID) == nil {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		h.Send(hub.RemoveRoom{ID: req.GameID})
		w.WriteHeader(http.StatusNoContent)
	}
}

func GameState(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rm := h.Room(r.URL.Query().Get("gameId"))
		if rm == nil {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		v, ok := rm.State()
		if !ok {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}
		writeJSON(w, http.StatusOK, v.Snapshot)
	}
}

func Leaderboard(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var kind domain.Kind
		if q := r.URL.Query().Get("gameType"); q != "" {
			k, ok := domain.ParseKind(q)
			if !ok {
				writeError(w, http.StatusBadRequest, "unknown gameType")
				return
			}
			kind = k
		}
		reply := make(chan []types.LeaderboardEntry, 1)
		if !h.Send(hub.GetLeaderboard{Kind: kind, Reply: reply}) {
			writeError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		lb := <-reply
		if lb == nil {
			lb = []types.LeaderboardEntry{}
		}
		writeJSON(w, http.StatusOK, lb)
	}
}

func StartTournament(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			GameType     string   `json:"gameType"`
			Participants []string `json:"participants"`
			Rounds       int      `json:"rounds"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		reply := make(chan hub.TournamentResult, 1)
		if !h.Send(hub.StartTournament{Kind: domain.Kind(req.GameType), Participants: req.Participants, Rounds: req.Rounds, Reply: reply}) {
			writeError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		res := <-reply
		switch {
		case errors.Is(res.Err, hub.ErrTournamentRunning):
			writeError(w, http.StatusConflict, res.Err.Error())
		case res.Err != nil:
			writeError(w, http.StatusBadRequest, res.Err.Error())
		default:
			writeJSON(w, http.StatusCreated, res.Status)
		}
	}
}

func TournamentStatus(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan types.TournamentSnapshot, 1)
		if !h.Send(hub.GetTournament{Reply: reply}) {
			writeError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tournamentStatus": <-reply})
	}
}

func StopTournament(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan error, 1)
		if !h.Send(hub.StopTournament{Reply: reply}) {
			writeError(w, http.StatusServiceUnavailable, "shutting down")
			return
		}
		if err := <-reply; err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

