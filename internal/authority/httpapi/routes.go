package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/akashasong-ai/chess.ai/internal/authority/hub"
	"github.com/akashasong-ai/chess.ai/internal/authority/push"
)

func SetupRoutes(h *hub.Hub, p *push.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Push channel
	r.Post("/poll", p.HandleOpen)
	r.Get("/poll/{sid}", p.HandlePoll)
	r.Post("/poll/{sid}", p.HandleSend)
	r.Delete("/poll/{sid}", p.HandleClose)
	r.Get("/ws", p.HandleWS)

	// Request/response API
	r.Route("/api", func(r chi.Router) {
		r.Post("/game/start", StartGame(h))
		r.Post("/game/stop", StopGame(h))
		r.Get("/game/state", GameState(h))
		r.Get("/leaderboard", Leaderboard(h))
		r.Post("/tournament/start", StartTournament(h))
		r.Get("/tournament/status", TournamentStatus(h))
		r.Post("/tournament/stop", StopTournament(h))
	})

	r.Get("/healthz", Healthz)
	return r
}
