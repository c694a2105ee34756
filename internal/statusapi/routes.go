// Package statusapi exposes the client's health, current view and metrics over HTTP.
package statusapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akashasong-ai/chess.ai/internal/session"
)

type Viewer interface {
	View() (session.View, error)
}

func SetupRoutes(v Viewer, g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/status", Status(v))
	if g != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	return r
}

func Status(v Viewer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := v.View()
		if errors.Is(err, session.ErrClosed) {
			http.Error(w, "session closed", http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			http.Error(w, "failed to read session", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(view)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
