package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akashasong-ai/chess.ai/internal/conn"
	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/internal/metrics"
	"github.com/akashasong-ai/chess.ai/internal/session"
)

type fixedView struct {
	v   session.View
	err error
}

func (f fixedView) View() (session.View, error) { return f.v, f.err }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusServesView(t *testing.T) {
	v := session.View{
		Connection: conn.State{Phase: conn.PhaseConnected},
		GameID:     "g1",
		Kind:       domain.KindGo,
	}
	h := SetupRoutes(fixedView{v: v}, nil)

	rec := get(t, h, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "g1", body["gameId"])
	assert.Equal(t, "connected", body["connection"].(map[string]any)["phase"])
	assert.Equal(t, "idle", body["interaction"])
}

func TestStatusWhenClosed(t *testing.T) {
	h := SetupRoutes(fixedView{err: session.ErrClosed}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/status").Code)
}

func TestHealthzAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Phase("connected")

	h := SetupRoutes(fixedView{}, reg)
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "boardsync_"), rec.Body.String())

	assert.Equal(t, http.StatusNotFound, get(t, SetupRoutes(fixedView{}, nil), "/metrics").Code)
}
