// Package push serves the client push channel: long-polling sessions that a
// websocket can take over without losing or reordering frames.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akashasong-ai/chess.ai/internal/authority/hub"
	"github.com/akashasong-ai/chess.ai/internal/logging"
)

var (
	ErrUpgraded  = errors.New("session upgraded to websocket")
	ErrNoSession = errors.New("no such session")
)

const (
	maxFrame     = 64 << 10
	writeTimeout = 3 * time.Second
)

type Options struct {
	PollWait    time.Duration
	IdleTimeout time.Duration // polling sessions without requests for this long are closed
	Logger      *zap.Logger
}

type Server struct {
	hub  *hub.Hub
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewServer(h *hub.Hub, opts Options) *Server {
	if opts.PollWait <= 0 {
		opts.PollWait = 25 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 2*opts.PollWait + 30*time.Second
	}
	return &Server{
		hub:      h,
		opts:     opts,
		log:      logging.OrNop(opts.Logger).Named("push"),
		sessions: make(map[string]*Session),
	}
}

func (s *Server) Open() *Session {
	sess := newSession(s, uuid.NewString())
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	s.log.Debug("session opened", zap.String("sid", sess.id))
	return sess
}

func (s *Server) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) remove(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Run reaps idle polling sessions until ctx ends, then closes every session.
func (s *Server) Run(ctx context.Context) {
	tick := time.NewTicker(s.opts.IdleTimeout / 2)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			for _, sess := range s.snapshot() {
				sess.Close()
			}
			return
		case now := <-tick.C:
			for _, sess := range s.snapshot() {
				if !sess.Upgraded() && now.Sub(sess.idleSince()) > s.opts.IdleTimeout {
					s.log.Info("reaping idle session", zap.String("sid", sess.id))
					sess.Close()
				}
			}
		}
	}
}

func (s *Server) snapshot() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// HandleOpen is POST /poll.
func (s *Server) HandleOpen(w http.ResponseWriter, r *http.Request) {
	sess := s.Open()
	writeJSON(w, http.StatusCreated, map[string]string{"sid": sess.id})
}

// HandlePoll is GET /poll/{sid}.
func (s *Server) HandlePoll(w http.ResponseWriter, r *http.Request) {
	sess := s.Get(chi.URLParam(r, "sid"))
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	frames, err := sess.Poll(r.Context(), s.opts.PollWait)
	switch {
	case errors.Is(err, ErrUpgraded):
		http.Error(w, "session upgraded", http.StatusGone)
		return
	case errors.Is(err, ErrNoSession):
		http.Error(w, "session closed", http.StatusNotFound)
		return
	case err != nil:
		return // client went away
	}
	raw := make([]json.RawMessage, len(frames))
	for i, f := range frames {
		raw[i] = f
	}
	writeJSON(w, http.StatusOK, raw)
}

// HandleSend is POST /poll/{sid} with one envelope as the body.
func (s *Server) HandleSend(w http.ResponseWriter, r *http.Request) {
	sess := s.Get(chi.URLParam(r, "sid"))
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrame))
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	sess.Handle(body)
	w.WriteHeader(http.StatusNoContent)
}

// HandleClose is DELETE /poll/{sid}.
func (s *Server) HandleClose(w http.ResponseWriter, r *http.Request) {
	if sess := s.Get(chi.URLParam(r, "sid")); sess != nil {
		sess.Close()
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleWS is GET /ws?sid=. It takes over an open polling session.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	if sid == "" {
		http.Error(w, "missing sid", http.StatusBadRequest)
		return
	}
	sess := s.Get(sid)
	if sess == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if sess.Upgraded() {
		http.Error(w, "session already upgraded", http.StatusConflict)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")
	conn.SetReadLimit(maxFrame)

	if !sess.markUpgraded() {
		conn.Close(websocket.StatusPolicyViolation, "session already upgraded")
		return
	}
	defer sess.Close()
	sess.log.Debug("session upgraded")

	// Writer goroutine
	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go func() {
		// waits for an in-flight poll to hand back whatever it took
		select {
		case sess.reader <- struct{}{}:
		case <-writeCtx.Done():
			return
		}
		defer func() { <-sess.reader }()
		for {
			select {
			case f := <-sess.out:
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err := conn.Write(ctx, websocket.MessageText, f)
				cancel()
				if err != nil {
					sess.Close()
					return
				}
			case <-sess.closed:
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			case <-writeCtx.Done():
				return
			}
		}
	}()

	// Reader loop
	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			// Treat clean close/going-away as normal:
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			sess.log.Debug("websocket read ended", zap.Error(err))
			return
		}
		sess.Handle(data)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
