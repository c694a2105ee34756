// Package eventsync turns inbound push events into typed domain updates.
package eventsync

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/akashasong-ai/chess.ai/internal/conn"
	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/internal/logging"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

// Conn is the part of conn.Manager the synchronizer needs.
type Conn interface {
	State() conn.State
	Send(event string, payload any) error
	Subscribe(event string, h conn.Handler) func()
	ObserveStatus(h conn.StatusHandler) func()
	ReportProtocolError(perr *domain.ProtocolError)
}

type handlers[T any] struct {
	list []*handler[T]
}

type handler[T any] struct {
	fn     func(T)
	active bool
}

func (hs *handlers[T]) add(fn func(T)) func() {
	h := &handler[T]{fn: fn, active: true}
	hs.list = append(hs.list, h)
	return func() {
		if !h.active {
			return
		}
		h.active = false
		out := hs.list[:0:0]
		for _, x := range hs.list {
			if x != h {
				out = append(out, x)
			}
		}
		hs.list = out
	}
}

func (hs *handlers[T]) emit(v T) {
	for _, h := range append([]*handler[T](nil), hs.list...) {
		if h.active {
			h.fn(v)
		}
	}
}

func (hs *handlers[T]) clear() {
	for _, h := range hs.list {
		h.active = false
	}
	hs.list = nil
}

// Synchronizer must be used from the loop goroutine, like the Manager it wraps.
type Synchronizer struct {
	c   Conn
	log *zap.Logger

	gameID   string
	kind     domain.Kind
	attached bool
	forward  func()

	session     *domain.GameSession
	leaderboard *domain.Leaderboard
	tournament  *domain.TournamentStatus

	games        handlers[*domain.GameSession]
	leaderboards handlers[*domain.Leaderboard]
	tournaments  handlers[*domain.TournamentStatus]
	rejections   handlers[types.ErrorMessage]

	lbRequested bool
	lbPending   bool
	stops       []func()
}

func New(c Conn, log *zap.Logger) *Synchronizer {
	s := &Synchronizer{c: c, log: logging.OrNop(log).Named("sync")}
	s.stops = append(s.stops,
		c.Subscribe(types.EventLeaderboardUpdate, s.onLeaderboard),
		c.Subscribe(types.EventTournamentUpdate, s.onTournament),
		c.Subscribe(types.EventError, s.onError),
		c.Subscribe(types.EventConnectionStatus, s.onConnectionStatus),
		c.ObserveStatus(s.onStatus),
	)
	return s
}

// Attach joins gameID and starts forwarding its gameUpdate events. When not
// connected the join goes out on the next connect.
func (s *Synchronizer) Attach(gameID string, kind domain.Kind) error {
	if s.attached {
		s.Detach()
	}
	s.gameID, s.kind, s.attached = gameID, kind, true
	s.session = nil
	s.forward = s.c.Subscribe(types.EventGameUpdate, s.onGameUpdate)
	return s.join()
}

func (s *Synchronizer) join() error {
	err := s.c.Send(types.EventJoinGame, types.JoinGame{GameID: s.gameID})
	if errors.Is(err, conn.ErrNotConnected) {
		s.log.Debug("join deferred until connected", zap.String("game", s.gameID))
		return nil
	}
	return err
}

// Detach leaves the game. No game handler runs once Detach returns.
func (s *Synchronizer) Detach() {
	if !s.attached {
		return
	}
	if err := s.c.Send(types.EventLeaveGame, types.LeaveGame{GameID: s.gameID}); err != nil && !errors.Is(err, conn.ErrNotConnected) {
		s.log.Warn("leave not sent", zap.String("game", s.gameID), zap.Error(err))
	}
	s.forward()
	s.forward = nil
	s.games.clear()
	s.attached = false
	s.gameID, s.kind = "", ""
	s.session = nil
}

// Attached reports the current game, if any.
func (s *Synchronizer) Attached() (string, domain.Kind, bool) {
	return s.gameID, s.kind, s.attached
}

// OnGameUpdate subscribes to the attached game. Subscriptions end at Detach.
func (s *Synchronizer) OnGameUpdate(h func(*domain.GameSession)) func() {
	return s.games.add(h)
}

// OnLeaderboardUpdate subscribes to leaderboard pushes. The first subscriber
// with nothing cached triggers one request.
func (s *Synchronizer) OnLeaderboardUpdate(h func(*domain.Leaderboard)) func() {
	unsub := s.leaderboards.add(h)
	if s.leaderboard == nil && !s.lbRequested {
		s.lbRequested = true
		if err := s.RequestLeaderboard(); err != nil {
			s.log.Warn("leaderboard request failed", zap.Error(err))
		}
	}
	return unsub
}

func (s *Synchronizer) OnTournamentUpdate(h func(*domain.TournamentStatus)) func() {
	return s.tournaments.add(h)
}

// OnRejection receives error events from the authority.
func (s *Synchronizer) OnRejection(h func(types.ErrorMessage)) func() {
	return s.rejections.add(h)
}

func (s *Synchronizer) RequestLeaderboard() error {
	err := s.c.Send(types.EventGetLeaderboard, types.GetLeaderboard{GameType: string(s.kind)})
	if errors.Is(err, conn.ErrNotConnected) {
		s.lbPending = true
		return nil
	}
	if err == nil {
		s.lbPending = false
	}
	return err
}

// Session is the last authoritative snapshot. Callers must not modify it.
func (s *Synchronizer) Session() *domain.GameSession { return s.session }

func (s *Synchronizer) Leaderboard() *domain.Leaderboard { return s.leaderboard }

func (s *Synchronizer) Tournament() *domain.TournamentStatus { return s.tournament }

// Close drops every subscription held on the connection.
func (s *Synchronizer) Close() {
	s.Detach()
	for _, stop := range s.stops {
		stop()
	}
	s.stops = nil
	s.leaderboards.clear()
	s.tournaments.clear()
	s.rejections.clear()
}

func (s *Synchronizer) onStatus(st conn.State) {
	if st.Phase != conn.PhaseConnected {
		return
	}
	// a new server session knows nothing about our rooms
	if s.attached {
		if err := s.join(); err != nil {
			s.log.Warn("rejoin failed", zap.String("game", s.gameID), zap.Error(err))
		}
	}
	if s.lbPending {
		if err := s.RequestLeaderboard(); err != nil {
			s.log.Warn("leaderboard request failed", zap.Error(err))
		}
	}
}

func (s *Synchronizer) onGameUpdate(data json.RawMessage) {
	if !s.attached {
		return
	}
	sess, perr := domain.DecodeGameUpdate(data, s.kind)
	if perr != nil {
		s.c.ReportProtocolError(perr)
		if perr.Fatal() {
			return
		}
	}
	if sess.GameID == "" {
		sess.GameID = s.gameID
	}
	if sess.GameID != s.gameID {
		s.log.Debug("update for another game dropped", zap.String("game", sess.GameID))
		return
	}
	if sess.Kind != s.kind {
		s.c.ReportProtocolError(&domain.ProtocolError{
			Event:  types.EventGameUpdate,
			Fields: []string{"gameType"},
			Err:    domain.ErrMalformed,
		})
		return
	}
	if prev := s.session; prev != nil && sess.Version > 0 && sess.Version < prev.Version {
		s.log.Debug("out of order update dropped", zap.Int("version", sess.Version), zap.Int("have", prev.Version))
		return
	}
	s.session = sess
	s.games.emit(sess)
}

func (s *Synchronizer) onLeaderboard(data json.RawMessage) {
	lb, perr := domain.DecodeLeaderboard(data)
	if perr != nil {
		s.c.ReportProtocolError(perr)
		if perr.Fatal() {
			return
		}
	}
	s.leaderboard = lb
	s.leaderboards.emit(lb)
}

func (s *Synchronizer) onTournament(data json.RawMessage) {
	ts, perr := domain.DecodeTournament(data)
	if perr != nil {
		s.c.ReportProtocolError(perr)
		if perr.Fatal() {
			return
		}
	}
	s.tournament = ts
	s.tournaments.emit(ts)
}

func (s *Synchronizer) onError(data json.RawMessage) {
	var msg types.ErrorMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		var text string
		if json.Unmarshal(data, &text) != nil {
			s.c.ReportProtocolError(&domain.ProtocolError{Event: types.EventError, Err: domain.ErrMalformed})
			return
		}
		msg.Message = text
	}
	s.log.Info("authority error", zap.String("message", msg.Message), zap.String("intent", msg.IntentID))
	s.rejections.emit(msg)
}

func (s *Synchronizer) onConnectionStatus(data json.RawMessage) {
	var st types.ConnectionStatus
	if err := json.Unmarshal(data, &st); err != nil {
		_ = json.Unmarshal(data, &st.Status)
	}
	s.log.Debug("authority connection status", zap.String("status", st.Status))
}
