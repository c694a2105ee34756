package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/akashasong-ai/chess.ai/internal/authority/engine"
	"github.com/akashasong-ai/chess.ai/internal/authority/hub"
	"github.com/akashasong-ai/chess.ai/internal/authority/room"
	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

const (
	queueSize = 256
	roomQueue = 32
)

var errSlowClient = errors.New("client too slow")

// Session is one client connection. Frames queue in out until a poll request
// or the websocket writer drains them; holding the reader slot makes sure only
// one does.
type Session struct {
	id  string
	srv *Server
	log *zap.Logger

	out    chan []byte
	reader chan struct{}

	upgradeOnce sync.Once
	upgradedCh  chan struct{}

	mu   sync.Mutex
	room *room.Room

	lastSeen  atomic.Int64
	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(srv *Server, id string) *Session {
	s := &Session{
		id:         id,
		srv:        srv,
		log:        srv.log.With(zap.String("sid", id)),
		out:        make(chan []byte, queueSize),
		reader:     make(chan struct{}, 1),
		upgradedCh: make(chan struct{}),
		closed:     make(chan struct{}),
	}
	s.touch()

	// leaderboard and tournament pushes reach every session
	global := make(chan []byte, roomQueue)
	if srv.hub.Send(hub.Subscribe{ClientID: id, Outbox: global}) {
		go s.forward(global)
	}
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

func (s *Session) idleSince() time.Time { return time.Unix(0, s.lastSeen.Load()) }

func (s *Session) Upgraded() bool {
	select {
	case <-s.upgradedCh:
		return true
	default:
		return false
	}
}

// markUpgraded reports false if another websocket already took the session.
func (s *Session) markUpgraded() bool {
	ok := false
	s.upgradeOnce.Do(func() {
		close(s.upgradedCh)
		ok = true
	})
	return ok
}

func (s *Session) Done() <-chan struct{} { return s.closed }

// enqueue never blocks; a full queue closes the session.
func (s *Session) enqueue(frame []byte) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.out <- frame:
		return true
	default:
		s.log.Warn("dropping slow session")
		s.Close()
		return false
	}
}

// forward copies frames from a room or hub outbox until the producer closes it.
func (s *Session) forward(src <-chan []byte) {
	for {
		select {
		case f, ok := <-src:
			if !ok {
				return
			}
			if !s.enqueue(f) {
				return
			}
		case <-s.closed:
			return
		}
	}
}

// Poll waits up to wait for frames. It returns ErrUpgraded once a websocket owns the session.
func (s *Session) Poll(ctx context.Context, wait time.Duration) ([][]byte, error) {
	s.touch()
	select {
	case s.reader <- struct{}{}:
	case <-s.upgradedCh:
		return nil, ErrUpgraded
	case <-s.closed:
		return nil, ErrNoSession
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.reader }()
	if s.Upgraded() {
		return nil, ErrUpgraded
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	var frames [][]byte
	select {
	case f := <-s.out:
		frames = append(frames, f)
	case <-s.upgradedCh:
		return nil, ErrUpgraded
	case <-s.closed:
		return nil, ErrNoSession
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	for {
		select {
		case f := <-s.out:
			frames = append(frames, f)
		default:
			return frames, nil
		}
	}
}

// Handle processes one client frame.
func (s *Session) Handle(frame []byte) {
	s.touch()
	var env types.Envelope
	if err := json.Unmarshal(frame, &env); err != nil || env.Event == "" {
		s.sendError("bad frame", "")
		return
	}

	switch env.Event {
	case types.EventJoinGame:
		var m types.JoinGame
		if err := json.Unmarshal(env.Data, &m); err != nil || m.GameID == "" {
			s.sendError("joinGame needs a gameId", "")
			return
		}
		s.join(m.GameID)

	case types.EventLeaveGame:
		s.leave()

	case types.EventMove:
		var m types.Move
		if err := json.Unmarshal(env.Data, &m); err != nil {
			s.sendError("bad move", "")
			return
		}
		s.move(m)

	case types.EventGetLeaderboard:
		var m types.GetLeaderboard
		_ = json.Unmarshal(env.Data, &m)
		reply := make(chan []types.LeaderboardEntry, 1)
		if !s.srv.hub.Send(hub.GetLeaderboard{Kind: domain.Kind(m.GameType), Reply: reply}) {
			return
		}
		select {
		case lb := <-reply:
			s.send(types.EventLeaderboardUpdate, lb)
		case <-s.closed:
		}

	default:
		s.sendError("unknown event "+env.Event, "")
	}
}

func (s *Session) join(gameID string) {
	r := s.srv.hub.Room(gameID)
	if r == nil {
		s.sendError("game not found", "")
		return
	}
	s.leave()

	outbox := make(chan []byte, roomQueue)
	if !r.Send(room.Join{ClientID: s.id, Outbox: outbox}) {
		s.sendError("game not found", "")
		return
	}
	s.mu.Lock()
	s.room = r
	s.mu.Unlock()
	go s.forward(outbox)
	s.log.Debug("joined", zap.String("game", gameID))
}

func (s *Session) leave() {
	s.mu.Lock()
	r := s.room
	s.room = nil
	s.mu.Unlock()
	if r != nil {
		r.Send(room.Leave{ClientID: s.id})
	}
}

func (s *Session) move(m types.Move) {
	s.mu.Lock()
	r := s.room
	s.mu.Unlock()
	if r == nil || (m.GameID != "" && m.GameID != r.ID()) {
		s.sendError("not in that game", m.IntentID)
		return
	}

	color, _ := domain.ParseColor(m.Color)
	cmd := engine.Command{Color: color}
	switch {
	case m.X != nil && m.Y != nil:
		cmd.Type, cmd.X, cmd.Y = engine.CmdPlace, *m.X, *m.Y
	case m.From != "" && m.To != "":
		cmd.Type, cmd.From, cmd.To = engine.CmdMove, m.From, m.To
	default:
		s.sendError("move needs from/to or x/y", m.IntentID)
		return
	}
	r.Send(room.FromClient{ClientID: s.id, IntentID: m.IntentID, Cmd: cmd})
}

func (s *Session) send(event string, data any) {
	env, err := types.NewEnvelope(event, data)
	if err != nil {
		return
	}
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	s.enqueue(b)
}

func (s *Session) sendError(message, intentID string) {
	s.send(types.EventError, types.ErrorMessage{Message: message, IntentID: intentID})
}

// Close leaves every room and forgets the session. It is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.leave()
		s.srv.hub.Send(hub.Unsubscribe{ClientID: s.id})
		s.srv.remove(s.id)
		s.log.Debug("session closed")
	})
}
