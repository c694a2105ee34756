// Package hub owns every room of the reference authority together with the
// state that spans games: the leaderboard and the running tournament.
package hub

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math/big"
	mrand "math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/akashasong-ai/chess.ai/internal/authority/engine"
	"github.com/akashasong-ai/chess.ai/internal/authority/room"
	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/internal/logging"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

var (
	ErrTournamentRunning = errors.New("a tournament is already running")
	ErrNoTournament      = errors.New("no tournament running")
	ErrTooFewPlayers     = errors.New("a tournament needs at least two participants")
	ErrUnknownKind       = errors.New("unknown game kind")
)

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	Kind  domain.Kind
	White string
	Black string
	Auto  map[domain.Color]bool
	Reply chan CreateResult
}

type CreateResult struct {
	Room *room.Room
	Err  error
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

type RemoveRoom struct {
	ID string
}

// GameFinished is posted by rooms when their game completes.
type GameFinished struct {
	ID    string
	State engine.State
}

// Subscribe registers an outbox for leaderboard and tournament pushes.
type Subscribe struct {
	ClientID string
	Outbox   chan []byte
}

type Unsubscribe struct{ ClientID string }

type GetLeaderboard struct {
	Kind  domain.Kind
	Reply chan []types.LeaderboardEntry
}

type StartTournament struct {
	Kind         domain.Kind
	Participants []string
	Rounds       int
	Reply        chan TournamentResult
}

type TournamentResult struct {
	Status types.TournamentSnapshot
	Err    error
}

type GetTournament struct {
	Reply chan types.TournamentSnapshot
}

type StopTournament struct {
	Reply chan error
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()      {}
func (GetRoom) isHubMsg()         {}
func (RemoveRoom) isHubMsg()      {}
func (GameFinished) isHubMsg()    {}
func (Subscribe) isHubMsg()       {}
func (Unsubscribe) isHubMsg()     {}
func (GetLeaderboard) isHubMsg()  {}
func (StartTournament) isHubMsg() {}
func (GetTournament) isHubMsg()   {}
func (StopTournament) isHubMsg()  {}
func (ShutdownHub) isHubMsg()     {}

type Options struct {
	AutoplayDelay time.Duration
	Logger        *zap.Logger
	Rand          *mrand.Rand
}

type Hub struct {
	inbox   chan HubMsg
	rooms   map[string]*room.Room
	subs    map[string]chan []byte
	records map[domain.Kind]map[string]*record
	tour    *tournament
	opts    Options
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Rand == nil {
		opts.Rand = mrand.New(mrand.NewPCG(mrand.Uint64(), mrand.Uint64()))
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		rooms:   make(map[string]*room.Room),
		subs:    make(map[string]chan []byte),
		records: make(map[domain.Kind]map[string]*record),
		opts:    opts,
		log:     logging.OrNop(opts.Logger).Named("hub"),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Send queues m and reports false once the hub has stopped.
func (h *Hub) Send(m HubMsg) bool {
	select {
	case <-h.ctx.Done():
		return false
	default:
	}
	select {
	case h.inbox <- m:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Room looks up a game, returning nil when it does not exist.
func (h *Hub) Room(id string) *room.Room {
	reply := make(chan *room.Room, 1)
	if !h.Send(GetRoom{ID: id, Reply: reply}) {
		return nil
	}
	select {
	case r := <-reply:
		return r
	case <-h.ctx.Done():
		return nil
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				r, err := h.createRoom(msg.Kind, msg.White, msg.Black, msg.Auto)
				msg.Reply <- CreateResult{Room: r, Err: err}

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // May be nil

			case RemoveRoom:
				if r := h.rooms[msg.ID]; r != nil {
					r.Send(room.Shutdown{})
					delete(h.rooms, msg.ID)
				}

			case GameFinished:
				h.onFinished(msg)

			case Subscribe:
				if old, ok := h.subs[msg.ClientID]; ok && old != msg.Outbox {
					close(old)
				}
				h.subs[msg.ClientID] = msg.Outbox

			case Unsubscribe:
				if ch, ok := h.subs[msg.ClientID]; ok {
					close(ch)
					delete(h.subs, msg.ClientID)
				}

			case GetLeaderboard:
				msg.Reply <- h.leaderboard(msg.Kind)

			case StartTournament:
				st, err := h.startTournament(msg.Kind, msg.Participants, msg.Rounds)
				msg.Reply <- TournamentResult{Status: st, Err: err}

			case GetTournament:
				msg.Reply <- h.tour.snapshot()

			case StopTournament:
				if h.tour == nil || !h.tour.running {
					msg.Reply <- ErrNoTournament
					break
				}
				h.tour.running = false
				h.tour.current = nil
				h.broadcast(types.EventTournamentUpdate, h.tour.snapshot())
				msg.Reply <- nil

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) createRoom(kind domain.Kind, white, black string, auto map[domain.Color]bool) (*room.Room, error) {
	st, err := engine.NewState(kind, white, black)
	if err != nil {
		return nil, err
	}
	var id string
	for {
		c, err := GenerateCode()
		if err != nil {
			return nil, err
		}
		if h.rooms[c] == nil {
			id = c
			break
		}
		h.log.Debug("collision on code, regenerating")
	}
	r := room.NewRoom(h.ctx, id, st, room.Options{
		Auto:          auto,
		AutoplayDelay: h.opts.AutoplayDelay,
		OnFinish: func(id string, s engine.State) {
			h.Send(GameFinished{ID: id, State: s})
		},
		Logger: h.opts.Logger,
		Rand:   mrand.New(mrand.NewPCG(h.opts.Rand.Uint64(), h.opts.Rand.Uint64())),
	})
	h.rooms[id] = r
	h.log.Info("game created", zap.String("game", id), zap.String("kind", string(kind)),
		zap.String("white", white), zap.String("black", black))
	return r, nil
}

func (h *Hub) onFinished(msg GameFinished) {
	h.record(msg.State)
	h.broadcast(types.EventLeaderboardUpdate, h.leaderboard(msg.State.Kind))

	if t := h.tour; t != nil && t.running && t.current != nil && t.current.gameID == msg.ID {
		t.current.result = string(msg.State.Result)
		t.advance()
		if t.running {
			h.startMatch()
		}
		h.broadcast(types.EventTournamentUpdate, t.snapshot())
	}
}

func (h *Hub) shutdown() {
	for id, r := range h.rooms {
		r.Send(room.Shutdown{})
		delete(h.rooms, id)
	}
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	h.cancel()
}

func (h *Hub) broadcast(event string, data any) {
	env, err := types.NewEnvelope(event, data)
	if err != nil {
		return
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return
	}
	for id, ch := range h.subs {
		select {
		case ch <- frame:
		default:
			close(ch)
			delete(h.subs, id)
		}
	}
}

// GenerateCode returns a six character game id.
func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}
