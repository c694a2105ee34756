// Package room runs one game as an actor: it owns the engine state, applies
// moves in arrival order and pushes every new version to its clients.
package room

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/akashasong-ai/chess.ai/internal/authority/engine"
	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/internal/logging"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

type Msg interface{ isRoomMsg() }

type Join struct {
	ClientID string
	Outbox   chan []byte // encoded envelopes for this client
}

func (Join) isRoomMsg() {}

type Leave struct{ ClientID string }

func (Leave) isRoomMsg() {}

// FromClient carries a move. An empty Cmd.Color means the side to move.
type FromClient struct {
	ClientID string
	IntentID string
	Cmd      engine.Command
}

func (FromClient) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type autoplayFired struct{ gen uint64 }

func (autoplayFired) isRoomMsg() {}

type View struct {
	Version    int
	NumClients int
	State      engine.State
	Snapshot   types.GameSnapshot
}

type Options struct {
	// Auto lists the colors played by the random mover.
	Auto          map[domain.Color]bool
	AutoplayDelay time.Duration
	// OnFinish runs on the room goroutine once the game completes.
	OnFinish func(id string, s engine.State)
	Logger   *zap.Logger
	Rand     *rand.Rand
}

type Room struct {
	id      string
	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]chan []byte
	opts    Options
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	timer    *time.Timer
	timerGen uint64
}

func NewRoom(parent context.Context, id string, initial engine.State, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if opts.AutoplayDelay <= 0 {
		opts.AutoplayDelay = time.Second
	}

	r := &Room{
		id:      id,
		inbox:   make(chan Msg, 64),
		state:   initial,
		clients: make(map[string]chan []byte),
		opts:    opts,
		log:     logging.OrNop(opts.Logger).Named("room").With(zap.String("game", id)),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

// Inbox exposes the raw channel for tests; Send is the non-blocking-on-shutdown way in.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Send queues m and reports false once the room has stopped.
func (r *Room) Send(m Msg) bool {
	select {
	case <-r.ctx.Done():
		return false
	default:
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	}
}

func (r *Room) Done() <-chan struct{} { return r.done }

// State asks the room for a View, or false if it has stopped.
func (r *Room) State() (View, bool) {
	reply := make(chan View, 1)
	if !r.Send(GetState{Reply: reply}) {
		return View{}, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-r.done:
		return View{}, false
	}
}

func (r *Room) loop() {
	defer close(r.done)
	r.armAutoplay()
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				// replace a stale registration of the same client
				if old, ok := r.clients[msg.ClientID]; ok && old != msg.Outbox {
					close(old)
				}
				r.clients[msg.ClientID] = msg.Outbox
				r.sendTo(msg.ClientID, r.snapshotFrame())

			case Leave:
				if ch, ok := r.clients[msg.ClientID]; ok {
					close(ch)
					delete(r.clients, msg.ClientID)
				}

			case FromClient:
				cmd := msg.Cmd
				if cmd.Color == domain.ColorNone {
					cmd.Color = r.state.Turn
				}
				if err := r.apply(cmd); err != nil {
					r.log.Debug("move rejected", zap.String("client", msg.ClientID), zap.Error(err))
					r.sendTo(msg.ClientID, errorFrame(err.Error(), msg.IntentID))
				}

			case autoplayFired:
				if msg.gen != r.timerGen {
					break
				}
				r.timer = nil
				cmd, ok := engine.RandomMove(r.state, r.opts.Rand)
				if !ok {
					break
				}
				if err := r.apply(cmd); err != nil {
					r.log.Warn("autoplay move rejected", zap.Error(err))
				}

			case GetState:
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.clients),
					State:      r.state,
					Snapshot:   engine.Snapshot(r.id, r.version, r.state),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) apply(cmd engine.Command) error {
	_, next, err := engine.Apply(r.state, cmd)
	if err != nil {
		return err
	}
	r.state = next
	r.version++
	r.broadcast(r.snapshotFrame())

	if r.state.Finished() {
		r.stopTimer()
		r.log.Info("game finished", zap.String("result", string(r.state.Result)))
		if r.opts.OnFinish != nil {
			r.opts.OnFinish(r.id, r.state)
		}
		return nil
	}
	r.armAutoplay()
	return nil
}

// armAutoplay schedules a random move when the side to move is automated.
// Bumping the generation invalidates any timer that already fired.
func (r *Room) armAutoplay() {
	r.stopTimer()
	if r.state.Finished() || !r.opts.Auto[r.state.Turn] {
		return
	}
	gen := r.timerGen
	r.timer = time.AfterFunc(r.opts.AutoplayDelay, func() {
		select {
		case r.inbox <- autoplayFired{gen: gen}:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) stopTimer() {
	r.timerGen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Room) shutdown() {
	r.stopTimer()
	for id, ch := range r.clients {
		close(ch) // no more frames for this client
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) snapshotFrame() []byte {
	return encode(types.EventGameUpdate, engine.Snapshot(r.id, r.version, r.state))
}

func (r *Room) sendTo(id string, frame []byte) {
	ch, ok := r.clients[id]
	if !ok || frame == nil {
		return
	}
	select {
	case ch <- frame:
	default:
		close(ch)
		delete(r.clients, id)
	}
}

func (r *Room) broadcast(frame []byte) {
	for id, ch := range r.clients {
		select {
		case ch <- frame:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(r.clients, id)
		}
	}
}

func errorFrame(message, intentID string) []byte {
	return encode(types.EventError, types.ErrorMessage{Message: message, IntentID: intentID})
}

func encode(event string, data any) []byte {
	env, err := types.NewEnvelope(event, data)
	if err != nil {
		return nil
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil
	}
	return b
}
