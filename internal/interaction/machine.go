// Package interaction turns board clicks into move intents for one game session.
package interaction

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/internal/logging"
	"github.com/akashasong-ai/chess.ai/internal/loop"
	"github.com/akashasong-ai/chess.ai/internal/metrics"
)

type Config struct {
	GameID     string
	Kind       domain.Kind
	LocalColor domain.Color
	AckTimeout time.Duration
}

// Machine holds the local selection and the in-flight intent. Every method
// must run on the loop goroutine.
type Machine struct {
	cfg    Config
	sched  loop.Scheduler
	send   func(Intent) error
	notify func(Notice)
	log    *zap.Logger
	m      *metrics.Metrics

	connected bool
	session   *domain.GameSession

	state     State
	selection *Selection
	pending   *Intent
	ackTimer  loop.Timer
	gen       uint64
}

func New(cfg Config, sched loop.Scheduler, send func(Intent) error, notify func(Notice), log *zap.Logger, m *metrics.Metrics) *Machine {
	if notify == nil {
		notify = func(Notice) {}
	}
	return &Machine{
		cfg:    cfg,
		sched:  sched,
		send:   send,
		notify: notify,
		log:    logging.OrNop(log).Named("interaction").With(zap.String("game", cfg.GameID)),
		m:      m,
	}
}

func (m *Machine) State() State { return m.state }

func (m *Machine) Selection() *Selection {
	if m.selection == nil {
		return nil
	}
	return &Selection{Cell: m.selection.Cell, Targets: append([]domain.Cell(nil), m.selection.Targets...)}
}

func (m *Machine) Pending() *Intent {
	if m.pending == nil {
		return nil
	}
	p := *m.pending
	return &p
}

func (m *Machine) LocalColor() domain.Color { return m.cfg.LocalColor }

// CanInteract is the gate for every input: connected, game active and our turn.
func (m *Machine) CanInteract() bool {
	s := m.session
	return m.connected &&
		s != nil &&
		s.Status == domain.StatusActive &&
		m.cfg.LocalColor != domain.ColorNone &&
		s.CurrentTurn == m.cfg.LocalColor
}

// ClickCell handles a chess square click. It reports whether a move intent was sent.
func (m *Machine) ClickCell(c domain.Cell) bool {
	if m.cfg.Kind != domain.KindChess || m.state == StateAwaitingAck || !m.CanInteract() {
		return false
	}
	b, ok := m.session.Chess()
	if !ok || !c.Valid() {
		return false
	}
	if !m.openingAllowed(b) {
		return false
	}

	p, has := b.PieceAt(c)
	own := has && p.Color == m.cfg.LocalColor

	if m.state == StateSelected && m.selection.allows(c) {
		return m.emit(Intent{From: m.selection.Cell, To: c})
	}
	if own {
		m.selection = &Selection{Cell: c, Targets: b.TargetsFrom(c)}
		m.state = StateSelected
		return false
	}
	m.clearSelection()
	return false
}

// openingAllowed enforces that the first move of a game belongs to the starting color.
func (m *Machine) openingAllowed(b *domain.ChessBoard) bool {
	if !b.MovesKnown || b.MoveCount > 0 {
		return true
	}
	start := m.cfg.Kind.StartingColor()
	return m.session.CurrentTurn == start && m.cfg.LocalColor == start
}

// ClickPoint handles a go intersection click. It reports whether a move intent was sent.
func (m *Machine) ClickPoint(x, y int) bool {
	if m.cfg.Kind != domain.KindGo || m.state == StateAwaitingAck || !m.CanInteract() {
		return false
	}
	b, ok := m.session.Go()
	if !ok {
		return false
	}
	stone, in := b.At(x, y)
	if !in || stone != domain.StoneEmpty {
		return false
	}
	return m.emit(Intent{Point: &domain.Point{X: x, Y: y}})
}

func (m *Machine) emit(in Intent) bool {
	in.ID = uuid.NewString()
	in.GameID = m.cfg.GameID
	in.Kind = m.cfg.Kind
	in.Color = m.cfg.LocalColor
	m.clearSelection()

	if err := m.send(in); err != nil {
		m.log.Warn("move intent not sent", zap.String("intent", in.ID), zap.Error(err))
		m.notify(Notice{Kind: NoticeNotSent, Message: "Move could not be sent", IntentID: in.ID, Err: err})
		return false
	}
	m.m.Intent(string(m.cfg.Kind))
	m.log.Debug("move intent sent", zap.String("intent", in.ID), zap.Any("move", in.Payload()))

	m.pending = &in
	m.state = StateAwaitingAck
	m.gen++
	gen := m.gen
	m.ackTimer = m.sched.AfterFunc(m.cfg.AckTimeout, func() {
		if gen != m.gen || m.state != StateAwaitingAck {
			return
		}
		m.ackTimer = nil
		m.resolve(Notice{Kind: NoticeAckTimeout, Message: "Move not confirmed, try again", Err: ErrAckTimeout}, "timeout")
	})
	return true
}

// ApplyUpdate installs an authoritative snapshot. Whatever the update says,
// local selection and the pending intent are gone afterwards.
func (m *Machine) ApplyUpdate(s *domain.GameSession) {
	m.session = s
	m.reset()
}

// SetConnected tracks the connection gate. Losing the connection while a move
// is in flight resolves it immediately.
func (m *Machine) SetConnected(connected bool) {
	m.connected = connected
	if connected {
		return
	}
	if m.state == StateAwaitingAck {
		m.resolve(Notice{Kind: NoticeConnectionLost, Message: "Connection lost, move not confirmed", Err: ErrConnectionLost}, "connection_lost")
		return
	}
	m.reset()
}

// Reject handles an error event from the authority. It reports whether an
// in-flight intent was resolved. An error naming another intent resolves nothing.
func (m *Machine) Reject(intentID, message string) bool {
	if m.state != StateAwaitingAck {
		return false
	}
	if intentID != "" && (m.pending == nil || m.pending.ID != intentID) {
		return false
	}
	if message == "" {
		message = "Move rejected"
	}
	m.resolve(Notice{Kind: NoticeMoveRejected, Message: message, Err: ErrMoveRejected}, "rejected")
	return true
}

// Reset drops all transient state, e.g. when the session is left.
func (m *Machine) Reset() {
	m.reset()
	m.session = nil
}

func (m *Machine) resolve(n Notice, reason string) {
	if m.pending != nil {
		n.IntentID = m.pending.ID
	}
	m.m.Unconfirmed(reason)
	m.log.Info("move intent unresolved", zap.String("reason", reason), zap.String("intent", n.IntentID))
	m.reset()
	m.notify(n)
}

func (m *Machine) reset() {
	m.gen++
	if m.ackTimer != nil {
		m.ackTimer.Stop()
		m.ackTimer = nil
	}
	m.pending = nil
	m.clearSelection()
}

func (m *Machine) clearSelection() {
	m.selection = nil
	m.state = StateIdle
}
