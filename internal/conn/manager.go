// Package conn owns the push channel to the authority: transport negotiation,
// reconnection with backoff and phase reporting.
package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akashasong-ai/chess.ai/internal/backoff"
	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/internal/logging"
	"github.com/akashasong-ai/chess.ai/internal/loop"
	"github.com/akashasong-ai/chess.ai/internal/metrics"
	"github.com/akashasong-ai/chess.ai/internal/transport"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

const (
	dialTimeout    = 10 * time.Second
	upgradeTimeout = 10 * time.Second
)

type Handler func(data json.RawMessage)

type StatusHandler func(State)

type Options struct {
	Policy         backoff.Policy
	DisableUpgrade bool
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
}

type sub[F any] struct {
	fn     F
	active bool
}

// Manager is driven entirely from the loop goroutine. None of its methods are
// safe to call from anywhere else.
type Manager struct {
	exec   loop.Executor
	sched  loop.Scheduler
	dialer transport.Dialer
	policy backoff.Policy
	log    *zap.Logger
	m      *metrics.Metrics

	upgrade bool

	state State
	epoch uint64
	link  *link
	timer loop.Timer
	abort context.CancelFunc

	handlers map[string][]*sub[Handler]
	status   []*sub[StatusHandler]
	protoErr []*sub[func(*domain.ProtocolError)]
}

func NewManager(exec loop.Executor, sched loop.Scheduler, d transport.Dialer, opts Options) *Manager {
	return &Manager{
		exec:     exec,
		sched:    sched,
		dialer:   d,
		policy:   opts.Policy,
		log:      logging.OrNop(opts.Logger).Named("conn"),
		m:        opts.Metrics,
		upgrade:  !opts.DisableUpgrade,
		handlers: make(map[string][]*sub[Handler]),
	}
}

func (m *Manager) State() State { return m.state }

// Connect starts a fresh connection from disconnected or failed. In any
// other phase a connection is already underway and Connect does nothing.
func (m *Manager) Connect() {
	switch m.state.Phase {
	case PhaseDisconnected, PhaseFailed:
	default:
		return
	}
	m.state.RetryCount = 0
	m.dial()
}

// Disconnect tears everything down. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.epoch++
	m.stopTimer()
	if m.abort != nil {
		m.abort()
		m.abort = nil
	}
	m.dropLink()
	m.state.RetryCount = 0
	m.state.Transport = TransportFallback
	m.setPhase(PhaseDisconnected)
}

// Send queues an envelope on the active link.
func (m *Manager) Send(event string, payload any) error {
	if m.state.Phase != PhaseConnected || m.link == nil {
		return ErrNotConnected
	}
	env, err := types.NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if !m.link.enqueue(frame) {
		m.log.Warn("outgoing queue full", zap.String("event", event))
		return ErrBackpressure
	}
	return nil
}

// Subscribe registers h for event. Handlers run in subscription order and a
// handler removed during dispatch does not run afterwards.
func (m *Manager) Subscribe(event string, h Handler) func() {
	s := &sub[Handler]{fn: h, active: true}
	m.handlers[event] = append(m.handlers[event], s)
	return func() {
		if !s.active {
			return
		}
		s.active = false
		m.handlers[event] = removeSub(m.handlers[event], s)
	}
}

func (m *Manager) ObserveStatus(h StatusHandler) func() {
	s := &sub[StatusHandler]{fn: h, active: true}
	m.status = append(m.status, s)
	return func() {
		s.active = false
		m.status = removeSub(m.status, s)
	}
}

func (m *Manager) OnProtocolError(h func(*domain.ProtocolError)) func() {
	s := &sub[func(*domain.ProtocolError)]{fn: h, active: true}
	m.protoErr = append(m.protoErr, s)
	return func() {
		s.active = false
		m.protoErr = removeSub(m.protoErr, s)
	}
}

func removeSub[F any](list []*sub[F], s *sub[F]) []*sub[F] {
	out := list[:0:0]
	for _, x := range list {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}

func (m *Manager) setPhase(p Phase) {
	if m.state.Phase == p {
		return
	}
	prev := m.state.Phase
	m.state.Phase = p
	m.m.Phase(p.String())
	m.log.Info("connection phase",
		zap.Stringer("from", prev),
		zap.Stringer("to", p),
		zap.Int("retry", m.state.RetryCount),
		zap.Stringer("transport", m.state.Transport))

	snap := m.state
	for _, s := range append([]*sub[StatusHandler](nil), m.status...) {
		if s.active {
			s.fn(snap)
		}
	}
}

func (m *Manager) dial() {
	m.epoch++
	epoch := m.epoch
	m.state.Transport = TransportFallback
	m.setPhase(PhaseConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	m.abort = cancel
	go func() {
		t, err := m.dialer.Dial(ctx)
		if !m.exec.Post(func() { m.onDial(epoch, t, err) }) && t != nil {
			_ = t.Close()
		}
	}()
}

func (m *Manager) onDial(epoch uint64, t transport.Transport, err error) {
	if epoch != m.epoch {
		if t != nil {
			_ = t.Close()
		}
		return
	}
	if m.abort != nil {
		m.abort()
		m.abort = nil
	}
	if err != nil {
		m.fail(err)
		return
	}

	l := newLink(epoch, t)
	m.link = l
	l.start(
		func(data []byte) { m.exec.Post(func() { m.onFrame(l.id, data) }) },
		func(err error) { m.exec.Post(func() { m.onLinkError(l.id, err) }) },
	)
	m.state.RetryCount = 0
	m.setPhase(PhaseConnected)

	if m.upgrade && t.Kind() == transport.KindPolling {
		m.tryUpgrade(l, t)
	}
}

func (m *Manager) tryUpgrade(l *link, from transport.Transport) {
	go func() {
		ctx, cancel := context.WithTimeout(l.ctx, upgradeTimeout)
		defer cancel()
		t, err := m.dialer.Upgrade(ctx, from)
		if !m.exec.Post(func() { m.onUpgrade(l, t, err) }) && t != nil {
			_ = t.Close()
		}
	}()
}

func (m *Manager) onUpgrade(l *link, t transport.Transport, err error) {
	if m.link != l {
		if t != nil {
			_ = t.Close()
		}
		return
	}
	if err != nil {
		// the polling session keeps working
		m.m.UpgradeFailed()
		m.log.Warn("transport upgrade failed, staying on fallback", zap.Error(err))
		l.upgradeFailed()
		return
	}
	l.upgraded(t)
	m.state.Transport = TransportUpgraded
	m.log.Info("transport upgraded", zap.Stringer("kind", t.Kind()))
}

func (m *Manager) onLinkError(id uint64, err error) {
	if m.link == nil || m.link.id != id {
		return
	}
	m.fail(err)
}

// fail handles a transport error in connecting or connected.
func (m *Manager) fail(err error) {
	m.dropLink()
	m.state.RetryCount++
	ce := &ConnectionError{Attempt: m.state.RetryCount, Err: err}

	if m.policy.Exhausted(m.state.RetryCount) {
		m.log.Error("giving up on connection", zap.Error(ce))
		m.setPhase(PhaseFailed)
		return
	}

	delay := m.policy.Delay(m.state.RetryCount)
	m.log.Warn("connection lost, retrying", zap.Error(ce), zap.Duration("delay", delay))
	m.m.Reconnect(delay.Seconds())
	m.setPhase(PhaseReconnecting)

	m.stopTimer()
	epoch := m.epoch
	m.timer = m.sched.AfterFunc(delay, func() {
		m.timer = nil
		if epoch != m.epoch || m.state.Phase != PhaseReconnecting {
			return
		}
		m.dial()
	})
}

func (m *Manager) onFrame(id uint64, data []byte) {
	if m.link == nil || m.link.id != id {
		return
	}
	var env types.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		m.protocolError(&domain.ProtocolError{Event: "envelope", Err: fmt.Errorf("%w: %v", domain.ErrMalformed, err)})
		return
	}
	if env.Event == "" {
		m.protocolError(&domain.ProtocolError{Event: "envelope", Err: fmt.Errorf("%w: missing event name", domain.ErrMalformed)})
		return
	}

	subs := m.handlers[env.Event]
	if len(subs) == 0 {
		m.log.Debug("unrouted event", zap.String("event", env.Event))
		return
	}
	for _, s := range append([]*sub[Handler](nil), subs...) {
		if s.active {
			s.fn(env.Data)
		}
	}
}

// ReportProtocolError lets decoders above the Manager share its logging and hooks.
func (m *Manager) ReportProtocolError(perr *domain.ProtocolError) {
	m.protocolError(perr)
}

func (m *Manager) protocolError(perr *domain.ProtocolError) {
	m.m.Protocol(perr.Event)
	lvl := m.log.Warn
	if !perr.Fatal() {
		lvl = m.log.Info
	}
	lvl("protocol error", zap.Error(perr), zap.Strings("fields", perr.Fields))
	for _, s := range append([]*sub[func(*domain.ProtocolError)](nil), m.protoErr...) {
		if s.active {
			s.fn(perr)
		}
	}
}

func (m *Manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) dropLink() {
	if m.link != nil {
		m.link.close()
		m.link = nil
	}
}
