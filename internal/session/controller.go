// Package session is the client composition root. A Controller owns one push
// connection and at most one joined game, and serializes all of it on a loop.
package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/akashasong-ai/chess.ai/internal/backoff"
	"github.com/akashasong-ai/chess.ai/internal/config"
	"github.com/akashasong-ai/chess.ai/internal/conn"
	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/internal/eventsync"
	"github.com/akashasong-ai/chess.ai/internal/interaction"
	"github.com/akashasong-ai/chess.ai/internal/logging"
	"github.com/akashasong-ai/chess.ai/internal/loop"
	"github.com/akashasong-ai/chess.ai/internal/metrics"
	"github.com/akashasong-ai/chess.ai/internal/transport"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

var (
	ErrNotJoined = errors.New("no game joined")
	ErrClosed    = errors.New("session closed")
)

type options struct {
	dialer    transport.Dialer
	scheduler func(*loop.Loop) loop.Scheduler
	log       *zap.Logger
	metrics   *metrics.Metrics
}

type Option func(*options)

func WithDialer(d transport.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithScheduler replaces the loop's own timers, e.g. with a manual scheduler in tests.
func WithScheduler(fn func(*loop.Loop) loop.Scheduler) Option {
	return func(o *options) { o.scheduler = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

type Controller struct {
	cfg   config.Config
	lp    *loop.Loop
	sched loop.Scheduler
	mgr   *conn.Manager
	sync  *eventsync.Synchronizer
	log   *zap.Logger
	met   *metrics.Metrics
	cron  *cron.Cron

	// loop owned
	machine     *interaction.Machine
	notice      *interaction.Notice
	noticeTimer loop.Timer
	noticeGen   uint64
	observers   []*observer
	stops       []func()
	started     bool
	closed      bool
}

type observer struct {
	fn     func(View)
	active bool
}

func New(cfg config.Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("session config: %w", err)
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = transport.NewHTTPDialer(cfg.AuthorityURL, cfg.PollWait)
	}

	c := &Controller{
		cfg: cfg,
		lp:  loop.New(context.Background(), 256),
		log: logging.OrNop(o.log).Named("session"),
		met: o.metrics,
	}
	c.sched = c.lp
	if o.scheduler != nil {
		c.sched = o.scheduler(c.lp)
	}

	var cronSpec cron.Schedule
	if cfg.LeaderboardRefresh != "" {
		s, err := cron.ParseStandard(cfg.LeaderboardRefresh)
		if err != nil {
			c.lp.Close()
			return nil, fmt.Errorf("leaderboard refresh %q: %w", cfg.LeaderboardRefresh, err)
		}
		cronSpec = s
	}

	err := c.lp.Do(func() {
		c.mgr = conn.NewManager(c.lp, c.sched, o.dialer, conn.Options{
			Policy: backoff.Policy{
				Base:       cfg.ReconnectBaseDelay,
				Cap:        cfg.ReconnectMaxDelay,
				MaxRetries: cfg.ReconnectRetries,
			},
			DisableUpgrade: cfg.DisableUpgrade,
			Logger:         o.log,
			Metrics:        o.metrics,
		})
		// the synchronizer observes status first so a rejoin precedes our view
		c.sync = eventsync.New(c.mgr, o.log)
		c.stops = append(c.stops,
			c.mgr.ObserveStatus(c.onStatus),
			c.sync.OnRejection(c.onRejection),
			c.sync.OnTournamentUpdate(func(*domain.TournamentStatus) { c.publish() }),
		)
	})
	if err != nil {
		return nil, err
	}

	if cronSpec != nil {
		c.cron = cron.New()
		c.cron.Schedule(cronSpec, cron.FuncJob(func() {
			c.lp.Post(func() {
				if c.closed {
					return
				}
				if err := c.sync.RequestLeaderboard(); err != nil {
					c.log.Warn("scheduled leaderboard refresh failed", zap.Error(err))
				}
			})
		}))
	}
	return c, nil
}

// Start opens the push connection and begins watching the leaderboard.
func (c *Controller) Start() error {
	first := false
	err := c.do(func() {
		if !c.started {
			c.started, first = true, true
			c.stops = append(c.stops, c.sync.OnLeaderboardUpdate(func(*domain.Leaderboard) { c.publish() }))
		}
		c.mgr.Connect()
	})
	if first && c.cron != nil {
		c.cron.Start()
	}
	return err
}

// Reconnect retries after the connection gave up or was closed.
func (c *Controller) Reconnect() error {
	return c.do(c.mgr.Connect)
}

// Join attaches to gameID. localColor comes from the start-game response; ColorNone joins as a spectator.
func (c *Controller) Join(gameID string, kind domain.Kind, localColor domain.Color) error {
	if gameID == "" {
		return fmt.Errorf("join: empty game id")
	}
	if _, ok := domain.ParseKind(string(kind)); !ok {
		return fmt.Errorf("join: unknown game kind %q", kind)
	}
	var err error
	derr := c.do(func() {
		c.leave()
		c.machine = interaction.New(interaction.Config{
			GameID:     gameID,
			Kind:       kind,
			LocalColor: localColor,
			AckTimeout: c.cfg.AckTimeout,
		}, c.sched, c.sendIntent, c.showNotice, c.log, c.met)
		c.machine.SetConnected(c.mgr.State().Phase == conn.PhaseConnected)

		if err = c.sync.Attach(gameID, kind); err != nil {
			c.sync.Detach()
			c.machine = nil
			return
		}
		c.sync.OnGameUpdate(c.onGameUpdate)
		c.log.Info("joined game", zap.String("game", gameID), zap.String("kind", string(kind)), zap.String("color", string(localColor)))
		c.publish()
	})
	if derr != nil {
		return derr
	}
	return err
}

func (c *Controller) Leave() error {
	var err error
	derr := c.do(func() {
		if c.machine == nil {
			err = ErrNotJoined
			return
		}
		c.leave()
		c.publish()
	})
	if derr != nil {
		return derr
	}
	return err
}

// ClickCell feeds a chess square click. It reports whether a move was sent.
func (c *Controller) ClickCell(cell domain.Cell) (bool, error) {
	return c.input(func(m *interaction.Machine) bool { return m.ClickCell(cell) })
}

// ClickPoint feeds a go intersection click. It reports whether a move was sent.
func (c *Controller) ClickPoint(x, y int) (bool, error) {
	return c.input(func(m *interaction.Machine) bool { return m.ClickPoint(x, y) })
}

func (c *Controller) input(fn func(*interaction.Machine) bool) (bool, error) {
	var sent bool
	var err error
	derr := c.do(func() {
		if c.machine == nil {
			err = ErrNotJoined
			return
		}
		sent = fn(c.machine)
		c.publish()
	})
	if derr != nil {
		return false, derr
	}
	return sent, err
}

func (c *Controller) RequestLeaderboard() error {
	var err error
	if derr := c.do(func() { err = c.sync.RequestLeaderboard() }); derr != nil {
		return derr
	}
	return err
}

func (c *Controller) View() (View, error) {
	var v View
	err := c.do(func() { v = c.view() })
	return v, err
}

// Observe registers fn for every View change and calls it once with the
// current View. fn runs on the loop and must not call back into the Controller.
func (c *Controller) Observe(fn func(View)) (func(), error) {
	o := &observer{fn: fn, active: true}
	err := c.do(func() {
		c.observers = append(c.observers, o)
		fn(c.view())
	})
	if err != nil {
		return func() {}, err
	}
	return func() {
		c.lp.Post(func() {
			o.active = false
			for i, x := range c.observers {
				if x == o {
					c.observers = append(c.observers[:i:i], c.observers[i+1:]...)
					break
				}
			}
		})
	}, nil
}

// Close leaves the game, disconnects and stops the loop. It is safe to call twice.
func (c *Controller) Close() {
	if c.cron != nil {
		<-c.cron.Stop().Done()
	}
	_ = c.lp.Do(func() {
		if c.closed {
			return
		}
		c.closed = true
		c.leave()
		c.stopNotice()
		for _, stop := range c.stops {
			stop()
		}
		c.stops = nil
		c.sync.Close()
		c.mgr.Disconnect()
		c.observers = nil
	})
	c.lp.Close()
}

func (c *Controller) do(fn func()) error {
	var closed bool
	err := c.lp.Do(func() {
		if c.closed {
			closed = true
			return
		}
		fn()
	})
	if errors.Is(err, loop.ErrClosed) || closed {
		return ErrClosed
	}
	return err
}

func (c *Controller) leave() {
	if c.machine == nil {
		return
	}
	c.sync.Detach()
	c.machine.Reset()
	c.machine = nil
	c.stopNotice()
	c.notice = nil
}

func (c *Controller) sendIntent(in interaction.Intent) error {
	return c.mgr.Send(types.EventMove, in.Payload())
}

func (c *Controller) onStatus(st conn.State) {
	if c.machine != nil {
		c.machine.SetConnected(st.Phase == conn.PhaseConnected)
	}
	c.publish()
}

func (c *Controller) onGameUpdate(s *domain.GameSession) {
	if c.machine == nil {
		return
	}
	c.machine.ApplyUpdate(s)
	c.publish()
}

func (c *Controller) onRejection(e types.ErrorMessage) {
	if c.machine != nil && c.machine.Reject(e.IntentID, e.Message) {
		c.publish()
		return
	}
	c.log.Warn("authority error", zap.String("message", e.Message), zap.String("intent", e.IntentID))
	c.showNotice(interaction.Notice{Kind: interaction.NoticeServerError, Message: e.Message})
}

// showNotice replaces the current notice and schedules its expiry.
func (c *Controller) showNotice(n interaction.Notice) {
	c.stopNotice()
	c.notice = &n
	c.noticeGen++
	gen := c.noticeGen
	c.noticeTimer = c.sched.AfterFunc(c.cfg.NoticeTTL, func() {
		if gen != c.noticeGen {
			return
		}
		c.noticeTimer = nil
		c.notice = nil
		c.publish()
	})
	c.publish()
}

func (c *Controller) stopNotice() {
	c.noticeGen++
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
		c.noticeTimer = nil
	}
}

func (c *Controller) publish() {
	if len(c.observers) == 0 {
		return
	}
	v := c.view()
	for _, o := range append([]*observer(nil), c.observers...) {
		if o.active {
			o.fn(v)
		}
	}
}

func (c *Controller) view() View {
	v := View{
		Connection:  c.mgr.State(),
		Leaderboard: c.sync.Leaderboard().Entries(),
		Tournament:  c.sync.Tournament(),
	}
	if c.notice != nil {
		n := *c.notice
		v.Notice = &n
	}
	if m := c.machine; m != nil {
		v.GameID, v.Kind, _ = c.sync.Attached()
		v.LocalColor = m.LocalColor()
		v.CanInteract = m.CanInteract()
		v.Interaction = m.State()
		v.Selection = m.Selection()
		v.Pending = m.Pending()
		v.Game = gameView(c.sync.Session())
	}
	return v
}
