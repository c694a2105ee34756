// Package transporttest provides in-memory transports and a scripted dialer.
package transporttest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/akashasong-ai/chess.ai/internal/transport"
	"github.com/akashasong-ai/chess.ai/pkg/types"
)

// Transport is driven by the test: Push feeds the client, Sent receives what it wrote.
type Transport struct {
	kind transport.Kind
	sid  string

	in     chan []byte
	errs   chan error
	Sent   chan []byte
	closed chan struct{}
	once   sync.Once
}

func NewTransport(kind transport.Kind, sid string) *Transport {
	return &Transport{
		kind:   kind,
		sid:    sid,
		in:     make(chan []byte, 64),
		errs:   make(chan error, 1),
		Sent:   make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (t *Transport) Kind() transport.Kind { return t.kind }
func (t *Transport) SessionID() string    { return t.sid }

func (t *Transport) PushRaw(frame []byte) { t.in <- frame }

func (t *Transport) Push(event string, data any) {
	env, err := types.NewEnvelope(event, data)
	if err != nil {
		panic(err)
	}
	b, _ := json.Marshal(env)
	t.in <- b
}

// Fail makes the pending or next Read return err.
func (t *Transport) Fail(err error) {
	select {
	case t.errs <- err:
	default:
	}
}

func (t *Transport) Read(ctx context.Context) ([]byte, error) {
	select {
	case f := <-t.in:
		return f, nil
	case err := <-t.errs:
		return nil, err
	case <-t.closed:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Transport) Write(ctx context.Context, frame []byte) error {
	select {
	case <-t.closed:
		return transport.ErrClosed
	default:
	}
	select {
	case t.Sent <- frame:
		return nil
	case <-t.closed:
		return transport.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

func (t *Transport) Closed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// NextSent waits for the next frame the client wrote.
func (t *Transport) NextSent(tb testing.TB, within time.Duration) types.Envelope {
	tb.Helper()
	select {
	case f := <-t.Sent:
		var env types.Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			tb.Fatalf("client wrote a non-envelope frame %q: %v", f, err)
		}
		return env
	case <-time.After(within):
		tb.Fatalf("timed out waiting for an outgoing frame")
		return types.Envelope{}
	}
}

func (t *Transport) NoSent(tb testing.TB, within time.Duration) {
	tb.Helper()
	select {
	case f := <-t.Sent:
		tb.Fatalf("expected no outgoing frame within %v, got %s", within, f)
	case <-time.After(within):
	}
}

var ErrScripted = errors.New("scripted dial failure")

// Dialer hands out scripted results; with an empty script every Dial succeeds.
type Dialer struct {
	mu         sync.Mutex
	script     []error
	attempts   int
	upgradeErr error

	Dialed   chan *Transport
	Upgraded chan *Transport
}

func NewDialer() *Dialer {
	return &Dialer{
		Dialed:     make(chan *Transport, 16),
		Upgraded:   make(chan *Transport, 16),
		upgradeErr: transport.ErrNotUpgradable,
	}
}

// FailNext queues dial outcomes: a nil entry succeeds.
func (d *Dialer) FailNext(errs ...error) {
	d.mu.Lock()
	d.script = append(d.script, errs...)
	d.mu.Unlock()
}

// AllowUpgrade makes Upgrade succeed (err == nil) or fail with err.
func (d *Dialer) AllowUpgrade(err error) {
	d.mu.Lock()
	d.upgradeErr = err
	d.mu.Unlock()
}

func (d *Dialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func (d *Dialer) Dial(ctx context.Context) (transport.Transport, error) {
	d.mu.Lock()
	d.attempts++
	n := d.attempts
	var err error
	if len(d.script) > 0 {
		err = d.script[0]
		d.script = d.script[1:]
	}
	d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	t := NewTransport(transport.KindPolling, "sid-"+string(rune('a'+n%26)))
	d.Dialed <- t
	return t, nil
}

func (d *Dialer) Upgrade(ctx context.Context, from transport.Transport) (transport.Transport, error) {
	d.mu.Lock()
	err := d.upgradeErr
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	t := NewTransport(transport.KindWebSocket, from.SessionID())
	if ft, ok := from.(*Transport); ok {
		ft.Fail(transport.ErrUpgraded)
	}
	d.Upgraded <- t
	return t, nil
}

// NextDialed waits for the next successfully dialed transport.
func (d *Dialer) NextDialed(tb testing.TB, within time.Duration) *Transport {
	tb.Helper()
	select {
	case t := <-d.Dialed:
		return t
	case <-time.After(within):
		tb.Fatalf("timed out waiting for a dial")
		return nil
	}
}
