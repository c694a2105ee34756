package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
)

type pollOpen struct {
	SID string `json:"sid"`
}

// Poll is the fallback long-polling transport.
type Poll struct {
	client *http.Client
	base   string
	sid    string

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	pending [][]byte

	handedOff atomic.Bool
	closed    atomic.Bool
}

func openPoll(ctx context.Context, client *http.Client, base string) (*Poll, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/poll", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open poll session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("open poll session: unexpected status %d", resp.StatusCode)
	}
	var open pollOpen
	if err := json.NewDecoder(resp.Body).Decode(&open); err != nil {
		return nil, fmt.Errorf("open poll session: %w", err)
	}
	if open.SID == "" {
		return nil, fmt.Errorf("open poll session: empty sid")
	}

	pctx, cancel := context.WithCancel(context.Background())
	return &Poll{client: client, base: base, sid: open.SID, ctx: pctx, cancel: cancel}, nil
}

func (p *Poll) Kind() Kind        { return KindPolling }
func (p *Poll) SessionID() string { return p.sid }

func (p *Poll) url() string { return p.base + "/poll/" + p.sid }

// Read returns the next frame, issuing long-poll requests as needed.
func (p *Poll) Read(ctx context.Context) ([]byte, error) {
	for {
		p.mu.Lock()
		if len(p.pending) > 0 {
			f := p.pending[0]
			p.pending = p.pending[1:]
			p.mu.Unlock()
			return f, nil
		}
		p.mu.Unlock()

		frames, err := p.poll(ctx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.pending = append(p.pending, frames...)
		p.mu.Unlock()
	}
}

func (p *Poll) poll(ctx context.Context) ([][]byte, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}
	ctx, cancel := mergeCancel(ctx, p.ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if p.closed.Load() {
			return nil, ErrClosed
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusGone:
		return nil, ErrUpgraded
	case http.StatusNotFound:
		return nil, fmt.Errorf("poll session %s: %w", p.sid, ErrClosed)
	default:
		return nil, fmt.Errorf("poll session %s: unexpected status %d", p.sid, resp.StatusCode)
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("poll session %s: %w", p.sid, err)
	}
	out := make([][]byte, len(raw))
	for i, r := range raw {
		out[i] = []byte(r)
	}
	return out, nil
}

func (p *Poll) Write(ctx context.Context, frame []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url(), bytes.NewReader(frame))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("poll send %s: unexpected status %d", p.sid, resp.StatusCode)
	}
	return nil
}

// handOff marks the session as owned by another transport; Close then
// leaves the server side session open.
func (p *Poll) handOff() { p.handedOff.Store(true) }

func (p *Poll) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.cancel()
	if p.handedOff.Load() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.url(), nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// mergeCancel returns a context cancelled when either parent is.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
