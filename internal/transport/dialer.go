package transport

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// HTTPDialer opens polling sessions against an authority and upgrades them to websockets.
type HTTPDialer struct {
	Base         string
	Client       *http.Client
	PingInterval time.Duration
}

func NewHTTPDialer(base string, pollWait time.Duration) *HTTPDialer {
	return &HTTPDialer{
		Base: strings.TrimSuffix(base, "/"),
		// long-poll requests are bounded by the server side wait
		Client:       &http.Client{Timeout: pollWait + 10*time.Second},
		PingInterval: pingInterval,
	}
}

func (d *HTTPDialer) Dial(ctx context.Context) (Transport, error) {
	p, err := openPoll(ctx, d.Client, d.Base)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (d *HTTPDialer) Upgrade(ctx context.Context, from Transport) (Transport, error) {
	p, ok := from.(*Poll)
	if !ok {
		return nil, ErrNotUpgradable
	}
	w, err := dialWS(ctx, d.Base, p.SessionID(), d.PingInterval)
	if err != nil {
		return nil, err
	}
	p.handOff()
	return w, nil
}
