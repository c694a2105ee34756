// Package transport carries envelope frames between the client and the authority.
// The polling transport is always dialed first; the websocket transport only
// ever replaces an established polling session.
package transport

import (
	"context"
	"errors"
)

type Kind int

const (
	KindPolling Kind = iota
	KindWebSocket
)

func (k Kind) String() string {
	switch k {
	case KindPolling:
		return "polling"
	case KindWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

var (
	ErrClosed        = errors.New("transport closed")
	// ErrUpgraded is returned by a polling Read once the server moved the
	// session to another transport. No frames are lost.
	ErrUpgraded      = errors.New("session upgraded")
	ErrNotUpgradable = errors.New("transport cannot be upgraded")
)

// Transport moves whole frames. Read and Write may be used from different goroutines.
type Transport interface {
	Kind() Kind
	SessionID() string
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, frame []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
	Upgrade(ctx context.Context, from Transport) (Transport, error)
}
