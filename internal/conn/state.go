package conn

import (
	"errors"
	"fmt"
)

type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseReconnecting
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseReconnecting:
		return "reconnecting"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

type TransportKind int

const (
	TransportFallback TransportKind = iota
	TransportUpgraded
)

func (k TransportKind) String() string {
	if k == TransportUpgraded {
		return "upgraded"
	}
	return "fallback"
}

func (k TransportKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// State is a read-only snapshot; the Manager owns the live value.
type State struct {
	Phase      Phase         `json:"phase"`
	Transport  TransportKind `json:"transport"`
	RetryCount int           `json:"retryCount"`
}

var (
	ErrNotConnected = errors.New("not connected")
	ErrBackpressure = errors.New("outgoing queue full")
)

// ConnectionError is one failed attempt to establish or keep the push channel.
type ConnectionError struct {
	Attempt int
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection attempt %d: %v", e.Attempt, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
