package conn

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/akashasong-ai/chess.ai/internal/transport"
)

const (
	outboxSize   = 32
	writeTimeout = 5 * time.Second
)

// link is one established push session. It may swap its transport once,
// from polling to websocket, without the Manager seeing a reconnect.
type link struct {
	id     uint64
	outbox chan []byte
	next   chan transport.Transport

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	cur  transport.Transport
	all  []transport.Transport
	once sync.Once
}

func newLink(id uint64, t transport.Transport) *link {
	ctx, cancel := context.WithCancel(context.Background())
	return &link{
		id:     id,
		outbox: make(chan []byte, outboxSize),
		next:   make(chan transport.Transport, 1),
		ctx:    ctx,
		cancel: cancel,
		cur:    t,
		all:    []transport.Transport{t},
	}
}

func (l *link) current() transport.Transport {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cur
}

func (l *link) start(onFrame func([]byte), onErr func(error)) {
	go l.readLoop(onFrame, onErr)
	go l.writeLoop(onErr)
}

func (l *link) readLoop(onFrame func([]byte), onErr func(error)) {
	t := l.current()
	for {
		data, err := t.Read(l.ctx)
		if err == nil {
			onFrame(data)
			continue
		}
		if l.ctx.Err() != nil {
			return
		}
		if errors.Is(err, transport.ErrUpgraded) {
			select {
			case nt := <-l.next:
				if nt != nil {
					t = nt
					continue
				}
			case <-l.ctx.Done():
				return
			}
		}
		onErr(err)
		return
	}
}

func (l *link) writeLoop(onErr func(error)) {
	for {
		select {
		case <-l.ctx.Done():
			return
		case frame := <-l.outbox:
			ctx, cancel := context.WithTimeout(l.ctx, writeTimeout)
			err := l.current().Write(ctx, frame)
			cancel()
			if err != nil {
				if l.ctx.Err() == nil {
					onErr(err)
				}
				return
			}
		}
	}
}

// enqueue never blocks.
func (l *link) enqueue(frame []byte) bool {
	select {
	case l.outbox <- frame:
		return true
	default:
		return false
	}
}

func (l *link) upgraded(t transport.Transport) {
	l.mu.Lock()
	l.cur = t
	l.all = append(l.all, t)
	l.mu.Unlock()
	select {
	case l.next <- t:
	default:
	}
}

// upgradeFailed unblocks a reader waiting on a handoff that will never come.
func (l *link) upgradeFailed() {
	select {
	case l.next <- nil:
	default:
	}
}

func (l *link) close() {
	l.once.Do(func() {
		l.cancel()
		l.mu.Lock()
		all := l.all
		l.mu.Unlock()
		for _, t := range all {
			_ = t.Close()
		}
	})
}
