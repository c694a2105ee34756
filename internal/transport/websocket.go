package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	pingInterval = 20 * time.Second
	pingTimeout  = 5 * time.Second
	closeTimeout = 2 * time.Second
	readLimit    = 1 << 20
)

// WS is the upgraded push transport.
type WS struct {
	c   *websocket.Conn
	sid string

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func dialWS(ctx context.Context, base, sid string, ping time.Duration) (*WS, error) {
	u, err := wsURL(base, sid)
	if err != nil {
		return nil, err
	}
	c, _, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket: %w", err)
	}
	c.SetReadLimit(readLimit)

	wctx, cancel := context.WithCancel(context.Background())
	w := &WS{c: c, sid: sid, ctx: wctx, cancel: cancel}
	if ping > 0 {
		go w.keepAlive(ping)
	}
	return w, nil
}

func wsURL(base, sid string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"sid": {sid}}.Encode()
	return u.String(), nil
}

func (w *WS) keepAlive(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(w.ctx, pingTimeout)
			err := w.c.Ping(ctx)
			cancel()
			if err != nil {
				// a dead peer surfaces through Read
				w.c.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

func (w *WS) Kind() Kind        { return KindWebSocket }
func (w *WS) SessionID() string { return w.sid }

func (w *WS) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, fmt.Errorf("%w: %v", ErrClosed, err)
		}
		if errors.Is(err, context.Canceled) && w.ctx.Err() != nil {
			return nil, ErrClosed
		}
		return nil, err
	}
	return data, nil
}

func (w *WS) Write(ctx context.Context, frame []byte) error {
	return w.c.Write(ctx, websocket.MessageText, frame)
}

func (w *WS) Close() error {
	var err error
	w.once.Do(func() {
		w.cancel()
		err = w.c.Close(websocket.StatusNormalClosure, "bye")
	})
	return err
}
