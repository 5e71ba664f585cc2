package stream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WSTransport carries events over a WebSocket. Every text frame is one
// message. There is no reconnect: a read error or close frame ends the
// connection.
type WSTransport struct {
	Dialer           *websocket.Dialer
	HandshakeTimeout time.Duration
}

// NewWSTransport creates a WebSocket transport.
func NewWSTransport() *WSTransport {
	return &WSTransport{
		Dialer:           websocket.DefaultDialer,
		HandshakeTimeout: 10 * time.Second,
	}
}

// wsURL rewrites http(s) URLs to ws(s).
func wsURL(url string) string {
	switch {
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	return url
}

// Run implements Transport.
func (t *WSTransport) Run(ctx context.Context, url string, header http.Header, hooks Hooks) error {
	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	dialCtx := ctx
	if t.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, t.HandshakeTimeout)
		defer cancel()
	}

	conn, resp, err := dialer.DialContext(dialCtx, wsURL(url), header)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if resp != nil {
			return fmt.Errorf("websocket handshake returned status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to dial websocket: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	if hooks.OnOpen != nil {
		hooks.OnOpen()
	}
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("websocket read failed: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}
		if hooks.OnMessage != nil {
			hooks.OnMessage(Message{Data: data})
		}
	}
}
