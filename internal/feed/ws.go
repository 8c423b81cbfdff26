package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/websocket"
)

// WSTransport connects to the server's push channel over a WebSocket
// carrying the same JSON frames as the event stream. Useful behind
// reverse proxies that buffer text/event-stream responses.
type WSTransport struct {
	baseURL     string
	readTimeout time.Duration
}

// NewWSTransport creates a WebSocket transport for the server at baseURL.
func NewWSTransport(baseURL string, readTimeout time.Duration) *WSTransport {
	return &WSTransport{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		readTimeout: readTimeout,
	}
}

// Name implements [Transport].
func (t *WSTransport) Name() string {
	return "websocket"
}

// Dial implements [Transport].
func (t *WSTransport) Dial(ctx context.Context) (Session, error) {
	url := wsURL(t.baseURL) + "/ws?type=pc"

	sessCtx, cancel := context.WithCancel(ctx)
	conn, _, err := websocket.Dial(sessCtx, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("feed: websocket dial: %w", err)
	}

	return &wsSession{
		conn:        conn,
		ctx:         sessCtx,
		cancel:      cancel,
		readTimeout: t.readTimeout,
	}, nil
}

// wsURL rewrites an http(s) base URL to its ws(s) equivalent.
func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}

type wsSession struct {
	conn        *websocket.Conn
	ctx         context.Context
	cancel      context.CancelFunc
	readTimeout time.Duration
}

// Receive implements [Session].
func (s *wsSession) Receive() (Message, error) {
	for {
		data, err := s.read()
		if err != nil {
			return Message{}, fmt.Errorf("feed: websocket read: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("feed: dropping malformed frame", "data", string(data), "err", err)
			continue
		}
		if msg.Type == "heartbeat" {
			continue
		}
		return msg, nil
	}
}

// read performs a single frame read bounded by the idle timeout.
func (s *wsSession) read() ([]byte, error) {
	readCtx := s.ctx
	if s.readTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(s.ctx, s.readTimeout)
		defer cancel()
	}
	_, data, err := s.conn.Read(readCtx)
	return data, err
}

// Close implements [Session].
func (s *wsSession) Close() error {
	s.cancel()
	return s.conn.Close(websocket.StatusNormalClosure, "")
}
