package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// SSETransport connects to the server's event-stream endpoint. This is the
// wire format the stock server speaks: named "connected" and "heartbeat"
// events plus default "message" events whose data is a JSON frame.
type SSETransport struct {
	baseURL     string
	readTimeout time.Duration
	httpClient  *http.Client
}

// NewSSETransport creates an SSE transport for the server at baseURL.
// readTimeout bounds the silence between frames; the server heartbeats
// every 15 seconds, so the timeout should comfortably exceed that.
func NewSSETransport(baseURL string, readTimeout time.Duration) *SSETransport {
	return &SSETransport{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		readTimeout: readTimeout,
		// Streaming connection: no overall client timeout, liveness is
		// enforced by the per-frame idle timer.
		httpClient: &http.Client{},
	}
}

// Name implements [Transport].
func (t *SSETransport) Name() string {
	return "sse"
}

// Dial implements [Transport].
func (t *SSETransport) Dial(ctx context.Context) (Session, error) {
	url := t.baseURL + "/ws?type=pc"

	sessCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(sessCtx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("feed: sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("feed: sse dial: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("feed: sse dial: unexpected status %d", resp.StatusCode)
	}

	s := &sseSession{
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
		cancel: cancel,
	}
	if t.readTimeout > 0 {
		// Cancelling the request context aborts the blocked body read.
		s.idle = time.AfterFunc(t.readTimeout, cancel)
		s.idleReset = t.readTimeout
	}
	return s, nil
}

type sseSession struct {
	body      io.ReadCloser
	reader    *bufio.Reader
	cancel    context.CancelFunc
	idle      *time.Timer
	idleReset time.Duration
}

// Receive implements [Session]. It reassembles SSE frames and returns the
// next domain message.
func (s *sseSession) Receive() (Message, error) {
	for {
		event, data, err := s.nextFrame()
		if err != nil {
			return Message{}, err
		}
		if s.idle != nil {
			s.idle.Reset(s.idleReset)
		}

		switch event {
		case "heartbeat":
			continue
		case "connected":
			slog.Debug("feed: server acknowledged connection", "data", data)
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			slog.Warn("feed: dropping malformed frame", "data", data, "err", err)
			continue
		}
		return msg, nil
	}
}

// nextFrame reads lines until a blank separator and returns the frame's
// event name (empty for default "message" events) and joined data.
func (s *sseSession) nextFrame() (event, data string, err error) {
	var dataLines []string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("feed: sse read: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if event == "" && len(dataLines) == 0 {
				continue // stray separator
			}
			return event, strings.Join(dataLines, "\n"), nil
		case strings.HasPrefix(line, ":"):
			// Comment / keep-alive.
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
}

// Close implements [Session]. Safe to call concurrently with Receive.
func (s *sseSession) Close() error {
	if s.idle != nil {
		s.idle.Stop()
	}
	s.cancel()
	return s.body.Close()
}
