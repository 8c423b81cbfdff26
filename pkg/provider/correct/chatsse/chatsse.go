// Package chatsse implements [correct.Provider] for OpenAI-compatible
// chat-completion APIs that stream responses as server-sent events.
//
// Both hosted backends (Zhipu and iFlow) speak this dialect. Zhipu's
// reasoning models additionally require an explicit thinking opt-out,
// enabled via [WithThinkingDisabled].
package chatsse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"lanpad/pkg/provider/correct"
	"lanpad/pkg/provider/correct/decode"
)

const defaultHTTPTimeout = 5 * time.Minute

// Option is a functional option for configuring a [Provider].
type Option func(*Provider)

// WithHTTPClient replaces the default HTTP client. Useful in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithThinkingDisabled adds the thinking opt-out field to every request.
// Required for Zhipu reasoning models, which otherwise stream their chain
// of thought instead of the answer.
func WithThinkingDisabled() Option {
	return func(p *Provider) {
		p.disableThinking = true
	}
}

// Provider streams corrections from a chat-completion endpoint.
// It is safe for concurrent use.
type Provider struct {
	name            string
	endpoint        string
	apiKey          string
	model           string
	disableThinking bool
	httpClient      *http.Client
}

// New creates a chat-completion provider. name is the registered provider
// name used in failures and metrics; endpoint is the full completions URL.
func New(name, endpoint, apiKey, model string, opts ...Option) (*Provider, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("chatsse: %s: endpoint must not be empty", name)
	}
	if model == "" {
		return nil, fmt.Errorf("chatsse: %s: model must not be empty", name)
	}
	p := &Provider{
		name:       name,
		endpoint:   endpoint,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements [correct.Provider].
func (p *Provider) Name() string {
	return p.name
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type thinkingControl struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []chatMessage    `json:"messages"`
	Stream      bool             `json:"stream"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
	Stop        []string         `json:"stop,omitempty"`
	Thinking    *thinkingControl `json:"thinking,omitempty"`
}

// Stream implements [correct.Provider].
func (p *Provider) Stream(ctx context.Context, req correct.Request) (<-chan correct.Event, error) {
	if req.Text == "" {
		return nil, errors.New("chatsse: request text must not be empty")
	}

	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("chatsse: encode request: %w", err)
	}

	events := make(chan correct.Event)
	go p.stream(ctx, body, events)
	return events, nil
}

func (p *Provider) buildRequest(req correct.Request) chatRequest {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = correct.DefaultMaxTokens
	}
	temp := req.Temperature
	if temp == 0 {
		temp = correct.DefaultTemperature
	}

	var msgs []chatMessage
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Text})

	cr := chatRequest{
		Model:       p.model,
		Messages:    msgs,
		Stream:      true,
		MaxTokens:   maxTokens,
		Temperature: temp,
		Stop:        req.Stop,
	}
	if p.disableThinking {
		cr.Thinking = &thinkingControl{Type: "disabled"}
	}
	return cr
}

// stream performs the HTTP exchange and pumps decoded fragments into
// events. It always closes events and always emits exactly one terminal
// event (unless the consumer is gone and ctx is done).
func (p *Provider) stream(ctx context.Context, body []byte, events chan<- correct.Event) {
	defer close(events)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		p.send(ctx, events, correct.Event{Kind: correct.Failed, Failure: correct.FailureFrom(p.name, err)})
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.send(ctx, events, correct.Event{Kind: correct.Failed, Failure: p.classify(ctx, err)})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain a little so the connection can be reused, then report.
		_, _ = io.CopyN(io.Discard, resp.Body, 512)
		p.send(ctx, events, correct.Event{Kind: correct.Failed, Failure: &correct.Failure{
			Kind:     correct.KindHTTPStatus,
			Provider: p.name,
			Status:   resp.StatusCode,
		}})
		return
	}

	var dec decode.SSE
	var acc strings.Builder
	buf := make([]byte, 4096)

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, frag := range dec.Consume(buf[:n]) {
				acc.WriteString(frag)
				if !p.send(ctx, events, correct.Event{Kind: correct.Partial, Text: frag}) {
					return
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			p.send(ctx, events, correct.Event{Kind: correct.Failed, Failure: p.classify(ctx, err)})
			return
		}
	}

	for _, frag := range dec.Finalize() {
		acc.WriteString(frag)
	}

	if strings.TrimSpace(acc.String()) == "" {
		p.send(ctx, events, correct.Event{Kind: correct.Failed, Failure: &correct.Failure{
			Kind:     correct.KindEmptyResult,
			Provider: p.name,
		}})
		return
	}
	p.send(ctx, events, correct.Event{Kind: correct.Done, Text: acc.String()})
}

// classify prefers the context's own error over the transport error that
// wrapped it, so a cancelled request reads as cancelled rather than as a
// broken connection.
func (p *Provider) classify(ctx context.Context, err error) *correct.Failure {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return correct.FailureFrom(p.name, ctxErr)
	}
	return correct.FailureFrom(p.name, err)
}

// send delivers ev unless the consumer has given up. Reports whether the
// stream should continue.
func (p *Provider) send(ctx context.Context, events chan<- correct.Event, ev correct.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
