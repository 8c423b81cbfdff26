// Package ollama implements [correct.Provider] for a local Ollama server
// via its generate API, which streams newline-delimited JSON rather than
// server-sent events.
package ollama

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

// Name is the registered provider name.
const Name = "ollama"

const (
	defaultBaseURL     = "http://localhost:11434"
	defaultHTTPTimeout = 5 * time.Minute
)

// Option is a functional option for configuring a [Provider].
type Option func(*Provider)

// WithHTTPClient replaces the default HTTP client. Useful in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider streams corrections from an Ollama instance.
// It is safe for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates an Ollama provider. baseURL defaults to the standard local
// address when empty.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("ollama: model must not be empty")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	p := &Provider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
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
	return Name
}

type generateOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
	Stop    []string        `json:"stop,omitempty"`
}

// Stream implements [correct.Provider].
func (p *Provider) Stream(ctx context.Context, req correct.Request) (<-chan correct.Event, error) {
	if req.Text == "" {
		return nil, errors.New("ollama: request text must not be empty")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = correct.DefaultMaxTokens
	}
	temp := req.Temperature
	if temp == 0 {
		temp = correct.DefaultTemperature
	}

	// The generate API has no system slot; prepend the instruction.
	prompt := req.Text
	if req.System != "" {
		prompt = req.System + "\n\n" + req.Text
	}

	body, err := json.Marshal(generateRequest{
		Model:  p.model,
		Prompt: prompt,
		Stream: true,
		Options: generateOptions{
			NumPredict:  maxTokens,
			Temperature: temp,
		},
		Stop: req.Stop,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: encode request: %w", err)
	}

	events := make(chan correct.Event)
	go p.stream(ctx, body, events)
	return events, nil
}

// stream performs the HTTP exchange and pumps decoded fragments into
// events. It always closes events and emits exactly one terminal event
// (unless the consumer is gone and ctx is done).
func (p *Provider) stream(ctx context.Context, body []byte, events chan<- correct.Event) {
	defer close(events)

	url := p.baseURL + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		p.send(ctx, events, correct.Event{Kind: correct.Failed, Failure: correct.FailureFrom(Name, err)})
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.send(ctx, events, correct.Event{Kind: correct.Failed, Failure: p.classify(ctx, err)})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.CopyN(io.Discard, resp.Body, 512)
		p.send(ctx, events, correct.Event{Kind: correct.Failed, Failure: &correct.Failure{
			Kind:     correct.KindHTTPStatus,
			Provider: Name,
			Status:   resp.StatusCode,
		}})
		return
	}

	var dec decode.NDJSON
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
		if err == io.EOF || dec.Done() {
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
			Provider: Name,
		}})
		return
	}
	p.send(ctx, events, correct.Event{Kind: correct.Done, Text: acc.String()})
}

func (p *Provider) classify(ctx context.Context, err error) *correct.Failure {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return correct.FailureFrom(Name, ctxErr)
	}
	return correct.FailureFrom(Name, err)
}

func (p *Provider) send(ctx context.Context, events chan<- correct.Event, ev correct.Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
