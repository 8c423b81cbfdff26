// Package mock provides a scripted [correct.Provider] for tests.
package mock

import (
	"context"
	"sync"

	"lanpad/pkg/provider/correct"
)

// Provider replays a scripted event sequence and records the requests it
// receives. The zero value closes the stream without emitting anything;
// set Events to script a specific stream, or StartErr to fail before
// streaming.
type Provider struct {
	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// Events is the sequence emitted by Stream, in order. The channel is
	// closed after the last event.
	Events []correct.Event

	// StartErr, when non-nil, is returned by Stream before any event.
	StartErr error

	// Block, when non-nil, is closed by the test to let the stream
	// proceed. Streams wait on it before emitting each event, which makes
	// cancellation windows deterministic.
	Block chan struct{}

	mu       sync.Mutex
	requests []correct.Request
}

// Name implements [correct.Provider].
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Stream implements [correct.Provider].
func (p *Provider) Stream(ctx context.Context, req correct.Request) (<-chan correct.Event, error) {
	if p.StartErr != nil {
		return nil, p.StartErr
	}

	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	events := make(chan correct.Event)
	go func() {
		defer close(events)
		for _, ev := range p.Events {
			if p.Block != nil {
				select {
				case <-p.Block:
				case <-ctx.Done():
					// Consumers drain until close, so a plain send is safe.
					events <- correct.Event{
						Kind:    correct.Failed,
						Failure: correct.FailureFrom(p.Name(), ctx.Err()),
					}
					return
				}
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// Requests returns a copy of all requests received so far.
func (p *Provider) Requests() []correct.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]correct.Request, len(p.requests))
	copy(out, p.requests)
	return out
}
