// Package correct defines the Provider interface for streaming text
// correction backends.
//
// A correction provider wraps a remote chat-completion API (e.g. Zhipu or
// iFlow) or a local Ollama instance and exposes a uniform streaming
// interface so the gateway can run corrections without coupling to any
// specific wire format. The two wire dialects in use are deliberately
// incompatible (OpenAI-style SSE deltas vs. Ollama's NDJSON generate API);
// implementations own their decoding and emit a common event stream.
//
// Implementors must be safe for concurrent use. Channels returned by
// Stream must be closed by the implementation after the terminal event,
// or when the supplied context is cancelled.
package correct

import "context"

// Default request parameters applied by implementations when the
// corresponding Request field is zero.
const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.3
)

// Request carries everything a provider needs to produce a corrected text.
// Text must be non-empty; a zero-value request is invalid.
type Request struct {
	// System is the instruction prompt steering the correction. Providers
	// without a dedicated system slot prepend it to the prompt text.
	System string

	// Text is the user text to correct.
	Text string

	// MaxTokens caps the generated output. Zero means [DefaultMaxTokens].
	MaxTokens int

	// Temperature controls sampling randomness. Zero means
	// [DefaultTemperature]; correction wants near-deterministic output.
	Temperature float64

	// Stop lists sequences that end generation early. Only honoured by
	// backends that support it; others ignore the field.
	Stop []string
}

// EventKind discriminates the variants of [Event].
type EventKind int

const (
	// Partial carries an incremental text fragment.
	Partial EventKind = iota

	// Done is the terminal success event; Text holds the full accumulated
	// result.
	Done

	// Failed is the terminal failure event; Failure describes what went
	// wrong.
	Failed
)

// Event is a single item emitted by a correction stream. Exactly one
// terminal event (Done or Failed) is emitted per stream, always last.
type Event struct {
	Kind    EventKind
	Text    string
	Failure *Failure
}

// Provider is the abstraction over any correction backend.
//
// Implementations must be safe for concurrent use and must propagate
// context cancellation promptly: when ctx is cancelled the stream emits a
// Failed event with [KindCanceled] and closes.
type Provider interface {
	// Stream sends req to the backend and returns a read-only channel of
	// events. The channel is closed by the implementation after the
	// terminal event. Callers must drain the channel to avoid goroutine
	// leaks.
	//
	// The error return is non-nil only for failures that prevent the
	// stream from starting (invalid request, unresolvable endpoint); wire
	// and decode failures are surfaced as a Failed event instead. The
	// returned channel is never nil when error is nil.
	Stream(ctx context.Context, req Request) (<-chan Event, error)

	// Name returns the provider's registered name (e.g. "zhipu"). Used in
	// failure messages and metrics attributes.
	Name() string
}
