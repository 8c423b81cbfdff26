package correct

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind classifies why a correction stream failed.
type FailureKind int

const (
	// KindHTTPStatus means the backend answered with a non-2xx status
	// before any stream content was produced. Status carries the code.
	KindHTTPStatus FailureKind = iota

	// KindEmptyResult means the stream ended cleanly but accumulated no
	// text, or only whitespace.
	KindEmptyResult

	// KindTimeout means the operation's deadline expired.
	KindTimeout

	// KindCanceled means the operation was cancelled by the caller.
	KindCanceled

	// KindUnknownProvider means no provider is registered under the
	// selected name.
	KindUnknownProvider

	// KindTransport covers network and decode-level failures that are not
	// an HTTP status: connection refused, reset mid-stream, unreadable
	// body.
	KindTransport
)

// String returns a short machine-friendly label, used as a metrics
// attribute value.
func (k FailureKind) String() string {
	switch k {
	case KindHTTPStatus:
		return "http_status"
	case KindEmptyResult:
		return "empty_result"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindUnknownProvider:
		return "unknown_provider"
	case KindTransport:
		return "transport"
	}
	return "unknown"
}

// Failure describes a failed correction attempt. It always names the
// provider so the display layer can tell the user which backend misbehaved.
type Failure struct {
	Kind     FailureKind
	Provider string

	// Status is the HTTP status code when Kind is [KindHTTPStatus].
	Status int

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (f *Failure) Error() string {
	switch f.Kind {
	case KindHTTPStatus:
		return fmt.Sprintf("correct: %s: unexpected status %d", f.Provider, f.Status)
	case KindEmptyResult:
		return fmt.Sprintf("correct: %s: stream produced no text", f.Provider)
	case KindTimeout:
		return fmt.Sprintf("correct: %s: request timed out", f.Provider)
	case KindCanceled:
		return fmt.Sprintf("correct: %s: request canceled", f.Provider)
	case KindUnknownProvider:
		return fmt.Sprintf("correct: no provider registered as %q", f.Provider)
	case KindTransport:
		return fmt.Sprintf("correct: %s: transport failure: %v", f.Provider, f.Err)
	}
	return fmt.Sprintf("correct: %s: unknown failure", f.Provider)
}

// Unwrap exposes the underlying error for errors.Is / errors.As chains.
func (f *Failure) Unwrap() error {
	return f.Err
}

// FailureFrom classifies err into a [Failure] attributed to provider.
// Context cancellation and deadline expiry map to their dedicated kinds;
// everything else is a transport failure.
func FailureFrom(provider string, err error) *Failure {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: KindTimeout, Provider: provider, Err: err}
	case errors.Is(err, context.Canceled):
		return &Failure{Kind: KindCanceled, Provider: provider, Err: err}
	default:
		return &Failure{Kind: KindTransport, Provider: provider, Err: err}
	}
}
