// Package clip writes finalized text to the system clipboard. Writes are
// best effort: a headless session or missing clipboard tool must never
// interrupt dictation, so failures are logged and counted but not
// surfaced.
package clip

import (
	"context"
	"log/slog"

	cb "github.com/atotto/clipboard"

	"lanpad/internal/observe"
)

// Writer copies text to the system clipboard.
type Writer struct {
	metrics *observe.Metrics

	// writeAll is swappable for tests.
	writeAll func(string) error
}

// Option is a functional option for configuring a [Writer].
type Option func(*Writer)

// WithWriteFunc replaces the system clipboard write. Useful in tests.
func WithWriteFunc(fn func(string) error) Option {
	return func(w *Writer) {
		w.writeAll = fn
	}
}

// New returns a clipboard writer recording failures on metrics.
// metrics may be nil.
func New(metrics *observe.Metrics, opts ...Option) *Writer {
	w := &Writer{
		metrics:  metrics,
		writeAll: cb.WriteAll,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Copy writes text to the clipboard. Reports whether the write succeeded;
// failures are already logged, callers only need the result to phrase the
// confirmation notice.
func (w *Writer) Copy(text string) bool {
	if err := w.writeAll(text); err != nil {
		slog.Warn("clipboard write failed", "err", err)
		if w.metrics != nil {
			w.metrics.ClipboardErrors.Add(context.Background(), 1)
		}
		return false
	}
	return true
}
