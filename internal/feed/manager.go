package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"lanpad/internal/bus"
	"lanpad/internal/observe"
)

// Manager owns the push channel lifecycle. It dials through a [Transport],
// hands received messages to the configured handler, and schedules exactly
// one reconnect attempt (after a fixed delay) whenever the session dies.
//
// Teardown-before-create: establishing a session first closes any existing
// session and stops any pending retry timer. The retry callback re-checks
// the state when it fires and aborts if the channel is already open, so a
// manual reconnect racing the timer cannot double-connect.
//
// All methods are safe for concurrent use.
type Manager struct {
	transport Transport
	delay     time.Duration
	handler   func(Message)
	bus       *bus.Bus
	metrics   *observe.Metrics

	mu      sync.Mutex
	status  Status
	session Session
	retry   *time.Timer
	gen     int // incremented per session; stale receive loops are ignored

	done     chan struct{}
	stopOnce sync.Once
}

// ManagerConfig configures a [Manager].
type ManagerConfig struct {
	// Transport establishes sessions.
	Transport Transport

	// ReconnectDelay is the fixed pause before a reconnect attempt.
	// Defaults to 5s if zero.
	ReconnectDelay time.Duration

	// Handler receives every domain message, on the session's receive
	// goroutine. Must not be nil.
	Handler func(Message)

	// Bus receives [TopicStatus] updates. May be nil.
	Bus *bus.Bus

	// Metrics records reconnect attempts. May be nil.
	Metrics *observe.Metrics
}

// NewManager creates a manager; call [Manager.Run] to connect.
func NewManager(cfg ManagerConfig) *Manager {
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Manager{
		transport: cfg.Transport,
		delay:     delay,
		handler:   cfg.Handler,
		bus:       cfg.Bus,
		metrics:   cfg.Metrics,
		done:      make(chan struct{}),
	}
}

// Run connects and blocks until ctx is cancelled or [Manager.Stop] is
// called, then tears the channel down. The first dial failing is not an
// error: the retry cycle takes over.
func (m *Manager) Run(ctx context.Context) error {
	m.connect(ctx)

	select {
	case <-ctx.Done():
	case <-m.done:
	}
	m.teardown()
	return ctx.Err()
}

// Stop closes the channel and halts reconnection. Safe to call multiple
// times.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
}

// Status returns the current channel state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Reconnect tears down the current session (if any) and dials immediately.
// Exposed for a manual "reconnect now" action.
func (m *Manager) Reconnect(ctx context.Context) {
	m.connect(ctx)
}

// connect establishes a fresh session, tearing down any current one first.
func (m *Manager) connect(ctx context.Context) {
	select {
	case <-m.done:
		return
	default:
	}

	m.mu.Lock()
	m.stopRetryLocked()
	m.closeSessionLocked()
	m.gen++
	gen := m.gen
	m.setStatusLocked(Connecting)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.Reconnects.Add(ctx, 1,
			metric.WithAttributes(observe.Attr("transport", m.transport.Name())))
	}

	sess, err := m.transport.Dial(ctx)
	if err != nil {
		slog.Warn("feed: dial failed", "transport", m.transport.Name(), "err", err)
		m.mu.Lock()
		if gen == m.gen {
			m.setStatusLocked(Disconnected)
			m.scheduleRetryLocked(ctx)
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		// A newer connect superseded us while dialing.
		m.mu.Unlock()
		sess.Close()
		return
	}
	m.session = sess
	m.setStatusLocked(Open)
	m.mu.Unlock()

	slog.Info("feed: channel open", "transport", m.transport.Name())
	go m.receiveLoop(ctx, sess, gen)
}

// receiveLoop pumps messages from one session until it dies.
func (m *Manager) receiveLoop(ctx context.Context, sess Session, gen int) {
	for {
		msg, err := sess.Receive()
		if err != nil {
			m.onSessionDown(ctx, gen, err)
			return
		}
		m.handler(msg)
	}
}

// onSessionDown handles the death of the session identified by gen.
func (m *Manager) onSessionDown(ctx context.Context, gen int, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		// An old session's loop finishing after replacement; nothing to do.
		return
	}

	select {
	case <-m.done:
		return
	default:
	}
	if ctx.Err() != nil {
		return
	}

	slog.Warn("feed: channel lost", "err", cause, "retry_in", m.delay)
	m.closeSessionLocked()
	m.setStatusLocked(Disconnected)
	m.scheduleRetryLocked(ctx)
}

// scheduleRetryLocked arms the single retry timer. Must be called with
// m.mu held.
func (m *Manager) scheduleRetryLocked(ctx context.Context) {
	if m.retry != nil {
		return
	}
	m.retry = time.AfterFunc(m.delay, func() {
		m.mu.Lock()
		m.retry = nil
		open := m.status == Open
		m.mu.Unlock()

		select {
		case <-m.done:
			return
		default:
		}
		if ctx.Err() != nil || open {
			// A manual reconnect beat the timer; leave the live session be.
			return
		}
		m.connect(ctx)
	})
}

// stopRetryLocked cancels a pending retry timer. Must be called with m.mu
// held.
func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

// closeSessionLocked closes the current session if any. Must be called
// with m.mu held.
func (m *Manager) closeSessionLocked() {
	if m.session != nil {
		m.session.Close()
		m.session = nil
	}
}

// setStatusLocked updates the status and publishes the change. Must be
// called with m.mu held.
func (m *Manager) setStatusLocked(s Status) {
	if m.status == s {
		return
	}
	m.status = s
	if m.bus != nil {
		// Publish without the lock so subscribers can call Status().
		go m.bus.Publish(TopicStatus, s)
	}
}

// teardown closes everything on shutdown.
func (m *Manager) teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.stopRetryLocked()
	m.closeSessionLocked()
	m.setStatusLocked(Disconnected)
}
