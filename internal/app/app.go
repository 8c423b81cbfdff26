// Package app wires all lanpad subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the serving goroutines until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject fakes via functional options (WithTransport,
// WithClipboard, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lanpad/internal/bus"
	"lanpad/internal/clip"
	"lanpad/internal/config"
	"lanpad/internal/correct"
	"lanpad/internal/deck"
	"lanpad/internal/feed"
	"lanpad/internal/observe"
	"lanpad/internal/settings"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	registry *config.Registry

	bus     *bus.Bus
	metrics *observe.Metrics

	store   *settings.Store
	watcher *settings.Watcher

	clipboard *clip.Writer
	deck      *deck.Deck
	gateway   *correct.Gateway

	transport feed.Transport
	manager   *feed.Manager

	metricsSrv *http.Server

	// lastCardID tracks the newest card seen by the auto-correct policy.
	policyMu   sync.Mutex
	lastCardID int

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithBus injects a bus instead of creating a fresh one.
func WithBus(b *bus.Bus) Option {
	return func(a *App) { a.bus = b }
}

// WithMetrics injects a metrics instance instead of using the global
// provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithTransport injects a push-channel transport instead of building one
// from config.
func WithTransport(t feed.Transport) Option {
	return func(a *App) { a.transport = t }
}

// WithClipboard injects a clipboard writer instead of the system one.
func WithClipboard(w *clip.Writer) Option {
	return func(a *App) { a.clipboard = w }
}

// New creates an App by wiring all subsystems together. The registry comes
// from main.go with the built-in provider factories registered.
func New(cfg *config.Config, registry *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		registry: registry,
	}
	for _, o := range opts {
		o(a)
	}

	if a.bus == nil {
		a.bus = bus.New()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// Settings store + watcher. The store degrades to memory-only when
	// the file is unusable; its notice reaches the UI at startup.
	a.store = settings.NewStore(cfg.Settings.Path, a.bus)
	a.watcher = settings.NewWatcher(a.store,
		settings.WithInterval(cfg.Settings.WatchInterval.Std()))
	a.closers = append(a.closers, func() error {
		a.watcher.Stop()
		return nil
	})

	if a.clipboard == nil {
		a.clipboard = clip.New(a.metrics)
	}

	a.deck = deck.New(deck.Config{
		Bus:          a.bus,
		Clipboard:    a.clipboard,
		HistorySize:  cfg.Display.HistorySize,
		LiveDebounce: cfg.Display.LiveDebounce.Std(),
		Metrics:      a.metrics,
	})
	a.closers = append(a.closers, a.deck.Close)

	a.gateway = correct.NewGateway(correct.GatewayConfig{
		Bus:            a.bus,
		Board:          a.deck,
		Settings:       a.store,
		Registry:       registry,
		Metrics:        a.metrics,
		TestTimeout:    cfg.Correction.TestTimeout.Std(),
		RequestTimeout: cfg.Correction.RequestTimeout.Std(),
	})
	a.closers = append(a.closers, a.gateway.Close)

	if a.transport == nil {
		switch cfg.Server.Transport {
		case config.TransportWebSocket:
			a.transport = feed.NewWSTransport(cfg.Server.BaseURL, cfg.Feed.ReadTimeout.Std())
		default:
			a.transport = feed.NewSSETransport(cfg.Server.BaseURL, cfg.Feed.ReadTimeout.Std())
		}
	}

	a.manager = feed.NewManager(feed.ManagerConfig{
		Transport:      a.transport,
		ReconnectDelay: cfg.Feed.ReconnectDelay.Std(),
		Handler:        a.deck.HandleMessage,
		Bus:            a.bus,
		Metrics:        a.metrics,
	})

	a.initAutoCorrect()

	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observe.Handler())
		a.metricsSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
	}

	return a, nil
}

// initAutoCorrect subscribes the auto-mode policy: every new card is
// submitted for correction when aiCorrectionMode is auto. A busy slot
// skips the card rather than queueing it.
func (a *App) initAutoCorrect() {
	unsub := a.bus.Subscribe(deck.TopicCards, func(v any) {
		cards := v.([]deck.Card)
		if len(cards) == 0 {
			return
		}
		newest := cards[0]

		a.policyMu.Lock()
		isNew := newest.ID > a.lastCardID
		if isNew {
			a.lastCardID = newest.ID
		}
		a.policyMu.Unlock()
		if !isNew {
			return
		}

		if a.store.Current().CorrectionMode != settings.ModeAuto {
			return
		}
		if err := a.gateway.Correct(context.Background(), newest.ID); err != nil {
			slog.Debug("auto-correct skipped", "card", newest.ID, "err", err)
		}
	})
	a.closers = append(a.closers, func() error {
		unsub()
		return nil
	})
}

// Bus returns the application bus for UI bridging.
func (a *App) Bus() *bus.Bus { return a.bus }

// Settings returns the settings store.
func (a *App) Settings() *settings.Store { return a.store }

// Run starts the push-channel manager and the optional metrics endpoint,
// then blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.manager.Run(ctx)
	})

	if a.metricsSrv != nil {
		g.Go(func() error {
			slog.Info("metrics endpoint up", "addr", a.metricsSrv.Addr)
			if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("app: metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return a.metricsSrv.Shutdown(shutdownCtx)
		})
	}

	// Warm-up probe: surfaces a misconfigured provider in the log before
	// the user's first correction. Failures are not shown in the UI.
	go func() {
		if err := a.gateway.Warmup(ctx); err != nil {
			slog.Debug("warm-up probe not started", "err", err)
		}
	}()

	slog.Info("lanpad running",
		"server", a.cfg.Server.BaseURL,
		"transport", a.transport.Name(),
		"provider", a.store.Current().Provider)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown tears down all subsystems. It respects the context deadline:
// if ctx expires before all closers finish, remaining closers are skipped
// and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.manager.Stop()

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
