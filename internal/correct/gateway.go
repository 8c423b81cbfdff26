// Package correct runs AI corrections against the configured streaming
// provider. A single-flight slot serializes everything that talks to the
// backend: card corrections, the settings panel's connectivity test, and
// the startup warm-up probe. Outcomes are published on the bus; card state
// transitions go through the deck, which remains the single owner of card
// state.
package correct

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"lanpad/internal/bus"
	"lanpad/internal/config"
	"lanpad/internal/deck"
	"lanpad/internal/observe"
	"lanpad/internal/settings"
	"lanpad/pkg/provider/correct"
)

// Bus topics published by the gateway.
const (
	// TopicStart carries a [StartEvent] when a card correction begins.
	TopicStart = "correct:start"

	// TopicPartial carries a [PartialEvent] per streamed chunk.
	TopicPartial = "correct:partial"

	// TopicDone carries a [DoneEvent] when a correction commits.
	TopicDone = "correct:done"

	// TopicFailed carries a [FailedEvent] when a correction fails; the
	// card has already been reverted.
	TopicFailed = "correct:failed"

	// TopicTestStart, TopicTestDone, and TopicTestFailed report the
	// connectivity probe. Done carries a [TestResult], Failed a
	// [FailedEvent] with CardID zero.
	TopicTestStart  = "correct:test:start"
	TopicTestDone   = "correct:test:done"
	TopicTestFailed = "correct:test:failed"
)

// StartEvent announces a correction starting on a card.
type StartEvent struct {
	CardID   int
	Provider string
}

// PartialEvent carries accumulated streamed text for a card.
type PartialEvent struct {
	CardID int
	Text   string
}

// DoneEvent announces a committed correction.
type DoneEvent struct {
	CardID   int
	Provider string
	Text     string
}

// FailedEvent announces a failed correction or probe. The failure carries
// the provider name and kind for display.
type FailedEvent struct {
	CardID  int
	Failure *correct.Failure
}

// TestResult reports a successful connectivity probe.
type TestResult struct {
	Provider string
	Elapsed  time.Duration
}

// testProbeText is the prompt sent by the connectivity test. Any non-empty
// response passes.
const testProbeText = "你好"

// CardBoard is the slice of the deck the gateway drives.
type CardBoard interface {
	BeginCorrection(id int) (string, error)
	CorrectionPartial(id int, partial string)
	CorrectionSucceeded(id int, corrected string)
	CorrectionFailed(id int)
}

// SettingsSource yields the current settings snapshot.
type SettingsSource interface {
	Current() settings.Settings
}

// Gateway is the correction front door.
type Gateway struct {
	bus      *bus.Bus
	board    CardBoard
	settings SettingsSource
	registry *config.Registry
	metrics  *observe.Metrics

	testTimeout    time.Duration
	requestTimeout time.Duration

	slot slot
	wg   sync.WaitGroup
}

// GatewayConfig configures a [Gateway].
type GatewayConfig struct {
	// Bus receives outcome topics. Must not be nil.
	Bus *bus.Bus

	// Board owns card state. Must not be nil.
	Board CardBoard

	// Settings yields provider selection and the prompt template. Must
	// not be nil.
	Settings SettingsSource

	// Registry builds providers by name. Must not be nil.
	Registry *config.Registry

	// Metrics records operation counts and latency. May be nil.
	Metrics *observe.Metrics

	// TestTimeout bounds the connectivity probe. Defaults to 10s.
	TestTimeout time.Duration

	// RequestTimeout bounds a card correction. Defaults to 120s; local
	// models on modest hardware routinely need minutes.
	RequestTimeout time.Duration
}

// NewGateway creates a ready gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.TestTimeout <= 0 {
		cfg.TestTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 120 * time.Second
	}
	return &Gateway{
		bus:            cfg.Bus,
		board:          cfg.Board,
		settings:       cfg.Settings,
		registry:       cfg.Registry,
		metrics:        cfg.Metrics,
		testTimeout:    cfg.TestTimeout,
		requestTimeout: cfg.RequestTimeout,
	}
}

// Busy reports whether an operation is in flight.
func (g *Gateway) Busy() bool {
	return g.slot.busy()
}

// Cancel aborts the in-flight operation, if any. The card reverts through
// the usual failure path.
func (g *Gateway) Cancel() {
	g.slot.cancelActive()
}

// Close cancels any in-flight operation and waits for it to wind down.
func (g *Gateway) Close() error {
	g.slot.cancelActive()
	g.wg.Wait()
	return nil
}

// Correct submits a card for correction. It claims the slot and the card
// synchronously, then streams in the background. Returns [ErrBusy] when an
// operation is already in flight, [ErrSuperseded] when the card was
// claimed by another actor between the two checks, or a provider
// construction error.
func (g *Gateway) Correct(ctx context.Context, cardID int) error {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.requestTimeout)

	tok, err := g.slot.acquire(KindCorrection, cardID, cancel)
	if err != nil {
		cancel()
		return err
	}

	// The card may have entered editing between the caller's check and
	// the slot registration.
	text, err := g.board.BeginCorrection(cardID)
	if err != nil {
		g.slot.release(tok)
		var busy *deck.ErrCardBusy
		if errors.As(err, &busy) {
			return ErrSuperseded
		}
		return err
	}

	prov, fail := g.buildProvider()
	if fail != nil {
		g.board.CorrectionFailed(cardID)
		g.slot.release(tok)
		g.finishCorrection(cardID, fail, time.Duration(0))
		return fail
	}

	snap := g.settings.Current()
	req := correct.Request{
		System: snap.PromptTemplate,
		Text:   text,
	}

	g.bus.Publish(TopicStart, StartEvent{CardID: cardID, Provider: prov.Name()})

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.slot.release(tok)

		start := time.Now()
		result, fail := g.run(opCtx, prov, req, func(acc string) {
			g.board.CorrectionPartial(cardID, acc)
			g.bus.Publish(TopicPartial, PartialEvent{CardID: cardID, Text: acc})
		})
		elapsed := time.Since(start)

		if fail != nil {
			g.board.CorrectionFailed(cardID)
			g.finishCorrection(cardID, fail, elapsed)
			return
		}

		g.board.CorrectionSucceeded(cardID, result)
		if g.metrics != nil {
			g.metrics.RecordCorrection(context.Background(), prov.Name(), string(KindCorrection), "ok", elapsed)
		}
		slog.Info("correction done", "card", cardID, "provider", prov.Name(), "elapsed", elapsed)
		g.bus.Publish(TopicDone, DoneEvent{CardID: cardID, Provider: prov.Name(), Text: result})
	}()

	return nil
}

// Test runs the connectivity probe against the active provider. Claims the
// slot synchronously and streams in the background. Returns [ErrBusy] or a
// provider construction error.
func (g *Gateway) Test(ctx context.Context) error {
	return g.probe(ctx, false)
}

// Warmup runs the probe without publishing outcome topics. Used at startup
// to surface misconfiguration in the log before the first correction.
func (g *Gateway) Warmup(ctx context.Context) error {
	return g.probe(ctx, true)
}

func (g *Gateway) probe(ctx context.Context, quiet bool) error {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.testTimeout)

	tok, err := g.slot.acquire(KindTest, 0, cancel)
	if err != nil {
		cancel()
		return err
	}

	prov, fail := g.buildProvider()
	if fail != nil {
		g.slot.release(tok)
		g.finishTest(fail, time.Duration(0), quiet)
		return fail
	}

	if !quiet {
		g.bus.Publish(TopicTestStart, prov.Name())
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer g.slot.release(tok)

		start := time.Now()
		_, fail := g.run(opCtx, prov, correct.Request{Text: testProbeText}, nil)
		elapsed := time.Since(start)

		if fail != nil {
			g.finishTest(fail, elapsed, quiet)
			return
		}

		if g.metrics != nil {
			g.metrics.RecordCorrection(context.Background(), prov.Name(), string(KindTest), "ok", elapsed)
		}
		slog.Info("provider test passed", "provider", prov.Name(), "elapsed", elapsed)
		if !quiet {
			g.bus.Publish(TopicTestDone, TestResult{Provider: prov.Name(), Elapsed: elapsed})
		}
	}()

	return nil
}

// buildProvider constructs the active provider from current settings.
func (g *Gateway) buildProvider() (correct.Provider, *correct.Failure) {
	snap := g.settings.Current()
	ps, ok := snap.Active()
	if !ok {
		return nil, &correct.Failure{
			Kind:     correct.KindUnknownProvider,
			Provider: snap.Provider,
			Err:      errors.New("provider has no configuration block"),
		}
	}

	prov, err := g.registry.CreateCorrector(snap.Provider, ps)
	if err != nil {
		kind := correct.KindTransport
		if errors.Is(err, config.ErrProviderNotRegistered) {
			kind = correct.KindUnknownProvider
		}
		return nil, &correct.Failure{Kind: kind, Provider: snap.Provider, Err: err}
	}
	return prov, nil
}

// run streams one request to completion. onPartial, if non-nil, receives
// the accumulated text after each chunk. Exactly one of result and failure
// is returned.
func (g *Gateway) run(ctx context.Context, prov correct.Provider, req correct.Request, onPartial func(string)) (string, *correct.Failure) {
	events, err := prov.Stream(ctx, req)
	if err != nil {
		return "", correct.FailureFrom(prov.Name(), err)
	}

	var acc string
	for ev := range events {
		switch ev.Kind {
		case correct.Partial:
			acc += ev.Text
			if onPartial != nil {
				onPartial(acc)
			}
		case correct.Done:
			return ev.Text, nil
		case correct.Failed:
			return "", ev.Failure
		}
	}

	// The channel closed without a terminal event. That happens when the
	// context is cancelled while the provider is blocked on a send; fold
	// it into the usual taxonomy.
	if err := ctx.Err(); err != nil {
		return "", correct.FailureFrom(prov.Name(), err)
	}
	return "", &correct.Failure{
		Kind:     correct.KindTransport,
		Provider: prov.Name(),
		Err:      errors.New("stream ended without a result"),
	}
}

// finishCorrection records and publishes a failed card correction.
func (g *Gateway) finishCorrection(cardID int, fail *correct.Failure, elapsed time.Duration) {
	if g.metrics != nil {
		g.metrics.RecordCorrection(context.Background(), fail.Provider, string(KindCorrection), fail.Kind.String(), elapsed)
	}
	slog.Warn("correction failed", "card", cardID, "provider", fail.Provider, "kind", fail.Kind, "err", fail.Err)
	g.bus.Publish(TopicFailed, FailedEvent{CardID: cardID, Failure: fail})
}

// finishTest records a failed connectivity probe; quiet probes skip the
// bus.
func (g *Gateway) finishTest(fail *correct.Failure, elapsed time.Duration, quiet bool) {
	if g.metrics != nil {
		g.metrics.RecordCorrection(context.Background(), fail.Provider, string(KindTest), fail.Kind.String(), elapsed)
	}
	slog.Warn("provider test failed", "provider", fail.Provider, "kind", fail.Kind, "err", fail.Err)
	if !quiet {
		g.bus.Publish(TopicTestFailed, FailedEvent{Failure: fail})
	}
}
