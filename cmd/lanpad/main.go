// Command lanpad is the PC-side client for LAN dictation: it receives
// speech text pushed from a phone on the same network, shows it in the
// terminal, copies finalized segments to the clipboard, and runs AI
// corrections against the configured provider.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"lanpad/internal/app"
	"lanpad/internal/config"
	"lanpad/internal/observe"
	"lanpad/internal/settings"
	"lanpad/internal/ui"
	"lanpad/pkg/provider/correct"
	"lanpad/pkg/provider/correct/chatsse"
	"lanpad/pkg/provider/correct/ollama"
)

// version is stamped by the release build.
var version = "dev"

// Default endpoints for the hosted chat-completion providers. Overridable
// per provider via the settings file's apiUrl.
const (
	zhipuEndpoint = "https://open.bigmodel.cn/api/paas/v4/chat/completions"
	iflowEndpoint = "https://apis.iflow.cn/v1/chat/completions"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	headless := flag.Bool("headless", false, "run without the terminal UI (log to stderr)")
	logPath := flag.String("log", "", "log file (default stderr; a TUI run without -log logs to lanpad.log)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("lanpad " + version)
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "lanpad: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "lanpad: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The TUI owns the terminal, so interactive runs log to a file.
	logDst := io.Writer(os.Stderr)
	path := *logPath
	if path == "" && !*headless {
		path = "lanpad.log"
	}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "lanpad: cannot open log file %q: %v\n", path, err)
			return 1
		}
		defer f.Close()
		logDst = f
	}
	slog.SetDefault(newLogger(logDst, cfg.Server.LogLevel))

	slog.Info("lanpad starting",
		"version", version,
		"config", *configPath,
		"server", cfg.Server.BaseURL,
		"transport", cfg.Server.Transport,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinCorrectors(reg)

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg, reg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- application.Run(ctx)
	}()

	if *headless {
		slog.Info("running headless — press Ctrl+C to shut down")
		if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("run error", "err", err)
			return 1
		}
	} else {
		model := ui.New(ui.Config{
			Actions:   application.Actions(),
			Ctx:       ctx,
			ServerURL: cfg.Server.BaseURL,
			Settings:  application.Settings().Current(),
			Notice:    application.Settings().Notice(),
		})
		program := tea.NewProgram(model, tea.WithAltScreen())
		unbridge := ui.Bridge(application.Bus(), program)

		// Quit the UI when the app dies or a signal lands.
		go func() {
			select {
			case err := <-runErr:
				if err != nil && !errors.Is(err, context.Canceled) {
					slog.Error("run error", "err", err)
				}
			case <-ctx.Done():
			}
			program.Quit()
		}()

		if _, err := program.Run(); err != nil {
			slog.Error("ui error", "err", err)
		}
		unbridge()
		stop() // the user quit from the UI; wind down the app
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinCorrectors wires the correction backends that ship with
// lanpad. Each factory receives the user's per-provider settings block.
func registerBuiltinCorrectors(reg *config.Registry) {
	reg.RegisterCorrector(settings.ProviderZhipu, func(ps settings.ProviderSettings) (correct.Provider, error) {
		endpoint := ps.APIURL
		if endpoint == "" {
			endpoint = zhipuEndpoint
		}
		return chatsse.New(settings.ProviderZhipu, endpoint, ps.APIKey, ps.Model,
			chatsse.WithThinkingDisabled())
	})

	reg.RegisterCorrector(settings.ProviderIflow, func(ps settings.ProviderSettings) (correct.Provider, error) {
		endpoint := ps.APIURL
		if endpoint == "" {
			endpoint = iflowEndpoint
		}
		return chatsse.New(settings.ProviderIflow, endpoint, ps.APIKey, ps.Model)
	})

	reg.RegisterCorrector(settings.ProviderOllama, func(ps settings.ProviderSettings) (correct.Provider, error) {
		// The settings file stores the full generate endpoint; the
		// provider wants the server root.
		base := strings.TrimSuffix(strings.TrimSuffix(ps.APIURL, "/"), "/api/generate")
		return ollama.New(base, ps.Model)
	})

	for _, name := range reg.Names() {
		slog.Debug("registered corrector", "name", name)
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
