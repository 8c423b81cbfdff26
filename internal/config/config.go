// Package config provides the configuration schema, loader, and correction
// provider registry for lanpad.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Transport selects how the push channel reaches the server.
type Transport string

const (
	// TransportSSE uses a server-sent-events stream. This is what the
	// stock server speaks.
	TransportSSE Transport = "sse"

	// TransportWebSocket uses a WebSocket carrying the same frames. Useful
	// behind proxies that buffer event streams.
	TransportWebSocket Transport = "websocket"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportSSE || t == TransportWebSocket
}

// Duration wraps [time.Duration] so YAML configs can say "5s" or "50ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped [time.Duration].
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the root configuration structure for lanpad.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Feed       FeedConfig       `yaml:"feed"`
	Display    DisplayConfig    `yaml:"display"`
	Correction CorrectionConfig `yaml:"correction"`
	Settings   SettingsConfig   `yaml:"settings"`
}

// ServerConfig locates the LAN dictation server and holds process-level
// knobs.
type ServerConfig struct {
	// BaseURL is the dictation server's HTTP root (e.g.,
	// "http://192.168.1.5:8080").
	BaseURL string `yaml:"base_url"`

	// Transport selects the push-channel transport. Default: sse.
	Transport Transport `yaml:"transport"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr, when non-empty, serves Prometheus metrics on this
	// address (e.g., ":9091").
	MetricsAddr string `yaml:"metrics_addr"`
}

// FeedConfig tunes the push-channel connection behaviour.
type FeedConfig struct {
	// ReconnectDelay is the fixed pause before a reconnect attempt.
	// Default: 5s.
	ReconnectDelay Duration `yaml:"reconnect_delay"`

	// ReadTimeout bounds the gap between frames. The server heartbeats
	// every 15s, so three missed beats mean a dead peer. Default: 45s.
	ReadTimeout Duration `yaml:"read_timeout"`
}

// DisplayConfig tunes the card display.
type DisplayConfig struct {
	// HistorySize caps the number of retained cards. Default: 50.
	HistorySize int `yaml:"history_size"`

	// LiveDebounce coalesces bursts of live-text updates. Default: 50ms.
	LiveDebounce Duration `yaml:"live_debounce"`
}

// CorrectionConfig tunes the AI correction gateway.
type CorrectionConfig struct {
	// TestTimeout bounds the connectivity probe. Default: 10s.
	TestTimeout Duration `yaml:"test_timeout"`

	// RequestTimeout bounds a full correction. Local models can be slow,
	// so the default is generous: 120s.
	RequestTimeout Duration `yaml:"request_timeout"`
}

// SettingsConfig locates the persisted user settings.
type SettingsConfig struct {
	// Path to the settings JSON file. Defaults to
	// <user config dir>/lanpad/settings.json.
	Path string `yaml:"path"`

	// WatchInterval is the polling interval for external edits.
	// Default: 5s.
	WatchInterval Duration `yaml:"watch_interval"`
}
