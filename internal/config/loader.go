package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [applyDefaults] for fields left empty.
const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultReadTimeout    = 45 * time.Second
	DefaultHistorySize    = 50
	DefaultLiveDebounce   = 50 * time.Millisecond
	DefaultTestTimeout    = 10 * time.Second
	DefaultRequestTimeout = 120 * time.Second
	DefaultWatchInterval  = 5 * time.Second
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in zero-valued fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = TransportSSE
	}
	if cfg.Feed.ReconnectDelay == 0 {
		cfg.Feed.ReconnectDelay = Duration(DefaultReconnectDelay)
	}
	if cfg.Feed.ReadTimeout == 0 {
		cfg.Feed.ReadTimeout = Duration(DefaultReadTimeout)
	}
	if cfg.Display.HistorySize == 0 {
		cfg.Display.HistorySize = DefaultHistorySize
	}
	if cfg.Display.LiveDebounce == 0 {
		cfg.Display.LiveDebounce = Duration(DefaultLiveDebounce)
	}
	if cfg.Correction.TestTimeout == 0 {
		cfg.Correction.TestTimeout = Duration(DefaultTestTimeout)
	}
	if cfg.Correction.RequestTimeout == 0 {
		cfg.Correction.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if cfg.Settings.WatchInterval == 0 {
		cfg.Settings.WatchInterval = Duration(DefaultWatchInterval)
	}
	if cfg.Settings.Path == "" {
		cfg.Settings.Path = defaultSettingsPath()
	}
}

// defaultSettingsPath places the settings file under the user config dir,
// falling back to the working directory when that cannot be resolved.
func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "settings.json"
	}
	return filepath.Join(dir, "lanpad", "settings.json")
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.BaseURL == "" {
		errs = append(errs, errors.New("server.base_url is required"))
	} else if u, err := url.Parse(cfg.Server.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("server.base_url: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("server.base_url scheme %q is invalid; use http or https", u.Scheme))
	}

	if cfg.Server.Transport != "" && !cfg.Server.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("server.transport %q is invalid; valid values: sse, websocket", cfg.Server.Transport))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Feed.ReconnectDelay < 0 {
		errs = append(errs, errors.New("feed.reconnect_delay must not be negative"))
	}
	if cfg.Display.HistorySize < 1 {
		errs = append(errs, fmt.Errorf("display.history_size %d is invalid; must be at least 1", cfg.Display.HistorySize))
	}

	return errors.Join(errs...)
}
