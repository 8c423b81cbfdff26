package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"lanpad/internal/bus"
)

// TopicChanged is published on the bus with the new [Settings] value after
// every successful update, including reloads picked up by the [Watcher].
const TopicChanged = "settings:changed"

// legacyMarkers are top-level JSON keys that only appear in pre-rework
// settings files (single-provider and dual-provider schemas). Their shapes
// cannot be merged safely, so such files are set aside instead.
var legacyMarkers = []string{"aiProvider", "onlineProvider", "ollamaApiUrl"}

// Store owns the settings file. It loads once at construction, serves
// immutable snapshots, and persists updates atomically (temp file +
// rename). When the file is unreadable or unwritable the store keeps
// working from memory and reports the problem through [Store.Notice] and a
// single warning log.
//
// All methods are safe for concurrent use.
type Store struct {
	path string
	bus  *bus.Bus

	mu       sync.RWMutex
	current  Settings
	degraded bool
	notice   string

	warnOnce sync.Once
}

// NewStore loads the settings file at path (creating nothing yet if it
// does not exist) and returns a ready store. Loading never fails: corrupt
// or legacy files degrade to defaults with a notice.
func NewStore(path string, b *bus.Bus) *Store {
	st := &Store{path: path, bus: b}
	st.current = st.load()
	return st
}

// Current returns the latest settings snapshot.
func (st *Store) Current() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current.Clone()
}

// Notice returns a human-readable description of a load-time problem
// (corrupt file, legacy schema), or "" when the file loaded cleanly.
// The display layer surfaces it as a persistent notice.
func (st *Store) Notice() string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.notice
}

// Degraded reports whether the store is running memory-only.
func (st *Store) Degraded() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.degraded
}

// Update applies mutate to a copy of the current settings, validates the
// result, persists it, and publishes [TopicChanged]. The new snapshot is
// returned. When persisting fails the update still takes effect in memory;
// the failure is logged once and the store marks itself degraded.
func (st *Store) Update(mutate func(*Settings)) (Settings, error) {
	st.mu.Lock()
	next := st.current.Clone()
	mutate(&next)
	if err := next.Validate(); err != nil {
		st.mu.Unlock()
		return Settings{}, fmt.Errorf("settings: invalid update: %w", err)
	}
	st.current = next
	snapshot := next.Clone()
	st.mu.Unlock()

	if err := st.save(snapshot); err != nil {
		st.warnOnce.Do(func() {
			slog.Warn("settings: cannot persist, continuing in memory", "path", st.path, "err", err)
		})
		st.mu.Lock()
		st.degraded = true
		st.mu.Unlock()
	}

	if st.bus != nil {
		st.bus.Publish(TopicChanged, snapshot)
	}
	return snapshot, nil
}

// load reads and parses the settings file, handling the missing, corrupt,
// and legacy cases. It always returns usable settings.
func (st *Store) load() Settings {
	data, err := os.ReadFile(st.path)
	if os.IsNotExist(err) {
		return Default()
	}
	if err != nil {
		slog.Warn("settings: cannot read file, using defaults", "path", st.path, "err", err)
		st.degraded = true
		st.notice = "设置文件无法读取，本次运行的设置不会保存"
		return Default()
	}

	if st.isLegacy(data) {
		st.setAsideLegacy()
		st.notice = "检测到旧版本设置，已恢复默认配置，请重新填写 API Key"
		return Default()
	}

	// Missing keys fall back to their defaults by decoding on top of them.
	s := Default()
	if err := json.Unmarshal(data, &s); err != nil {
		slog.Warn("settings: corrupt file, using defaults", "path", st.path, "err", err)
		st.degraded = true
		st.notice = "设置文件已损坏，本次运行使用默认设置"
		return Default()
	}
	if err := s.Validate(); err != nil {
		slog.Warn("settings: invalid file, using defaults", "path", st.path, "err", err)
		st.notice = "设置文件内容无效，已恢复默认设置"
		return Default()
	}
	return s
}

// isLegacy reports whether data carries one of the retired schemas.
func (st *Store) isLegacy(data []byte) bool {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return false
	}
	for _, key := range legacyMarkers {
		if _, ok := raw[key]; ok {
			return true
		}
	}
	return false
}

// setAsideLegacy renames the legacy file so it is preserved for manual
// inspection but never parsed again.
func (st *Store) setAsideLegacy() {
	aside := st.path + ".legacy"
	if err := os.Rename(st.path, aside); err != nil {
		slog.Warn("settings: cannot set aside legacy file", "path", st.path, "err", err)
		return
	}
	slog.Info("settings: legacy file set aside", "path", aside)
}

// save writes s atomically next to the target path.
func (st *Store) save(s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return fmt.Errorf("settings: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("settings: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("settings: close temp: %w", err)
	}
	if err := os.Rename(tmpName, st.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("settings: rename: %w", err)
	}
	return nil
}

// replace installs a freshly loaded snapshot (used by the watcher) and
// publishes the change.
func (st *Store) replace(s Settings) {
	st.mu.Lock()
	st.current = s
	snapshot := s.Clone()
	st.mu.Unlock()

	if st.bus != nil {
		st.bus.Publish(TopicChanged, snapshot)
	}
}
