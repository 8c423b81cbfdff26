package settings

import (
	"crypto/sha256"
	"encoding/json"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"time"
)

// Watcher polls the settings file and reloads it into the store when an
// external edit lands. Polling (mtime first, then a content hash) keeps
// the dependency surface minimal; settings edits are rare and a few
// seconds of latency is fine.
type Watcher struct {
	store    *Store
	interval time.Duration

	mu        sync.Mutex
	lastMtime time.Time
	lastHash  [sha256.Size]byte

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher starts watching the store's file in a background goroutine.
func NewWatcher(store *Store, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		store:    store,
		interval: 5 * time.Second,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if info, err := os.Stat(store.path); err == nil {
		w.lastMtime = info.ModTime()
	}
	if data, err := os.ReadFile(store.path); err == nil {
		w.lastHash = sha256.Sum256(data)
	}

	go w.poll()
	return w
}

// Stop halts the watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the file when its content changed and, if the parsed
// settings differ from the current snapshot, installs them.
func (w *Watcher) check() {
	info, err := os.Stat(w.store.path)
	if err != nil {
		// Missing file is normal before the first save.
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()

	if info.ModTime().Equal(mtime) {
		return
	}

	data, err := os.ReadFile(w.store.path)
	if err != nil {
		slog.Warn("settings watcher: cannot read file", "path", w.store.path, "err", err)
		return
	}
	hash := sha256.Sum256(data)

	w.mu.Lock()
	unchanged := hash == w.lastHash
	w.lastHash = hash
	w.lastMtime = info.ModTime()
	w.mu.Unlock()

	if unchanged {
		return
	}

	s := Default()
	if err := json.Unmarshal(data, &s); err != nil {
		slog.Warn("settings watcher: ignoring unparseable edit", "path", w.store.path, "err", err)
		return
	}
	if err := s.Validate(); err != nil {
		slog.Warn("settings watcher: ignoring invalid edit", "path", w.store.path, "err", err)
		return
	}

	// Our own saves also bump the mtime; only external edits differ from
	// the snapshot we already hold.
	if reflect.DeepEqual(s, w.store.Current()) {
		return
	}

	slog.Info("settings watcher: external edit applied", "path", w.store.path)
	w.store.replace(s)
}
