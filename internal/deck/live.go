package deck

import (
	"sync"
	"time"
)

// liveBuffer holds the in-progress dictation line. The phone streams a
// full replacement on every recognition update, often dozens per second,
// so publications are debounced: each write restarts a short timer and
// only the latest text is published when it fires (trailing edge,
// last-write-wins).
type liveBuffer struct {
	mu      sync.Mutex
	text    string
	pending *time.Timer
	delay   time.Duration
	publish func(string)
}

func newLiveBuffer(delay time.Duration, publish func(string)) *liveBuffer {
	return &liveBuffer{
		delay:   delay,
		publish: publish,
	}
}

// set replaces the buffer content and schedules a debounced publication.
func (l *liveBuffer) set(text string) {
	l.mu.Lock()
	l.text = text
	if l.pending != nil {
		l.pending.Stop()
	}
	l.pending = time.AfterFunc(l.delay, l.flush)
	l.mu.Unlock()
}

// clear empties the buffer and publishes immediately, bypassing the
// debounce: a finalized segment must not leave a stale live line visible
// for even one debounce interval.
func (l *liveBuffer) clear() {
	l.mu.Lock()
	l.text = ""
	if l.pending != nil {
		l.pending.Stop()
		l.pending = nil
	}
	l.mu.Unlock()
	l.publish("")
}

// flush publishes the latest text.
func (l *liveBuffer) flush() {
	l.mu.Lock()
	text := l.text
	l.pending = nil
	l.mu.Unlock()
	l.publish(text)
}

// current returns the buffer content without waiting for the debounce.
func (l *liveBuffer) current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.text
}

// stop cancels any pending publication.
func (l *liveBuffer) stop() {
	l.mu.Lock()
	if l.pending != nil {
		l.pending.Stop()
		l.pending = nil
	}
	l.mu.Unlock()
}
