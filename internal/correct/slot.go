package correct

import (
	"context"
	"errors"
	"sync"
)

// Kind names the operation holding the single-flight slot.
type Kind string

const (
	// KindTest is the connectivity probe.
	KindTest Kind = "test"

	// KindCorrection is a card correction.
	KindCorrection Kind = "correction"
)

// ErrBusy is returned when an operation is already in flight. Tests,
// corrections, and auto-submissions all contend for the same slot.
var ErrBusy = errors.New("correct: an operation is already in flight")

// ErrSuperseded is returned when the slot was acquired but the card was
// claimed by another actor (an edit, typically) before the operation could
// start.
var ErrSuperseded = errors.New("correct: card was claimed by another operation")

// token identifies one registered operation. Comparing pointers makes
// release idempotent: a stale token no longer held by the slot is a no-op.
type token struct {
	kind   Kind
	cardID int
	cancel context.CancelFunc
}

// slot is the single-flight register. At most one operation holds it at a
// time, regardless of kind.
type slot struct {
	mu     sync.Mutex
	active *token
}

// acquire registers an operation, or fails with [ErrBusy].
func (s *slot) acquire(kind Kind, cardID int, cancel context.CancelFunc) (*token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil, ErrBusy
	}
	t := &token{kind: kind, cardID: cardID, cancel: cancel}
	s.active = t
	return t, nil
}

// release frees the slot and cancels the operation's context. Safe to call
// more than once with the same token.
func (s *slot) release(t *token) {
	s.mu.Lock()
	if s.active == t {
		s.active = nil
	}
	s.mu.Unlock()
	t.cancel()
}

// busy reports whether an operation holds the slot.
func (s *slot) busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// cancelActive cancels the in-flight operation, if any. The operation
// itself releases the slot when it winds down.
func (s *slot) cancelActive() {
	s.mu.Lock()
	t := s.active
	s.mu.Unlock()
	if t != nil {
		t.cancel()
	}
}
