// Package deck holds the dictation session state on the PC side: the live
// (in-progress) line and the bounded history of finalized cards, together
// with the per-card state machine for editing and AI correction.
//
// The deck owns no rendering. Every observable change is published on the
// bus as an immutable snapshot; the display layer subscribes and redraws.
package deck

import "fmt"

// CardState tracks what a card is currently doing. Editing and Correcting
// are mutually exclusive: a card can be claimed by exactly one of them,
// and the other entry point is refused until the card returns to
// Committed.
type CardState int

const (
	// Committed is the resting state: the text is final and copyable.
	Committed CardState = iota

	// Editing means the user is rewriting the text; a snapshot of the
	// committed text is retained for revert.
	Editing

	// Correcting means an AI correction stream is rewriting the text; the
	// pre-correction text is retained for revert.
	Correcting
)

// String returns a human-readable state label.
func (s CardState) String() string {
	switch s {
	case Editing:
		return "editing"
	case Correcting:
		return "correcting"
	default:
		return "committed"
	}
}

// Card is a snapshot of one finalized dictation segment. Values published
// on the bus are copies; mutate only through the [Deck] operations.
type Card struct {
	// ID identifies the card for the lifetime of the process.
	ID int

	// Text is the committed text.
	Text string

	// State is the card's current mode.
	State CardState

	// Partial is the correction text streamed so far. Only meaningful
	// while State is Correcting.
	Partial string

	// snapshot preserves the text to revert to when an edit or correction
	// is abandoned.
	snapshot string
}

// ErrCardBusy is returned when an operation needs a Committed card but the
// card is currently claimed by editing or correction.
type ErrCardBusy struct {
	ID    int
	State CardState
}

func (e *ErrCardBusy) Error() string {
	return fmt.Sprintf("deck: card %d is %s", e.ID, e.State)
}

// ErrNoCard is returned when the referenced card does not exist (it may
// have been evicted from the history).
type ErrNoCard struct {
	ID int
}

func (e *ErrNoCard) Error() string {
	return fmt.Sprintf("deck: no card %d", e.ID)
}
