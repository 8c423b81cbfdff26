package deck

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"lanpad/internal/bus"
	"lanpad/internal/clip"
	"lanpad/internal/feed"
	"lanpad/internal/observe"
)

// Bus topics published by the deck.
const (
	// TopicLive carries the debounced live line (string).
	TopicLive = "deck:live"

	// TopicCards carries the full card list as []Card, newest first,
	// after any card change. The list is bounded, so republishing it
	// whole keeps subscribers trivially consistent across evictions.
	TopicCards = "deck:cards"

	// TopicCopied carries a [CopiedEvent] after a clipboard write attempt.
	TopicCopied = "deck:copied"

	// TopicAssist carries a bool: whether the connection-assist surface
	// (server address for pairing a phone) should be visible.
	TopicAssist = "deck:assist"
)

// CopiedEvent reports a clipboard write attempt for a card.
type CopiedEvent struct {
	CardID int
	OK     bool
}

// Deck is the session controller: it dispatches push-channel messages into
// live-line and card mutations and exposes the card operations invoked by
// the user (copy, edit) and by the correction gateway.
//
// All methods are safe for concurrent use.
type Deck struct {
	bus     *bus.Bus
	clip    *clip.Writer
	metrics *observe.Metrics

	live  *liveBuffer
	cards *history

	mu     sync.Mutex // serializes card state transitions
	nextID int
}

// Config configures a [Deck].
type Config struct {
	// Bus receives all deck topics. Must not be nil.
	Bus *bus.Bus

	// Clipboard performs the copy-on-finalize writes. Must not be nil.
	Clipboard *clip.Writer

	// HistorySize caps retained cards. Defaults to 50 if zero.
	HistorySize int

	// LiveDebounce is the live-line debounce interval. Defaults to 50ms
	// if zero.
	LiveDebounce time.Duration

	// Metrics records deck activity. May be nil.
	Metrics *observe.Metrics
}

// New creates a ready deck.
func New(cfg Config) *Deck {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	if cfg.LiveDebounce <= 0 {
		cfg.LiveDebounce = 50 * time.Millisecond
	}

	d := &Deck{
		bus:     cfg.Bus,
		clip:    cfg.Clipboard,
		metrics: cfg.Metrics,
		cards:   newHistory(cfg.HistorySize),
		nextID:  1,
	}
	d.live = newLiveBuffer(cfg.LiveDebounce, func(text string) {
		d.bus.Publish(TopicLive, text)
	})
	return d
}

// Close cancels pending timers.
func (d *Deck) Close() error {
	d.live.stop()
	return nil
}

// HandleMessage dispatches one push-channel message. Unknown types are
// logged and dropped.
func (d *Deck) HandleMessage(msg feed.Message) {
	switch msg.Type {
	case feed.MsgText:
		if d.metrics != nil {
			d.metrics.LiveUpdates.Add(context.Background(), 1)
		}
		d.live.set(msg.Data)

	case feed.MsgSegment:
		// The segment finalizes whatever the live line currently holds;
		// the message payload is only the phone's echo of it.
		text := d.live.current()
		d.live.clear()
		d.addCard(text, "segment")

	case feed.MsgCard:
		d.addCard(msg.Data, "card")

	case feed.MsgClearInput:
		d.live.clear()

	case feed.MsgShowQR:
		d.bus.Publish(TopicAssist, msg.Data == "true")

	case feed.MsgConnected:
		slog.Debug("deck: peer connected", "data", msg.Data)

	default:
		slog.Warn("deck: dropping message of unknown type", "type", msg.Type)
	}
}

// Live returns the current live line (not waiting for the debounce).
func (d *Deck) Live() string {
	return d.live.current()
}

// Cards returns value copies of all cards, newest first.
func (d *Deck) Cards() []Card {
	return d.cards.snapshot()
}

// addCard finalizes text into a new committed card and copies it to the
// clipboard. Empty or all-whitespace text is ignored.
func (d *Deck) addCard(text, source string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	d.mu.Lock()
	c := &Card{ID: d.nextID, Text: text}
	d.nextID++
	d.cards.add(c)
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.CardsCreated.Add(context.Background(), 1,
			metric.WithAttributes(observe.Attr("source", source)))
	}

	d.publishCards()
	d.copyText(c.ID, text)
}

// CopyCard copies a committed card's text to the clipboard (the card
// activation action).
func (d *Deck) CopyCard(id int) error {
	d.mu.Lock()
	c := d.cards.get(id)
	if c == nil {
		d.mu.Unlock()
		return &ErrNoCard{ID: id}
	}
	if c.State != Committed {
		state := c.State
		d.mu.Unlock()
		return &ErrCardBusy{ID: id, State: state}
	}
	text := c.Text
	d.mu.Unlock()

	d.copyText(id, text)
	return nil
}

// StartEdit moves a committed card into editing, snapshotting its text for
// revert. Refused while the card is correcting.
func (d *Deck) StartEdit(id int) (Card, error) {
	d.mu.Lock()
	c := d.cards.get(id)
	if c == nil {
		d.mu.Unlock()
		return Card{}, &ErrNoCard{ID: id}
	}
	if c.State != Committed {
		state := c.State
		d.mu.Unlock()
		return Card{}, &ErrCardBusy{ID: id, State: state}
	}

	c.State = Editing
	c.snapshot = c.Text
	snap := *c
	d.mu.Unlock()

	d.publishCards()
	return snap, nil
}

// CancelEdit reverts an editing card to its snapshot (the Escape action).
func (d *Deck) CancelEdit(id int) {
	d.mu.Lock()
	c := d.cards.get(id)
	if c == nil || c.State != Editing {
		d.mu.Unlock()
		return
	}
	c.Text = c.snapshot
	c.State = Committed
	c.snapshot = ""
	d.mu.Unlock()

	d.publishCards()
}

// CommitEdit finishes an edit. Changed non-empty text is committed,
// re-highlighted by subscribers, and copied to the clipboard; unchanged or
// empty text reverts to the snapshot.
func (d *Deck) CommitEdit(id int, newText string) {
	d.mu.Lock()
	c := d.cards.get(id)
	if c == nil || c.State != Editing {
		d.mu.Unlock()
		return
	}

	changed := newText != "" && newText != c.snapshot
	if changed {
		c.Text = newText
	} else {
		c.Text = c.snapshot
	}
	c.State = Committed
	c.snapshot = ""
	d.mu.Unlock()

	if d.metrics != nil && changed {
		d.metrics.CardsCreated.Add(context.Background(), 1,
			metric.WithAttributes(observe.Attr("source", "edit")))
	}

	d.publishCards()
	if changed {
		d.copyText(id, newText)
	}
}

// BeginCorrection claims a committed card for an AI correction and returns
// its current text. Refused while the card is editing or already
// correcting.
func (d *Deck) BeginCorrection(id int) (string, error) {
	d.mu.Lock()
	c := d.cards.get(id)
	if c == nil {
		d.mu.Unlock()
		return "", &ErrNoCard{ID: id}
	}
	if c.State != Committed {
		state := c.State
		d.mu.Unlock()
		return "", &ErrCardBusy{ID: id, State: state}
	}

	c.State = Correcting
	c.snapshot = c.Text
	c.Partial = ""
	text := c.Text
	d.mu.Unlock()

	d.publishCards()
	return text, nil
}

// CorrectionPartial records streamed correction text on the card.
func (d *Deck) CorrectionPartial(id int, partial string) {
	d.mu.Lock()
	c := d.cards.get(id)
	if c == nil || c.State != Correcting {
		d.mu.Unlock()
		return
	}
	c.Partial = partial
	d.mu.Unlock()

	d.publishCards()
}

// CorrectionSucceeded commits the corrected text and copies it to the
// clipboard.
func (d *Deck) CorrectionSucceeded(id int, corrected string) {
	d.mu.Lock()
	c := d.cards.get(id)
	if c == nil || c.State != Correcting {
		d.mu.Unlock()
		return
	}
	c.Text = corrected
	c.State = Committed
	c.Partial = ""
	c.snapshot = ""
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.CardsCreated.Add(context.Background(), 1,
			metric.WithAttributes(observe.Attr("source", "correction")))
	}

	d.publishCards()
	d.copyText(id, corrected)
}

// CorrectionFailed reverts the card to its pre-correction text.
func (d *Deck) CorrectionFailed(id int) {
	d.mu.Lock()
	c := d.cards.get(id)
	if c == nil || c.State != Correcting {
		d.mu.Unlock()
		return
	}
	c.Text = c.snapshot
	c.State = Committed
	c.Partial = ""
	c.snapshot = ""
	d.mu.Unlock()

	d.publishCards()
}

// publishCards publishes the full card list snapshot.
func (d *Deck) publishCards() {
	d.bus.Publish(TopicCards, d.cards.snapshot())
}

// copyText performs a best-effort clipboard write and reports the outcome.
func (d *Deck) copyText(cardID int, text string) {
	ok := d.clip.Copy(text)
	d.bus.Publish(TopicCopied, CopiedEvent{CardID: cardID, OK: ok})
}
