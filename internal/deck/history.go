package deck

import "sync"

// history is a bounded ring of cards. Adding beyond the limit evicts the
// oldest entry. Evicted cards are dropped from a fresh backing array so
// they can be garbage collected.
//
// All methods are safe for concurrent use, but compound card mutations are
// serialized by the owning [Deck].
type history struct {
	mu      sync.RWMutex
	cards   []*Card
	maxSize int
}

func newHistory(maxSize int) *history {
	return &history{
		cards:   make([]*Card, 0, maxSize),
		maxSize: maxSize,
	}
}

// add appends a card, evicting the oldest entries beyond the size limit.
func (h *history) add(c *Card) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cards = append(h.cards, c)
	if len(h.cards) > h.maxSize {
		keep := h.cards[len(h.cards)-h.maxSize:]
		fresh := make([]*Card, len(keep), h.maxSize)
		copy(fresh, keep)
		h.cards = fresh
	}
}

// get returns the card with the given ID, or nil.
func (h *history) get(id int) *Card {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.cards {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// snapshot returns value copies of all cards, newest first.
func (h *history) snapshot() []Card {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Card, 0, len(h.cards))
	for i := len(h.cards) - 1; i >= 0; i-- {
		out = append(out, *h.cards[i])
	}
	return out
}
