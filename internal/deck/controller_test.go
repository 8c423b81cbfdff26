package deck

import (
	"sync"
	"testing"
	"time"

	"lanpad/internal/bus"
	"lanpad/internal/clip"
	"lanpad/internal/feed"
)

// testRig wires a deck with a captured clipboard and recorded bus traffic.
type testRig struct {
	deck *Deck
	bus  *bus.Bus

	mu       sync.Mutex
	copied   []string
	lives    []string
	cardPubs [][]Card
}

func newRig(t *testing.T, opts ...func(*Config)) *testRig {
	t.Helper()
	r := &testRig{bus: bus.New()}

	cfg := Config{
		Bus: r.bus,
		Clipboard: clip.New(nil, clip.WithWriteFunc(func(s string) error {
			r.mu.Lock()
			r.copied = append(r.copied, s)
			r.mu.Unlock()
			return nil
		})),
		LiveDebounce: 10 * time.Millisecond,
	}
	for _, o := range opts {
		o(&cfg)
	}

	r.bus.Subscribe(TopicLive, func(p any) {
		r.mu.Lock()
		r.lives = append(r.lives, p.(string))
		r.mu.Unlock()
	})
	r.bus.Subscribe(TopicCards, func(p any) {
		r.mu.Lock()
		r.cardPubs = append(r.cardPubs, p.([]Card))
		r.mu.Unlock()
	})

	r.deck = New(cfg)
	t.Cleanup(func() { r.deck.Close() })
	return r
}

func (r *testRig) copiedTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.copied))
	copy(out, r.copied)
	return out
}

func (r *testRig) liveTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lives))
	copy(out, r.lives)
	return out
}

func (r *testRig) addCard(t *testing.T, text string) Card {
	t.Helper()
	r.deck.HandleMessage(feed.Message{Type: feed.MsgCard, Data: text})
	cards := r.deck.Cards()
	if len(cards) == 0 {
		t.Fatalf("card %q not added", text)
	}
	return cards[0]
}

func TestLiveDebounce(t *testing.T) {
	r := newRig(t)

	// A burst of updates publishes only the last one.
	r.deck.HandleMessage(feed.Message{Type: feed.MsgText, Data: "你"})
	r.deck.HandleMessage(feed.Message{Type: feed.MsgText, Data: "你好"})
	r.deck.HandleMessage(feed.Message{Type: feed.MsgText, Data: "你好世"})

	time.Sleep(50 * time.Millisecond)

	lives := r.liveTexts()
	if len(lives) != 1 || lives[0] != "你好世" {
		t.Fatalf("lives = %v", lives)
	}
	if got := r.deck.Live(); got != "你好世" {
		t.Fatalf("Live() = %q", got)
	}
}

func TestSegmentFinalizesLiveLine(t *testing.T) {
	r := newRig(t)

	r.deck.HandleMessage(feed.Message{Type: feed.MsgText, Data: "正在说话"})
	// The card is built from the live line, not from the segment payload.
	r.deck.HandleMessage(feed.Message{Type: feed.MsgSegment, Data: "过期的回显"})

	if got := r.deck.Live(); got != "" {
		t.Fatalf("live = %q after segment", got)
	}
	cards := r.deck.Cards()
	if len(cards) != 1 || cards[0].Text != "正在说话" || cards[0].State != Committed {
		t.Fatalf("cards = %+v", cards)
	}
	if copied := r.copiedTexts(); len(copied) != 1 || copied[0] != "正在说话" {
		t.Fatalf("copied = %v", copied)
	}

	// The live line cleared immediately, without waiting for the debounce.
	lives := r.liveTexts()
	if len(lives) == 0 || lives[len(lives)-1] != "" {
		t.Fatalf("lives = %v, want trailing empty publication", lives)
	}
}

func TestSegmentWithBlankLiveLineMakesNoCard(t *testing.T) {
	r := newRig(t)

	t.Run("empty live line", func(t *testing.T) {
		r.deck.HandleMessage(feed.Message{Type: feed.MsgSegment, Data: "幽灵文本"})
		if got := len(r.deck.Cards()); got != 0 {
			t.Fatalf("cards = %d, want none", got)
		}
	})

	t.Run("whitespace live line", func(t *testing.T) {
		r.deck.HandleMessage(feed.Message{Type: feed.MsgText, Data: " \n "})
		r.deck.HandleMessage(feed.Message{Type: feed.MsgSegment, Data: " \n "})

		if got := len(r.deck.Cards()); got != 0 {
			t.Fatalf("cards = %d, want none", got)
		}
		if got := r.deck.Live(); got != "" {
			t.Fatalf("live = %q, want cleared", got)
		}
	})

	if copied := r.copiedTexts(); len(copied) != 0 {
		t.Fatalf("copied = %v, want nothing", copied)
	}
}

func TestClearInput(t *testing.T) {
	r := newRig(t)

	r.deck.HandleMessage(feed.Message{Type: feed.MsgText, Data: "xx"})
	r.deck.HandleMessage(feed.Message{Type: feed.MsgClearInput})

	if got := r.deck.Live(); got != "" {
		t.Fatalf("live = %q", got)
	}
	if len(r.deck.Cards()) != 0 {
		t.Fatal("clear_input must not create cards")
	}
}

func TestBlankCardIgnored(t *testing.T) {
	r := newRig(t)
	for _, data := range []string{"", "   ", "\n\t"} {
		r.deck.HandleMessage(feed.Message{Type: feed.MsgCard, Data: data})
	}
	if len(r.deck.Cards()) != 0 {
		t.Fatal("blank card added")
	}
}

func TestUnknownMessageTypeDropped(t *testing.T) {
	r := newRig(t)
	r.deck.HandleMessage(feed.Message{Type: "telemetry", Data: "x"})
	if len(r.deck.Cards()) != 0 || r.deck.Live() != "" {
		t.Fatal("unknown type mutated state")
	}
}

func TestHistoryEviction(t *testing.T) {
	r := newRig(t, func(c *Config) { c.HistorySize = 3 })

	for _, text := range []string{"一", "二", "三", "四"} {
		r.deck.HandleMessage(feed.Message{Type: feed.MsgCard, Data: text})
	}

	cards := r.deck.Cards()
	if len(cards) != 3 {
		t.Fatalf("len = %d", len(cards))
	}
	// Newest first; the oldest ("一") is gone.
	if cards[0].Text != "四" || cards[2].Text != "二" {
		t.Fatalf("cards = %+v", cards)
	}
}

func TestAssistToggle(t *testing.T) {
	r := newRig(t)

	var got []bool
	r.bus.Subscribe(TopicAssist, func(p any) { got = append(got, p.(bool)) })

	r.deck.HandleMessage(feed.Message{Type: feed.MsgShowQR, Data: "true"})
	r.deck.HandleMessage(feed.Message{Type: feed.MsgShowQR, Data: "false"})

	if len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("assist = %v", got)
	}
}

func TestCopyCard(t *testing.T) {
	r := newRig(t)
	card := r.addCard(t, "复制我")

	if err := r.deck.CopyCard(card.ID); err != nil {
		t.Fatal(err)
	}
	copied := r.copiedTexts()
	// Once on finalize, once on activation.
	if len(copied) != 2 || copied[1] != "复制我" {
		t.Fatalf("copied = %v", copied)
	}

	if err := r.deck.CopyCard(999); err == nil {
		t.Fatal("expected error for unknown card")
	}
}

func TestEditLifecycle(t *testing.T) {
	t.Run("commit with changed text", func(t *testing.T) {
		r := newRig(t)
		card := r.addCard(t, "原文")

		if _, err := r.deck.StartEdit(card.ID); err != nil {
			t.Fatal(err)
		}
		r.deck.CommitEdit(card.ID, "改过的文本")

		got := r.deck.Cards()[0]
		if got.Text != "改过的文本" || got.State != Committed {
			t.Fatalf("card = %+v", got)
		}
		copied := r.copiedTexts()
		if copied[len(copied)-1] != "改过的文本" {
			t.Fatalf("copied = %v", copied)
		}
	})

	t.Run("cancel reverts to snapshot", func(t *testing.T) {
		r := newRig(t)
		card := r.addCard(t, "原文")

		if _, err := r.deck.StartEdit(card.ID); err != nil {
			t.Fatal(err)
		}
		r.deck.CancelEdit(card.ID)

		got := r.deck.Cards()[0]
		if got.Text != "原文" || got.State != Committed {
			t.Fatalf("card = %+v", got)
		}
	})

	t.Run("commit with unchanged or empty text reverts", func(t *testing.T) {
		r := newRig(t)
		card := r.addCard(t, "原文")
		before := len(r.copiedTexts())

		for _, commit := range []string{"原文", ""} {
			if _, err := r.deck.StartEdit(card.ID); err != nil {
				t.Fatal(err)
			}
			r.deck.CommitEdit(card.ID, commit)

			got := r.deck.Cards()[0]
			if got.Text != "原文" || got.State != Committed {
				t.Fatalf("commit %q: card = %+v", commit, got)
			}
		}
		if got := len(r.copiedTexts()); got != before {
			t.Fatalf("reverting commits touched the clipboard: %d -> %d", before, got)
		}
	})

	t.Run("double start refused", func(t *testing.T) {
		r := newRig(t)
		card := r.addCard(t, "原文")

		if _, err := r.deck.StartEdit(card.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := r.deck.StartEdit(card.ID); err == nil {
			t.Fatal("second StartEdit succeeded")
		}
	})
}

func TestCorrectionLifecycle(t *testing.T) {
	t.Run("success commits and copies", func(t *testing.T) {
		r := newRig(t)
		card := r.addCard(t, "带带错字")

		text, err := r.deck.BeginCorrection(card.ID)
		if err != nil {
			t.Fatal(err)
		}
		if text != "带带错字" {
			t.Fatalf("text = %q", text)
		}

		r.deck.CorrectionPartial(card.ID, "带")
		r.deck.CorrectionPartial(card.ID, "带错")
		if got := r.deck.Cards()[0]; got.State != Correcting || got.Partial != "带错" {
			t.Fatalf("card = %+v", got)
		}

		r.deck.CorrectionSucceeded(card.ID, "改好的字")
		got := r.deck.Cards()[0]
		if got.Text != "改好的字" || got.State != Committed || got.Partial != "" {
			t.Fatalf("card = %+v", got)
		}
		copied := r.copiedTexts()
		if copied[len(copied)-1] != "改好的字" {
			t.Fatalf("copied = %v", copied)
		}
	})

	t.Run("failure reverts", func(t *testing.T) {
		r := newRig(t)
		card := r.addCard(t, "原文")

		if _, err := r.deck.BeginCorrection(card.ID); err != nil {
			t.Fatal(err)
		}
		r.deck.CorrectionPartial(card.ID, "半成")
		r.deck.CorrectionFailed(card.ID)

		got := r.deck.Cards()[0]
		if got.Text != "原文" || got.State != Committed || got.Partial != "" {
			t.Fatalf("card = %+v", got)
		}
	})

	t.Run("editing and correcting are mutually exclusive", func(t *testing.T) {
		r := newRig(t)
		card := r.addCard(t, "原文")

		if _, err := r.deck.StartEdit(card.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := r.deck.BeginCorrection(card.ID); err == nil {
			t.Fatal("correction started on an editing card")
		}
		r.deck.CancelEdit(card.ID)

		if _, err := r.deck.BeginCorrection(card.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := r.deck.StartEdit(card.ID); err == nil {
			t.Fatal("edit started on a correcting card")
		}
	})
}
