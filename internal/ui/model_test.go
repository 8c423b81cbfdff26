package ui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	gateway "lanpad/internal/correct"
	"lanpad/internal/deck"
	"lanpad/internal/feed"
	"lanpad/internal/settings"
	"lanpad/pkg/provider/correct"
)

// fakeActions records invocations and returns scripted errors.
type fakeActions struct {
	copied    []int
	edited    []int
	canceled  []int
	committed map[int]string
	corrected []int

	copyErr    error
	correctErr error

	testCalls      int
	cancelCalls    int
	reconnectCalls int
	snapshot       settings.Settings
}

func newFakeActions() *fakeActions {
	return &fakeActions{
		committed: make(map[int]string),
		snapshot:  settings.Default(),
	}
}

func (f *fakeActions) CopyCard(id int) error {
	f.copied = append(f.copied, id)
	return f.copyErr
}

func (f *fakeActions) StartEdit(id int) (deck.Card, error) {
	f.edited = append(f.edited, id)
	return deck.Card{ID: id, Text: "原文", State: deck.Editing}, nil
}

func (f *fakeActions) CancelEdit(id int) { f.canceled = append(f.canceled, id) }

func (f *fakeActions) CommitEdit(id int, text string) { f.committed[id] = text }

func (f *fakeActions) Correct(_ context.Context, id int) error {
	f.corrected = append(f.corrected, id)
	return f.correctErr
}

func (f *fakeActions) CancelCorrection() { f.cancelCalls++ }

func (f *fakeActions) Test(context.Context) error {
	f.testCalls++
	return nil
}

func (f *fakeActions) Reconnect(context.Context) error {
	f.reconnectCalls++
	return nil
}

func (f *fakeActions) UpdateSettings(mutate func(*settings.Settings)) error {
	mutate(&f.snapshot)
	return nil
}

func newTestModel(acts Actions) Model {
	return New(Config{
		Actions:   acts,
		ServerURL: "http://192.168.1.5:3000",
		Settings:  settings.Default(),
	})
}

func key(s string) tea.KeyMsg {
	if len(s) == 1 {
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	panic("unknown key " + s)
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestSelectionFollowsCardList(t *testing.T) {
	m := newTestModel(newFakeActions())

	m = update(t, m, CardsMsg{Cards: []deck.Card{{ID: 3}, {ID: 2}, {ID: 1}}})
	m = update(t, m, key("down"))
	m = update(t, m, key("down"))
	if m.selected != 2 {
		t.Fatalf("selected = %d", m.selected)
	}
	m = update(t, m, key("down"))
	if m.selected != 2 {
		t.Fatal("selection ran past the end")
	}

	// The list shrank; the cursor clamps.
	m = update(t, m, CardsMsg{Cards: []deck.Card{{ID: 3}}})
	if m.selected != 0 {
		t.Fatalf("selected = %d after shrink", m.selected)
	}
}

func TestCopySelectedCard(t *testing.T) {
	acts := newFakeActions()
	m := newTestModel(acts)

	m = update(t, m, CardsMsg{Cards: []deck.Card{{ID: 9, Text: "你好"}}})
	update(t, m, key("enter"))

	if len(acts.copied) != 1 || acts.copied[0] != 9 {
		t.Fatalf("copied = %v", acts.copied)
	}
}

func TestEditFlow(t *testing.T) {
	t.Run("commit", func(t *testing.T) {
		acts := newFakeActions()
		m := newTestModel(acts)
		m = update(t, m, CardsMsg{Cards: []deck.Card{{ID: 4, Text: "原文"}}})

		m = update(t, m, key("e"))
		if !m.editing || m.editID != 4 {
			t.Fatalf("editing = %v id = %d", m.editing, m.editID)
		}

		m.input.SetValue("新文本")
		m = update(t, m, key("enter"))
		if m.editing {
			t.Fatal("still editing after commit")
		}
		if acts.committed[4] != "新文本" {
			t.Fatalf("committed = %v", acts.committed)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		acts := newFakeActions()
		m := newTestModel(acts)
		m = update(t, m, CardsMsg{Cards: []deck.Card{{ID: 4, Text: "原文"}}})

		m = update(t, m, key("e"))
		m = update(t, m, key("esc"))
		if m.editing {
			t.Fatal("still editing after cancel")
		}
		if len(acts.canceled) != 1 || acts.canceled[0] != 4 {
			t.Fatalf("canceled = %v", acts.canceled)
		}
	})
}

func TestCorrectionKeysAndNotices(t *testing.T) {
	acts := newFakeActions()
	m := newTestModel(acts)
	m = update(t, m, CardsMsg{Cards: []deck.Card{{ID: 1, Text: "文本"}}})

	m = update(t, m, key("a"))
	if len(acts.corrected) != 1 || acts.corrected[0] != 1 {
		t.Fatalf("corrected = %v", acts.corrected)
	}

	m = update(t, m, CorrectionStartMsg{Event: gateway.StartEvent{CardID: 1, Provider: "zhipu"}})
	if !m.busy {
		t.Fatal("not busy during correction")
	}
	m = update(t, m, CorrectionFailedMsg{Event: gateway.FailedEvent{
		CardID:  1,
		Failure: &correct.Failure{Kind: correct.KindHTTPStatus, Provider: "zhipu", Status: 401},
	}})
	if m.busy {
		t.Fatal("still busy after failure")
	}
	if !strings.Contains(m.notice, "401") {
		t.Fatalf("notice = %q", m.notice)
	}
}

func TestBusyErrorBecomesNotice(t *testing.T) {
	acts := newFakeActions()
	acts.correctErr = gateway.ErrBusy
	m := newTestModel(acts)
	m = update(t, m, CardsMsg{Cards: []deck.Card{{ID: 1, Text: "文本"}}})

	m = update(t, m, key("a"))
	if m.notice == "" {
		t.Fatal("busy error produced no notice")
	}
}

func TestNoticeExpiry(t *testing.T) {
	m := newTestModel(newFakeActions())

	m = update(t, m, NoticeMsg{Text: "第一条"})
	seq := m.noticeSeq
	m = update(t, m, NoticeMsg{Text: "第二条"})

	// A stale expiry must not clear a newer notice.
	m = update(t, m, noticeExpireMsg{seq: seq})
	if m.notice != "第二条" {
		t.Fatalf("notice = %q", m.notice)
	}
	m = update(t, m, noticeExpireMsg{seq: m.noticeSeq})
	if m.notice != "" {
		t.Fatalf("notice = %q after expiry", m.notice)
	}
}

func TestPersistentNoticeSurvivesExpiry(t *testing.T) {
	m := newTestModel(newFakeActions())
	m = update(t, m, NoticeMsg{Text: "设置文件已失效", Persistent: true})
	m = update(t, m, noticeExpireMsg{seq: m.noticeSeq})
	if m.notice != "设置文件已失效" {
		t.Fatalf("notice = %q", m.notice)
	}
}

func TestModeAndProviderKeys(t *testing.T) {
	acts := newFakeActions()
	m := newTestModel(acts)

	update(t, m, key("m"))
	if acts.snapshot.CorrectionMode != settings.ModeAuto {
		t.Fatalf("mode = %s", acts.snapshot.CorrectionMode)
	}

	update(t, m, key("p"))
	if acts.snapshot.Provider != settings.ProviderIflow {
		t.Fatalf("provider = %s", acts.snapshot.Provider)
	}
}

func TestStreamedCorrectionTextIsHighlighted(t *testing.T) {
	// Make the duplicate style observable without a color-capable terminal.
	orig := styleDup
	styleDup = lipgloss.NewStyle().Transform(func(s string) string { return "«" + s + "»" })
	t.Cleanup(func() { styleDup = orig })

	m := newTestModel(newFakeActions())
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m = update(t, m, CardsMsg{Cards: []deck.Card{{
		ID:      1,
		Text:    "原文",
		State:   deck.Correcting,
		Partial: "修正正中",
	}}})

	if v := m.View(); !strings.Contains(v, "«正正»") {
		t.Fatalf("doubled run in streamed text not marked:\n%s", v)
	}
}

func TestViewShowsAssistWhenDisconnected(t *testing.T) {
	m := newTestModel(newFakeActions())
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})

	if v := m.View(); !strings.Contains(v, "http://192.168.1.5:3000") {
		t.Fatal("assist panel missing while disconnected with no cards")
	}

	m = update(t, m, AssistMsg{Show: false})
	m = update(t, m, StatusMsg{Status: feed.Open})
	m = update(t, m, CardsMsg{Cards: []deck.Card{{ID: 1, Text: "文本"}}})
	if v := m.View(); strings.Contains(v, "http://192.168.1.5:3000") {
		t.Fatal("assist panel shown while connected")
	}
}
