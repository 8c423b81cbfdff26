package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"lanpad/internal/bus"
	"lanpad/internal/correct"
	"lanpad/internal/deck"
	"lanpad/internal/feed"
	"lanpad/internal/settings"
)

// Bubbletea messages delivered through [Bridge]. The UI owns no domain
// state; everything it renders arrives as one of these.
type (
	// StatusMsg carries the push-channel connection state.
	StatusMsg struct{ Status feed.Status }

	// LiveMsg carries the debounced live line.
	LiveMsg struct{ Text string }

	// CardsMsg carries the full card list, newest first.
	CardsMsg struct{ Cards []deck.Card }

	// CopiedMsg reports a clipboard write attempt.
	CopiedMsg struct{ Event deck.CopiedEvent }

	// AssistMsg toggles the connection-assist panel.
	AssistMsg struct{ Show bool }

	// CorrectionStartMsg, CorrectionDoneMsg, and CorrectionFailedMsg
	// report card corrections.
	CorrectionStartMsg  struct{ Event correct.StartEvent }
	CorrectionDoneMsg   struct{ Event correct.DoneEvent }
	CorrectionFailedMsg struct{ Event correct.FailedEvent }

	// TestStartMsg, TestDoneMsg, and TestFailedMsg report the provider
	// connectivity probe.
	TestStartMsg  struct{ Provider string }
	TestDoneMsg   struct{ Result correct.TestResult }
	TestFailedMsg struct{ Event correct.FailedEvent }

	// SettingsMsg carries a fresh settings snapshot.
	SettingsMsg struct{ Settings settings.Settings }

	// NoticeMsg shows a notice; transient notices expire after a short
	// interval, persistent ones stay until replaced.
	NoticeMsg struct {
		Text       string
		Persistent bool
	}

	// noticeExpireMsg clears the transient notice identified by seq.
	noticeExpireMsg struct{ seq int }
)

// Sender is the slice of *tea.Program the bridge needs.
type Sender interface {
	Send(tea.Msg)
}

// Bridge forwards bus topics into a running bubbletea program. Returns an
// unsubscribe function detaching all handlers.
func Bridge(b *bus.Bus, p Sender) func() {
	unsubs := []func(){
		b.Subscribe(feed.TopicStatus, func(v any) {
			p.Send(StatusMsg{Status: v.(feed.Status)})
		}),
		b.Subscribe(deck.TopicLive, func(v any) {
			p.Send(LiveMsg{Text: v.(string)})
		}),
		b.Subscribe(deck.TopicCards, func(v any) {
			p.Send(CardsMsg{Cards: v.([]deck.Card)})
		}),
		b.Subscribe(deck.TopicCopied, func(v any) {
			p.Send(CopiedMsg{Event: v.(deck.CopiedEvent)})
		}),
		b.Subscribe(deck.TopicAssist, func(v any) {
			p.Send(AssistMsg{Show: v.(bool)})
		}),
		b.Subscribe(correct.TopicStart, func(v any) {
			p.Send(CorrectionStartMsg{Event: v.(correct.StartEvent)})
		}),
		b.Subscribe(correct.TopicDone, func(v any) {
			p.Send(CorrectionDoneMsg{Event: v.(correct.DoneEvent)})
		}),
		b.Subscribe(correct.TopicFailed, func(v any) {
			p.Send(CorrectionFailedMsg{Event: v.(correct.FailedEvent)})
		}),
		b.Subscribe(correct.TopicTestStart, func(v any) {
			p.Send(TestStartMsg{Provider: v.(string)})
		}),
		b.Subscribe(correct.TopicTestDone, func(v any) {
			p.Send(TestDoneMsg{Result: v.(correct.TestResult)})
		}),
		b.Subscribe(correct.TopicTestFailed, func(v any) {
			p.Send(TestFailedMsg{Event: v.(correct.FailedEvent)})
		}),
		b.Subscribe(settings.TopicChanged, func(v any) {
			p.Send(SettingsMsg{Settings: v.(settings.Settings)})
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
