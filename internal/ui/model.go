// Package ui renders the dictation session in the terminal: connection
// status, the in-progress live line, the card history, and the correction
// and edit flows. It is a plain bubbletea program fed exclusively through
// [Bridge]; domain state lives in the deck and the gateway.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	gateway "lanpad/internal/correct"
	"lanpad/internal/deck"
	"lanpad/internal/feed"
	"lanpad/internal/highlight"
	"lanpad/internal/settings"
	"lanpad/pkg/provider/correct"
)

// noticeDuration is how long a transient notice stays visible.
const noticeDuration = 2 * time.Second

// Actions are the domain operations the UI can trigger. Implemented by the
// app wiring; faked in tests.
type Actions interface {
	CopyCard(id int) error
	StartEdit(id int) (deck.Card, error)
	CancelEdit(id int)
	CommitEdit(id int, text string)
	Correct(ctx context.Context, id int) error
	CancelCorrection()
	Test(ctx context.Context) error
	Reconnect(ctx context.Context) error
	UpdateSettings(mutate func(*settings.Settings)) error
}

// Model is the bubbletea model for the whole screen.
type Model struct {
	actions   Actions
	ctx       context.Context
	serverURL string

	status   feed.Status
	live     string
	cards    []deck.Card
	selected int
	assist   bool
	busy     bool

	provider string
	mode     settings.Mode

	editing bool
	editID  int
	input   textarea.Model

	notice           string
	noticePersistent bool
	noticeSeq        int

	width, height int
}

// Config configures a [Model].
type Config struct {
	// Actions performs the domain operations. Must not be nil.
	Actions Actions

	// Ctx is the lifetime context passed to domain operations.
	Ctx context.Context

	// ServerURL is shown in the connection-assist panel.
	ServerURL string

	// Settings seeds the status bar before the first settings event.
	Settings settings.Settings

	// Notice, if non-empty, is shown persistently from startup (e.g. a
	// settings-load warning).
	Notice string
}

// New builds the initial model.
func New(cfg Config) Model {
	if cfg.Ctx == nil {
		cfg.Ctx = context.Background()
	}

	input := textarea.New()
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(3)

	return Model{
		actions:          cfg.Actions,
		ctx:              cfg.Ctx,
		serverURL:        cfg.ServerURL,
		provider:         cfg.Settings.Provider,
		mode:             cfg.Settings.CorrectionMode,
		input:            input,
		notice:           cfg.Notice,
		noticePersistent: cfg.Notice != "",
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.SetWidth(msg.Width - 4)
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateEditing(msg)
		}
		return m.updateBrowsing(msg)

	case StatusMsg:
		m.status = msg.Status
		return m, nil

	case LiveMsg:
		m.live = msg.Text
		return m, nil

	case CardsMsg:
		m.cards = msg.Cards
		if m.selected >= len(m.cards) {
			m.selected = len(m.cards) - 1
		}
		if m.selected < 0 {
			m.selected = 0
		}
		return m, nil

	case CopiedMsg:
		if msg.Event.OK {
			return m.transientNotice("已复制到剪贴板")
		}
		return m.transientNotice("剪贴板写入失败")

	case AssistMsg:
		m.assist = msg.Show
		return m, nil

	case CorrectionStartMsg:
		m.busy = true
		return m.transientNotice(fmt.Sprintf("AI 修正中（%s）…", msg.Event.Provider))

	case CorrectionDoneMsg:
		m.busy = false
		return m.transientNotice("修正完成")

	case CorrectionFailedMsg:
		m.busy = false
		return m.transientNotice("修正失败：" + failureText(msg.Event.Failure))

	case TestStartMsg:
		m.busy = true
		return m.transientNotice(fmt.Sprintf("正在测试 %s …", msg.Provider))

	case TestDoneMsg:
		m.busy = false
		return m.transientNotice(fmt.Sprintf("%s 连接正常（%.1fs）", msg.Result.Provider, msg.Result.Elapsed.Seconds()))

	case TestFailedMsg:
		m.busy = false
		return m.transientNotice("测试失败：" + failureText(msg.Event.Failure))

	case SettingsMsg:
		m.provider = msg.Settings.Provider
		m.mode = msg.Settings.CorrectionMode
		return m, nil

	case NoticeMsg:
		if msg.Persistent {
			m.notice = msg.Text
			m.noticePersistent = true
			return m, nil
		}
		return m.transientNotice(msg.Text)

	case noticeExpireMsg:
		if msg.seq == m.noticeSeq && !m.noticePersistent {
			m.notice = ""
		}
		return m, nil
	}

	return m, nil
}

// updateBrowsing handles keys in the normal card-list mode.
func (m Model) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.selected < len(m.cards)-1 {
			m.selected++
		}

	case "enter":
		if c, ok := m.selectedCard(); ok {
			if err := m.actions.CopyCard(c.ID); err != nil {
				return m.transientNotice(opErrText(err))
			}
		}

	case "e":
		if c, ok := m.selectedCard(); ok {
			card, err := m.actions.StartEdit(c.ID)
			if err != nil {
				return m.transientNotice(opErrText(err))
			}
			m.editing = true
			m.editID = card.ID
			m.input.SetValue(card.Text)
			return m, m.input.Focus()
		}

	case "a":
		if c, ok := m.selectedCard(); ok {
			if err := m.actions.Correct(m.ctx, c.ID); err != nil {
				return m.transientNotice(opErrText(err))
			}
		}

	case "t":
		if err := m.actions.Test(m.ctx); err != nil {
			return m.transientNotice(opErrText(err))
		}

	case "c":
		m.actions.CancelCorrection()

	case "m":
		next := settings.ModeAuto
		if m.mode == settings.ModeAuto {
			next = settings.ModeManual
		}
		if err := m.actions.UpdateSettings(func(s *settings.Settings) {
			s.CorrectionMode = next
		}); err != nil {
			return m.transientNotice(opErrText(err))
		}

	case "p":
		next := nextProvider(m.provider)
		if err := m.actions.UpdateSettings(func(s *settings.Settings) {
			s.Provider = next
		}); err != nil {
			return m.transientNotice(opErrText(err))
		}

	case "R":
		if err := m.actions.Reconnect(m.ctx); err != nil {
			return m.transientNotice(opErrText(err))
		}
	}

	return m, nil
}

// updateEditing handles keys while the textarea owns the input.
func (m Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.actions.CancelEdit(m.editID)
		m.editing = false
		m.input.Blur()
		return m, nil

	case "enter":
		m.actions.CommitEdit(m.editID, strings.TrimSpace(m.input.Value()))
		m.editing = false
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.statusLine())
	b.WriteString("\n\n")

	b.WriteString(styleLiveLabel.Render("▌ "))
	if m.live != "" {
		b.WriteString(styleLive.Render(m.live))
	} else {
		b.WriteString(styleLiveLabel.Render("（等待语音输入）"))
	}
	b.WriteString("\n\n")

	if m.assist || (m.status != feed.Open && len(m.cards) == 0) {
		b.WriteString(styleAssist.Render("手机浏览器打开：" + m.serverURL))
		b.WriteString("\n\n")
	}

	b.WriteString(m.cardList())

	if m.notice != "" {
		b.WriteString("\n")
		if m.noticePersistent {
			b.WriteString(styleNoticePersistent.Render("⚠ " + m.notice))
		} else {
			b.WriteString(styleNotice.Render(m.notice))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.helpLine())
	return b.String()
}

// statusLine renders the connection / provider / mode bar.
func (m Model) statusLine() string {
	var status string
	switch m.status {
	case feed.Open:
		status = styleStatusOpen.Render("● 已连接")
	case feed.Connecting:
		status = styleStatusWaiting.Render("◌ 连接中…")
	default:
		status = styleStatusWaiting.Render("○ 等待重连…")
	}

	info := fmt.Sprintf("%s · %s", m.provider, m.mode)
	if m.busy {
		info += " · 忙"
	}
	return status + "  " + styleStatusProvider.Render(info)
}

// cardList renders the history, newest first, with the editing textarea
// inline on the card being edited.
func (m Model) cardList() string {
	if len(m.cards) == 0 {
		return styleHelp.Render("（暂无记录）") + "\n"
	}

	var b strings.Builder
	for i, c := range m.cards {
		marker := "  "
		base := styleCardText
		if i == m.selected {
			marker = "› "
			base = styleCardSelected
		}
		b.WriteString(marker)

		if m.editing && c.ID == m.editID {
			b.WriteString("\n")
			b.WriteString(m.input.View())
			b.WriteString("\n")
			continue
		}

		b.WriteString(renderHighlighted(c.Text, base))
		switch c.State {
		case deck.Correcting:
			b.WriteString(styleCardState.Render("  [修正中]"))
			if c.Partial != "" {
				b.WriteString("\n    ")
				b.WriteString(renderHighlighted(c.Partial, styleCardPartial))
			}
		case deck.Editing:
			b.WriteString(styleCardState.Render("  [编辑中]"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// helpLine renders the key legend for the current mode.
func (m Model) helpLine() string {
	if m.editing {
		return styleHelpKey.Render("enter") + styleHelp.Render(" 保存  ") +
			styleHelpKey.Render("esc") + styleHelp.Render(" 取消")
	}
	pairs := []struct{ key, label string }{
		{"↑/↓", "选择"},
		{"enter", "复制"},
		{"e", "编辑"},
		{"a", "AI修正"},
		{"t", "测试"},
		{"c", "取消"},
		{"m", "模式"},
		{"p", "服务商"},
		{"q", "退出"},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, styleHelpKey.Render(p.key)+styleHelp.Render(" "+p.label))
	}
	return strings.Join(parts, styleHelp.Render("  "))
}

// transientNotice shows text for [noticeDuration] and schedules its expiry.
func (m Model) transientNotice(text string) (Model, tea.Cmd) {
	m.notice = text
	m.noticePersistent = false
	m.noticeSeq++
	seq := m.noticeSeq
	return m, tea.Tick(noticeDuration, func(time.Time) tea.Msg {
		return noticeExpireMsg{seq: seq}
	})
}

// selectedCard returns the card under the cursor.
func (m Model) selectedCard() (deck.Card, bool) {
	if m.selected < 0 || m.selected >= len(m.cards) {
		return deck.Card{}, false
	}
	return m.cards[m.selected], true
}

// renderHighlighted converts duplicate-run segments into styled spans.
func renderHighlighted(text string, base lipgloss.Style) string {
	var b strings.Builder
	for _, seg := range highlight.Segments(text) {
		if seg.Dup {
			b.WriteString(styleDup.Render(seg.Text))
		} else {
			b.WriteString(base.Render(seg.Text))
		}
	}
	return b.String()
}

// nextProvider cycles through the known provider names.
func nextProvider(cur string) string {
	for i, name := range settings.KnownProviders {
		if name == cur {
			return settings.KnownProviders[(i+1)%len(settings.KnownProviders)]
		}
	}
	return settings.KnownProviders[0]
}

// opErrText phrases an operation error for the notice line.
func opErrText(err error) string {
	switch {
	case errors.Is(err, gateway.ErrBusy):
		return "已有操作进行中"
	case errors.Is(err, gateway.ErrSuperseded):
		return "卡片已被其他操作占用"
	}
	var fail *correct.Failure
	if errors.As(err, &fail) {
		return failureText(fail)
	}
	var busy *deck.ErrCardBusy
	if errors.As(err, &busy) {
		return "卡片忙，请稍候"
	}
	return err.Error()
}

// failureText phrases a correction failure for display.
func failureText(f *correct.Failure) string {
	if f == nil {
		return "未知错误"
	}
	switch f.Kind {
	case correct.KindHTTPStatus:
		return fmt.Sprintf("%s 返回 HTTP %d", f.Provider, f.Status)
	case correct.KindEmptyResult:
		return f.Provider + " 未返回内容"
	case correct.KindTimeout:
		return f.Provider + " 请求超时"
	case correct.KindCanceled:
		return "已取消"
	case correct.KindUnknownProvider:
		return "未知服务商：" + f.Provider
	default:
		return f.Provider + " 连接失败"
	}
}
