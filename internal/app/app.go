// Package app is the Bubble Tea front end of the planner. It turns key
// presses into actions and renders the dispatcher's view of the week.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/weekly-planner/internal/action"
	"github.com/nhle/weekly-planner/internal/keys"
	"github.com/nhle/weekly-planner/internal/model"
	plannersync "github.com/nhle/weekly-planner/internal/sync"
	"github.com/nhle/weekly-planner/internal/theme"
	"github.com/nhle/weekly-planner/internal/ui"
)

// changedMsg is sent when the visible list changed in the store.
type changedMsg struct{}

// Changes forwards store notifications into the Bubble Tea loop. Pass
// Notify to action.OnChange.
type Changes chan struct{}

// NewChanges creates a change feed.
func NewChanges() Changes {
	return make(Changes, 1)
}

// Notify records that the list changed. Bursts collapse into one message.
func (c Changes) Notify([]model.Item) {
	select {
	case c <- struct{}{}:
	default:
	}
}

func (c Changes) wait() tea.Cmd {
	return func() tea.Msg {
		<-c
		return changedMsg{}
	}
}

// Model is the root Bubble Tea model.
type Model struct {
	dispatcher *action.Dispatcher
	engine     *plannersync.Engine
	changes    Changes
	keys       *keys.KeyMap
	help       help.Model
	input      textinput.Model
	layout     ui.Layout

	items      []model.Item
	syncStatus string
	notice     string
	noticeErr  bool
	ready      bool
}

// New creates the root model. engine may be nil when sync is disabled.
func New(d *action.Dispatcher, changes Changes, engine *plannersync.Engine) Model {
	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "new item"
	in.CharLimit = 500

	m := Model{
		dispatcher: d,
		engine:     engine,
		changes:    changes,
		keys:       keys.DefaultKeyMap(),
		help:       help.New(),
		input:      in,
		items:      d.Items(),
		syncStatus: "offline",
		layout:     ui.NewLayout(80, 24),
	}
	if engine != nil {
		m.syncStatus = engine.Status().State.String()
	}
	m.syncInput()
	return m
}

// Init starts listening for store changes and sync results.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.changes.wait(), textinput.Blink}
	if m.engine != nil {
		cmds = append(cmds, m.engine.WaitForResult())
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.help.Width = msg.Width - 4
		m.input.Width = max(msg.Width-12, 10)
		m.ready = true
		return m, nil

	case changedMsg:
		m.items = m.dispatcher.Items()
		return m, m.changes.wait()

	case plannersync.ResultMsg:
		m.syncStatus = msg.Status.State.String()
		switch {
		case msg.AuthFailed:
			m.setNotice("sync: access token rejected, run `planner login`", true)
		case msg.Err != nil:
			m.setNotice("sync: "+msg.Err.Error(), true)
		}
		return m, m.engine.WaitForResult()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	_, editing := m.dispatcher.Draft()

	a, ok := m.keys.Resolve(msg, editing)
	if !ok {
		if !editing {
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		m.dispatcher.EditTitle(m.input.Value())
		return m, cmd
	}

	m.notice = ""
	out := m.dispatcher.Dispatch(context.Background(), a)
	m.items = m.dispatcher.Items()

	switch {
	case out.Quit:
		return m, tea.Quit
	case out.Wiggle:
		m.setNotice("unsaved changes: enter to save", true)
	case out.Err != nil && !errors.Is(out.Err, model.ErrLogic):
		m.setNotice(out.Err.Error(), true)
	case a == action.SyncOnce && out.Handled:
		m.setNotice("sync requested", false)
	case a == action.SyncOnce:
		m.setNotice("sync is not configured", false)
	}

	cmd := m.syncInput()
	return m, cmd
}

// syncInput focuses the text input on the active draft, or blurs it.
func (m *Model) syncInput() tea.Cmd {
	it, editing := m.dispatcher.Draft()
	if !editing {
		m.input.Blur()
		m.input.Reset()
		return nil
	}
	if m.input.Focused() && m.input.Value() == it.Title {
		return nil
	}
	m.input.SetValue(it.Title)
	m.input.CursorEnd()
	return m.input.Focus()
}

func (m *Model) setNotice(s string, isErr bool) {
	m.notice = s
	m.noticeErr = isErr
}

// View renders the planner.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	q := m.dispatcher.Query()
	title := "Week of " + q.Start.Format("Mon Jan 2, 2006")
	header := m.layout.RenderHeader(title, "sync: "+m.syncStatus)

	var content string
	if m.dispatcher.ModalOpen() {
		content = m.renderHelp()
	} else {
		content = m.renderList()
	}

	return m.layout.Frame(header, content, m.layout.RenderStatusBar(m.statusLeft(), fmt.Sprintf("%d items", len(m.items))))
}

func (m Model) statusLeft() string {
	switch {
	case m.notice != "" && m.noticeErr:
		return theme.WarningStyle.Render(m.notice)
	case m.notice != "":
		return m.notice
	}
	return m.help.ShortHelpView(m.keys.ShortHelp())
}

func (m Model) renderHelp() string {
	h := m.help
	h.ShowAll = true
	title := lipgloss.NewStyle().Bold(true).MarginBottom(1).Render("Keyboard Shortcuts")
	return theme.PanelStyle.
		Width(max(m.layout.Width-4, 20)).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, h.View(m.keys)))
}

func (m Model) renderList() string {
	draft, editing := m.dispatcher.Draft()
	cursor := m.dispatcher.Cursor()

	var rows []string
	inputRow := theme.SelectedRowStyle.Render(m.input.View())
	newDraft := editing && draft.ID == 0

	if newDraft && len(m.items) == 0 {
		rows = append(rows, inputRow)
	}
	for i, it := range m.items {
		switch {
		case editing && !newDraft && it.UUID == draft.UUID:
			rows = append(rows, inputRow)
		case i == cursor && !editing:
			rows = append(rows, theme.SelectedRowStyle.Render(renderItem(it)))
		default:
			rows = append(rows, theme.RowStyle.Render(renderItem(it)))
		}
		if newDraft && i == cursor {
			rows = append(rows, inputRow)
		}
	}

	if len(rows) == 0 {
		return theme.HelpStyle.Render("  Nothing planned. Press o to add an item.")
	}
	return strings.Join(rows, "\n")
}

func renderItem(it model.Item) string {
	glyph := theme.StatusStyle(it.Status).Render(theme.StatusGlyph(it.Status))
	parts := []string{glyph}
	if k := theme.KindGlyph(it.Kind); k != "" {
		parts = append(parts, k)
	}

	title := it.Title
	if it.IsDone() {
		title = theme.DimmedStyle.Render(title)
	}
	parts = append(parts, title, theme.HelpStyle.Render(it.ScheduledAt.Local().Format("Mon")))
	return strings.Join(parts, " ")
}
