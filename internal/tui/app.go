// Package tui is the interactive terminal frontend over the queue and the
// run history.
package tui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"agentq/internal/history"
	"agentq/internal/queue"
)

// View represents the current view
type View int

const (
	ViewQueue View = iota
	ViewHistory
	ViewDetail
	ViewAdd
)

// KeyMap defines keybindings
type KeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Tab     key.Binding
	Add     key.Binding
	Delete  key.Binding
	Enter   key.Binding
	Save    key.Binding
	Back    key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

var keys = KeyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Tab:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch tab")),
	Add:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add run")),
	Delete:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "remove pending")),
	Enter:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
	Save:    key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "enqueue")),
	Back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Tab, k.Add, k.Delete, k.Enter, k.Refresh, k.Quit}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Tab, k.Add, k.Delete},
		{k.Refresh, k.Back, k.Quit},
	}
}

type tickMsg time.Time

type dataMsg struct {
	entries []queue.Entry
	runs    []history.Record
}

// Model is the main TUI model
type Model struct {
	manager    *queue.Manager
	historyLog *history.Log

	currentView View
	width       int
	height      int

	entries []queue.Entry
	runs    []history.Record

	queueTable   table.Model
	historyTable table.Model

	spinner  spinner.Model
	help     help.Model
	showHelp bool

	// Detail view
	detailTitle string
	viewport    viewport.Model
	mdRenderer  *glamour.TermRenderer

	// Add form
	promptInput textarea.Model

	statusMsg string
	statusErr bool
}

const historyLimit = 50

func queueColumns(width int) []table.Column {
	idWidth := 26
	statusWidth := 10
	triggerWidth := 10
	promptWidth := width - idWidth - statusWidth - triggerWidth - 12
	if promptWidth < 20 {
		promptWidth = 20
	}
	return []table.Column{
		{Title: "ID", Width: idWidth},
		{Title: "Status", Width: statusWidth},
		{Title: "Trigger", Width: triggerWidth},
		{Title: "Prompt", Width: promptWidth},
	}
}

func historyColumns(width int) []table.Column {
	idWidth := 26
	resultWidth := 8
	durationWidth := 10
	costWidth := 9
	promptWidth := width - idWidth - resultWidth - durationWidth - costWidth - 14
	if promptWidth < 20 {
		promptWidth = 20
	}
	return []table.Column{
		{Title: "Run", Width: idWidth},
		{Title: "Result", Width: resultWidth},
		{Title: "Duration", Width: durationWidth},
		{Title: "Cost", Width: costWidth},
		{Title: "Prompt", Width: promptWidth},
	}
}

func newTable(columns []table.Column) table.Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	ts := table.DefaultStyles()
	ts.Header = ts.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(dimTextColor).
		BorderBottom(true).
		Bold(true).
		Foreground(accentColor)
	ts.Selected = ts.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(primaryColor).
		Bold(true)
	t.SetStyles(ts)
	return t
}

// NewModel creates a new TUI model
func NewModel(manager *queue.Manager, historyLog *history.Log) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(warningColor)

	h := help.New()
	h.Styles.ShortKey = helpKeyStyle
	h.Styles.ShortDesc = helpDescStyle

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	promptInput := textarea.New()
	promptInput.Placeholder = "Summarize yesterday's commits..."
	promptInput.CharLimit = 4000
	promptInput.SetWidth(70)
	promptInput.SetHeight(8)
	promptInput.ShowLineNumbers = false

	return Model{
		manager:      manager,
		historyLog:   historyLog,
		queueTable:   newTable(queueColumns(100)),
		historyTable: newTable(historyColumns(100)),
		spinner:      s,
		help:         h,
		viewport:     viewport.New(80, 20),
		mdRenderer:   renderer,
		promptInput:  promptInput,
	}
}

// Run starts the TUI and blocks until the user quits.
func Run(manager *queue.Manager, historyLog *history.Log) error {
	p := tea.NewProgram(NewModel(manager, historyLog), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.refresh(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refresh() tea.Cmd {
	manager := m.manager
	historyLog := m.historyLog
	return func() tea.Msg {
		return dataMsg{
			entries: manager.List(),
			runs:    historyLog.List(historyLimit),
		}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		tableHeight := m.height - 10
		if tableHeight < 5 {
			tableHeight = 5
		}
		m.queueTable.SetColumns(queueColumns(m.width))
		m.queueTable.SetHeight(tableHeight)
		m.historyTable.SetColumns(historyColumns(m.width))
		m.historyTable.SetHeight(tableHeight)
		m.viewport.Width = m.width - 4
		m.viewport.Height = m.height - 8
		m.promptInput.SetWidth(min(m.width-8, 100))
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refresh(), tick())

	case dataMsg:
		m.entries = msg.entries
		m.runs = msg.runs
		m.syncTables()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.currentView {
	case ViewAdd:
		return m.handleAddKey(msg)
	case ViewDetail:
		return m.handleDetailKey(msg)
	default:
		return m.handleListKey(msg)
	}
}

func (m Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp
		return m, nil
	case key.Matches(msg, keys.Tab):
		if m.currentView == ViewQueue {
			m.currentView = ViewHistory
		} else {
			m.currentView = ViewQueue
		}
		return m, nil
	case key.Matches(msg, keys.Refresh):
		return m, m.refresh()
	case key.Matches(msg, keys.Add):
		m.currentView = ViewAdd
		m.promptInput.Reset()
		m.statusMsg = ""
		return m, m.promptInput.Focus()
	case key.Matches(msg, keys.Delete):
		if m.currentView == ViewQueue {
			return m.removeSelected()
		}
		return m, nil
	case key.Matches(msg, keys.Enter):
		return m.openDetail()
	}

	var cmd tea.Cmd
	if m.currentView == ViewQueue {
		m.queueTable, cmd = m.queueTable.Update(msg)
	} else {
		m.historyTable, cmd = m.historyTable.Update(msg)
	}
	return m, cmd
}

func (m Model) handleAddKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.currentView = ViewQueue
		m.promptInput.Blur()
		return m, nil
	case key.Matches(msg, keys.Save):
		prompt := strings.TrimSpace(m.promptInput.Value())
		if prompt == "" {
			m.statusMsg = "Prompt must not be empty"
			m.statusErr = true
			return m, nil
		}
		entry, err := m.manager.Enqueue(queue.Payload{Prompt: prompt}, queue.EnqueueOptions{})
		if err != nil {
			m.statusMsg = err.Error()
			m.statusErr = true
			return m, nil
		}
		m.statusMsg = "Enqueued " + entry.ID
		m.statusErr = false
		m.currentView = ViewQueue
		m.promptInput.Blur()
		return m, m.refresh()
	}

	var cmd tea.Cmd
	m.promptInput, cmd = m.promptInput.Update(msg)
	return m, cmd
}

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.currentView = ViewQueue
		return m, nil
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) removeSelected() (tea.Model, tea.Cmd) {
	idx := m.queueTable.Cursor()
	if idx < 0 || idx >= len(m.entries) {
		return m, nil
	}
	entry := m.entries[idx]
	if err := m.manager.Remove(entry.ID); err != nil {
		m.statusMsg = err.Error()
		m.statusErr = true
		return m, nil
	}
	m.statusMsg = "Removed " + entry.ID
	m.statusErr = false
	return m, m.refresh()
}

func (m Model) openDetail() (tea.Model, tea.Cmd) {
	var content, title string

	if m.currentView == ViewQueue {
		idx := m.queueTable.Cursor()
		if idx < 0 || idx >= len(m.entries) {
			return m, nil
		}
		entry := m.entries[idx]
		title = fmt.Sprintf("Entry %s (%s)", entry.ID, entry.Status)
		content = entryDetail(entry)
	} else {
		idx := m.historyTable.Cursor()
		if idx < 0 || idx >= len(m.runs) {
			return m, nil
		}
		rec := m.runs[idx]
		title = fmt.Sprintf("Run %s", rec.RunID)
		content = runDetail(rec)
	}

	rendered := content
	if m.mdRenderer != nil {
		if out, err := m.mdRenderer.Render(content); err == nil {
			rendered = out
		}
	}
	m.detailTitle = title
	m.viewport.SetContent(rendered)
	m.viewport.GotoTop()
	m.currentView = ViewDetail
	return m, nil
}

func entryDetail(entry queue.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", entry.ID)
	fmt.Fprintf(&b, "**Status:** %s\n\n", entry.Status)
	fmt.Fprintf(&b, "**Trigger:** %s\n\n", entry.Payload.Trigger)
	fmt.Fprintf(&b, "**Enqueued:** %s\n\n", entry.EnqueuedAt.Local().Format(time.RFC822))
	if entry.Result != nil {
		fmt.Fprintf(&b, "**Exit code:** %d  \n**Cost:** $%.4f  \n**Duration:** %.1fs\n\n",
			entry.Result.ExitCode, entry.Result.CostUSD, entry.Result.DurationSeconds)
		if entry.Result.Detail != "" {
			fmt.Fprintf(&b, "```\n%s\n```\n\n", entry.Result.Detail)
		}
	}
	fmt.Fprintf(&b, "## Prompt\n\n%s\n", entry.Payload.Prompt)
	return b.String()
}

func runDetail(rec history.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rec.RunID)
	result := "failed"
	if rec.Success {
		result = "completed"
	}
	fmt.Fprintf(&b, "**Result:** %s  \n**Duration:** %.1fs  \n**Cost:** $%.4f\n\n",
		result, rec.DurationSeconds, rec.CostUSD)
	fmt.Fprintf(&b, "## Prompt\n\n%s\n\n", rec.Prompt)
	if rec.ReadableFile != "" {
		if data, err := os.ReadFile(rec.ReadableFile); err == nil && len(data) > 0 {
			fmt.Fprintf(&b, "## Output\n\n%s\n", string(data))
		}
	}
	return b.String()
}

func (m *Model) syncTables() {
	queueRows := make([]table.Row, len(m.entries))
	for i, entry := range m.entries {
		queueRows[i] = table.Row{
			entry.ID,
			string(entry.Status),
			entry.Payload.Trigger,
			firstLine(entry.Payload.Prompt),
		}
	}
	m.queueTable.SetRows(queueRows)

	historyRows := make([]table.Row, len(m.runs))
	for i, rec := range m.runs {
		result := "fail"
		if rec.Success {
			result = "ok"
		}
		historyRows[i] = table.Row{
			rec.RunID,
			result,
			fmt.Sprintf("%.0fs", rec.DurationSeconds),
			fmt.Sprintf("$%.3f", rec.CostUSD),
			firstLine(rec.Prompt),
		}
	}
	m.historyTable.SetRows(historyRows)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

func (m Model) View() string {
	switch m.currentView {
	case ViewAdd:
		return m.addView()
	case ViewDetail:
		return m.detailView()
	default:
		return m.listView()
	}
}

func (m Model) header() string {
	queueTab := inactiveTabStyle.Render("Queue")
	historyTab := inactiveTabStyle.Render("History")
	if m.currentView == ViewHistory {
		historyTab = activeTabStyle.Render("History")
	} else {
		queueTab = activeTabStyle.Render("Queue")
	}
	title := logoStyle.Render("agentq")
	if m.hasRunning() {
		title += "  " + m.spinner.View() + statusRunning.Render("running")
	}
	return title + "\n" + queueTab + historyTab + "\n"
}

func (m Model) hasRunning() bool {
	for _, entry := range m.entries {
		if entry.Status == queue.StatusRunning {
			return true
		}
	}
	return false
}

func (m Model) statusLine() string {
	if m.statusMsg == "" {
		return ""
	}
	if m.statusErr {
		return errorMsgStyle.Render(m.statusMsg)
	}
	return successMsgStyle.Render(m.statusMsg)
}

func (m Model) listView() string {
	var body string
	if m.currentView == ViewHistory {
		if len(m.runs) == 0 {
			body = emptyBoxStyle.Render("No runs recorded yet")
		} else {
			body = m.historyTable.View()
		}
	} else {
		if len(m.entries) == 0 {
			body = emptyBoxStyle.Render("Queue is empty\n\nPress 'a' to add a run")
		} else {
			body = m.queueTable.View()
		}
	}

	var helpView string
	if m.showHelp {
		helpView = m.help.FullHelpView(keys.FullHelp())
	} else {
		helpView = m.help.ShortHelpView(keys.ShortHelp())
	}

	return appStyle.Render(m.header() + "\n" + body + "\n\n" + m.statusLine() + "\n" + helpView)
}

func (m Model) addView() string {
	label := inputLabelStyle.Render("New run prompt")
	hint := subtitleStyle.Render("ctrl+s to enqueue, esc to cancel")
	return appStyle.Render(m.header() + "\n" + label + "\n\n" + m.promptInput.View() + "\n\n" + m.statusLine() + "\n" + hint)
}

func (m Model) detailView() string {
	title := logoStyle.Render(m.detailTitle)
	hint := subtitleStyle.Render("esc to go back")
	return appStyle.Render(title + "\n\n" + m.viewport.View() + "\n\n" + hint)
}
