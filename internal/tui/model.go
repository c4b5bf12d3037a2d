package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type sessionRow struct {
	connID     string
	state      string
	opened     time.Time
	lastDetail string
}

type eventMsg ServerEvent

type clipboardMsg struct{ err error }

// Model is a read-only bubbletea.Model rendering the live table of open
// DoIP connections, grounded on the teacher's tuiModel (internal/ui/tui.go):
// a single struct holding rendering state, an Update that type-switches on
// tea.Msg, and a View built from lipgloss-styled fragments.
type Model struct {
	events <-chan ServerEvent

	sessions map[string]*sessionRow
	order    []string
	cursor   int
	status   string
	err      error
}

// NewModel builds a Model that renders events arriving on ch until the
// channel closes.
func NewModel(ch <-chan ServerEvent) Model {
	return Model{
		events:   ch,
		sessions: make(map[string]*sessionRow),
	}
}

func (m Model) Init() tea.Cmd {
	return listenCmd(m.events)
}

func listenCmd(ch <-chan ServerEvent) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(evt)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.apply(ServerEvent(msg))
		return m, listenCmd(m.events)

	case clipboardMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("copy failed: %v", msg.err)
		} else {
			m.status = "copied to clipboard"
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.order)-1 {
				m.cursor++
			}
		case "c":
			return m, m.copySelectedDetail()
		}
	}
	return m, nil
}

func (m *Model) apply(evt ServerEvent) {
	row, ok := m.sessions[evt.ConnID]
	if !ok {
		row = &sessionRow{connID: evt.ConnID, opened: evt.Timestamp}
		m.sessions[evt.ConnID] = row
		m.order = append(m.order, evt.ConnID)
		sort.Strings(m.order)
	}
	row.state = evt.State
	if evt.Detail != "" {
		row.lastDetail = evt.Detail
	}
	if evt.Kind == ConnectionClosed {
		delete(m.sessions, evt.ConnID)
		m.removeFromOrder(evt.ConnID)
	}
}

func (m *Model) removeFromOrder(connID string) {
	for i, id := range m.order {
		if id == connID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			if m.cursor >= len(m.order) && m.cursor > 0 {
				m.cursor--
			}
			return
		}
	}
}

// copySelectedDetail copies the selected session's last non-empty event
// Detail to the clipboard; it does nothing when there is none.
// Best-effort: failures surface only as a status line, never as a fatal
// error, mirroring the teacher's copyToClipboard helper.
func (m Model) copySelectedDetail() tea.Cmd {
	if m.cursor < 0 || m.cursor >= len(m.order) {
		return nil
	}
	row := m.sessions[m.order[m.cursor]]
	if row == nil || row.lastDetail == "" {
		return nil
	}
	detail := row.lastDetail
	return func() tea.Msg {
		return clipboardMsg{err: clipboard.WriteAll(detail)}
	}
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	selectedRow  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	frameStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("12")).Padding(0, 1)
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-24s %-24s %-10s %s", "CONNECTION", "STATE", "OPEN FOR", "DETAIL")))
	b.WriteString("\n")

	if len(m.order) == 0 {
		b.WriteString("(no open connections)\n")
	}
	for i, id := range m.order {
		row := m.sessions[id]
		since := time.Since(row.opened).Round(time.Second)
		line := fmt.Sprintf("%-24s %-24s %-10s %s", row.connID, row.state, since, row.lastDetail)
		if i == m.cursor {
			line = selectedRow.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	footer := "\nKeys: up/down=select c=copy detail q=quit"
	if m.status != "" {
		footer += "  (" + m.status + ")"
	}
	b.WriteString(footerStyle.Render(footer))

	return frameStyle.Render(b.String())
}
