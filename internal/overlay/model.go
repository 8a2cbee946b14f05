package overlay

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"codeberg.org/nexustouch/perfd/internal/perf"
	"codeberg.org/nexustouch/perfd/internal/session"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type messageMsg session.Message

type disconnectedMsg struct{}

type row struct {
	id       string
	selected perf.Mode
	active   perf.Mode
	snap     perf.Snapshot
	reason   perf.Reason
	changes  int
	updated  time.Time
}

// Model renders live sessions from an observer stream.
type Model struct {
	source       <-chan session.Message
	styles       Styles
	rows         map[string]*row
	width        int
	disconnected bool
}

func NewModel(source <-chan session.Message) Model {
	return Model{
		source: source,
		styles: DefaultStyles(),
		rows:   make(map[string]*row),
	}
}

func (m Model) Init() tea.Cmd {
	return m.wait()
}

func (m Model) wait() tea.Cmd {
	src := m.source
	if src == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-src
		if !ok {
			return disconnectedMsg{}
		}
		return messageMsg(msg)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case messageMsg:
		m.apply(session.Message(msg))
		return m, m.wait()

	case disconnectedMsg:
		m.disconnected = true
	}

	return m, nil
}

func (m *Model) apply(msg session.Message) {
	if msg.Type == session.MessageClosed {
		delete(m.rows, msg.Session)
		return
	}

	r, ok := m.rows[msg.Session]
	if !ok {
		r = &row{id: msg.Session}
		m.rows[msg.Session] = r
	}
	r.selected = msg.Selected
	r.active = msg.Mode
	r.updated = msg.At

	switch msg.Type {
	case session.MessageMode:
		r.reason = msg.Reason
		r.changes++
	case session.MessageSnapshot:
		if msg.Snapshot != nil {
			r.snap = *msg.Snapshot
		}
	}
}

var columns = []string{"session", "selected", "active", "fps", "avg fps", "latency", "slow", "battery", "memory", "last change"}

func (m Model) View() string {
	var sb strings.Builder

	sb.WriteString(m.styles.Title.Render(fmt.Sprintf("perfd sessions (%d)", len(m.rows))))
	sb.WriteString("\n\n")

	if len(m.rows) == 0 {
		sb.WriteString(m.styles.Muted.Render("No connected sessions."))
		sb.WriteString("\n")
	} else {
		sb.WriteString(m.table())
	}

	if m.disconnected {
		sb.WriteString("\n")
		sb.WriteString(m.styles.Error.Render("Disconnected from perfd."))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render("q to quit"))

	return sb.String()
}

func (m Model) table() string {
	ids := make([]string, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	cells := make([][]string, 0, len(ids))
	for _, id := range ids {
		r := m.rows[id]
		lat := r.snap.TouchLatency
		reason := string(r.reason)
		if reason == "" {
			reason = "-"
		}
		cells = append(cells, []string{
			shortID(r.id),
			m.styles.mode(r.selected),
			m.styles.mode(r.active),
			fmt.Sprintf("%.0f", r.snap.FPS),
			fmt.Sprintf("%.1f", r.snap.AvgFPS),
			fmt.Sprintf("%dms", lat.Average.Milliseconds()),
			fmt.Sprintf("%d/%d", lat.SlowCount, lat.TotalCount),
			battery(r.snap.Battery),
			percent(r.snap.MemoryUsage),
			fmt.Sprintf("%s (%d)", reason, r.changes),
		})
	}

	widths := make([]int, len(columns))
	for i, h := range columns {
		widths[i] = lipgloss.Width(h)
	}
	for _, line := range cells {
		for i, c := range line {
			widths[i] = max(widths[i], lipgloss.Width(c))
		}
	}

	render := func(style lipgloss.Style, line []string) string {
		parts := make([]string, len(line))
		for i, c := range line {
			parts[i] = style.Width(widths[i] + 2).Render(c)
		}
		return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
	}

	var sb strings.Builder
	sb.WriteString(render(m.styles.Header, columns))
	sb.WriteString("\n")
	for _, line := range cells {
		sb.WriteString(render(m.styles.Cell, line))
		sb.WriteString("\n")
	}
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func battery(b perf.Optional[perf.BatteryStatus]) string {
	status, ok := b.Get()
	if !ok {
		return "n/a"
	}
	if status.Charging {
		return fmt.Sprintf("%.0f%% +", status.LevelPercent)
	}
	return fmt.Sprintf("%.0f%%", status.LevelPercent)
}

func percent(o perf.Optional[float64]) string {
	v, ok := o.Get()
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%.0f%%", v)
}
