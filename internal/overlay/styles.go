package overlay

import (
	"codeberg.org/nexustouch/perfd/internal/perf"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorFull    = lipgloss.Color("#8BC34A")
	colorReduced = lipgloss.Color("#FFB300")
	colorMinimal = lipgloss.Color("#E53935")
	colorMuted   = lipgloss.Color("#6B7A90")
)

type Styles struct {
	Title  lipgloss.Style
	Header lipgloss.Style
	Cell   lipgloss.Style
	Muted  lipgloss.Style
	Error  lipgloss.Style
	Modes  map[perf.Mode]lipgloss.Style
}

func DefaultStyles() Styles {
	mode := func(c lipgloss.Color) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(c).Bold(true)
	}
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Header: lipgloss.NewStyle().Bold(true).Underline(true),
		Cell:   lipgloss.NewStyle(),
		Muted:  lipgloss.NewStyle().Foreground(colorMuted),
		Error:  lipgloss.NewStyle().Foreground(colorMinimal),
		Modes: map[perf.Mode]lipgloss.Style{
			perf.ModeFull:    mode(colorFull),
			perf.ModeReduced: mode(colorReduced),
			perf.ModeMinimal: mode(colorMinimal),
			perf.ModeAuto:    lipgloss.NewStyle().Foreground(colorMuted),
		},
	}
}

func (s Styles) mode(m perf.Mode) string {
	if st, ok := s.Modes[m]; ok {
		return st.Render(m.String())
	}
	return m.String()
}
