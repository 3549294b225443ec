package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/san-kum/dynodom/internal/chassis"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))

	panel = lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 2).
		Width(44)
	label = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
)

func resultStyle(r chassis.Result) lipgloss.Style {
	switch r {
	case chassis.Completed:
		return green
	case chassis.Timeout:
		return yellow
	default:
		return red
	}
}

// Summary renders one line per motion report.
func Summary(reports []chassis.Report) string {
	var b strings.Builder
	b.WriteString(dim.Render(fmt.Sprintf("  %-4s %-6s %-26s %-10s %8s %8s %8s", "#", "kind", "target", "result", "time", "error", "path")))
	b.WriteByte('\n')
	for i, r := range reports {
		result := resultStyle(r.Result).Render(fmt.Sprintf("%-10s", r.Result))
		b.WriteString(fmt.Sprintf("  %-4d %-6s %-26s %s %7.2fs %8.3f %8.2f\n",
			i+1, r.Kind, r.Target.String(), result, r.Elapsed.Seconds(), r.Error, r.Traveled))
	}
	return b.String()
}

// Sparkline renders data as block characters, at most width wide.
func Sparkline(data []float64, width int) string {
	if len(data) == 0 || width <= 0 {
		return ""
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
	}
	span := maxVal - minVal
	if span == 0 {
		span = 1
	}
	step := max(len(data)/width, 1)

	var sb strings.Builder
	for i := 0; i < width && i*step < len(data); i++ {
		idx := int((data[i*step] - minVal) / span * 7)
		sb.WriteRune(chars[min(max(idx, 0), 7)])
	}
	return sb.String()
}
