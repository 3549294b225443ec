package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrAborted is returned when the picker is closed without a choice.
var ErrAborted = errors.New("tui: selection aborted")

// Choice is one entry of a picker.
type Choice struct {
	Name        string
	Description string
}

type picker struct {
	title   string
	choices []Choice
	cursor  int
	chosen  bool
}

func (m picker) Init() tea.Cmd { return nil }

func (m picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.choices)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.chosen = true
		return m, tea.Quit
	}
	return m, nil
}

func (m picker) View() string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("           " + cyan.Render(m.title) + "\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("\n")

	for i, c := range m.choices {
		if i == m.cursor {
			b.WriteString("      " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-14s", c.Name)) + dim.Render(c.Description) + "\n")
		} else {
			b.WriteString("        " + dim.Render(fmt.Sprintf("%-14s", c.Name)) + dimmer.Render(c.Description) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(dim.Render("      ↑↓ select   enter choose   q quit") + "\n")
	return b.String()
}

// Pick shows choices and returns the selected name.
func Pick(title string, choices []Choice, opts ...tea.ProgramOption) (string, error) {
	if len(choices) == 0 {
		return "", errors.New("tui: nothing to pick from")
	}
	final, err := tea.NewProgram(picker{title: title, choices: choices}, opts...).Run()
	if err != nil {
		return "", err
	}
	m := final.(picker)
	if !m.chosen {
		return "", ErrAborted
	}
	return m.choices[m.cursor].Name, nil
}
