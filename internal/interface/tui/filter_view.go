package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/neilberkman/groupsum/internal/core/datefilter"
)

func (m Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		m.input.Blur()
		m.mode = listView
		return m, nil

	case "enter":
		m.input.Blur()
		m.filter = datefilter.ParseQuery(m.input.Value(), m.now())
		m.mode = listView
		return m, loadGroups(m.db, m.filter)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) viewFilter() string {
	var b strings.Builder
	b.WriteString(filterPromptStyle.Render("Filter groups") + "\n\n")
	b.WriteString(m.input.View() + "\n\n")
	b.WriteString(helpStyle.Render(`Text matches group names and room ids.
since:<date> and before:<date> limit the summaries shown for a group.
Dates: 2025-04-01, yesterday, last-week, 3-days-ago

enter apply • esc cancel`))
	return b.String()
}

// filterLabel describes the active filter for the list footer.
func (m Model) filterLabel() string {
	var parts []string
	if m.filter.Query != "" {
		parts = append(parts, `"`+m.filter.Query+`"`)
	}
	if !m.filter.Since.IsZero() {
		parts = append(parts, "since "+m.filter.Since.Format("2006-01-02"))
	}
	if !m.filter.Before.IsZero() {
		parts = append(parts, "before "+m.filter.Before.Format("2006-01-02"))
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
