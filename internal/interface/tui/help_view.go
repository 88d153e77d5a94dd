package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

func (m Model) updateHelp(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "?":
		m.mode = listView
		return m, nil
	}

	return m, nil
}

func (m Model) viewHelp() string {
	help := `
Group Summaries - Help
══════════════════════

GROUP LIST
──────────
  ↑/↓, j/k     Navigate groups
  Enter        Show summaries of the group
  /            Filter by name and date range
  r            Reload groups
  ?            Show this help
  q            Quit

SUMMARIES
─────────
  n/p          Next / previous summary
  c            Copy summary to clipboard
  j/k          Scroll line by line
  g/G          Jump to top/bottom
  esc          Back to group list
  q            Back to group list

Press esc to return to group list
`

	return helpStyle.Render(help)
}
