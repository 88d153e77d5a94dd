package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/neilberkman/groupsum/internal/core/models"
)

type groupListItem struct {
	group *models.Group
}

func (i groupListItem) FilterValue() string {
	return i.group.Name + " " + i.group.RoomID
}

func (i groupListItem) Title() string {
	return i.group.Name
}

func (i groupListItem) Description() string {
	last := "never summarized"
	if i.group.Summarized() {
		last = "summarized " + humanize.Time(i.group.LastSummaryTime)
	}
	desc := fmt.Sprintf("%s | %d members | %s", i.group.RoomID, i.group.MemberCount, last)
	if !i.group.Managed {
		desc += " | left"
	}
	return desc
}

// Custom delegate to dim placeholder and departed groups
type groupDelegate struct {
	list.DefaultDelegate
}

func (d groupDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	g, ok := item.(groupListItem)
	if !ok {
		d.DefaultDelegate.Render(w, m, index, item)
		return
	}

	title := g.Title()
	desc := g.Description()

	switch {
	case index == m.Index():
		title = selectedItemStyle.Render(title)
		desc = selectedItemStyle.Faint(true).Render(desc)
	case g.group.IsPlaceholder() || !g.group.Managed:
		title = dimItemStyle.Render(title)
		desc = dimItemStyle.Render(desc)
	default:
		title = itemStyle.Render(title)
		desc = itemStyle.Render(desc)
	}

	fmt.Fprintf(w, "%s\n%s", title, desc)
}

func createGroupList(groups []*models.Group, width, height int) list.Model {
	items := make([]list.Item, len(groups))
	for i, g := range groups {
		items[i] = groupListItem{group: g}
	}

	delegate := groupDelegate{DefaultDelegate: list.NewDefaultDelegate()}

	l := list.New(items, delegate, width, height-1) // Reserve 1 line for help text only
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.SetFilteringEnabled(false) // "/" opens our own filter with date ranges
	return l
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if selected, ok := m.list.SelectedItem().(groupListItem); ok {
			return m, loadGroupDetail(m.db, selected.group, m.filter)
		}
		return m, nil

	case "/":
		m.mode = filterView
		m.input.Focus()
		return m, nil

	case "r":
		return m, loadGroups(m.db, m.filter)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) viewList() string {
	helpText := helpStyle.Render("↑/k up • ↓/j down • enter summaries • / filter • r reload • q quit • ? more")
	if active := m.filterLabel(); active != "" {
		helpText = filterPromptStyle.Render(active) + "  " + helpText
	}

	if len(m.groups) == 0 {
		return "No groups found. Run 'groupsum sync' or start the daemon.\n\n" + helpText
	}

	return m.list.View() + "\n" + helpText
}
