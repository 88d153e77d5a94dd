package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/neilberkman/groupsum/internal/core/datefilter"
	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/neilberkman/groupsum/internal/core/models"
)

type viewMode int

const (
	listView viewMode = iota
	summaryView
	filterView
	helpView
)

type Model struct {
	db       *db.DB
	mode     viewMode
	list     list.Model
	viewport viewport.Model
	input    textinput.Model
	width    int
	height   int
	err      error
	status   string

	listReady bool

	groups  []*models.Group
	filter  datefilter.Filter
	current *groupDetail
	now     func() time.Time
}

// groupDetail is what the summary view shows for one group.
type groupDetail struct {
	Group     *models.Group
	Summaries []*models.Summary
	Recent    []*models.Message
	Index     int // summary on screen
}

func New(database *db.DB) Model {
	ti := textinput.New()
	ti.Placeholder = "name since:last-week before:2025-04-01"
	ti.CharLimit = 200

	return Model{
		db:    database,
		mode:  listView,
		input: ti,
		now:   time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return loadGroups(m.db, m.filter)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.listReady {
			m.list.SetSize(msg.Width, msg.Height-1)
		}
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 3
		if m.current != nil {
			m.viewport.SetContent(renderGroup(*m.current, m.width))
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode == filterView {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.mode == listView {
				return m, tea.Quit
			}
			// In other views, go back to list
			m.mode = listView
			m.status = ""
			return m, nil
		case "?":
			if m.mode == helpView {
				m.mode = listView
			} else {
				m.mode = helpView
			}
			return m, nil
		}

		switch m.mode {
		case listView:
			return m.updateList(msg)
		case summaryView:
			return m.updateSummary(msg)
		case helpView:
			return m.updateHelp(msg)
		}

	case groupsLoadedMsg:
		m.groups = msg.groups
		m.list = createGroupList(msg.groups, m.width, m.height)
		m.listReady = true
		return m, nil

	case groupDetailLoadedMsg:
		m.current = &msg.detail
		m.viewport = createViewport(msg.detail, m.width, m.height)
		m.mode = summaryView
		m.status = ""
		return m, nil

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

func (m Model) View() string {
	if m.err != nil {
		return "Error: " + m.err.Error() + "\n\nPress q to quit"
	}

	switch m.mode {
	case listView:
		return m.viewList()
	case summaryView:
		return m.viewSummary()
	case filterView:
		return m.viewFilter()
	case helpView:
		return m.viewHelp()
	}

	return ""
}
