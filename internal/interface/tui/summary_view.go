package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"
)

const windowLayout = "Jan 2 15:04"

func createViewport(detail groupDetail, width, height int) viewport.Model {
	vp := viewport.New(width, height-3)
	vp.SetContent(renderGroup(detail, width))
	return vp
}

func renderGroup(detail groupDetail, width int) string {
	var b strings.Builder
	wrapWidth := width - 4
	if wrapWidth < 40 {
		wrapWidth = 40
	}
	rule := strings.Repeat("─", max(width, 1))

	g := detail.Group
	b.WriteString(titleStyle.Render(g.Name) + "\n")
	b.WriteString(fmt.Sprintf("Room: %s | Members: %d\n", g.RoomID, g.MemberCount))
	b.WriteString(rule + "\n\n")

	if len(detail.Summaries) == 0 {
		b.WriteString("No summaries yet.\n\n")
	} else {
		s := detail.Summaries[detail.Index]
		b.WriteString(fmt.Sprintf("Summary %d of %d ", detail.Index+1, len(detail.Summaries)))
		b.WriteString(timestampStyle.Render(fmt.Sprintf("%s to %s, %d messages, %s",
			s.StartTime.Local().Format(windowLayout), s.EndTime.Local().Format(windowLayout),
			s.MessageCount, humanize.Time(s.CreatedAt))))
		b.WriteString("\n\n")
		b.WriteString(wordwrap.String(s.Text, wrapWidth))
		b.WriteString("\n\n")
	}

	if len(detail.Recent) > 0 {
		b.WriteString(rule + "\n")
		b.WriteString(titleStyle.Render("Latest messages") + "\n\n")
		for _, msg := range detail.Recent {
			b.WriteString(senderStyle.Render(msg.SenderName))
			b.WriteString(" ")
			b.WriteString(timestampStyle.Render(humanize.Time(msg.Timestamp)))
			b.WriteString("\n")
			b.WriteString(wordwrap.String(msg.Content, wrapWidth))
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func (m Model) updateSummary(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	d := m.current
	switch msg.String() {
	case "esc":
		m.mode = listView
		m.status = ""
		return m, nil

	case "n", "right":
		if d != nil && d.Index < len(d.Summaries)-1 {
			d.Index++
			m.viewport.SetContent(renderGroup(*d, m.width))
			m.viewport.GotoTop()
		}
		return m, nil

	case "p", "left":
		if d != nil && d.Index > 0 {
			d.Index--
			m.viewport.SetContent(renderGroup(*d, m.width))
			m.viewport.GotoTop()
		}
		return m, nil

	case "c":
		if d != nil && len(d.Summaries) > 0 {
			return m, copyToClipboard(d.Summaries[d.Index].Text)
		}
		return m, nil

	case "g":
		m.viewport.GotoTop()
		return m, nil

	case "G":
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) viewSummary() string {
	footer := helpStyle.Render("n/p next/prev summary • c copy • j/k scroll • esc back • q quit")
	if m.status != "" {
		footer = statusStyle.Render(m.status) + "  " + footer
	}
	return m.viewport.View() + "\n\n" + footer
}
