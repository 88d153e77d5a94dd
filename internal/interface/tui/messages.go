package tui

import (
	"context"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/neilberkman/groupsum/internal/core/datefilter"
	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/neilberkman/groupsum/internal/core/models"
)

const (
	summariesPerGroup = 50
	recentMessages    = 20
)

type errMsg struct {
	err error
}

type statusMsg string

type groupsLoadedMsg struct {
	groups []*models.Group
}

type groupDetailLoadedMsg struct {
	detail groupDetail
}

func loadGroups(database *db.DB, f datefilter.Filter) tea.Cmd {
	return func() tea.Msg {
		groups, err := database.ListGroups(context.Background(), db.GroupFilter{
			IncludeUnmanaged: true,
			Query:            f.Query,
		})
		if err != nil {
			return errMsg{err}
		}
		return groupsLoadedMsg{groups}
	}
}

// loadGroupDetail loads the group's summaries inside the filter's date
// range, newest first, and its latest messages.
func loadGroupDetail(database *db.DB, g *models.Group, f datefilter.Filter) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		list, err := database.ListSummaries(ctx, db.SummaryFilter{
			RoomID:    g.RoomID,
			AccountID: g.AccountID,
			Since:     f.Since,
			Limit:     summariesPerGroup,
		})
		if err != nil {
			return errMsg{err}
		}

		var summaries []*models.Summary
		for _, s := range list {
			if f.Match(s.CreatedAt) {
				summaries = append(summaries, s)
			}
		}

		recent, err := database.ListRecentMessages(ctx, g.RoomID, g.AccountID, recentMessages)
		if err != nil {
			return errMsg{err}
		}
		return groupDetailLoadedMsg{detail: groupDetail{Group: g, Summaries: summaries, Recent: recent}}
	}
}

func copyToClipboard(text string) tea.Cmd {
	return func() tea.Msg {
		if err := clipboard.WriteAll(text); err != nil {
			return statusMsg("Copy failed: " + err.Error())
		}
		return statusMsg("✓ Copied summary to clipboard")
	}
}
