package tui

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/neilberkman/groupsum/internal/core/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "tui.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	ctx := context.Background()
	require.NoError(t, database.UpsertGroup(ctx, &models.Group{RoomID: "r1", AccountID: "me", Name: "Trail Runners", MemberCount: 8}))
	require.NoError(t, database.InsertPlaceholderGroup(ctx, "r2", "me"))
	require.NoError(t, database.UpsertMessage(ctx, &models.Message{
		RoomID: "r1", AccountID: "me", MsgID: "m1", SenderName: "Ann",
		Content: "6am at the gate", Timestamp: t0, Kind: models.KindText,
	}))
	require.NoError(t, database.WithTx(ctx, func(tx *db.Tx) error {
		return tx.InsertSummary(ctx, &models.Summary{
			RoomID: "r1", AccountID: "me", Text: "Runners agreed on 6am.",
			StartTime: t0.Add(-time.Hour), EndTime: t0, MessageCount: 1, Model: "test",
		})
	}))
	return database
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// step applies msg and runs the returned command once, feeding its result back.
func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd != nil {
		if out := cmd(); out != nil {
			next, _ = m.Update(out)
			m = next.(Model)
		}
	}
	return m
}

func TestGroupListAndSummary(t *testing.T) {
	m := New(newTestDB(t))
	m = step(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m = step(t, m, m.Init()())

	require.Len(t, m.groups, 2)
	view := m.View()
	assert.Contains(t, view, "Trail Runners")
	assert.Contains(t, view, "pending sync")

	// placeholder groups sort after named ones
	assert.Equal(t, "r1", m.groups[0].RoomID)

	m = step(t, m, key("enter"))
	require.Equal(t, summaryView, m.mode)
	require.NotNil(t, m.current)
	assert.Equal(t, "r1", m.current.Group.RoomID)
	assert.Len(t, m.current.Summaries, 1)

	view = m.View()
	assert.Contains(t, view, "Runners agreed on 6am.")
	assert.Contains(t, view, "6am at the gate")

	m = step(t, m, key("esc"))
	assert.Equal(t, listView, m.mode)
}

func TestFilterByName(t *testing.T) {
	m := New(newTestDB(t))
	m = step(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m = step(t, m, m.Init()())

	m = step(t, m, key("/"))
	require.Equal(t, filterView, m.mode)
	m.input.SetValue("trail before:2025-04-01")
	m = step(t, m, key("enter"))

	assert.Equal(t, listView, m.mode)
	assert.Equal(t, "trail", m.filter.Query)
	require.Len(t, m.groups, 1)
	assert.Contains(t, m.View(), "before 2025-04-01")

	// The summary was created after the filter range
	m = step(t, m, key("enter"))
	require.NotNil(t, m.current)
	assert.Empty(t, m.current.Summaries)
	assert.Contains(t, m.View(), "No summaries yet.")
}

func TestHelpAndQuit(t *testing.T) {
	m := New(newTestDB(t))
	m = step(t, m, m.Init()())

	m = step(t, m, key("?"))
	assert.Equal(t, helpView, m.mode)
	assert.Contains(t, m.View(), "GROUP LIST")

	m = step(t, m, key("?"))
	assert.Equal(t, listView, m.mode)

	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
