package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/neilberkman/groupsum/internal/core/llm"
	"github.com/neilberkman/groupsum/internal/core/models"
	"github.com/neilberkman/groupsum/internal/core/summarization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDB(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "cli.db")
	database, err := db.New(path)
	require.NoError(t, err)
	defer func() { _ = database.Close() }()

	ctx := context.Background()
	require.NoError(t, database.UpsertGroup(ctx, &models.Group{RoomID: "r1@chatroom", AccountID: "wxid_self", Name: "Trail Runners", MemberCount: 12, Managed: true}))
	require.NoError(t, database.InsertPlaceholderGroup(ctx, "r2@chatroom", "wxid_self"))
	require.NoError(t, database.UpsertMessage(ctx, &models.Message{
		RoomID: "r1@chatroom", AccountID: "wxid_self", MsgID: "m1",
		Content: "hello", Timestamp: time.Now().Add(-time.Hour), Kind: models.KindText,
	}))
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		dbPath = ""
	})
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestGroupsCommand(t *testing.T) {
	path := seedDB(t)

	out := execute(t, "--db", path, "groups")
	assert.Contains(t, out, "Showing 2 group(s)")
	assert.Contains(t, out, "Trail Runners")
	assert.Contains(t, out, "Members: 12")
	assert.Contains(t, out, "waiting for the next sync")
}

func TestStatusCommand(t *testing.T) {
	path := seedDB(t)

	out := execute(t, "--db", path, "status")
	assert.Contains(t, out, "Groups:            2 (2 managed, 1 pending sync)")
	assert.Contains(t, out, "Summaries:         0")
	assert.Contains(t, out, "Last Sync:         never")
	assert.Contains(t, out, path)
}

func TestSummariesCommandEmpty(t *testing.T) {
	path := seedDB(t)

	out := execute(t, "--db", path, "summaries", "--since", "yesterday")
	assert.Contains(t, out, "No summaries found.")
}

func TestConfigShowMasksSecrets(t *testing.T) {
	path := seedDB(t)
	t.Setenv("GROUPSUM_SUMMARY_API_KEY", "sk-live-secret")

	out := execute(t, "--db", path, "config", "show")
	assert.Contains(t, out, "no config file")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "sk-live-secret")
}

func TestDebugPromptCommand(t *testing.T) {
	path := seedDB(t)
	t.Cleanup(func() {
		debugPromptAll = false
		debugPromptOut = ""
	})

	out := execute(t, "--db", path, "debug-prompt", "r1@chatroom")
	assert.Contains(t, out, "Name:      Trail Runners")
	assert.Contains(t, out, "Watermark: never")
	assert.Contains(t, out, "Window:    1 messages")
	assert.Contains(t, out, "=== REQUEST ===")
	assert.Contains(t, out, `"model": "deepseek-chat"`)
	assert.Contains(t, out, "hello")

	file := filepath.Join(t.TempDir(), "request.json")
	out = execute(t, "--db", path, "debug-prompt", "r1@chatroom", "--all", "--out", file)
	assert.Contains(t, out, "Wrote request to "+file)
	assert.NotContains(t, out, "=== REQUEST ===")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	var req llm.Request
	require.NoError(t, json.Unmarshal(data, &req))
	assert.Equal(t, summarization.SystemPrompt, req.System)
	assert.Contains(t, req.Prompt, "Trail Runners")
	assert.Contains(t, req.Prompt, "hello")

	// nothing was summarized
	database, err := db.New(path)
	require.NoError(t, err)
	defer func() { _ = database.Close() }()
	g, err := database.GetGroup(context.Background(), "r1@chatroom", "wxid_self")
	require.NoError(t, err)
	assert.True(t, g.LastSummaryTime.IsZero())
}

func TestResolveAccount(t *testing.T) {
	ctx := context.Background()
	database, err := db.New(filepath.Join(t.TempDir(), "acct.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	_, err = resolveAccount(ctx, database, "")
	assert.Error(t, err)

	got, err := resolveAccount(ctx, database, "explicit")
	require.NoError(t, err)
	assert.Equal(t, "explicit", got)

	require.NoError(t, database.InsertPlaceholderGroup(ctx, "r1", "wxid_a"))
	got, err = resolveAccount(ctx, database, "")
	require.NoError(t, err)
	assert.Equal(t, "wxid_a", got)

	require.NoError(t, database.InsertPlaceholderGroup(ctx, "r1", "wxid_b"))
	_, err = resolveAccount(ctx, database, "")
	assert.ErrorContains(t, err, "several accounts")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short text", truncate("short\n  text", 80))

	long := "one two three four five six seven eight nine ten eleven twelve"
	got := truncate(long, 30)
	assert.True(t, len(got) <= 33)
	assert.Equal(t, "...", got[len(got)-3:])
	assert.NotContains(t, got, "  ")
}
