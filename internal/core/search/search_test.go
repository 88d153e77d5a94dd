package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/neilberkman/groupsum/internal/core/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acct = "wxid_self"

var t0 = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	ctx := context.Background()
	require.NoError(t, database.UpsertGroup(ctx, &models.Group{RoomID: "r1", AccountID: acct, Name: "Trail Runners"}))
	require.NoError(t, database.UpsertGroup(ctx, &models.Group{RoomID: "r2", AccountID: acct, Name: "周末爬山"}))

	msgs := []models.Message{
		{RoomID: "r1", MsgID: "a", SenderName: "Ann", Content: "Meet at the north gate at 6am"},
		{RoomID: "r1", MsgID: "b", SenderName: "Bo", Content: "bring headlamps, it is dark"},
		{RoomID: "r2", MsgID: "c", SenderName: "李雷", Content: "明天早上六点在北门集合"},
		{RoomID: "r2", MsgID: "d", SenderName: "韩梅梅", Content: "收到 ok"},
	}
	for i, m := range msgs {
		m.AccountID = acct
		m.Kind = models.KindText
		m.Timestamp = t0.Add(time.Duration(i) * time.Hour)
		require.NoError(t, database.UpsertMessage(ctx, &m))
	}
	return database
}

func TestSearch(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		filters   Filters
		wantMsgs  []string
		wantGroup string
	}{
		{name: "english phrase", filters: Filters{Query: "north gate"}, wantMsgs: []string{"a"}, wantGroup: "Trail Runners"},
		{name: "case insensitive", filters: Filters{Query: "HEADLAMPS"}, wantMsgs: []string{"b"}},
		{name: "chinese substring", filters: Filters{Query: "在北门"}, wantMsgs: []string{"c"}, wantGroup: "周末爬山"},
		{name: "short query uses like", filters: Filters{Query: "ok"}, wantMsgs: []string{"d"}},
		{name: "punctuation is literal", filters: Filters{Query: "headlamps, it"}, wantMsgs: []string{"b"}},
		{name: "room filter", filters: Filters{Query: "at", RoomID: "r2"}, wantMsgs: nil},
		{name: "newest first", filters: Filters{Query: "a"}, wantMsgs: []string{"b", "a"}},
		{name: "since", filters: Filters{Query: "a", Since: t0.Add(time.Hour)}, wantMsgs: []string{"b"}},
		{name: "before", filters: Filters{Query: "a", Before: t0.Add(time.Hour)}, wantMsgs: []string{"a"}},
		{name: "no match", filters: Filters{Query: "kayak"}, wantMsgs: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := Search(ctx, database, tt.filters)
			require.NoError(t, err)

			var got []string
			for _, r := range results {
				got = append(got, r.MsgID)
			}
			assert.Equal(t, tt.wantMsgs, got)
			if tt.wantGroup != "" && len(results) > 0 {
				assert.Equal(t, tt.wantGroup, results[0].GroupName)
			}
		})
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	database := setupTestDB(t)
	_, err := Search(context.Background(), database, Filters{Query: "  "})
	assert.Error(t, err)
}

func TestSearchSeesEditedContent(t *testing.T) {
	database := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, database.UpsertMessage(ctx, &models.Message{
		RoomID: "r1", AccountID: acct, MsgID: "a", Content: "moved to the south gate",
		Timestamp: t0, Kind: models.KindText,
	}))

	results, err := Search(ctx, database, Filters{Query: "north gate"})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = Search(ctx, database, Filters{Query: "south gate"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, t0, results[0].Timestamp)
	assert.Contains(t, results[0].Snippet, "south gate")
}

func TestPhrase(t *testing.T) {
	assert.Equal(t, `"say ""hi"""`, phrase(`say "hi"`))
}
