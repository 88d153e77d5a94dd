package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/neilberkman/groupsum/internal/core/chat"
	"github.com/neilberkman/groupsum/internal/core/clock"
	"github.com/neilberkman/groupsum/internal/core/db"
	"github.com/neilberkman/groupsum/internal/core/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const acct = "wxid_self"

var t0 = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)

type fakeDirectory struct {
	rooms   []chat.Room
	details map[string]chat.Room
	listErr error
	calls   int
}

func (d *fakeDirectory) Rooms(ctx context.Context) ([]chat.Room, error) {
	d.calls++
	return d.rooms, d.listErr
}

func (d *fakeDirectory) Room(ctx context.Context, id string) (chat.Room, error) {
	if r, ok := d.details[id]; ok {
		return r, nil
	}
	return chat.Room{}, chat.ErrRoomNotFound
}

func setup(t *testing.T) (*db.DB, *clock.Fake, *Syncer) {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	fake := clock.NewFake(t0)
	s, err := New(database, Config{
		Freshness:            24 * time.Hour,
		DefaultAvatarPattern: `/default_avatar\.png$`,
	}, WithClock(fake))
	require.NoError(t, err)
	return database, fake, s
}

func listGroups(t *testing.T, database *db.DB) map[string]*models.Group {
	t.Helper()
	gs, err := database.ListGroups(context.Background(), db.GroupFilter{AccountID: acct, IncludeUnmanaged: true})
	require.NoError(t, err)
	out := make(map[string]*models.Group, len(gs))
	for _, g := range gs {
		out[g.RoomID] = g
	}
	return out
}

func TestSyncRoomListInsertsAndUpdates(t *testing.T) {
	database, _, s := setup(t)
	ctx := context.Background()
	require.NoError(t, database.UpsertGroup(ctx, &models.Group{RoomID: "a@chatroom", AccountID: acct, Name: "Old"}))

	dir := &fakeDirectory{rooms: []chat.Room{
		{ID: "a@chatroom", Topic: "Alpha", MemberCount: 3, Avatar: "https://cdn.example/a.jpg", Ready: true},
		{ID: "b@chatroom", Topic: "Beta", MemberCount: 8, Avatar: "https://cdn.example/default_avatar.png", Ready: true},
	}}

	stats, err := s.SyncRoomList(ctx, dir, acct, false)
	require.NoError(t, err)
	assert.Equal(t, SyncStats{Seen: 2, Inserted: 1, Updated: 1}, stats)

	groups := listGroups(t, database)
	require.Len(t, groups, 2)
	assert.Equal(t, "Alpha", groups["a@chatroom"].Name)
	assert.Equal(t, "https://cdn.example/a.jpg", groups["a@chatroom"].Avatar)
	assert.Empty(t, groups["b@chatroom"].Avatar)
	assert.True(t, groups["b@chatroom"].Managed)

	logs, err := database.ListSyncLogs(ctx, acct, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.SyncCompleted, logs[0].Status)
	assert.Equal(t, models.SyncFull, logs[0].Type)
	assert.Equal(t, 1, logs[0].GroupsInserted)
	assert.True(t, logs[0].SyncedAt.Equal(t0))
}

func TestSyncRoomListFreshnessSkip(t *testing.T) {
	database, fake, s := setup(t)
	ctx := context.Background()
	dir := &fakeDirectory{rooms: []chat.Room{{ID: "a@chatroom", Topic: "Alpha", MemberCount: 3, Ready: true}}}

	_, err := s.SyncRoomList(ctx, dir, acct, false)
	require.NoError(t, err)

	fake.Advance(time.Hour)
	dir.rooms = append(dir.rooms, chat.Room{ID: "b@chatroom", Topic: "Beta", MemberCount: 2, Ready: true})

	stats, err := s.SyncRoomList(ctx, dir, acct, false)
	require.NoError(t, err)
	assert.True(t, stats.Skipped)
	assert.Equal(t, 1, dir.calls)
	assert.Len(t, listGroups(t, database), 1)
	logs, err := database.ListSyncLogs(ctx, acct, 10)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	// Forced passes ignore freshness.
	stats, err = s.SyncRoomList(ctx, dir, acct, true)
	require.NoError(t, err)
	assert.False(t, stats.Skipped)
	assert.Equal(t, 1, stats.Inserted)

	// Stale again after the freshness window.
	fake.Advance(25 * time.Hour)
	stats, err = s.SyncRoomList(ctx, dir, acct, false)
	require.NoError(t, err)
	assert.False(t, stats.Skipped)
	assert.Equal(t, 2, stats.Updated)
}

func TestSyncRoomListNeverRemovesRooms(t *testing.T) {
	database, _, s := setup(t)
	ctx := context.Background()
	require.NoError(t, database.UpsertGroup(ctx, &models.Group{RoomID: "gone@chatroom", AccountID: acct, Name: "Gone"}))

	dir := &fakeDirectory{rooms: []chat.Room{{ID: "a@chatroom", Topic: "Alpha", MemberCount: 3, Ready: true}}}
	_, err := s.SyncRoomList(ctx, dir, acct, true)
	require.NoError(t, err)

	groups := listGroups(t, database)
	require.Contains(t, groups, "gone@chatroom")
	assert.True(t, groups["gone@chatroom"].Managed)
}

func TestSyncRoomListFailureIsLogged(t *testing.T) {
	database, _, s := setup(t)
	ctx := context.Background()
	dir := &fakeDirectory{listErr: errors.New("session not ready")}

	_, err := s.SyncRoomList(ctx, dir, acct, true)
	require.Error(t, err)

	logs, err := database.ListSyncLogs(ctx, acct, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.SyncFailed, logs[0].Status)
	assert.Contains(t, logs[0].ErrorMessage, "session not ready")

	// A failed pass does not count as fresh.
	dir.listErr = nil
	dir.rooms = []chat.Room{{ID: "a@chatroom", Topic: "Alpha", MemberCount: 1, Ready: true}}
	stats, err := s.SyncRoomList(ctx, dir, acct, false)
	require.NoError(t, err)
	assert.False(t, stats.Skipped)
}

func TestSyncRoomListResolvesIncompleteRooms(t *testing.T) {
	database, _, s := setup(t)
	ctx := context.Background()
	require.NoError(t, database.InsertPlaceholderGroup(ctx, "p@chatroom", acct))

	dir := &fakeDirectory{
		rooms: []chat.Room{
			{ID: "p@chatroom"},
			{ID: "q@chatroom"},
		},
		details: map[string]chat.Room{
			"p@chatroom": {ID: "p@chatroom", Topic: "Pending Now Known", MemberCount: 5, Avatar: "not a url", Ready: true},
		},
	}
	stats, err := s.SyncRoomList(ctx, dir, acct, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Inserted)

	groups := listGroups(t, database)
	assert.Equal(t, "Pending Now Known", groups["p@chatroom"].Name)
	assert.Equal(t, 5, groups["p@chatroom"].MemberCount)
	assert.Empty(t, groups["p@chatroom"].Avatar)
	assert.True(t, groups["q@chatroom"].IsPlaceholder())
}

func TestSyncRoomListKeepsKnownMetadataOnFailedLookup(t *testing.T) {
	database, _, s := setup(t)
	ctx := context.Background()
	require.NoError(t, database.UpsertGroup(ctx, &models.Group{
		RoomID: "a@chatroom", AccountID: acct, Name: "Team Alpha", MemberCount: 12, Avatar: "https://cdn.example/a.jpg",
	}))
	_, err := database.SetGroupManaged(ctx, "a@chatroom", acct, false)
	require.NoError(t, err)

	dir := &fakeDirectory{rooms: []chat.Room{{ID: "a@chatroom"}}}
	stats, err := s.SyncRoomList(ctx, dir, acct, true)
	require.NoError(t, err)
	assert.Equal(t, SyncStats{Seen: 1, Updated: 1}, stats)

	g := listGroups(t, database)["a@chatroom"]
	assert.Equal(t, "Team Alpha", g.Name)
	assert.Equal(t, 12, g.MemberCount)
	assert.Equal(t, "https://cdn.example/a.jpg", g.Avatar)
	assert.True(t, g.Managed)

	n, err := database.CountPlaceholders(ctx, acct)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeferredTask(t *testing.T) {
	database, _, s := setup(t)
	ctx := context.Background()
	dir := &fakeDirectory{rooms: []chat.Room{{ID: "a@chatroom", Topic: "Alpha", MemberCount: 3, Ready: true}}}

	_, err := s.SyncRoomList(ctx, dir, acct, false)
	require.NoError(t, err)

	// Deferred passes are forced even inside the freshness window.
	require.NoError(t, s.Deferred(dir, acct)(ctx))
	assert.Equal(t, 2, dir.calls)

	logs, err := database.ListSyncLogs(ctx, acct, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, models.SyncDeferred, logs[0].Type)
}

func TestNewRejectsBadPattern(t *testing.T) {
	_, err := New(nil, Config{DefaultAvatarPattern: "("})
	assert.Error(t, err)
}
