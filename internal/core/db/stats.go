package db

import (
	"context"
	"database/sql"
	"time"
)

// Stats represents database statistics
type Stats struct {
	TotalGroups     int
	ManagedGroups   int
	PendingGroups   int // placeholders awaiting reconciliation
	TotalMessages   int
	TotalSummaries  int
	OldestMessage   time.Time
	NewestMessage   time.Time
	LastSync        time.Time
	LastSyncStatus  string
	BusiestRoom     string
	BusiestRoomSize int
}

// GetStats returns comprehensive database statistics
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	err := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(managed), 0), COALESCE(SUM(name = 'pending sync'), 0)
		FROM groups
	`).Scan(&stats.TotalGroups, &stats.ManagedGroups, &stats.PendingGroups)
	if err != nil {
		return nil, err
	}

	var oldest, newest sql.NullString
	err = db.conn.QueryRowContext(ctx, `SELECT COUNT(*), MIN(msg_time), MAX(msg_time) FROM messages`).
		Scan(&stats.TotalMessages, &oldest, &newest)
	if err != nil {
		return nil, err
	}
	stats.OldestMessage = parseNullTime(oldest)
	stats.NewestMessage = parseNullTime(newest)

	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM summaries`).Scan(&stats.TotalSummaries); err != nil {
		return nil, err
	}

	var synced sql.NullString
	err = db.conn.QueryRowContext(ctx, `SELECT synced_at, status FROM sync_logs ORDER BY synced_at DESC, id DESC LIMIT 1`).
		Scan(&synced, &stats.LastSyncStatus)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	stats.LastSync = parseNullTime(synced)

	// Busiest room by message count, by name when known
	err = db.conn.QueryRowContext(ctx, `
		SELECT COALESCE(NULLIF(g.name, ''), m.room_id), COUNT(*) AS n
		FROM messages m
		LEFT JOIN groups g ON g.room_id = m.room_id AND g.account_id = m.account_id
		GROUP BY m.room_id, m.account_id
		ORDER BY n DESC
		LIMIT 1
	`).Scan(&stats.BusiestRoom, &stats.BusiestRoomSize)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	return stats, nil
}
