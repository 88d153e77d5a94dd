package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neilberkman/groupsum/internal/core/models"
)

// AppendSyncLog records one reconciliation pass. SyncedAt defaults to now.
func (db *DB) AppendSyncLog(ctx context.Context, l *models.SyncLog) error {
	if l.SyncedAt.IsZero() {
		l.SyncedAt = time.Now()
	}
	if l.Type == "" {
		l.Type = models.SyncFull
	}
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO sync_logs (account_id, sync_type, status, groups_seen, groups_inserted, groups_updated, error_message, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, l.AccountID, string(l.Type), string(l.Status), l.GroupsSeen, l.GroupsInserted, l.GroupsUpdated,
		nullString(l.ErrorMessage), formatTime(l.SyncedAt))
	if err != nil {
		return fmt.Errorf("append sync log: %w", err)
	}
	l.ID, _ = res.LastInsertId()
	return nil
}

// LastCompletedSync returns the time of the newest completed pass for
// accountID, or the zero time when there is none.
func (db *DB) LastCompletedSync(ctx context.Context, accountID string) (time.Time, error) {
	var ts sql.NullString
	err := db.conn.QueryRowContext(ctx, `
		SELECT MAX(synced_at) FROM sync_logs
		WHERE account_id = ? AND status = ?
	`, accountID, string(models.SyncCompleted)).Scan(&ts)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("last completed sync: %w", err)
	}
	return parseNullTime(ts), nil
}

// ListSyncLogs returns the newest passes first. An empty accountID lists
// every account.
func (db *DB) ListSyncLogs(ctx context.Context, accountID string, limit int) ([]*models.SyncLog, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, account_id, sync_type, status, groups_seen, groups_inserted, groups_updated, error_message, synced_at FROM sync_logs`
	var args []any
	if accountID != "" {
		query += ` WHERE account_id = ?`
		args = append(args, accountID)
	}
	query += ` ORDER BY synced_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.SyncLog
	for rows.Next() {
		var (
			l           models.SyncLog
			typ, status string
			errMsg      sql.NullString
			synced      string
		)
		if err := rows.Scan(&l.ID, &l.AccountID, &typ, &status, &l.GroupsSeen, &l.GroupsInserted,
			&l.GroupsUpdated, &errMsg, &synced); err != nil {
			return nil, err
		}
		l.Type = models.SyncType(typ)
		l.Status = models.SyncStatus(status)
		l.ErrorMessage = errMsg.String
		l.SyncedAt = parseTime(synced)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}
