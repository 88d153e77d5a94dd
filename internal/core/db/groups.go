package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neilberkman/groupsum/internal/core/models"
)

const groupColumns = `id, room_id, account_id, name, member_count, avatar, managed, last_summary_time, created_at, updated_at`

func scanGroup(row interface{ Scan(...any) error }) (*models.Group, error) {
	var (
		g                 models.Group
		avatar, watermark sql.NullString
		created, updated  string
	)
	err := row.Scan(&g.ID, &g.RoomID, &g.AccountID, &g.Name, &g.MemberCount, &avatar,
		&g.Managed, &watermark, &created, &updated)
	if err != nil {
		return nil, err
	}
	g.Avatar = avatar.String
	g.LastSummaryTime = parseNullTime(watermark)
	g.CreatedAt = parseTime(created)
	g.UpdatedAt = parseTime(updated)
	return &g, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func upsertGroup(ctx context.Context, q execer, g *models.Group) error {
	if err := g.Validate(); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO groups (room_id, account_id, name, member_count, avatar, managed)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(room_id, account_id) DO UPDATE SET
			name = excluded.name,
			member_count = excluded.member_count,
			avatar = excluded.avatar,
			managed = 1,
			updated_at = `+sqlNow+`
	`, g.RoomID, g.AccountID, g.Name, g.MemberCount, nullString(g.Avatar))
	if err != nil {
		return fmt.Errorf("upsert group %s: %w", g.RoomID, err)
	}
	return nil
}

// UpsertGroup inserts or refreshes a group's metadata and marks it managed.
// The summary watermark is left untouched.
func (db *DB) UpsertGroup(ctx context.Context, g *models.Group) error {
	return upsertGroup(ctx, db.conn, g)
}

// UpsertGroup is UpsertGroup inside a transaction.
func (tx *Tx) UpsertGroup(ctx context.Context, g *models.Group) error {
	return upsertGroup(ctx, tx.tx, g)
}

// RefreshGroup upserts a room whose details were only partly readable. A
// stored row keeps its name while g carries the placeholder name, and keeps
// its member count and avatar where g has none.
func (tx *Tx) RefreshGroup(ctx context.Context, g *models.Group) error {
	if err := g.Validate(); err != nil {
		return err
	}
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO groups (room_id, account_id, name, member_count, avatar, managed)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(room_id, account_id) DO UPDATE SET
			name = CASE WHEN excluded.name = ? THEN name ELSE excluded.name END,
			member_count = CASE WHEN excluded.member_count > 0 THEN excluded.member_count ELSE member_count END,
			avatar = COALESCE(excluded.avatar, avatar),
			managed = 1,
			updated_at = `+sqlNow+`
	`, g.RoomID, g.AccountID, g.Name, g.MemberCount, nullString(g.Avatar), models.PendingSyncName)
	if err != nil {
		return fmt.Errorf("refresh group %s: %w", g.RoomID, err)
	}
	return nil
}

// InsertPlaceholderGroup records membership of a room whose metadata is not
// readable yet. An existing row keeps its metadata and is marked managed.
func (db *DB) InsertPlaceholderGroup(ctx context.Context, roomID, accountID string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO groups (room_id, account_id, name, member_count, managed)
		VALUES (?, ?, ?, 0, 1)
		ON CONFLICT(room_id, account_id) DO UPDATE SET
			managed = 1,
			updated_at = `+sqlNow+`
	`, roomID, accountID, models.PendingSyncName)
	if err != nil {
		return fmt.Errorf("insert placeholder group %s: %w", roomID, err)
	}
	return nil
}

// SetGroupManaged flips the managed flag. It reports whether a row matched.
func (db *DB) SetGroupManaged(ctx context.Context, roomID, accountID string, managed bool) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE groups SET managed = ?, updated_at = `+sqlNow+`
		WHERE room_id = ? AND account_id = ?
	`, managed, roomID, accountID)
	if err != nil {
		return false, fmt.Errorf("set managed on %s: %w", roomID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateGroupName renames an existing group. It reports whether a row matched.
func (db *DB) UpdateGroupName(ctx context.Context, roomID, accountID, name string) (bool, error) {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE groups SET name = ?, updated_at = `+sqlNow+`
		WHERE room_id = ? AND account_id = ?
	`, name, roomID, accountID)
	if err != nil {
		return false, fmt.Errorf("rename group %s: %w", roomID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetGroup returns ErrNotFound when no row matches.
func (db *DB) GetGroup(ctx context.Context, roomID, accountID string) (*models.Group, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE room_id = ? AND account_id = ?`,
		roomID, accountID)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group %s: %w", roomID, err)
	}
	return g, nil
}

// GroupFilter narrows ListGroups. Empty fields match everything.
type GroupFilter struct {
	AccountID        string
	IncludeUnmanaged bool
	Query            string // substring of name or room id
}

// ListGroups returns groups ordered by name, placeholders last.
func (db *DB) ListGroups(ctx context.Context, f GroupFilter) ([]*models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE 1=1`
	var args []any
	if f.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, f.AccountID)
	}
	if !f.IncludeUnmanaged {
		query += ` AND managed = 1`
	}
	if f.Query != "" {
		query += ` AND (name LIKE ? OR room_id LIKE ?)`
		like := "%" + f.Query + "%"
		args = append(args, like, like)
	}
	query += ` ORDER BY name = ?, name COLLATE NOCASE, room_id`
	args = append(args, models.PendingSyncName)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// CountPlaceholders counts groups still named PendingSyncName.
func (db *DB) CountPlaceholders(ctx context.Context, accountID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM groups WHERE account_id = ? AND name = ?`,
		accountID, models.PendingSyncName).Scan(&n)
	return n, err
}

// ExistingRoomIDs returns the set of room ids already stored for accountID.
func (tx *Tx) ExistingRoomIDs(ctx context.Context, accountID string) (map[string]bool, error) {
	rows, err := tx.tx.QueryContext(ctx, `SELECT room_id FROM groups WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("load existing groups: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// AdvanceWatermark moves last_summary_time forward to t. It never moves it
// backwards and reports whether the row changed.
func (tx *Tx) AdvanceWatermark(ctx context.Context, roomID, accountID string, t time.Time) (bool, error) {
	res, err := tx.tx.ExecContext(ctx, `
		UPDATE groups SET last_summary_time = ?, updated_at = `+sqlNow+`
		WHERE room_id = ? AND account_id = ?
		  AND (last_summary_time IS NULL OR last_summary_time < ?)
	`, formatTime(t), roomID, accountID, formatTime(t))
	if err != nil {
		return false, fmt.Errorf("advance watermark for %s: %w", roomID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListAccounts returns every account with at least one group, sorted.
func (db *DB) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT account_id FROM groups ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
