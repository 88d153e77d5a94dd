package db

import (
	"context"
	"fmt"
	"time"

	"github.com/neilberkman/groupsum/internal/core/models"
)

const messageColumns = `id, room_id, account_id, msg_id, sender_id, sender_name, content, msg_time, msg_type, mentions_self, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	var (
		m                          models.Message
		ts, kind, created, updated string
	)
	err := row.Scan(&m.ID, &m.RoomID, &m.AccountID, &m.MsgID, &m.SenderID, &m.SenderName,
		&m.Content, &ts, &kind, &m.MentionsSelf, &created, &updated)
	if err != nil {
		return nil, err
	}
	m.Timestamp = parseTime(ts)
	m.Kind = models.MessageKind(kind)
	m.CreatedAt = parseTime(created)
	m.UpdatedAt = parseTime(updated)
	return &m, nil
}

// UpsertMessage stores m keyed on (room, msg id, account). A redelivered
// message replaces the stored fields.
func (db *DB) UpsertMessage(ctx context.Context, m *models.Message) error {
	if err := m.Validate(); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO messages (room_id, account_id, msg_id, sender_id, sender_name, content, msg_time, msg_type, mentions_self)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(room_id, msg_id, account_id) DO UPDATE SET
			sender_id = excluded.sender_id,
			sender_name = excluded.sender_name,
			content = excluded.content,
			msg_time = excluded.msg_time,
			msg_type = excluded.msg_type,
			mentions_self = excluded.mentions_self,
			updated_at = `+sqlNow+`
	`, m.RoomID, m.AccountID, m.MsgID, m.SenderID, m.SenderName, m.Content,
		formatTime(m.Timestamp), string(m.Kind), m.MentionsSelf)
	if err != nil {
		return fmt.Errorf("upsert message %s: %w", m.MsgID, err)
	}
	return nil
}

// MessagesAfter returns the room's messages with a timestamp strictly after
// `after`, oldest first. A zero `after` returns every message.
func (db *DB) MessagesAfter(ctx context.Context, roomID, accountID string, after time.Time) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE room_id = ? AND account_id = ?`
	args := []any{roomID, accountID}
	if !after.IsZero() {
		query += ` AND msg_time > ?`
		args = append(args, formatTime(after))
	}
	query += ` ORDER BY msg_time ASC, id ASC`

	return db.queryMessages(ctx, query, args...)
}

// ListRecentMessages returns the last limit messages of a room, oldest first.
func (db *DB) ListRecentMessages(ctx context.Context, roomID, accountID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	msgs, err := db.queryMessages(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE room_id = ? AND account_id = ?
		ORDER BY msg_time DESC, id DESC
		LIMIT ?
	`, roomID, accountID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (db *DB) queryMessages(ctx context.Context, query string, args ...any) ([]*models.Message, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// RoomsWithPendingMessages lists managed rooms of accountID holding messages
// newer than their summary watermark.
func (db *DB) RoomsWithPendingMessages(ctx context.Context, accountID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT g.room_id
		FROM groups g
		WHERE g.account_id = ? AND g.managed = 1
		  AND EXISTS (
			SELECT 1 FROM messages m
			WHERE m.room_id = g.room_id AND m.account_id = g.account_id
			  AND m.msg_time > COALESCE(g.last_summary_time, '')
		  )
		ORDER BY g.room_id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list pending rooms: %w", err)
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
