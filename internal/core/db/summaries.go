package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/neilberkman/groupsum/internal/core/models"
)

const summaryColumns = `id, room_id, account_id, summary_hash, prompt_digest, summary_text, start_time, end_time, message_count, model, created_at`

func scanSummary(row interface{ Scan(...any) error }) (*models.Summary, error) {
	var (
		s                   models.Summary
		start, end, created string
	)
	err := row.Scan(&s.ID, &s.RoomID, &s.AccountID, &s.Hash, &s.PromptDigest, &s.Text,
		&start, &end, &s.MessageCount, &s.Model, &created)
	if err != nil {
		return nil, err
	}
	s.StartTime = parseTime(start)
	s.EndTime = parseTime(end)
	s.CreatedAt = parseTime(created)
	return &s, nil
}

// InsertSummary appends a summary row and sets s.ID.
func (tx *Tx) InsertSummary(ctx context.Context, s *models.Summary) error {
	res, err := tx.tx.ExecContext(ctx, `
		INSERT INTO summaries (room_id, account_id, summary_hash, prompt_digest, summary_text, start_time, end_time, message_count, model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.RoomID, s.AccountID, s.Hash, s.PromptDigest, s.Text,
		formatTime(s.StartTime), formatTime(s.EndTime), s.MessageCount, s.Model)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	s.ID, err = res.LastInsertId()
	return err
}

// SummaryFilter narrows ListSummaries. Zero fields match everything.
type SummaryFilter struct {
	RoomID    string
	AccountID string
	Since     time.Time // created at or after
	Limit     int
}

// ListSummaries returns summaries newest first.
func (db *DB) ListSummaries(ctx context.Context, f SummaryFilter) ([]*models.Summary, error) {
	query := `SELECT ` + summaryColumns + ` FROM summaries WHERE 1=1`
	var args []any
	if f.RoomID != "" {
		query += ` AND room_id = ?`
		args = append(args, f.RoomID)
	}
	if f.AccountID != "" {
		query += ` AND account_id = ?`
		args = append(args, f.AccountID)
	}
	if !f.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(f.Since))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()

	var out []*models.Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSummary returns ErrNotFound when id does not exist.
func (db *DB) GetSummary(ctx context.Context, id int64) (*models.Summary, error) {
	s, err := scanSummary(db.conn.QueryRowContext(ctx, `SELECT `+summaryColumns+` FROM summaries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get summary %d: %w", id, err)
	}
	return s, nil
}
