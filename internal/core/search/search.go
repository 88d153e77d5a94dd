// Package search finds recorded group messages by content.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/neilberkman/groupsum/internal/core/db"
)

// Result is one matching message.
type Result struct {
	RoomID     string
	GroupName  string
	AccountID  string
	MsgID      string
	SenderName string
	Snippet    string
	Timestamp  time.Time
}

// Filters narrows a search. Zero fields match everything.
type Filters struct {
	Query     string
	AccountID string
	RoomID    string
	Since     time.Time // at or after
	Before    time.Time // strictly before
	Limit     int
}

const (
	defaultLimit = 100
	// trigram tokens need at least three characters
	minIndexedRunes = 3
	snippetRunes    = 200
)

// Search returns matching messages, newest first. Queries of three or more
// characters use the full-text index; shorter ones fall back to LIKE.
func Search(ctx context.Context, database *db.DB, f Filters) ([]Result, error) {
	query := strings.TrimSpace(f.Query)
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var sqlText string
	var args []any
	if utf8.RuneCountInString(query) >= minIndexedRunes {
		sqlText = `
			SELECT m.room_id, COALESCE(g.name, ''), m.account_id, m.msg_id, m.sender_name,
				snippet(messages_fts, 0, '', '', '...', 32), m.msg_time
			FROM messages_fts
			JOIN messages m ON messages_fts.rowid = m.id
			LEFT JOIN groups g ON g.room_id = m.room_id AND g.account_id = m.account_id
			WHERE messages_fts MATCH ?`
		args = append(args, phrase(query))
	} else {
		sqlText = `
			SELECT m.room_id, COALESCE(g.name, ''), m.account_id, m.msg_id, m.sender_name,
				SUBSTR(m.content, 1, ?), m.msg_time
			FROM messages m
			LEFT JOIN groups g ON g.room_id = m.room_id AND g.account_id = m.account_id
			WHERE m.content LIKE '%' || ? || '%'`
		args = append(args, snippetRunes, query)
	}

	if f.AccountID != "" {
		sqlText += ` AND m.account_id = ?`
		args = append(args, f.AccountID)
	}
	if f.RoomID != "" {
		sqlText += ` AND m.room_id = ?`
		args = append(args, f.RoomID)
	}
	if !f.Since.IsZero() {
		sqlText += ` AND m.msg_time >= ?`
		args = append(args, db.FormatTime(f.Since))
	}
	if !f.Before.IsZero() {
		sqlText += ` AND m.msg_time < ?`
		args = append(args, db.FormatTime(f.Before))
	}
	sqlText += ` ORDER BY m.msg_time DESC, m.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := database.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []Result
	for rows.Next() {
		var r Result
		var ts sql.NullString
		if err := rows.Scan(&r.RoomID, &r.GroupName, &r.AccountID, &r.MsgID, &r.SenderName, &r.Snippet, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.Timestamp = db.ParseTime(ts.String)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

// phrase quotes q as a single FTS5 string so operators and punctuation in
// chat text are matched literally.
func phrase(q string) string {
	return `"` + strings.ReplaceAll(q, `"`, `""`) + `"`
}
