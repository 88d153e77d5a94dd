package db

import (
	"fmt"
)

// runMigrations applies database migrations for existing databases
func (db *DB) runMigrations() error {
	// Migration 1: request digest, window size and model on summaries
	if err := db.migration001SummaryProvenance(); err != nil {
		return fmt.Errorf("migration 001: %w", err)
	}

	// Migration 2: index messages stored before the FTS table existed
	if err := db.migration002IndexMessages(); err != nil {
		return fmt.Errorf("migration 002: %w", err)
	}

	return nil
}

// migration001SummaryProvenance adds prompt_digest, message_count and model
// to summaries created before they were recorded.
func (db *DB) migration001SummaryProvenance() error {
	columns := []struct {
		name string
		ddl  string
	}{
		{"prompt_digest", `ALTER TABLE summaries ADD COLUMN prompt_digest TEXT NOT NULL DEFAULT ''`},
		{"message_count", `ALTER TABLE summaries ADD COLUMN message_count INTEGER NOT NULL DEFAULT 0`},
		{"model", `ALTER TABLE summaries ADD COLUMN model TEXT NOT NULL DEFAULT ''`},
	}

	for _, c := range columns {
		var has bool
		err := db.conn.QueryRow(`
			SELECT COUNT(*) FROM pragma_table_info('summaries')
			WHERE name = ?
		`, c.name).Scan(&has)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := db.conn.Exec(c.ddl); err != nil {
			return fmt.Errorf("add %s column: %w", c.name, err)
		}
	}

	return nil
}

// migration002IndexMessages rebuilds messages_fts when it is empty but
// messages are not.
func (db *DB) migration002IndexMessages() error {
	var indexed, stored int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM messages_fts_docsize`).Scan(&indexed); err != nil {
		return err
	}
	if indexed > 0 {
		return nil
	}
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&stored); err != nil {
		return err
	}
	if stored == 0 {
		return nil
	}
	_, err := db.conn.Exec(`INSERT INTO messages_fts(messages_fts) VALUES ('rebuild')`)
	return err
}
