package db

func (db *DB) initSchema() error {
	schema := `
	-- Groups the session is or was a member of; never deleted
	CREATE TABLE IF NOT EXISTS groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		member_count INTEGER NOT NULL DEFAULT 0,
		avatar TEXT,
		managed INTEGER NOT NULL DEFAULT 1,
		last_summary_time TEXT,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
		UNIQUE(room_id, account_id)
	);

	CREATE INDEX IF NOT EXISTS idx_groups_account ON groups(account_id, managed);

	-- Messages table
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		msg_id TEXT NOT NULL,
		sender_id TEXT NOT NULL DEFAULT '',
		sender_name TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		msg_time TEXT NOT NULL,
		msg_type TEXT NOT NULL DEFAULT 'unknown',
		mentions_self INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
		UNIQUE(room_id, msg_id, account_id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_window ON messages(room_id, account_id, msg_time);

	-- Append-only audit of reconciliation passes
	CREATE TABLE IF NOT EXISTS sync_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		sync_type TEXT NOT NULL DEFAULT 'full',
		status TEXT NOT NULL,
		groups_seen INTEGER NOT NULL DEFAULT 0,
		groups_inserted INTEGER NOT NULL DEFAULT 0,
		groups_updated INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		synced_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sync_logs_account ON sync_logs(account_id, status, synced_at);

	-- Append-only generated summaries; summary_hash is not unique
	CREATE TABLE IF NOT EXISTS summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		summary_hash TEXT NOT NULL,
		summary_text TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_summaries_room ON summaries(room_id, account_id, end_time);

	-- Full-text index over message content. Trigrams match inside CJK text,
	-- which has no word boundaries.
	CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		content,
		content=messages,
		content_rowid=id,
		tokenize='trigram'
	);

	-- Triggers to keep FTS in sync
	CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
		INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
	END;

	CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
	END;

	CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE OF content ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, content) VALUES ('delete', old.id, old.content);
		INSERT INTO messages_fts(rowid, content) VALUES (new.id, new.content);
	END;
	`

	_, err := db.conn.Exec(schema)
	return err
}
