package store

import (
	"database/sql"
	"fmt"
)

// Schema statements applied on startup. CREATE IF NOT EXISTS keeps startup
// idempotent across restarts against the same database file.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id         TEXT PRIMARY KEY,
		room       TEXT NOT NULL,
		uname      TEXT NOT NULL,
		role       TEXT NOT NULL CHECK (role IN ('owner', 'admin', 'mod', 'member')),
		text       TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_room_time
		ON chat_messages (room, created_at)`,
}

func applySchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
