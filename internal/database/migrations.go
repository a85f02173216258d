package database

import (
	"database/sql"
	"fmt"
)

const migrationsSQL = `
-- Settings table (key-value store for simple settings)
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Servers found by network discovery, kept so the UI can offer
-- previously seen hosts without rescanning
CREATE TABLE IF NOT EXISTS discovered_servers (
    endpoint TEXT PRIMARY KEY,
    ip TEXT NOT NULL,
    port INTEGER NOT NULL,
    hostname TEXT NOT NULL DEFAULT '',
    models TEXT NOT NULL DEFAULT '[]',
    last_seen_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_discovered_servers_last_seen ON discovered_servers(last_seen_at DESC);
`

// RunMigrations executes all database migrations.
func RunMigrations(db *sql.DB) error {
	if _, err := db.Exec(migrationsSQL); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
