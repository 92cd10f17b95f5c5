package repository

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDB creates and initializes a SQLite database
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}

	// Create tables
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	schema := `
	-- Local replica: one row per replicated record
	CREATE TABLE IF NOT EXISTS documents (
		table_name TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		sort_key TEXT NOT NULL,
		payload TEXT NOT NULL,
		revision INTEGER NOT NULL DEFAULT 1,
		base_revision INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		synced_at DATETIME,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (table_name, doc_id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_sort ON documents(table_name, sort_key);
	CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(table_name, updated_at);

	-- Per-table sync state
	CREATE TABLE IF NOT EXISTS sync_metadata (
		table_name TEXT PRIMARY KEY,
		last_sync DATETIME,
		last_sync_revision INTEGER NOT NULL DEFAULT 0,
		sync_config TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Append-only conflict log
	CREATE TABLE IF NOT EXISTS sync_conflicts (
		id TEXT PRIMARY KEY,
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		local_payload TEXT NOT NULL,
		remote_payload TEXT NOT NULL,
		local_updated_at DATETIME NOT NULL,
		remote_updated_at DATETIME NOT NULL,
		resolution_strategy TEXT,
		winner TEXT,
		detected_at DATETIME NOT NULL,
		resolved_at DATETIME,
		is_resolved INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sync_conflicts_table ON sync_conflicts(table_name, record_id);
	CREATE INDEX IF NOT EXISTS idx_sync_conflicts_resolved ON sync_conflicts(is_resolved);
	`

	_, err := db.Exec(schema)
	return err
}
