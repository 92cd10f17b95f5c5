package repository

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// NewPostgresDB creates and initializes a PostgreSQL database connection
func NewPostgresDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	// Create tables
	if err := createPostgresTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func createPostgresTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		table_name TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		sort_key TEXT NOT NULL,
		payload TEXT NOT NULL,
		revision BIGINT NOT NULL DEFAULT 1,
		base_revision BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL,
		synced_at TIMESTAMPTZ,
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (table_name, doc_id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_sort ON documents(table_name, sort_key);
	CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(table_name, updated_at);

	CREATE TABLE IF NOT EXISTS sync_metadata (
		table_name TEXT PRIMARY KEY,
		last_sync TIMESTAMPTZ,
		last_sync_revision BIGINT NOT NULL DEFAULT 0,
		sync_config TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS sync_conflicts (
		id TEXT PRIMARY KEY,
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		local_payload TEXT NOT NULL,
		remote_payload TEXT NOT NULL,
		local_updated_at TIMESTAMPTZ NOT NULL,
		remote_updated_at TIMESTAMPTZ NOT NULL,
		resolution_strategy TEXT,
		winner TEXT,
		detected_at TIMESTAMPTZ NOT NULL,
		resolved_at TIMESTAMPTZ,
		is_resolved BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_sync_conflicts_table ON sync_conflicts(table_name, record_id);
	CREATE INDEX IF NOT EXISTS idx_sync_conflicts_resolved ON sync_conflicts(is_resolved);
	`

	_, err := db.Exec(schema)
	return err
}
