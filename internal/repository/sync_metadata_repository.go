package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/ordersync/node/internal/models"
)

// SyncMetadataRepository persists per-table sync state
type SyncMetadataRepository struct {
	db DB
}

// NewSyncMetadataRepository creates a new SyncMetadataRepository
func NewSyncMetadataRepository(db DB) *SyncMetadataRepository {
	return &SyncMetadataRepository{db: db}
}

// Get retrieves sync metadata for a table, nil when the table has never synced
func (r *SyncMetadataRepository) Get(ctx context.Context, tableName string) (*models.SyncMetadata, error) {
	query := `SELECT table_name, last_sync, last_sync_revision, sync_config, created_at, updated_at
		FROM sync_metadata WHERE table_name = $1`

	meta, err := r.scanMetadata(r.db.QueryRowContext(ctx, query, tableName))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get metadata", err)
	}
	return meta, nil
}

// List returns metadata for every table that has attempted a sync
func (r *SyncMetadataRepository) List(ctx context.Context) ([]*models.SyncMetadata, error) {
	query := `SELECT table_name, last_sync, last_sync_revision, sync_config, created_at, updated_at
		FROM sync_metadata ORDER BY table_name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("list metadata", err)
	}
	defer rows.Close()

	var result []*models.SyncMetadata
	for rows.Next() {
		meta, err := r.scanMetadata(rows)
		if err != nil {
			return nil, storageErr("list metadata", err)
		}
		result = append(result, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list metadata", err)
	}
	return result, nil
}

// Upsert creates or updates a table's sync metadata
func (r *SyncMetadataRepository) Upsert(ctx context.Context, meta *models.SyncMetadata) error {
	config, err := json.Marshal(meta.Config)
	if err != nil {
		return err
	}

	query := `INSERT INTO sync_metadata (table_name, last_sync, last_sync_revision, sync_config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (table_name) DO UPDATE SET
			last_sync = EXCLUDED.last_sync,
			last_sync_revision = EXCLUDED.last_sync_revision,
			sync_config = EXCLUDED.sync_config,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		meta.TableName,
		meta.LastSync,
		meta.LastSyncRevision,
		string(config),
		meta.CreatedAt,
		time.Now().UTC(),
	)
	if err != nil {
		return storageErr("upsert metadata", err)
	}
	return nil
}

// Advance moves the watermark forward after a committed round. The
// guard keeps the revision monotonic: a stale round can never roll the
// watermark back.
func (r *SyncMetadataRepository) Advance(ctx context.Context, tableName string, lastSync time.Time, revision int64) error {
	query := `UPDATE sync_metadata
		SET last_sync = $1, last_sync_revision = $2, updated_at = $3
		WHERE table_name = $4 AND last_sync_revision <= $2`

	_, err := r.db.ExecContext(ctx, query, lastSync, revision, time.Now().UTC(), tableName)
	if err != nil {
		return storageErr("advance metadata", err)
	}
	return nil
}

func (r *SyncMetadataRepository) scanMetadata(row rowScanner) (*models.SyncMetadata, error) {
	var meta models.SyncMetadata
	var config string
	err := row.Scan(
		&meta.TableName,
		&meta.LastSync,
		&meta.LastSyncRevision,
		&config,
		&meta.CreatedAt,
		&meta.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(config), &meta.Config); err != nil {
		return nil, err
	}
	return &meta, nil
}
