package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/ordersync/node/internal/models"
)

// ErrConflictResolved is returned when resolving an already-resolved entry
var ErrConflictResolved = errors.New("conflict already resolved")

// ErrConflictNotFound is returned when a conflict id is unknown
var ErrConflictNotFound = errors.New("conflict not found")

// SyncConflictRepository persists the append-only conflict log
type SyncConflictRepository struct {
	db DB
}

// NewSyncConflictRepository creates a new SyncConflictRepository
func NewSyncConflictRepository(db DB) *SyncConflictRepository {
	return &SyncConflictRepository{db: db}
}

const conflictColumns = `id, table_name, record_id, local_payload, remote_payload,
	local_updated_at, remote_updated_at, resolution_strategy, winner,
	detected_at, resolved_at, is_resolved`

// Add appends a new conflict log entry
func (r *SyncConflictRepository) Add(ctx context.Context, conflict *models.SyncConflict) error {
	query := `INSERT INTO sync_conflicts (` + conflictColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.ExecContext(ctx, query,
		conflict.ID,
		conflict.TableName,
		conflict.RecordID,
		string(conflict.LocalPayload),
		string(conflict.RemotePayload),
		conflict.LocalUpdatedAt,
		conflict.RemoteUpdatedAt,
		nullable(conflict.ResolutionStrategy),
		nullable(conflict.Winner),
		conflict.DetectedAt,
		conflict.ResolvedAt,
		conflict.Resolved,
	)
	if err != nil {
		return storageErr("add conflict", err)
	}
	return nil
}

// GetByID retrieves a conflict log entry by its ID
func (r *SyncConflictRepository) GetByID(ctx context.Context, id string) (*models.SyncConflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM sync_conflicts WHERE id = $1`

	conflict, err := r.scanConflict(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get conflict", err)
	}
	return conflict, nil
}

// List retrieves conflicts with an optional resolved filter, newest first
func (r *SyncConflictRepository) List(ctx context.Context, resolved *bool, skip, take int) ([]*models.SyncConflict, int, error) {
	countQuery := `SELECT COUNT(*) FROM sync_conflicts`
	dataQuery := `SELECT ` + conflictColumns + ` FROM sync_conflicts`

	args := []interface{}{}
	if resolved != nil {
		countQuery += ` WHERE is_resolved = $1`
		dataQuery += ` WHERE is_resolved = $1`
		args = append(args, *resolved)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, storageErr("count conflicts", err)
	}

	n := len(args)
	dataQuery += ` ORDER BY detected_at DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	args = append(args, take, skip)

	rows, err := r.db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, storageErr("list conflicts", err)
	}
	defer rows.Close()

	var conflicts []*models.SyncConflict
	for rows.Next() {
		conflict, err := r.scanConflict(rows)
		if err != nil {
			return nil, 0, storageErr("list conflicts", err)
		}
		conflicts = append(conflicts, conflict)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("list conflicts", err)
	}
	return conflicts, total, nil
}

// Resolve marks an unresolved entry resolved. The guard makes the
// mutation happen at most once; the entry is never touched again.
func (r *SyncConflictRepository) Resolve(ctx context.Context, id, strategy, winner string, resolvedAt time.Time) error {
	query := `UPDATE sync_conflicts
		SET resolution_strategy = $1, winner = $2, resolved_at = $3, is_resolved = $4
		WHERE id = $5 AND is_resolved = $6`

	res, err := r.db.ExecContext(ctx, query, strategy, winner, resolvedAt, true, id, false)
	if err != nil {
		return storageErr("resolve conflict", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("resolve conflict", err)
	}
	if affected == 0 {
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return ErrConflictNotFound
		}
		return ErrConflictResolved
	}
	return nil
}

// CountUnresolved returns the size of the unresolved backlog
func (r *SyncConflictRepository) CountUnresolved(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sync_conflicts WHERE is_resolved = $1`, false,
	).Scan(&count)
	if err != nil {
		return 0, storageErr("count unresolved", err)
	}
	return count, nil
}

func (r *SyncConflictRepository) scanConflict(row rowScanner) (*models.SyncConflict, error) {
	var c models.SyncConflict
	var local, remote string
	var strategy, winner sql.NullString
	err := row.Scan(
		&c.ID,
		&c.TableName,
		&c.RecordID,
		&local,
		&remote,
		&c.LocalUpdatedAt,
		&c.RemoteUpdatedAt,
		&strategy,
		&winner,
		&c.DetectedAt,
		&c.ResolvedAt,
		&c.Resolved,
	)
	if err != nil {
		return nil, err
	}
	c.LocalPayload = []byte(local)
	c.RemotePayload = []byte(remote)
	c.ResolutionStrategy = strategy.String
	c.Winner = winner.String
	return &c, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
