package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ordersync/node/internal/models"
)

// ErrStorageUnavailable wraps any failure to reach the local replica.
// Operations that hit it abort without a partial commit.
var ErrStorageUnavailable = errors.New("document store unavailable")

// DB is the database surface the repositories run on. Both *sql.DB and
// the traced wrapper in observability satisfy it.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// DocumentIterator walks an ordered range of documents lazily, in the
// style of sql.Rows. The sequence is restartable by re-issuing the scan.
type DocumentIterator interface {
	Next() bool
	Document() *models.Document
	Err() error
	Close() error
}

// DocumentStore abstracts the local replica: revision-aware documents
// addressed by (table, id), ordered range scans over sort keys, and
// atomic bulk upserts.
type DocumentStore interface {
	// Get returns the document or nil when absent
	Get(ctx context.Context, table, id string) (*models.Document, error)
	// RangeScan returns documents with startKey <= sortKey < endKey in key order
	RangeScan(ctx context.Context, table, startKey, endKey string) (DocumentIterator, error)
	// ChangedSince returns documents pending replication: never
	// acknowledged, or modified after the given sync point
	ChangedSince(ctx context.Context, table string, since time.Time) (DocumentIterator, error)
	// BulkUpsert writes all documents in one transaction, all-or-nothing,
	// and returns the count written
	BulkUpsert(ctx context.Context, table string, docs []*models.Document) (int, error)
	Close() error
}

// SyncMetadataRepo persists per-table sync state
type SyncMetadataRepo interface {
	Get(ctx context.Context, tableName string) (*models.SyncMetadata, error)
	List(ctx context.Context) ([]*models.SyncMetadata, error)
	Upsert(ctx context.Context, meta *models.SyncMetadata) error
	// Advance moves the watermark forward; it never moves it back
	Advance(ctx context.Context, tableName string, lastSync time.Time, revision int64) error
}

// SyncConflictRepo persists the append-only conflict log
type SyncConflictRepo interface {
	Add(ctx context.Context, conflict *models.SyncConflict) error
	GetByID(ctx context.Context, id string) (*models.SyncConflict, error)
	List(ctx context.Context, resolved *bool, skip, take int) ([]*models.SyncConflict, int, error)
	// Resolve marks an unresolved entry resolved exactly once
	Resolve(ctx context.Context, id, strategy, winner string, resolvedAt time.Time) error
	CountUnresolved(ctx context.Context) (int, error)
}
