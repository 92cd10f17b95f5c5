package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ordersync/node/internal/models"
)

// SQLDocumentStore implements DocumentStore on database/sql. Placeholders
// use the $n form, which both lib/pq and go-sqlite3 accept, so one
// implementation serves both engines.
type SQLDocumentStore struct {
	db DB
}

// NewDocumentStore creates a document store over an initialized database
func NewDocumentStore(db DB) *SQLDocumentStore {
	return &SQLDocumentStore{db: db}
}

const documentColumns = `table_name, doc_id, sort_key, payload, revision, base_revision, updated_at, synced_at, is_deleted`

// Get retrieves a document by id, nil when absent
func (s *SQLDocumentStore) Get(ctx context.Context, table, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE table_name = $1 AND doc_id = $2`

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, table, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get", err)
	}
	return doc, nil
}

// RangeScan returns documents with startKey <= sort_key < endKey in key order
func (s *SQLDocumentStore) RangeScan(ctx context.Context, table, startKey, endKey string) (DocumentIterator, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE table_name = $1 AND sort_key >= $2 AND sort_key < $3
		ORDER BY sort_key`

	rows, err := s.db.QueryContext(ctx, query, table, startKey, endKey)
	if err != nil {
		return nil, storageErr("range scan", err)
	}
	return &documentIterator{rows: rows}, nil
}

// ChangedSince returns documents never acknowledged or modified after the sync point
func (s *SQLDocumentStore) ChangedSince(ctx context.Context, table string, since time.Time) (DocumentIterator, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE table_name = $1 AND (synced_at IS NULL OR updated_at > $2)
		ORDER BY updated_at, doc_id`

	rows, err := s.db.QueryContext(ctx, query, table, since)
	if err != nil {
		return nil, storageErr("changed since", err)
	}
	return &documentIterator{rows: rows}, nil
}

// BulkUpsert writes all documents in one transaction. The local revision
// counter is bumped on every overwrite; this is the sole commit point of
// sync merges and sequence repairs, so the write is all-or-nothing.
func (s *SQLDocumentStore) BulkUpsert(ctx context.Context, table string, docs []*models.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("bulk upsert", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, 1, $5, $6, $7, $8)
		ON CONFLICT (table_name, doc_id) DO UPDATE SET
			sort_key = EXCLUDED.sort_key,
			payload = EXCLUDED.payload,
			revision = documents.revision + 1,
			base_revision = EXCLUDED.base_revision,
			updated_at = EXCLUDED.updated_at,
			synced_at = EXCLUDED.synced_at,
			is_deleted = EXCLUDED.is_deleted`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, storageErr("bulk upsert", err)
	}
	defer stmt.Close()

	for _, doc := range docs {
		_, err := stmt.ExecContext(ctx,
			table,
			doc.ID,
			doc.SortKey,
			string(doc.Payload),
			doc.BaseRevision,
			doc.UpdatedAt,
			doc.SyncedAt,
			doc.Deleted,
		)
		if err != nil {
			return 0, storageErr("bulk upsert", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("bulk upsert", err)
	}
	return len(docs), nil
}

// Close closes the underlying database
func (s *SQLDocumentStore) Close() error {
	return s.db.Close()
}

// documentIterator adapts sql.Rows to DocumentIterator
type documentIterator struct {
	rows *sql.Rows
	doc  *models.Document
	err  error
}

func (it *documentIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	doc, err := scanDocument(it.rows)
	if err != nil {
		it.err = storageErr("scan", err)
		return false
	}
	it.doc = doc
	return true
}

func (it *documentIterator) Document() *models.Document { return it.doc }

func (it *documentIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	if err := it.rows.Err(); err != nil {
		return storageErr("scan", err)
	}
	return nil
}

func (it *documentIterator) Close() error { return it.rows.Close() }

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document
	var payload string
	err := row.Scan(
		&doc.Table,
		&doc.ID,
		&doc.SortKey,
		&payload,
		&doc.Revision,
		&doc.BaseRevision,
		&doc.UpdatedAt,
		&doc.SyncedAt,
		&doc.Deleted,
	)
	if err != nil {
		return nil, err
	}
	doc.Payload = []byte(payload)
	return &doc, nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
