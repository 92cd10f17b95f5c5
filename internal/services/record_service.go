package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ordersync/node/internal/models"
	"github.com/ordersync/node/internal/repository"
)

// ErrRecordNotFound is returned when a record id is unknown or deleted
var ErrRecordNotFound = errors.New("record not found")

// ErrUnknownTable is returned for a table outside the replicated set
var ErrUnknownTable = errors.New("unknown table")

// RecordService is the generic write path for the replicated catalog
// tables (menu items, users, delivery persons, customers). Orders have
// their own service because only orders need day sequencing.
type RecordService struct {
	store  repository.DocumentStore
	tables map[string]bool
}

// NewRecordService creates a new RecordService
func NewRecordService(store repository.DocumentStore) *RecordService {
	tables := make(map[string]bool)
	for _, t := range models.SyncTables {
		if t != models.TableOrders {
			tables[t] = true
		}
	}
	return &RecordService{store: store, tables: tables}
}

// Upsert writes a record as a pending local change
func (s *RecordService) Upsert(ctx context.Context, table string, rec models.SyncableRecord) error {
	if !s.tables[table] {
		return fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	doc, err := models.NewDocument(table, rec)
	if err != nil {
		return err
	}
	_, err = s.store.BulkUpsert(ctx, table, []*models.Document{doc})
	return err
}

// Get retrieves a record document by id, excluding tombstones
func (s *RecordService) Get(ctx context.Context, table, id string) (*models.Document, error) {
	if !s.tables[table] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	doc, err := s.store.Get(ctx, table, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Deleted {
		return nil, ErrRecordNotFound
	}
	return doc, nil
}

// List returns all non-deleted documents of a table in key order
func (s *RecordService) List(ctx context.Context, table string) ([]*models.Document, error) {
	if !s.tables[table] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	// The full key space of an id-keyed table is one open-ended scan.
	it, err := s.store.RangeScan(ctx, table, "", "\xff\xff")
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var docs []*models.Document
	for it.Next() {
		if it.Document().Deleted {
			continue
		}
		docs = append(docs, it.Document())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

// SoftDelete tombstones a record so the deletion replicates
func (s *RecordService) SoftDelete(ctx context.Context, table, id string) error {
	doc, err := s.Get(ctx, table, id)
	if err != nil {
		return err
	}
	if err := rewriteTombstone(doc); err != nil {
		return err
	}
	_, err = s.store.BulkUpsert(ctx, table, []*models.Document{doc})
	return err
}

// rewriteTombstone flips the tombstone flag inside the stored payload
// and marks the document pending so the deletion replicates
func rewriteTombstone(doc *models.Document) error {
	var payload map[string]interface{}
	if err := json.Unmarshal(doc.Payload, &payload); err != nil {
		return err
	}

	now := time.Now().UTC()
	payload["isDeleted"] = true
	payload["updatedAt"] = now.Format(time.RFC3339Nano)
	delete(payload, "syncedAt")

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	doc.Payload = raw
	doc.Deleted = true
	doc.UpdatedAt = now
	doc.SyncedAt = nil
	return nil
}
