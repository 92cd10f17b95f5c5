package services

import (
	"context"
	"time"

	"github.com/ordersync/node/internal/models"
	"github.com/ordersync/node/internal/repository"
)

// ChangeTracker derives the set of records mutated since a table's last
// recorded sync point. Timestamps are client wall clock, so the tracker
// tolerates at-least-once re-delivery rather than requiring exact clock
// ordering; the remote push is idempotent.
type ChangeTracker struct {
	store repository.DocumentStore
}

// NewChangeTracker creates a new ChangeTracker
func NewChangeTracker(store repository.DocumentStore) *ChangeTracker {
	return &ChangeTracker{store: store}
}

// PendingChanges returns a lazy, restartable sequence of documents whose
// UpdatedAt is after the sync point or that were never acknowledged
func (t *ChangeTracker) PendingChanges(ctx context.Context, table string, since time.Time) (repository.DocumentIterator, error) {
	return t.store.ChangedSince(ctx, table, since)
}

// CollectPending drains the pending sequence into memory, preserving order
func (t *ChangeTracker) CollectPending(ctx context.Context, table string, since time.Time) ([]*models.Document, error) {
	it, err := t.PendingChanges(ctx, table, since)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var docs []*models.Document
	for it.Next() {
		docs = append(docs, it.Document())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
