package repository

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/node/internal/models"
)

func setupTestStore(t *testing.T) *SQLDocumentStore {
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewDocumentStore(db)
}

func testDoc(id, sortKey string, updatedAt time.Time) *models.Document {
	payload, _ := json.Marshal(map[string]string{"id": id})
	return &models.Document{
		Table:     models.TableOrders,
		ID:        id,
		SortKey:   sortKey,
		Payload:   payload,
		UpdatedAt: updatedAt,
	}
}

func TestSQLDocumentStore_Get(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	t.Run("returns nil for missing document", func(t *testing.T) {
		doc, err := store.Get(ctx, models.TableOrders, "missing")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("round-trips a document", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		_, err := store.BulkUpsert(ctx, models.TableOrders, []*models.Document{testDoc("a", "key-a", now)})
		require.NoError(t, err)

		doc, err := store.Get(ctx, models.TableOrders, "a")
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, "key-a", doc.SortKey)
		assert.Equal(t, int64(1), doc.Revision)
		assert.Nil(t, doc.SyncedAt)
	})
}

func TestSQLDocumentStore_BulkUpsert(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("bumps revision on overwrite", func(t *testing.T) {
		doc := testDoc("r", "key-r", now)
		_, err := store.BulkUpsert(ctx, models.TableOrders, []*models.Document{doc})
		require.NoError(t, err)
		_, err = store.BulkUpsert(ctx, models.TableOrders, []*models.Document{doc})
		require.NoError(t, err)

		stored, err := store.Get(ctx, models.TableOrders, "r")
		require.NoError(t, err)
		assert.Equal(t, int64(2), stored.Revision)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		n, err := store.BulkUpsert(ctx, models.TableOrders, nil)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("persists tombstone and synced marker", func(t *testing.T) {
		synced := now
		doc := testDoc("t", "key-t", now)
		doc.Deleted = true
		doc.SyncedAt = &synced

		_, err := store.BulkUpsert(ctx, models.TableOrders, []*models.Document{doc})
		require.NoError(t, err)

		stored, err := store.Get(ctx, models.TableOrders, "t")
		require.NoError(t, err)
		assert.True(t, stored.Deleted)
		require.NotNil(t, stored.SyncedAt)
	})
}

func TestSQLDocumentStore_RangeScan(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	docs := []*models.Document{
		testDoc("c", "20250309T120000.000000000:c", now),
		testDoc("a", "20250309T090000.000000000:a", now),
		testDoc("b", "20250310T090000.000000000:b", now),
	}
	_, err := store.BulkUpsert(ctx, models.TableOrders, docs)
	require.NoError(t, err)

	t.Run("returns only the window in key order", func(t *testing.T) {
		it, err := store.RangeScan(ctx, models.TableOrders, "20250309", "20250310")
		require.NoError(t, err)
		defer it.Close()

		var ids []string
		for it.Next() {
			ids = append(ids, it.Document().ID)
		}
		require.NoError(t, it.Err())
		assert.Equal(t, []string{"a", "c"}, ids)
	})

	t.Run("empty window yields nothing", func(t *testing.T) {
		it, err := store.RangeScan(ctx, models.TableOrders, "20240101", "20240102")
		require.NoError(t, err)
		defer it.Close()

		assert.False(t, it.Next())
		require.NoError(t, it.Err())
	})
}

func TestSQLDocumentStore_ChangedSince(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second).Add(-time.Hour)

	synced := base.Add(10 * time.Minute)
	acknowledged := testDoc("old", "key-old", base)
	acknowledged.SyncedAt = &synced

	pending := testDoc("pending", "key-pending", base)

	edited := testDoc("edited", "key-edited", base.Add(30*time.Minute))
	edited.SyncedAt = &synced

	_, err := store.BulkUpsert(ctx, models.TableOrders, []*models.Document{acknowledged, pending, edited})
	require.NoError(t, err)

	it, err := store.ChangedSince(ctx, models.TableOrders, base.Add(15*time.Minute))
	require.NoError(t, err)
	defer it.Close()

	ids := map[string]bool{}
	for it.Next() {
		ids[it.Document().ID] = true
	}
	require.NoError(t, it.Err())

	// Never-acknowledged and modified-after-watermark documents are
	// pending; the acknowledged unmodified one is not
	assert.True(t, ids["pending"])
	assert.True(t, ids["edited"])
	assert.False(t, ids["old"])
}
