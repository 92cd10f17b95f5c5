package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/node/internal/models"
	"github.com/ordersync/node/internal/repository"
)

// fakeTransport scripts the remote authority's behaviour per record id
type fakeTransport struct {
	verdicts  map[string]models.PushResult
	pullItems []models.PullItem
	pushErr   error
	pullErr   error

	pushes     [][]models.PushItem
	pullSinces []int64
}

func (f *fakeTransport) Push(ctx context.Context, table string, items []models.PushItem) ([]models.PushResult, error) {
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	f.pushes = append(f.pushes, items)

	results := make([]models.PushResult, 0, len(items))
	for _, item := range items {
		if verdict, ok := f.verdicts[item.ID]; ok {
			results = append(results, verdict)
			continue
		}
		results = append(results, models.PushResult{
			ID:       item.ID,
			Outcome:  models.OutcomeAccepted,
			Revision: item.BaseRevision + 1,
		})
	}
	return results, nil
}

func (f *fakeTransport) Pull(ctx context.Context, table string, since int64) ([]models.PullItem, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	f.pullSinces = append(f.pullSinces, since)

	var items []models.PullItem
	for _, item := range f.pullItems {
		if item.Revision > since {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeTransport) pushedIDs() []string {
	var ids []string
	for _, batch := range f.pushes {
		for _, item := range batch {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

type syncFixture struct {
	store     repository.DocumentStore
	metadata  *repository.SyncMetadataRepository
	conflicts *repository.SyncConflictRepository
	transport *fakeTransport
	service   *SyncService
}

func newSyncFixture(t *testing.T) *syncFixture {
	store, metadata, conflicts := setupTestRepos(t)
	locks := NewKeyedLocks()
	transport := &fakeTransport{verdicts: map[string]models.PushResult{}}

	service := NewSyncService(store, metadata, conflicts, transport, NewDaySequencer(store, locks), locks, SyncServiceOptions{})

	return &syncFixture{
		store:     store,
		metadata:  metadata,
		conflicts: conflicts,
		transport: transport,
		service:   service,
	}
}

func (f *syncFixture) seedPendingOrder(t *testing.T, id string, createdAt time.Time, status string) *models.Order {
	t.Helper()

	order := &models.Order{
		SyncFields: models.SyncFields{
			ID:        id,
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
		},
		CustomerName: "Customer " + id,
		Status:       status,
	}
	doc, err := models.NewDocument(models.TableOrders, order)
	require.NoError(t, err)
	_, err = f.store.BulkUpsert(context.Background(), models.TableOrders, []*models.Document{doc})
	require.NoError(t, err)
	return order
}

func orderPayload(t *testing.T, id string, createdAt, updatedAt time.Time, status string, number int) json.RawMessage {
	t.Helper()

	payload, err := json.Marshal(&models.Order{
		SyncFields: models.SyncFields{
			ID:        id,
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		OrderNumber:  number,
		CustomerName: "Customer " + id,
		Status:       status,
	})
	require.NoError(t, err)
	return payload
}

func TestSyncService_SyncTable_Push(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC)

	t.Run("accepted push marks the document acknowledged", func(t *testing.T) {
		f := newSyncFixture(t)
		f.seedPendingOrder(t, "o1", createdAt, models.OrderStatusPending)
		f.transport.verdicts["o1"] = models.PushResult{ID: "o1", Outcome: models.OutcomeAccepted, Revision: 7}

		result, err := f.service.SyncTable(ctx, models.TableOrders)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Pushed)
		assert.True(t, result.Committed)

		doc, err := f.store.Get(ctx, models.TableOrders, "o1")
		require.NoError(t, err)
		require.NotNil(t, doc.SyncedAt)
		assert.Equal(t, int64(7), doc.BaseRevision)

		meta, err := f.metadata.Get(ctx, models.TableOrders)
		require.NoError(t, err)
		assert.Equal(t, int64(7), meta.LastSyncRevision)
		require.NotNil(t, meta.LastSync)
	})

	t.Run("a second round has nothing to push", func(t *testing.T) {
		f := newSyncFixture(t)
		f.seedPendingOrder(t, "o1", createdAt, models.OrderStatusPending)

		_, err := f.service.SyncTable(ctx, models.TableOrders)
		require.NoError(t, err)
		firstPushes := len(f.transport.pushedIDs())

		result, err := f.service.SyncTable(ctx, models.TableOrders)
		require.NoError(t, err)
		assert.Zero(t, result.Pushed)
		assert.Len(t, f.transport.pushedIDs(), firstPushes)
	})

	t.Run("transport failure aborts without local damage", func(t *testing.T) {
		f := newSyncFixture(t)
		f.seedPendingOrder(t, "o1", createdAt, models.OrderStatusPending)
		f.transport.pushErr = &TransportError{Op: "push", Err: errors.New("remote unreachable")}

		_, err := f.service.SyncTable(ctx, models.TableOrders)
		require.Error(t, err)
		assert.True(t, IsTransportError(err))

		// The document is still pending for the next round
		doc, err := f.store.Get(ctx, models.TableOrders, "o1")
		require.NoError(t, err)
		assert.Nil(t, doc.SyncedAt)
	})
}

func TestSyncService_SyncTable_Pull(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC)

	t.Run("merges remote records above the watermark", func(t *testing.T) {
		f := newSyncFixture(t)
		f.transport.pullItems = []models.PullItem{
			{ID: "r1", Payload: orderPayload(t, "r1", createdAt, createdAt, models.OrderStatusPending, 1), Revision: 3},
		}

		result, err := f.service.SyncTable(ctx, models.TableOrders)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Pulled)
		assert.True(t, result.Committed)

		doc, err := f.store.Get(ctx, models.TableOrders, "r1")
		require.NoError(t, err)
		require.NotNil(t, doc)
		require.NotNil(t, doc.SyncedAt)
		assert.Equal(t, int64(3), doc.BaseRevision)

		meta, err := f.metadata.Get(ctx, models.TableOrders)
		require.NoError(t, err)
		assert.Equal(t, int64(3), meta.LastSyncRevision)
	})

	t.Run("pulled orders get day sequence numbers", func(t *testing.T) {
		f := newSyncFixture(t)
		f.transport.pullItems = []models.PullItem{
			{ID: "b", Payload: orderPayload(t, "b", createdAt, createdAt, models.OrderStatusPending, 0), Revision: 1},
			{ID: "a", Payload: orderPayload(t, "a", createdAt, createdAt, models.OrderStatusPending, 0), Revision: 2},
		}

		_, err := f.service.SyncTable(ctx, models.TableOrders)
		require.NoError(t, err)

		var got []int
		for _, id := range []string{"a", "b"} {
			doc, err := f.store.Get(ctx, models.TableOrders, id)
			require.NoError(t, err)
			var order models.Order
			require.NoError(t, json.Unmarshal(doc.Payload, &order))
			got = append(got, order.OrderNumber)
		}
		assert.Equal(t, []int{1, 2}, got)
	})

	t.Run("later rounds pull from the committed watermark", func(t *testing.T) {
		f := newSyncFixture(t)
		f.transport.pullItems = []models.PullItem{
			{ID: "r1", Payload: orderPayload(t, "r1", createdAt, createdAt, models.OrderStatusPending, 1), Revision: 3},
		}

		_, err := f.service.SyncTable(ctx, models.TableOrders)
		require.NoError(t, err)
		_, err = f.service.SyncTable(ctx, models.TableOrders)
		require.NoError(t, err)

		require.Len(t, f.transport.pullSinces, 2)
		assert.Equal(t, int64(0), f.transport.pullSinces[0])
		assert.Equal(t, int64(3), f.transport.pullSinces[1])
	})
}

func TestSyncService_SyncTable_Conflicts(t *testing.T) {
	ctx := context.Background()
	createdAt := time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC)

	t.Run("newer remote wins and is merged with an audit entry", func(t *testing.T) {
		f := newSyncFixture(t)
		f.seedPendingOrder(t, "o1", createdAt, models.OrderStatusReady)

		remotePayload := orderPayload(t, "o1", createdAt, createdAt.Add(time.Hour), models.OrderStatusCancelled, 1)
		f.transport.verdicts["o1"] = models.PushResult{
			ID:      "o1",
			Outcome: models.OutcomeConflict,
			RemoteVersion: &models.RemoteVersion{
				Payload:   remotePayload,
				Revision:  9,
				UpdatedAt: createdAt.Add(time.Hour),
			},
		}

		result, err := f.service.SyncTable(ctx, models.TableOrders)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Conflicts)
		assert.Equal(t, 1, result.Resolved)
		assert.True(t, result.Committed)

		doc, err := f.store.Get(ctx, models.TableOrders, "o1")
		require.NoError(t, err)
		var order models.Order
		require.NoError(t, json.Unmarshal(doc.Payload, &order))
		assert.Equal(t, models.OrderStatusCancelled, order.Status)
		require.NotNil(t, doc.SyncedAt)

		conflicts, total, err := f.conflicts.List(ctx, nil, 0, 10)
		require.NoError(t, err)
		require.Equal(t, 1, total)
		entry := conflicts[0]
		assert.True(t, entry.Resolved)
		assert.Equal(t, models.StrategyLastWriteWins, entry.ResolutionStrategy)
		assert.Equal(t, models.WinnerRemote, entry.Winner)
		assert.JSONEq(t, string(remotePayload), string(entry.RemotePayload))
		require.NotNil(t, entry.ResolvedAt)
	})

	t.Run("newer local wins and is re-pushed on the remote revision", func(t *testing.T) {
		f := newSyncFixture(t)
		f.seedPendingOrder(t, "o1", createdAt, models.OrderStatusReady)

		// Remote version is older than the local edit
		remotePayload := orderPayload(t, "o1", createdAt.Add(-time.Hour), createdAt.Add(-time.Hour), models.OrderStatusPending, 1)
		f.transport.verdicts["o1"] = models.PushResult{
			ID:      "o1",
			Outcome: models.OutcomeConflict,
			RemoteVersion: &models.RemoteVersion{
				Payload:   remotePayload,
				Revision:  9,
				UpdatedAt: createdAt.Add(-time.Hour),
			},
		}

		result, err := f.service.SyncTable(ctx, models.TableOrders)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Resolved)
		assert.True(t, result.Committed)

		// First push conflicted, second push carried the winner with
		// the remote's revision as base; the fake accepts it
		require.Len(t, f.transport.pushes, 2)
		repush := f.transport.pushes[1]
		require.Len(t, repush, 1)
		assert.Equal(t, int64(9), repush[0].BaseRevision)

		doc, err := f.store.Get(ctx, models.TableOrders, "o1")
		require.NoError(t, err)
		var order models.Order
		require.NoError(t, json.Unmarshal(doc.Payload, &order))
		assert.Equal(t, models.OrderStatusReady, order.Status)
		require.NotNil(t, doc.SyncedAt)
	})

	t.Run("identical content flagged by the remote is not a conflict", func(t *testing.T) {
		f := newSyncFixture(t)
		order := f.seedPendingOrder(t, "o1", createdAt, models.OrderStatusReady)

		samePayload, err := json.Marshal(order)
		require.NoError(t, err)
		f.transport.verdicts["o1"] = models.PushResult{
			ID:      "o1",
			Outcome: models.OutcomeConflict,
			RemoteVersion: &models.RemoteVersion{
				Payload:   samePayload,
				Revision:  5,
				UpdatedAt: createdAt.Add(time.Minute),
			},
		}

		result, err := f.service.SyncTable(ctx, models.TableOrders)
		require.NoError(t, err)
		assert.Zero(t, result.Conflicts)
		assert.Equal(t, 1, result.Pushed)

		count, err := f.conflicts.CountUnresolved(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("manual strategy withholds the watermark", func(t *testing.T) {
		f := newSyncFixture(t)

		meta := models.NewSyncMetadata(models.TableOrders)
		meta.Config.ConflictStrategy = models.StrategyManual
		require.NoError(t, f.metadata.Upsert(ctx, meta))

		f.seedPendingOrder(t, "o1", createdAt, models.OrderStatusReady)
		f.transport.verdicts["o1"] = models.PushResult{
			ID:      "o1",
			Outcome: models.OutcomeConflict,
			RemoteVersion: &models.RemoteVersion{
				Payload:   orderPayload(t, "o1", createdAt, createdAt.Add(time.Hour), models.OrderStatusCancelled, 1),
				Revision:  9,
				UpdatedAt: createdAt.Add(time.Hour),
			},
		}
		f.transport.pullItems = []models.PullItem{
			{ID: "r2", Payload: orderPayload(t, "r2", createdAt, createdAt, models.OrderStatusPending, 0), Revision: 12},
		}

		result, err := f.service.SyncTable(ctx, models.TableOrders)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Conflicts)
		assert.Zero(t, result.Resolved)
		assert.False(t, result.Committed)

		// Non-conflicted pulls still merge
		doc, err := f.store.Get(ctx, models.TableOrders, "r2")
		require.NoError(t, err)
		require.NotNil(t, doc)

		// But the watermark must not advance past an unresolved conflict
		stored, err := f.metadata.Get(ctx, models.TableOrders)
		require.NoError(t, err)
		assert.Zero(t, stored.LastSyncRevision)

		// The conflicted record keeps its local content
		local, err := f.store.Get(ctx, models.TableOrders, "o1")
		require.NoError(t, err)
		var order models.Order
		require.NoError(t, json.Unmarshal(local.Payload, &order))
		assert.Equal(t, models.OrderStatusReady, order.Status)
	})

	t.Run("pull never overwrites a record withheld by a conflict", func(t *testing.T) {
		f := newSyncFixture(t)

		meta := models.NewSyncMetadata(models.TableOrders)
		meta.Config.ConflictStrategy = models.StrategyManual
		require.NoError(t, f.metadata.Upsert(ctx, meta))

		f.seedPendingOrder(t, "o1", createdAt, models.OrderStatusReady)
		remotePayload := orderPayload(t, "o1", createdAt, createdAt.Add(time.Hour), models.OrderStatusCancelled, 1)
		f.transport.verdicts["o1"] = models.PushResult{
			ID:      "o1",
			Outcome: models.OutcomeConflict,
			RemoteVersion: &models.RemoteVersion{
				Payload:   remotePayload,
				Revision:  9,
				UpdatedAt: createdAt.Add(time.Hour),
			},
		}
		f.transport.pullItems = []models.PullItem{
			{ID: "o1", Payload: remotePayload, Revision: 9},
		}

		_, err := f.service.SyncTable(ctx, models.TableOrders)
		require.NoError(t, err)

		doc, err := f.store.Get(ctx, models.TableOrders, "o1")
		require.NoError(t, err)
		var order models.Order
		require.NoError(t, json.Unmarshal(doc.Payload, &order))
		assert.Equal(t, models.OrderStatusReady, order.Status)
		assert.Nil(t, doc.SyncedAt)
	})
}

func TestSyncService_SyncTable_Coalescing(t *testing.T) {
	f := newSyncFixture(t)

	release, ok := f.service.locks.TryAcquire("sync:" + models.TableOrders)
	require.True(t, ok)
	defer release()

	result, err := f.service.SyncTable(context.Background(), models.TableOrders)
	require.NoError(t, err)
	assert.True(t, result.Coalesced)
	assert.Empty(t, f.transport.pushes)
}

func TestSyncService_SyncTable_Disabled(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	meta := models.NewSyncMetadata(models.TableOrders)
	meta.Config.Enabled = false
	require.NoError(t, f.metadata.Upsert(ctx, meta))

	_, err := f.service.SyncTable(ctx, models.TableOrders)
	assert.ErrorIs(t, err, ErrSyncDisabled)
}

func TestSyncService_SyncAll(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	// Disable one table; the others still run
	meta := models.NewSyncMetadata(models.TableUsers)
	meta.Config.Enabled = false
	require.NoError(t, f.metadata.Upsert(ctx, meta))

	results := f.service.SyncAll(ctx)
	require.Len(t, results, len(models.SyncTables))
	assert.Nil(t, results[models.TableUsers])
	require.NotNil(t, results[models.TableOrders])
	assert.True(t, results[models.TableOrders].Committed)
}

func TestSyncService_AuthPrecondition(t *testing.T) {
	store, metadata, conflicts := setupTestRepos(t)
	locks := NewKeyedLocks()
	transport := &fakeTransport{}

	service := NewSyncService(store, metadata, conflicts, transport, NewDaySequencer(store, locks), locks, SyncServiceOptions{
		Auth: func(ctx context.Context) error { return fmt.Errorf("%w: key rejected", ErrUnauthorized) },
	})

	_, err := service.SyncTable(context.Background(), models.TableOrders)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, transport.pushes)
}
