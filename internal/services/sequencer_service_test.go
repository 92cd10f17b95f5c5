package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/node/internal/models"
	"github.com/ordersync/node/internal/repository"
)

func seedOrder(t *testing.T, store repository.DocumentStore, id string, createdAt time.Time, number int, deleted bool) {
	t.Helper()

	order := &models.Order{
		SyncFields: models.SyncFields{
			ID:        id,
			CreatedAt: createdAt,
			UpdatedAt: createdAt,
			Deleted:   deleted,
		},
		OrderNumber:  number,
		CustomerName: "Customer " + id,
		Status:       models.OrderStatusPending,
	}
	doc, err := models.NewDocument(models.TableOrders, order)
	require.NoError(t, err)

	_, err = store.BulkUpsert(context.Background(), models.TableOrders, []*models.Document{doc})
	require.NoError(t, err)
}

func dayNumbers(t *testing.T, store repository.DocumentStore, day time.Time) map[string]int {
	t.Helper()

	startKey, endKey := models.DaySortKeyRange(day)
	it, err := store.RangeScan(context.Background(), models.TableOrders, startKey, endKey)
	require.NoError(t, err)
	defer it.Close()

	numbers := make(map[string]int)
	for it.Next() {
		doc := it.Document()
		if doc.Deleted {
			continue
		}
		var order models.Order
		require.NoError(t, json.Unmarshal(doc.Payload, &order))
		numbers[order.ID] = order.OrderNumber
	}
	require.NoError(t, it.Err())
	return numbers
}

func TestDaySequencer_RepairDay(t *testing.T) {
	day := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)

	t.Run("assigns dense numbers in creation order", func(t *testing.T) {
		store, _, _ := setupTestRepos(t)
		seq := NewDaySequencer(store, NewKeyedLocks())

		seedOrder(t, store, "x", day.Add(11*time.Hour), 0, false)
		seedOrder(t, store, "y", day.Add(9*time.Hour), 0, false)
		seedOrder(t, store, "z", day.Add(10*time.Hour), 0, false)

		n, err := seq.RepairDay(context.Background(), "2025-03-09")
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		numbers := dayNumbers(t, store, day)
		assert.Equal(t, map[string]int{"y": 1, "z": 2, "x": 3}, numbers)
	})

	t.Run("ties on creation time break by id", func(t *testing.T) {
		store, _, _ := setupTestRepos(t)
		seq := NewDaySequencer(store, NewKeyedLocks())

		at := day.Add(9 * time.Hour)
		seedOrder(t, store, "b", at, 0, false)
		seedOrder(t, store, "a", at, 0, false)
		seedOrder(t, store, "c", day.Add(9*time.Hour+5*time.Minute), 0, false)

		_, err := seq.RepairDay(context.Background(), "2025-03-09")
		require.NoError(t, err)

		numbers := dayNumbers(t, store, day)
		assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3}, numbers)
	})

	t.Run("repair is idempotent", func(t *testing.T) {
		store, _, _ := setupTestRepos(t)
		seq := NewDaySequencer(store, NewKeyedLocks())

		seedOrder(t, store, "a", day.Add(9*time.Hour), 0, false)
		seedOrder(t, store, "b", day.Add(10*time.Hour), 0, false)

		first, err := seq.RepairDay(context.Background(), "2025-03-09")
		require.NoError(t, err)
		assert.Equal(t, 2, first)

		second, err := seq.RepairDay(context.Background(), "2025-03-09")
		require.NoError(t, err)
		assert.Zero(t, second)
	})

	t.Run("tombstones free their numbers", func(t *testing.T) {
		store, _, _ := setupTestRepos(t)
		seq := NewDaySequencer(store, NewKeyedLocks())

		seedOrder(t, store, "a", day.Add(9*time.Hour), 1, false)
		seedOrder(t, store, "b", day.Add(10*time.Hour), 2, true)
		seedOrder(t, store, "c", day.Add(11*time.Hour), 3, false)

		n, err := seq.RepairDay(context.Background(), "2025-03-09")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		numbers := dayNumbers(t, store, day)
		assert.Equal(t, map[string]int{"a": 1, "c": 2}, numbers)
	})

	t.Run("renumbered orders become pending again", func(t *testing.T) {
		store, _, _ := setupTestRepos(t)
		seq := NewDaySequencer(store, NewKeyedLocks())

		seedOrder(t, store, "a", day.Add(9*time.Hour), 5, false)

		_, err := seq.RepairDay(context.Background(), "2025-03-09")
		require.NoError(t, err)

		doc, err := store.Get(context.Background(), models.TableOrders, "a")
		require.NoError(t, err)
		assert.Nil(t, doc.SyncedAt)
	})

	t.Run("other days are untouched", func(t *testing.T) {
		store, _, _ := setupTestRepos(t)
		seq := NewDaySequencer(store, NewKeyedLocks())

		seedOrder(t, store, "a", day.Add(9*time.Hour), 0, false)
		seedOrder(t, store, "other", day.AddDate(0, 0, 1).Add(9*time.Hour), 7, false)

		_, err := seq.RepairDay(context.Background(), "2025-03-09")
		require.NoError(t, err)

		numbers := dayNumbers(t, store, day.AddDate(0, 0, 1))
		assert.Equal(t, map[string]int{"other": 7}, numbers)
	})

	t.Run("empty day is a no-op", func(t *testing.T) {
		store, _, _ := setupTestRepos(t)
		seq := NewDaySequencer(store, NewKeyedLocks())

		n, err := seq.RepairDay(context.Background(), "2025-03-09")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("rejects malformed day", func(t *testing.T) {
		store, _, _ := setupTestRepos(t)
		seq := NewDaySequencer(store, NewKeyedLocks())

		_, err := seq.RepairDay(context.Background(), "09-03-2025")
		assert.ErrorIs(t, err, ErrInvalidDay)
	})
}
