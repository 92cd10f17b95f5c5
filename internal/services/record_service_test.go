package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/node/internal/models"
)

func newRecordService(t *testing.T) *RecordService {
	store, _, _ := setupTestRepos(t)
	return NewRecordService(store)
}

func TestRecordService_Upsert(t *testing.T) {
	svc := newRecordService(t)
	ctx := context.Background()

	t.Run("writes the record as pending", func(t *testing.T) {
		item, err := models.NewMenuItem("Margherita", "pizza", 8.50)
		require.NoError(t, err)

		require.NoError(t, svc.Upsert(ctx, models.TableMenuItems, item))

		doc, err := svc.Get(ctx, models.TableMenuItems, item.ID)
		require.NoError(t, err)
		assert.Nil(t, doc.SyncedAt)

		var stored models.MenuItem
		require.NoError(t, json.Unmarshal(doc.Payload, &stored))
		assert.Equal(t, "Margherita", stored.Name)
	})

	t.Run("rejects unknown tables", func(t *testing.T) {
		item, err := models.NewMenuItem("Margherita", "pizza", 8.50)
		require.NoError(t, err)

		err = svc.Upsert(ctx, "invoices", item)
		assert.ErrorIs(t, err, ErrUnknownTable)
	})

	t.Run("orders are not a catalog table", func(t *testing.T) {
		item, err := models.NewMenuItem("Margherita", "pizza", 8.50)
		require.NoError(t, err)

		err = svc.Upsert(ctx, models.TableOrders, item)
		assert.ErrorIs(t, err, ErrUnknownTable)
	})
}

func TestRecordService_SoftDelete(t *testing.T) {
	svc := newRecordService(t)
	ctx := context.Background()

	customer, err := models.NewCustomer("Alice", "555-0100", "1 Main St")
	require.NoError(t, err)
	require.NoError(t, svc.Upsert(ctx, models.TableCustomers, customer))

	t.Run("tombstones the record and keeps it pending", func(t *testing.T) {
		require.NoError(t, svc.SoftDelete(ctx, models.TableCustomers, customer.ID))

		_, err := svc.Get(ctx, models.TableCustomers, customer.ID)
		assert.ErrorIs(t, err, ErrRecordNotFound)

		list, err := svc.List(ctx, models.TableCustomers)
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("missing record", func(t *testing.T) {
		err := svc.SoftDelete(ctx, models.TableCustomers, "missing")
		assert.ErrorIs(t, err, ErrRecordNotFound)
	})
}

func TestRecordService_List(t *testing.T) {
	svc := newRecordService(t)
	ctx := context.Background()

	a, err := models.NewDeliveryPerson("Marco", "555-0101")
	require.NoError(t, err)
	b, err := models.NewDeliveryPerson("Nina", "555-0102")
	require.NoError(t, err)
	require.NoError(t, svc.Upsert(ctx, models.TableDeliveryPersons, a))
	require.NoError(t, svc.Upsert(ctx, models.TableDeliveryPersons, b))

	list, err := svc.List(ctx, models.TableDeliveryPersons)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
