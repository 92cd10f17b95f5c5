package handlers

import (
	"testing"
	"time"

	"github.com/ordersync/node/internal/models"
	"github.com/ordersync/node/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecord(t *testing.T) {
	t.Run("rejects an invalid menu item", func(t *testing.T) {
		_, err := decodeRecord(models.TableMenuItems, []byte(`{"name":"Pizza","price":-2}`))
		assert.ErrorIs(t, err, models.ErrInvalidPrice)

		_, err = decodeRecord(models.TableMenuItems, []byte(`{"name":"  ","price":5}`))
		assert.ErrorIs(t, err, models.ErrEmptyItemName)
	})

	t.Run("rejects an invalid role", func(t *testing.T) {
		_, err := decodeRecord(models.TableUsers, []byte(`{"username":"anna","role":"owner"}`))
		assert.ErrorIs(t, err, models.ErrInvalidRole)
	})

	t.Run("fills in identity for a new record", func(t *testing.T) {
		rec, err := decodeRecord(models.TableMenuItems, []byte(`{"name":"Pizza","category":"mains","price":9.5}`))
		require.NoError(t, err)

		item, ok := rec.(*models.MenuItem)
		require.True(t, ok)
		assert.NotEmpty(t, item.ID)
		assert.False(t, item.CreatedAt.IsZero())
		assert.True(t, item.Available)
		assert.Nil(t, item.SyncedAt)
	})

	t.Run("keeps identity and flags of an existing record", func(t *testing.T) {
		created := time.Date(2025, 3, 9, 8, 0, 0, 0, time.UTC)
		body := []byte(`{"id":"m1","createdAt":"2025-03-09T08:00:00Z","name":"Pizza","price":9.5,"available":false}`)

		rec, err := decodeRecord(models.TableMenuItems, body)
		require.NoError(t, err)

		item := rec.(*models.MenuItem)
		assert.Equal(t, "m1", item.ID)
		assert.True(t, item.CreatedAt.Equal(created))
		assert.False(t, item.Available)
	})

	t.Run("decodes the other catalog tables", func(t *testing.T) {
		rec, err := decodeRecord(models.TableDeliveryPersons, []byte(`{"name":"Luis","phone":"555","active":false}`))
		require.NoError(t, err)
		person := rec.(*models.DeliveryPerson)
		assert.False(t, person.Active)

		rec, err = decodeRecord(models.TableCustomers, []byte(`{"name":"Mia","address":"1 Main St"}`))
		require.NoError(t, err)
		customer := rec.(*models.Customer)
		assert.Equal(t, "1 Main St", customer.Address)
	})

	t.Run("unknown table", func(t *testing.T) {
		_, err := decodeRecord("vouchers", []byte(`{}`))
		assert.ErrorIs(t, err, services.ErrUnknownTable)
	})
}
