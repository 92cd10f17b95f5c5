package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordersync/node/internal/models"
)

func setupMetadataRepo(t *testing.T) *SyncMetadataRepository {
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewSyncMetadataRepository(db)
}

func TestSyncMetadataRepository_Get(t *testing.T) {
	repo := setupMetadataRepo(t)
	ctx := context.Background()

	t.Run("returns nil for never-synced table", func(t *testing.T) {
		meta, err := repo.Get(ctx, models.TableOrders)
		require.NoError(t, err)
		assert.Nil(t, meta)
	})

	t.Run("round-trips configuration", func(t *testing.T) {
		meta := models.NewSyncMetadata(models.TableOrders)
		meta.Config.Direction = models.DirectionPull
		require.NoError(t, repo.Upsert(ctx, meta))

		stored, err := repo.Get(ctx, models.TableOrders)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.True(t, stored.Config.Enabled)
		assert.Equal(t, models.DirectionPull, stored.Config.Direction)
		assert.Equal(t, models.StrategyLastWriteWins, stored.Config.ConflictStrategy)
		assert.Nil(t, stored.LastSync)
		assert.Zero(t, stored.LastSyncRevision)
	})
}

func TestSyncMetadataRepository_Advance(t *testing.T) {
	repo := setupMetadataRepo(t)
	ctx := context.Background()

	meta := models.NewSyncMetadata(models.TableOrders)
	require.NoError(t, repo.Upsert(ctx, meta))

	now := time.Now().UTC().Truncate(time.Second)

	t.Run("moves the watermark forward", func(t *testing.T) {
		require.NoError(t, repo.Advance(ctx, models.TableOrders, now, 42))

		stored, err := repo.Get(ctx, models.TableOrders)
		require.NoError(t, err)
		assert.Equal(t, int64(42), stored.LastSyncRevision)
		require.NotNil(t, stored.LastSync)
	})

	t.Run("a stale round cannot roll the watermark back", func(t *testing.T) {
		require.NoError(t, repo.Advance(ctx, models.TableOrders, now.Add(time.Minute), 17))

		stored, err := repo.Get(ctx, models.TableOrders)
		require.NoError(t, err)
		assert.Equal(t, int64(42), stored.LastSyncRevision)
	})
}

func TestSyncMetadataRepository_List(t *testing.T) {
	repo := setupMetadataRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, models.NewSyncMetadata(models.TableUsers)))
	require.NoError(t, repo.Upsert(ctx, models.NewSyncMetadata(models.TableOrders)))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, models.TableOrders, list[0].TableName)
	assert.Equal(t, models.TableUsers, list[1].TableName)
}
