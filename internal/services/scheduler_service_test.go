package services

import (
	"context"
	"testing"
	"time"

	"github.com/ordersync/node/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncScheduler(t *testing.T) {
	t.Run("run now records a pass", func(t *testing.T) {
		f := newSyncFixture(t)
		scheduler := NewSyncScheduler(f.service, time.Hour)

		scheduler.RunNow(context.Background())

		status := scheduler.Status()
		assert.False(t, status.Running)
		assert.Equal(t, 5, status.TablesSynced)
		assert.Zero(t, status.TablesFailed)
		assert.False(t, status.LastRun.IsZero())
	})

	t.Run("failed tables are counted, not fatal", func(t *testing.T) {
		f := newSyncFixture(t)
		f.transport.pushErr = &TransportError{Op: "push", Err: context.DeadlineExceeded}

		// Seed one pending change so the orders round has to push
		f.seedPendingOrder(t, "o1", time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC), "pending")

		scheduler := NewSyncScheduler(f.service, time.Hour)
		scheduler.RunNow(context.Background())

		status := scheduler.Status()
		assert.Equal(t, 1, status.TablesFailed)
		assert.Equal(t, 4, status.TablesSynced)
	})

	t.Run("disabled tables are skipped, not failed", func(t *testing.T) {
		f := newSyncFixture(t)
		ctx := context.Background()

		meta := models.NewSyncMetadata(models.TableUsers)
		meta.Config.Enabled = false
		require.NoError(t, f.metadata.Upsert(ctx, meta))

		scheduler := NewSyncScheduler(f.service, time.Hour)
		scheduler.RunNow(ctx)

		status := scheduler.Status()
		assert.Zero(t, status.TablesFailed)
		assert.Equal(t, len(models.SyncTables)-1, status.TablesSynced)
	})

	t.Run("start and stop toggle the running flag", func(t *testing.T) {
		f := newSyncFixture(t)
		scheduler := NewSyncScheduler(f.service, time.Hour)

		scheduler.Start(context.Background())
		require.True(t, scheduler.Status().Running)

		scheduler.Stop()
		assert.False(t, scheduler.Status().Running)
	})

	t.Run("restarts after a stop", func(t *testing.T) {
		f := newSyncFixture(t)
		scheduler := NewSyncScheduler(f.service, 20*time.Millisecond)

		scheduler.Start(context.Background())
		scheduler.Stop()

		scheduler.Start(context.Background())
		defer scheduler.Stop()
		require.True(t, scheduler.Status().Running)

		require.Eventually(t, func() bool {
			return !scheduler.Status().LastRun.IsZero()
		}, 2*time.Second, 10*time.Millisecond, "restarted scheduler never ran a pass")
	})
}
