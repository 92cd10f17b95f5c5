package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLocks_TryAcquire(t *testing.T) {
	t.Run("second caller for the same key is refused", func(t *testing.T) {
		locks := NewKeyedLocks()

		release, ok := locks.TryAcquire("sync:orders")
		require.True(t, ok)

		_, ok = locks.TryAcquire("sync:orders")
		assert.False(t, ok)

		release()

		release2, ok := locks.TryAcquire("sync:orders")
		assert.True(t, ok)
		release2()
	})

	t.Run("different keys are independent", func(t *testing.T) {
		locks := NewKeyedLocks()

		releaseA, ok := locks.TryAcquire("sync:orders")
		require.True(t, ok)
		defer releaseA()

		releaseB, ok := locks.TryAcquire("sync:users")
		assert.True(t, ok)
		releaseB()
	})
}

func TestKeyedLocks_Acquire(t *testing.T) {
	t.Run("blocks until the holder releases", func(t *testing.T) {
		locks := NewKeyedLocks()

		release := locks.Acquire("renumber:2025-03-09")

		acquired := make(chan struct{})
		go func() {
			r := locks.Acquire("renumber:2025-03-09")
			close(acquired)
			r()
		}()

		select {
		case <-acquired:
			t.Fatal("second Acquire should block while the lock is held")
		case <-time.After(50 * time.Millisecond):
		}

		release()

		select {
		case <-acquired:
		case <-time.After(time.Second):
			t.Fatal("second Acquire never proceeded after release")
		}
	})

	t.Run("serializes concurrent holders", func(t *testing.T) {
		locks := NewKeyedLocks()

		var inside, max int
		var mu sync.Mutex
		var wg sync.WaitGroup

		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release := locks.Acquire("renumber:2025-03-09")
				defer release()

				mu.Lock()
				inside++
				if inside > max {
					max = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, max)
	})
}
