package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"subsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJobStateStore(t *testing.T) {
	store := NewMemoryJobStateStore()
	ctx := context.Background()

	t.Run("SaveAndLoad", func(t *testing.T) {
		state := &models.SyncJobState{JobID: "subscription_sync", IsRunning: true, FailedCount: 2}
		require.NoError(t, store.Save(ctx, state))

		got, err := store.Load(ctx, "subscription_sync")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.IsRunning)
		assert.Equal(t, 2, got.FailedCount)
	})

	t.Run("LoadReturnsCopy", func(t *testing.T) {
		state := &models.SyncJobState{JobID: "copy_check", SuccessCount: 1}
		require.NoError(t, store.Save(ctx, state))

		got, err := store.Load(ctx, "copy_check")
		require.NoError(t, err)
		got.SuccessCount = 99

		again, err := store.Load(ctx, "copy_check")
		require.NoError(t, err)
		assert.Equal(t, 1, again.SuccessCount)
	})

	t.Run("LoadUnknownJob", func(t *testing.T) {
		got, err := store.Load(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("LastRun", func(t *testing.T) {
		ts := time.Now()
		require.NoError(t, store.SetLastRun(ctx, "subscription_sync", ts))

		got, err := store.LastRun(ctx, "subscription_sync")
		require.NoError(t, err)
		assert.True(t, got.Equal(ts))
	})
}

func TestMemoryJobStateStoreConcurrency(t *testing.T) {
	store := NewMemoryJobStateStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			state := &models.SyncJobState{JobID: "shared", SuccessCount: n}
			_ = store.Save(ctx, state)
			_, _ = store.Load(ctx, "shared")
		}(i)
	}
	wg.Wait()

	got, err := store.Load(ctx, "shared")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
