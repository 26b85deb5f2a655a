package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteSubscription_Canceled(t *testing.T) {
	assert.True(t, (&RemoteSubscription{Status: SubscriptionCanceled}).Canceled())
	assert.False(t, (&RemoteSubscription{Status: SubscriptionActive}).Canceled())
	assert.False(t, (&RemoteSubscription{Status: SubscriptionPaused}).Canceled())
	assert.False(t, (&RemoteSubscription{Status: SubscriptionDeactivated}).Canceled())
	assert.False(t, (&RemoteSubscription{}).Canceled())
}

func TestNewPlan(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		plan, err := NewPlan("Gold - monthly", "Gold", 995, "USD", "MONTHLY")
		require.NoError(t, err)
		assert.Equal(t, "Gold - monthly", plan.Name)
		assert.Equal(t, "Gold", plan.LegacyName)
		assert.Equal(t, int64(995), plan.Amount)
	})

	t.Run("DefaultCadence", func(t *testing.T) {
		plan, err := NewPlan("Gold", "", 995, "USD", "")
		require.NoError(t, err)
		assert.Equal(t, "MONTHLY", plan.Cadence)
	})

	t.Run("MissingName", func(t *testing.T) {
		_, err := NewPlan("", "", 995, "USD", "MONTHLY")
		assert.Error(t, err)
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		_, err := NewPlan("Gold", "", 0, "USD", "MONTHLY")
		assert.Error(t, err)
		_, err = NewPlan("Gold", "", -100, "USD", "MONTHLY")
		assert.Error(t, err)
	})

	t.Run("MissingCurrency", func(t *testing.T) {
		_, err := NewPlan("Gold", "", 995, "", "MONTHLY")
		assert.Error(t, err)
	})
}

func TestAddress(t *testing.T) {
	t.Run("IsEmpty", func(t *testing.T) {
		assert.True(t, Address{}.IsEmpty())
		assert.False(t, Address{Line1: "1 Main St"}.IsEmpty())
		assert.False(t, Address{Country: "US"}.IsEmpty())
	})

	t.Run("Equal", func(t *testing.T) {
		a := Address{Line1: "1 Main St", Locality: "Springfield", PostalCode: "12345", Country: "US"}
		b := a
		assert.True(t, a.Equal(b))

		b.Line1 = "2 Oak Ave"
		assert.False(t, a.Equal(b))
	})
}

func TestSyncJobState_ResetCounts(t *testing.T) {
	state := &SyncJobState{
		JobID:        "subscription_sync",
		IsRunning:    true,
		SuccessCount: 3,
		FailedCount:  2,
		SkippedCount: 1,
	}
	state.ResetCounts()

	assert.Zero(t, state.SuccessCount)
	assert.Zero(t, state.FailedCount)
	assert.Zero(t, state.SkippedCount)
	// resetting tallies must not touch the lock
	assert.True(t, state.IsRunning)
}

func TestSyncRun_Duration(t *testing.T) {
	started := time.Date(2026, 8, 30, 4, 0, 0, 0, time.UTC)
	run := &SyncRun{StartedAt: started, FinishedAt: started.Add(90 * time.Second)}
	assert.Equal(t, 90*time.Second, run.Duration())
}
