package connector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDurationSequence(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoffDuration(1))
	assert.Equal(t, 200*time.Millisecond, backoffDuration(2))
	assert.Equal(t, 400*time.Millisecond, backoffDuration(3))
	assert.Equal(t, 800*time.Millisecond, backoffDuration(4))
}

func TestRunWithRetrySucceedsFirstTry(t *testing.T) {
	tracker := newMetricsTracker()
	calls := 0
	err := runWithRetry(context.Background(), 3, &tracker, func() (float64, error) {
		calls++
		return 5, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), tracker.Snapshot().SpawnCount)
	assert.Equal(t, uint64(1), tracker.Snapshot().SuccessCount)
	assert.Equal(t, HealthHealthy, tracker.Health().Kind)
}

func TestRunWithRetryExhaustsAndFails(t *testing.T) {
	tracker := newMetricsTracker()
	calls := 0
	err := runWithRetry(context.Background(), 2, &tracker, func() (float64, error) {
		calls++
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, 2, calls)
	assert.Equal(t, uint64(2), tracker.Snapshot().SpawnCount)
	assert.Equal(t, uint64(2), tracker.Snapshot().ErrorCount)
	assert.Equal(t, HealthUnhealthy, tracker.Health().Kind)
}

func TestRunWithRetrySucceedsAfterFailures(t *testing.T) {
	tracker := newMetricsTracker()
	calls := 0
	err := runWithRetry(context.Background(), 5, &tracker, func() (float64, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("transient")
		}
		return 10, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	snap := tracker.Snapshot()
	assert.Equal(t, uint64(3), snap.SpawnCount)
	assert.Equal(t, uint64(1), snap.SuccessCount)
	assert.Equal(t, uint64(2), snap.ErrorCount)
}

func TestRunWithRetryRespectsContextCancellation(t *testing.T) {
	tracker := newMetricsTracker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := runWithRetry(ctx, 5, &tracker, func() (float64, error) {
		return 0, errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
