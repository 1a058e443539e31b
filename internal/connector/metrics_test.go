package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsTrackerAverageResponseTimeRunningMean(t *testing.T) {
	tracker := newMetricsTracker()
	tracker.recordSuccess(100)
	assert.Equal(t, float64(100), tracker.Snapshot().AvgResponseTimeMS)

	tracker.recordSuccess(300)
	assert.Equal(t, float64(200), tracker.Snapshot().AvgResponseTimeMS)
}

func TestMetricsTrackerUsageAccumulates(t *testing.T) {
	tracker := newMetricsTracker()
	tracker.recordUsage(10, 5)
	tracker.recordUsage(20, 15)

	snap := tracker.Snapshot()
	assert.Equal(t, uint64(30), snap.TotalInputTokens)
	assert.Equal(t, uint64(20), snap.TotalOutputTokens)
}

func TestMetricsTrackerDefaultHealthy(t *testing.T) {
	tracker := newMetricsTracker()
	assert.Equal(t, HealthHealthy, tracker.Health().Kind)
}

func TestValidEmbedding(t *testing.T) {
	assert.True(t, ValidEmbedding([]float32{0.1, 0.2, 0.3}))
	assert.False(t, ValidEmbedding(nil))
	assert.False(t, ValidEmbedding([]float32{}))
}
