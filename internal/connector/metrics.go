package connector

import "sync"

// metricsTracker guards the Health/Metrics pair shared by every connector
// kind so the bookkeeping rules (spawn_count on every attempt, running
// mean response time, mutually exclusive success/error) live in one place.
type metricsTracker struct {
	mu      sync.Mutex
	metrics Metrics
	health  Health
}

func newMetricsTracker() metricsTracker {
	return metricsTracker{health: HealthyStatus()}
}

// recordSuccess increments spawn_count/success_count and folds elapsedMS
// into the running avg_response_time_ms mean.
func (t *metricsTracker) recordSuccess(elapsedMS float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.SpawnCount++
	t.metrics.SuccessCount++
	n := float64(t.metrics.SpawnCount)
	t.metrics.AvgResponseTimeMS = (t.metrics.AvgResponseTimeMS*(n-1) + elapsedMS) / n
}

// recordFailure increments spawn_count/error_count for one failed attempt.
func (t *metricsTracker) recordFailure() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.SpawnCount++
	t.metrics.ErrorCount++
}

func (t *metricsTracker) recordUsage(input, output uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.TotalInputTokens += input
	t.metrics.TotalOutputTokens += output
}

func (t *metricsTracker) setHealth(h Health) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.health = h
}

func (t *metricsTracker) Health() Health {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.health
}

func (t *metricsTracker) Snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}
