package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlackboardPutGetRoundTrip(t *testing.T) {
	bb := NewBlackboard(10)
	entry := NewBlackboardEntry("k1", "v1")
	bb.Put(entry)

	got, ok := bb.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "v1", got.Value)
	assert.GreaterOrEqual(t, got.AccessCount, uint64(1))
}

func TestBlackboardGetMissing(t *testing.T) {
	bb := NewBlackboard(10)
	_, ok := bb.Get("nope")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), bb.Stats().MissCount)
}

func TestBlackboardTTLExpiry(t *testing.T) {
	bb := NewBlackboard(10)
	entry := NewBlackboardEntry("k1", "v1")
	entry.CreatedAt = time.Now().UTC().Add(-2 * time.Second)
	entry = entry.WithTTL(1) // expires 1s after CreatedAt, already in the past
	bb.Put(entry)

	_, ok := bb.Get("k1")
	assert.False(t, ok, "expired entry must not be resurrected")
}

func TestBlackboardLRUEviction(t *testing.T) {
	// S5: max_entries=3; put key0..key2; get key1,key2; put key3 ->
	// key0 evicted, key1/key2/key3 retained.
	bb := NewBlackboard(3)
	bb.Put(NewBlackboardEntry("key0", "v0"))
	time.Sleep(time.Millisecond)
	bb.Put(NewBlackboardEntry("key1", "v1"))
	time.Sleep(time.Millisecond)
	bb.Put(NewBlackboardEntry("key2", "v2"))

	_, _ = bb.Get("key1")
	_, _ = bb.Get("key2")

	bb.Put(NewBlackboardEntry("key3", "v3"))

	_, ok := bb.Get("key0")
	assert.False(t, ok)
	for _, k := range []string{"key1", "key2", "key3"} {
		_, ok := bb.Get(k)
		assert.True(t, ok, "expected %s to survive eviction", k)
	}
}

func TestCosineSimilarity(t *testing.T) {
	assert.Equal(t, float32(1), cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}))
	assert.InDelta(t, float32(0), cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Equal(t, float32(0), cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}))
	assert.Equal(t, float32(0), cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestBlackboardSemanticRecall(t *testing.T) {
	bb := NewBlackboard(10)
	bb.Put(NewBlackboardEntry("a", "alpha").WithEmbedding([]float32{1, 0, 0}))
	bb.Put(NewBlackboardEntry("b", "beta").WithEmbedding([]float32{0, 1, 0}))
	bb.Put(NewBlackboardEntry("c", "gamma").WithEmbedding([]float32{0.9, 0.1, 0}))

	results := bb.Recall([]float32{1, 0, 0}, 2)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Key)
	assert.Equal(t, "c", results[1].Key)
}

func TestBlackboardStats(t *testing.T) {
	bb := NewBlackboard(10)
	bb.Put(NewBlackboardEntry("k", "v"))
	_, _ = bb.Get("k")
	_, _ = bb.Get("missing")

	stats := bb.Stats()
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, uint64(1), stats.HitCount)
	assert.Equal(t, uint64(1), stats.MissCount)
}

func TestBlackboardClear(t *testing.T) {
	bb := NewBlackboard(10)
	bb.Put(NewBlackboardEntry("k", "v"))
	bb.Clear()
	assert.Empty(t, bb.GetAll())
}
