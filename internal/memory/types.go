// Package memory implements the per-agent token-bounded RingBuffer and the
// shared TTL/LRU/semantic-recall Blackboard, composed by a MemoryManager
// that also owns an optional embedding connector.
package memory

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one unit of per-agent ring-buffer content.
type Entry struct {
	ID         uuid.UUID
	Content    string
	TokenCount uint32
	Timestamp  time.Time
	Metadata   map[string]string
}

// NewEntry builds an Entry with a fresh ID/timestamp and no metadata.
func NewEntry(content string, tokenCount uint32) Entry {
	return Entry{
		ID:         uuid.New(),
		Content:    content,
		TokenCount: tokenCount,
		Timestamp:  time.Now().UTC(),
		Metadata:   map[string]string{},
	}
}

// WithMetadata returns a copy of e with Metadata set.
func (e Entry) WithMetadata(md map[string]string) Entry {
	e.Metadata = md
	return e
}

// MemoryStats reports a RingBuffer's current state.
type MemoryStats struct {
	TotalEntries       int
	TotalTokens        uint32
	SummarizationCount uint64
	EvictionCount      uint64
	Capacity           uint32
}

// BlackboardEntry is one shared key/value fact, optionally embedded for
// semantic recall.
type BlackboardEntry struct {
	ID          uuid.UUID
	Key         string
	Value       string
	Embedding   []float32
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	LastAccess  time.Time
	AccessCount uint64
}

// NewBlackboardEntry builds a non-expiring, non-embedded entry.
func NewBlackboardEntry(key, value string) BlackboardEntry {
	now := time.Now().UTC()
	return BlackboardEntry{
		ID:         uuid.New(),
		Key:        key,
		Value:      value,
		CreatedAt:  now,
		LastAccess: now,
	}
}

// WithTTL returns a copy of e that expires after ttlSeconds.
func (e BlackboardEntry) WithTTL(ttlSeconds int64) BlackboardEntry {
	exp := e.CreatedAt.Add(time.Duration(ttlSeconds) * time.Second)
	e.ExpiresAt = &exp
	return e
}

// WithEmbedding returns a copy of e carrying the given embedding vector.
func (e BlackboardEntry) WithEmbedding(vec []float32) BlackboardEntry {
	e.Embedding = vec
	return e
}

// IsExpired reports whether e has a set expiration in the past.
func (e BlackboardEntry) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// Touch updates last-access time and increments the access counter.
func (e *BlackboardEntry) Touch(now time.Time) {
	e.LastAccess = now
	e.AccessCount++
}

// BlackboardStats reports a Blackboard's current state.
type BlackboardStats struct {
	TotalEntries       int
	ExpiredEntries     int
	TotalAccesses      uint64
	EvictionCount      uint64
	HitCount           uint64
	MissCount          uint64
	AvgRecallLatencyMS float64
}
