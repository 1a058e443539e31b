package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/google/uuid"

	"agentmesh/internal/observability"
	"agentmesh/internal/util"
)

// Embedder is the narrow interface MemoryManager needs from a Connector:
// turn a string into a finite, non-empty embedding vector. Defined here
// rather than importing internal/connector directly so memory stays
// decoupled from how a connector is actually driven.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

const (
	summaryTruncateHead = 100
	summaryTruncateTail = 100
	embeddingCacheSize  = 512
)

// Manager composes a Blackboard with one RingBuffer per agent, plus an
// optional embedding Embedder used for blackboard semantic storage/recall.
type Manager struct {
	mu      sync.RWMutex
	buffers map[uuid.UUID]*RingBuffer

	blackboard *Blackboard
	embedder   Embedder
	embedCache *lru.Cache[string, []float32]
}

// NewManager returns a manager with a blackboard capped at
// blackboardCapacity entries and no embedder configured.
func NewManager(blackboardCapacity int) *Manager {
	cache, _ := lru.New[string, []float32](embeddingCacheSize)
	return &Manager{
		buffers:    make(map[uuid.UUID]*RingBuffer),
		blackboard: NewBlackboard(blackboardCapacity),
		embedCache: cache,
	}
}

// WithEmbeddings attaches an Embedder used by AddToBlackboard/Recall.
func (m *Manager) WithEmbeddings(embedder Embedder) *Manager {
	m.embedder = embedder
	return m
}

// CreateAgentBuffer registers a new RingBuffer for agentID.
func (m *Manager) CreateAgentBuffer(agentID uuid.UUID, capacityTokens uint32) *RingBuffer {
	rb := NewRingBuffer(capacityTokens)
	m.mu.Lock()
	m.buffers[agentID] = rb
	m.mu.Unlock()
	return rb
}

// GetAgentBuffer returns agentID's buffer, if any.
func (m *Manager) GetAgentBuffer(agentID uuid.UUID) (*RingBuffer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rb, ok := m.buffers[agentID]
	return rb, ok
}

// RemoveAgentBuffer deletes agentID's buffer.
func (m *Manager) RemoveAgentBuffer(agentID uuid.UUID) {
	m.mu.Lock()
	delete(m.buffers, agentID)
	m.mu.Unlock()
}

// ListAgents returns the IDs of all agents with a registered buffer.
func (m *Manager) ListAgents() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(m.buffers))
	for id := range m.buffers {
		out = append(out, id)
	}
	return out
}

// AddToAgent pushes entry onto agentID's buffer and triggers summarization
// if the buffer has crossed its threshold. Fails if the buffer is missing.
func (m *Manager) AddToAgent(ctx context.Context, agentID uuid.UUID, entry Entry) error {
	rb, ok := m.GetAgentBuffer(agentID)
	if !ok {
		return fmt.Errorf("memory: no buffer registered for agent %s", agentID)
	}
	rb.Push(entry)
	if rb.ShouldSummarize() {
		m.triggerSummarization(ctx, agentID, rb)
	}
	return nil
}

// triggerSummarization implements the stub summarization contract:
// concatenate entry contents, head-tail truncate, count the summary's
// tokens with util.CountTokens. A production MemoryManager may substitute
// a model call here.
func (m *Manager) triggerSummarization(ctx context.Context, agentID uuid.UUID, rb *RingBuffer) {
	entries := rb.GetAll()
	contents := make([]string, len(entries))
	for i, e := range entries {
		contents[i] = e.Content
	}
	joined := strings.Join(contents, "\n")
	summary := truncateForSummary(joined, summaryTruncateHead, summaryTruncateTail)
	tokens := uint32(util.CountTokens(summary))

	before := rb.Stats().TotalEntries
	rb.Summarize(summary, tokens)

	log := observability.LoggerWithTrace(ctx)
	log.Info().
		Str("agent_id", agentID.String()).
		Int("entries_before", before).
		Uint32("summary_tokens", tokens).
		Msg("memory_summarization_triggered")
}

// truncateForSummary keeps the first headLen and last tailLen characters of
// s, joined by a marker, when s exceeds headLen+tailLen; otherwise returns
// s unchanged.
func truncateForSummary(s string, headLen, tailLen int) string {
	if len(s) <= headLen+tailLen {
		return s
	}
	return s[:headLen] + "...[truncated]..." + s[len(s)-tailLen:]
}

// AddToBlackboard stores key/value, optionally embedding value first (via
// the configured Embedder, through the LRU embedding cache) if
// generateEmbedding is true and an Embedder is configured.
func (m *Manager) AddToBlackboard(ctx context.Context, key, value string, generateEmbedding bool) error {
	entry := NewBlackboardEntry(key, value)
	if generateEmbedding && m.embedder != nil {
		vec, err := m.embedValue(ctx, value)
		if err != nil {
			return fmt.Errorf("memory: embedding blackboard value for key %q: %w", key, err)
		}
		entry = entry.WithEmbedding(vec)
	}
	m.blackboard.Put(entry)
	return nil
}

func (m *Manager) embedValue(ctx context.Context, value string) ([]float32, error) {
	if m.embedCache != nil {
		if cached, ok := m.embedCache.Get(value); ok {
			return cached, nil
		}
	}
	vec, err := m.embedder.Embed(ctx, value)
	if err != nil {
		return nil, err
	}
	if m.embedCache != nil {
		m.embedCache.Add(value, vec)
	}
	return vec, nil
}

// GetFromBlackboard looks up key directly (no embedding involved).
func (m *Manager) GetFromBlackboard(key string) (BlackboardEntry, bool) {
	return m.blackboard.Get(key)
}

// Recall embeds query (failing if no Embedder is configured) and returns
// the blackboard's topK most similar entries.
func (m *Manager) Recall(ctx context.Context, query string, topK int) ([]BlackboardEntry, error) {
	if m.embedder == nil {
		return nil, fmt.Errorf("memory: recall requires a configured embedding connector")
	}
	vec, err := m.embedValue(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("memory: embedding recall query: %w", err)
	}
	return m.blackboard.Recall(vec, topK), nil
}

// GetAgentStats returns agentID's buffer stats, if registered.
func (m *Manager) GetAgentStats(agentID uuid.UUID) (MemoryStats, bool) {
	rb, ok := m.GetAgentBuffer(agentID)
	if !ok {
		return MemoryStats{}, false
	}
	return rb.Stats(), true
}

// GetBlackboardStats returns the shared blackboard's stats.
func (m *Manager) GetBlackboardStats() BlackboardStats {
	return m.blackboard.Stats()
}
