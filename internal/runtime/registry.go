package runtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Registry holds two parallel maps keyed by agent identifier: mutable
// metadata and immutable configuration. It never mutates configuration
// after registration.
type Registry struct {
	mu       sync.RWMutex
	metadata map[AgentID]AgentMetadata
	configs  map[AgentID]AgentConfig
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		metadata: make(map[AgentID]AgentMetadata),
		configs:  make(map[AgentID]AgentConfig),
	}
}

// Register mints a fresh agent identifier, stores cfg and an Idle metadata
// record, and returns the new ID.
func (r *Registry) Register(cfg AgentConfig) AgentID {
	id := uuid.New()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[id] = cfg
	r.metadata[id] = AgentMetadata{
		ID:            id,
		Name:          cfg.Name,
		Role:          cfg.Role,
		ConnectorKind: cfg.ConnectorKind,
		CreatedAt:     time.Now().UTC(),
		Status:        Idle(),
	}
	return id
}

// Unregister removes both entries for id, returning whether it existed.
func (r *Registry) Unregister(id AgentID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.metadata[id]
	delete(r.metadata, id)
	delete(r.configs, id)
	return existed
}

// GetMetadata returns id's current metadata.
func (r *Registry) GetMetadata(id AgentID) (AgentMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metadata[id]
	return m, ok
}

// GetConfig returns id's immutable configuration.
func (r *Registry) GetConfig(id AgentID) (AgentConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.configs[id]
	return c, ok
}

// UpdateStatus mutates id's metadata status in place. No-op if id is not
// registered.
func (r *Registry) UpdateStatus(id AgentID, status AgentStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.metadata[id]
	if !ok {
		return
	}
	m.Status = status
	r.metadata[id] = m
}

// ListAgents returns a snapshot of all registered metadata.
func (r *Registry) ListAgents() []AgentMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentMetadata, 0, len(r.metadata))
	for _, m := range r.metadata {
		out = append(out, m)
	}
	return out
}

// ListByRole filters ListAgents by role.
func (r *Registry) ListByRole(role AgentRole) []AgentMetadata {
	all := r.ListAgents()
	out := make([]AgentMetadata, 0, len(all))
	for _, m := range all {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}

// Count returns the number of currently registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.metadata)
}
