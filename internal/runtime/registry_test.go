package runtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndUnregisterRoundTrip(t *testing.T) {
	r := NewRegistry()
	before := r.Count()

	id := r.Register(NewAgentConfig("alpha", RoleWorker, "ollama"))
	meta, ok := r.GetMetadata(id)
	require.True(t, ok)
	assert.Equal(t, "alpha", meta.Name)
	assert.Equal(t, StatusIdle, meta.Status.Kind)

	removed := r.Unregister(id)
	assert.True(t, removed)
	assert.Equal(t, before, r.Count())

	_, ok = r.GetMetadata(id)
	assert.False(t, ok)
	_, ok = r.GetConfig(id)
	assert.False(t, ok)
}

func TestRegistryUnregisterMissingReturnsFalse(t *testing.T) {
	r := NewRegistry()
	removed := r.Unregister(uuid.New())
	assert.False(t, removed)
}

func TestRegistryUpdateStatus(t *testing.T) {
	r := NewRegistry()
	id := r.Register(NewAgentConfig("beta", RoleReviewer, "subprocess"))
	r.UpdateStatus(id, Failed("boom"))
	meta, ok := r.GetMetadata(id)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, meta.Status.Kind)
	assert.Equal(t, "boom", meta.Status.Reason)
}

func TestRegistryListByRole(t *testing.T) {
	r := NewRegistry()
	r.Register(NewAgentConfig("worker-1", RoleWorker, "ollama"))
	r.Register(NewAgentConfig("worker-2", RoleWorker, "ollama"))
	r.Register(NewAgentConfig("coord", RoleCoordinator, "ollama"))

	workers := r.ListByRole(RoleWorker)
	assert.Len(t, workers, 2)
	coords := r.ListByRole(RoleCoordinator)
	assert.Len(t, coords, 1)
}
