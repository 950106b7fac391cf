package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcp-mesh/gateway-registry/pkg/models"
)

// recordingIndexer captures indexer invocations
type recordingIndexer struct {
	mu       sync.Mutex
	indexed  []string
	removed  []string
	indexErr error
}

func (r *recordingIndexer) IndexServer(ctx context.Context, server *models.Server) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexErr != nil {
		return r.indexErr
	}
	r.indexed = append(r.indexed, server.ID)
	return nil
}

func (r *recordingIndexer) IndexAgent(ctx context.Context, agent *models.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexErr != nil {
		return r.indexErr
	}
	r.indexed = append(r.indexed, agent.ID)
	return nil
}

func (r *recordingIndexer) RemoveEntity(ctx context.Context, entityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, entityID)
	return nil
}

func TestUpsertServerIndexesSynchronously(t *testing.T) {
	idx := &recordingIndexer{}
	reg := New(idx, nil)

	server := &models.Server{ID: "/weather-api", Name: "Weather API", Enabled: true}
	require.NoError(t, reg.UpsertServer(context.Background(), server))

	assert.Equal(t, []string{"/weather-api"}, idx.indexed)

	name, enabled, ok := reg.ServerState("/weather-api")
	assert.True(t, ok)
	assert.True(t, enabled)
	assert.Equal(t, "Weather API", name)
}

func TestUpsertServerNormalizesID(t *testing.T) {
	reg := New(&recordingIndexer{}, nil)
	ctx := context.Background()

	noSlash := &models.Server{ID: "weather-api", Name: "Weather API"}
	require.NoError(t, reg.UpsertServer(ctx, noSlash))
	assert.Equal(t, "/weather-api", noSlash.ID)

	generated := &models.Server{Name: "Anonymous"}
	require.NoError(t, reg.UpsertServer(ctx, generated))
	assert.NotEmpty(t, generated.ID)
	assert.Equal(t, byte('/'), generated.ID[0])
}

func TestUpsertServerIndexFailureKeepsEntry(t *testing.T) {
	idx := &recordingIndexer{indexErr: errors.New("embedder down")}
	reg := New(idx, nil)

	server := &models.Server{ID: "/weather-api", Name: "Weather API", Enabled: true}
	err := reg.UpsertServer(context.Background(), server)
	require.Error(t, err)

	// The registry entry survives so a later re-index can repair the index.
	_, _, ok := reg.ServerState("/weather-api")
	assert.True(t, ok)
}

func TestDeleteServerCascades(t *testing.T) {
	idx := &recordingIndexer{}
	reg := New(idx, nil)
	ctx := context.Background()

	require.NoError(t, reg.UpsertServer(ctx, &models.Server{ID: "/weather-api", Name: "Weather API"}))
	require.NoError(t, reg.DeleteServer(ctx, "/weather-api"))

	assert.Equal(t, []string{"/weather-api"}, idx.removed)
	_, _, ok := reg.ServerState("/weather-api")
	assert.False(t, ok)

	assert.ErrorIs(t, reg.DeleteServer(ctx, "/weather-api"), ErrNotFound)
}

func TestToggleServerDoesNotReindex(t *testing.T) {
	idx := &recordingIndexer{}
	reg := New(idx, nil)
	ctx := context.Background()

	require.NoError(t, reg.UpsertServer(ctx, &models.Server{ID: "/weather-api", Name: "Weather API", Enabled: true}))
	indexCalls := len(idx.indexed)

	require.NoError(t, reg.SetServerEnabled("/weather-api", false))
	_, enabled, _ := reg.ServerState("/weather-api")
	assert.False(t, enabled)
	assert.Len(t, idx.indexed, indexCalls, "toggling must not touch the index")

	assert.ErrorIs(t, reg.SetServerEnabled("/ghost", true), ErrNotFound)
}

func TestGetServerReturnsCopy(t *testing.T) {
	reg := New(&recordingIndexer{}, nil)
	require.NoError(t, reg.UpsertServer(context.Background(), &models.Server{ID: "/srv", Name: "Server"}))

	got, ok := reg.GetServer("/srv")
	require.True(t, ok)
	got.Name = "mutated"

	again, _ := reg.GetServer("/srv")
	assert.Equal(t, "Server", again.Name)
}

func TestAgentLifecycle(t *testing.T) {
	idx := &recordingIndexer{}
	reg := New(idx, nil)
	ctx := context.Background()

	agent := &models.Agent{Name: "Translator", Enabled: true}
	require.NoError(t, reg.UpsertAgent(ctx, agent))
	require.NotEmpty(t, agent.ID)

	enabled, ok := reg.AgentState(agent.ID)
	assert.True(t, ok)
	assert.True(t, enabled)

	require.NoError(t, reg.SetAgentEnabled(agent.ID, false))
	enabled, _ = reg.AgentState(agent.ID)
	assert.False(t, enabled)

	require.NoError(t, reg.DeleteAgent(ctx, agent.ID))
	_, ok = reg.AgentState(agent.ID)
	assert.False(t, ok)
	assert.Equal(t, []string{agent.ID}, idx.removed)
}
