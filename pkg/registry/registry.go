// Package registry holds the in-memory catalog of registered MCP servers
// and A2A agents. It is the write-path trigger for the search indexer and
// the authoritative source of enabled state for the query engine.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mcp-mesh/gateway-registry/pkg/models"
	"github.com/mcp-mesh/gateway-registry/pkg/observability"
)

// EntityIndexer is the slice of the search indexer the registry drives
type EntityIndexer interface {
	IndexServer(ctx context.Context, server *models.Server) error
	IndexAgent(ctx context.Context, agent *models.Agent) error
	RemoveEntity(ctx context.Context, entityID string) error
}

// ErrNotFound indicates the requested entity is not registered
var ErrNotFound = fmt.Errorf("entity not found")

// Registry is safe for concurrent use
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*models.Server
	agents  map[string]*models.Agent
	indexer EntityIndexer
	logger  observability.Logger
}

// New creates an empty registry wired to the given indexer
func New(indexer EntityIndexer, logger observability.Logger) *Registry {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &Registry{
		servers: make(map[string]*models.Server),
		agents:  make(map[string]*models.Agent),
		indexer: indexer,
		logger:  logger,
	}
}

// UpsertServer registers or updates a server and synchronously re-indexes
// it. An indexing failure rolls nothing back: the registry entry is kept
// and the caller retries the index operation.
func (r *Registry) UpsertServer(ctx context.Context, server *models.Server) error {
	if server == nil {
		return fmt.Errorf("server is required")
	}
	if server.ID == "" {
		server.ID = "/" + uuid.NewString()
	}
	if !strings.HasPrefix(server.ID, "/") {
		server.ID = "/" + server.ID
	}

	stored := *server
	r.mu.Lock()
	r.servers[stored.ID] = &stored
	r.mu.Unlock()

	if err := r.indexer.IndexServer(ctx, &stored); err != nil {
		r.logger.Error("Failed to index server", map[string]interface{}{
			"server": stored.ID,
			"error":  err.Error(),
		})
		return fmt.Errorf("server registered but not indexed: %w", err)
	}
	return nil
}

// DeleteServer removes a server and cascades the removal of its tool
// vectors.
func (r *Registry) DeleteServer(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.servers[id]
	delete(r.servers, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return r.indexer.RemoveEntity(ctx, id)
}

// SetServerEnabled flips the enabled flag. No re-index: the query engine
// checks enabled state live, so the toggle takes effect immediately.
func (r *Registry) SetServerEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	server, ok := r.servers[id]
	if !ok {
		return ErrNotFound
	}
	server.Enabled = enabled
	return nil
}

// GetServer returns a copy of the registered server
func (r *Registry) GetServer(id string) (*models.Server, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	server, ok := r.servers[id]
	if !ok {
		return nil, false
	}
	copied := *server
	return &copied, true
}

// UpsertAgent registers or updates an agent and synchronously re-indexes it
func (r *Registry) UpsertAgent(ctx context.Context, agent *models.Agent) error {
	if agent == nil {
		return fmt.Errorf("agent is required")
	}
	if agent.ID == "" {
		agent.ID = "agent-" + uuid.NewString()
	}

	stored := *agent
	r.mu.Lock()
	r.agents[stored.ID] = &stored
	r.mu.Unlock()

	if err := r.indexer.IndexAgent(ctx, &stored); err != nil {
		r.logger.Error("Failed to index agent", map[string]interface{}{
			"agent": stored.ID,
			"error": err.Error(),
		})
		return fmt.Errorf("agent registered but not indexed: %w", err)
	}
	return nil
}

// DeleteAgent removes an agent and its vector
func (r *Registry) DeleteAgent(ctx context.Context, id string) error {
	r.mu.Lock()
	_, ok := r.agents[id]
	delete(r.agents, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return r.indexer.RemoveEntity(ctx, id)
}

// SetAgentEnabled flips the enabled flag without re-indexing
func (r *Registry) SetAgentEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent, ok := r.agents[id]
	if !ok {
		return ErrNotFound
	}
	agent.Enabled = enabled
	return nil
}

// GetAgent returns a copy of the registered agent
func (r *Registry) GetAgent(id string) (*models.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	copied := *agent
	return &copied, true
}

// ServerState implements search.Reader
func (r *Registry) ServerState(id string) (string, bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	server, ok := r.servers[id]
	if !ok {
		return "", false, false
	}
	return server.Name, server.Enabled, true
}

// AgentState implements search.Reader
func (r *Registry) AgentState(id string) (bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	if !ok {
		return false, false
	}
	return agent.Enabled, true
}
