package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mcp-mesh/gateway-registry/pkg/embedding"
	"github.com/mcp-mesh/gateway-registry/pkg/models"
	"github.com/mcp-mesh/gateway-registry/pkg/observability"
	"github.com/mcp-mesh/gateway-registry/pkg/repository/vector"
)

// Indexer derives the searchable text for servers, tools, and agents,
// embeds it, and writes the vectors into the index store. It owns all
// writes to the store. Indexing is synchronous on the registry write
// path: once IndexServer returns, the entity is visible to queries
// (immediately for in-process stores, after the backing index refresh for
// native pgvector).
type Indexer struct {
	embedder   Embedder
	store      vector.Store
	logger     observability.Logger
	metrics    observability.MetricsClient
	maxRetries uint64
}

// IndexerConfig configures an Indexer
type IndexerConfig struct {
	Embedder Embedder
	Store    vector.Store
	Logger   observability.Logger
	Metrics  observability.MetricsClient

	// MaxRetries bounds the embedding retry attempts on the index path
	MaxRetries int
}

// NewIndexer creates a new entity indexer
func NewIndexer(cfg IndexerConfig) (*Indexer, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNoopMetricsClient()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Indexer{
		embedder:   cfg.Embedder,
		store:      cfg.Store,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		maxRetries: uint64(cfg.MaxRetries),
	}, nil
}

// IndexServer indexes one server and all its tools. All embeddings are
// computed before any store write, so an embedding failure leaves the
// previously indexed version fully intact and queryable. Re-indexing the
// same server replaces its vectors and drops vectors of tools that no
// longer exist.
func (i *Indexer) IndexServer(ctx context.Context, server *models.Server) error {
	ctx, span := observability.StartSpan(ctx, "indexer.index_server")
	defer span.End()
	observability.SetSpanAttribute(span, "entity.id", server.ID)

	texts := make([]string, 0, len(server.Tools)+1)
	texts = append(texts, serverDocument(server))
	for _, tool := range server.Tools {
		texts = append(texts, toolDocument(server, tool))
	}

	vectors, err := i.embedWithRetry(ctx, texts)
	if err != nil {
		i.metrics.IncrementCounter("indexer.embed_failure", 1)
		return fmt.Errorf("failed to embed server %s: %w", server.ID, err)
	}

	recs := make([]vector.Record, 0, len(texts))
	recs = append(recs, vector.Record{
		EntityID: server.ID,
		Vector:   vectors[0],
		Meta: vector.Meta{
			EntityType:  models.EntityTypeServer,
			Name:        server.Name,
			Description: server.Description,
			Tags:        server.Tags,
		},
	})
	for j, tool := range server.Tools {
		recs = append(recs, vector.Record{
			EntityID: server.ToolID(tool.Name),
			Vector:   vectors[j+1],
			Meta: vector.Meta{
				EntityType:  models.EntityTypeTool,
				OwnerID:     server.ID,
				Name:        tool.Name,
				Description: tool.Description,
			},
		})
	}

	if err := i.store.ReplaceOwned(ctx, server.ID, recs); err != nil {
		return fmt.Errorf("failed to store vectors for server %s: %w", server.ID, err)
	}

	i.metrics.IncrementCounter("indexer.server_indexed", 1)
	i.logger.Info("Indexed server", map[string]interface{}{
		"server": server.ID,
		"tools":  len(server.Tools),
	})
	return nil
}

// IndexAgent indexes one agent. Skill descriptions are folded into the
// agent document rather than indexed separately: agents are discovered as
// a whole, unlike tools which are individually invokable.
func (i *Indexer) IndexAgent(ctx context.Context, agent *models.Agent) error {
	ctx, span := observability.StartSpan(ctx, "indexer.index_agent")
	defer span.End()
	observability.SetSpanAttribute(span, "entity.id", agent.ID)

	vectors, err := i.embedWithRetry(ctx, []string{agentDocument(agent)})
	if err != nil {
		i.metrics.IncrementCounter("indexer.embed_failure", 1)
		return fmt.Errorf("failed to embed agent %s: %w", agent.ID, err)
	}

	rec := vector.Record{
		EntityID: agent.ID,
		Vector:   vectors[0],
		Meta: vector.Meta{
			EntityType:  models.EntityTypeAgent,
			Name:        agent.Name,
			Description: agent.Description,
			Tags:        agent.Tags,
		},
	}

	if err := i.store.ReplaceOwned(ctx, agent.ID, []vector.Record{rec}); err != nil {
		return fmt.Errorf("failed to store vector for agent %s: %w", agent.ID, err)
	}

	i.metrics.IncrementCounter("indexer.agent_indexed", 1)
	i.logger.Info("Indexed agent", map[string]interface{}{"agent": agent.ID})
	return nil
}

// RemoveEntity removes the entity's vector and, for servers, every owned
// tool vector. Removing an unknown ID is a no-op.
func (i *Indexer) RemoveEntity(ctx context.Context, entityID string) error {
	ctx, span := observability.StartSpan(ctx, "indexer.remove_entity")
	defer span.End()
	observability.SetSpanAttribute(span, "entity.id", entityID)

	if err := i.store.ReplaceOwned(ctx, entityID, nil); err != nil {
		return fmt.Errorf("failed to remove vectors for %s: %w", entityID, err)
	}

	i.metrics.IncrementCounter("indexer.entity_removed", 1)
	i.logger.Info("Removed entity from index", map[string]interface{}{"entity": entityID})
	return nil
}

// embedWithRetry retries degradable embedding failures with exponential
// backoff. Other failures are permanent.
func (i *Indexer) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		var err error
		vectors, err = i.embedder.Embed(ctx, texts)
		if err == nil {
			return nil
		}
		if embedding.IsDegradable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, i.maxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func serverDocument(s *models.Server) string {
	parts := []string{s.Name, s.Description}
	parts = append(parts, s.Tags...)
	return joinDocument(parts)
}

func toolDocument(s *models.Server, t models.Tool) string {
	// The owning server's name is part of the tool document so that
	// querying for the server surfaces its tools too.
	return joinDocument([]string{t.Name, t.Description, s.Name})
}

func agentDocument(a *models.Agent) string {
	parts := []string{a.Name, a.Description}
	parts = append(parts, a.Tags...)
	for _, skill := range a.Skills {
		parts = append(parts, skill.Name, skill.Description)
	}
	return joinDocument(parts)
}

func joinDocument(parts []string) string {
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ". ")
}
