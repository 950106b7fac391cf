package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/mcp-mesh/gateway-registry/pkg/embedding"
	"github.com/mcp-mesh/gateway-registry/pkg/models"
	"github.com/mcp-mesh/gateway-registry/pkg/observability"
	"github.com/mcp-mesh/gateway-registry/pkg/repository/vector"
)

// Options tunes the hybrid query engine. Zero values fall back to the
// documented defaults.
type Options struct {
	// MinQueryLength rejects shorter normalized queries with an empty
	// result instead of an error. Default 2.
	MinQueryLength int

	// CandidateMultiplier over-fetches the vector candidate pool to leave
	// room for keyword-boost reranking. Default 5.
	CandidateMultiplier int

	// KeywordBoostWeight scales the keyword match fraction in the
	// combined score. Default 0.5.
	KeywordBoostWeight float64

	// DefaultMaxResults caps results per entity type when the query does
	// not specify one. Default 10.
	DefaultMaxResults int

	// MaxConcurrency bounds simultaneous searches. Default 16.
	MaxConcurrency int64
}

func (o *Options) applyDefaults() {
	if o.MinQueryLength <= 0 {
		o.MinQueryLength = 2
	}
	if o.CandidateMultiplier <= 0 {
		o.CandidateMultiplier = 5
	}
	if o.KeywordBoostWeight < 0 {
		o.KeywordBoostWeight = 0.5
	}
	if o.DefaultMaxResults <= 0 {
		o.DefaultMaxResults = 10
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = 16
	}
}

// Engine is the hybrid query engine: it blends vector similarity from the
// index store with keyword token overlap into one deterministic ranking.
// Stateless per call and safe for concurrent use.
type Engine struct {
	embedder  Embedder
	store     vector.Store
	reader    Reader
	formatter *Formatter
	opts      Options
	sem       *semaphore.Weighted
	logger    observability.Logger
	metrics   observability.MetricsClient
}

// EngineConfig configures an Engine
type EngineConfig struct {
	Embedder Embedder
	Store    vector.Store
	Reader   Reader
	Options  Options
	Logger   observability.Logger
	Metrics  observability.MetricsClient
}

// NewEngine creates a new hybrid query engine
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if cfg.Reader == nil {
		return nil, fmt.Errorf("registry reader is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNoopMetricsClient()
	}
	cfg.Options.applyDefaults()

	return &Engine{
		embedder:  cfg.Embedder,
		store:     cfg.Store,
		reader:    cfg.Reader,
		formatter: NewFormatter(cfg.Options.KeywordBoostWeight),
		opts:      cfg.Options,
		sem:       semaphore.NewWeighted(cfg.Options.MaxConcurrency),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}, nil
}

// Search executes one hybrid search. Queries below the minimum length
// return an empty result set, not an error. An unavailable embedding
// provider degrades the request to keyword-only scoring and marks the
// result set; it never fails the search.
func (e *Engine) Search(ctx context.Context, q Query) (*ResultSet, error) {
	ctx, span := observability.StartSpan(ctx, "engine.search")
	defer span.End()
	observability.SetSpanAttribute(span, "store.mode", string(e.store.Mode()))

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer e.sem.Release(1)

	stop := e.metrics.StartTimer("search.duration", nil)
	defer stop()

	normalized := strings.TrimSpace(strings.ToLower(q.Text))
	tokens := Tokenize(q.Text)
	if len([]rune(normalized)) < e.opts.MinQueryLength || len(tokens) == 0 {
		e.metrics.IncrementCounter("search.rejected_short_query", 1)
		return &ResultSet{Servers: []Hit{}, Tools: []Hit{}, Agents: []Hit{}}, nil
	}

	maxResults := q.MaxResults
	if maxResults <= 0 {
		maxResults = e.opts.DefaultMaxResults
	}
	filter := vector.Filter{EntityTypes: q.Types}

	vectors, err := e.embedder.Embed(ctx, []string{q.Text})
	if err != nil {
		if !embedding.IsDegradable(err) {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		e.metrics.IncrementCounter("search.degraded", 1)
		e.logger.Warn("Embedding unavailable; serving keyword-only results", map[string]interface{}{
			"error": err.Error(),
		})
		return e.searchKeywordOnly(ctx, tokens, filter, maxResults)
	}

	candidates, err := e.store.Query(ctx, vectors[0], maxResults*e.opts.CandidateMultiplier, filter)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	hits := make([]Hit, 0, len(candidates))
	for _, m := range candidates {
		hit, ok := e.toHit(m.Record)
		if !ok {
			continue
		}
		fraction := keywordFraction(tokens, m.Record.Meta)
		combined := m.Similarity * (1 + e.opts.KeywordBoostWeight*fraction)
		if combined < 0 {
			combined = 0
		}
		hit.Score = combined
		hits = append(hits, hit)
	}

	sortHits(hits)
	return e.formatter.Format(hits, maxResults, false), nil
}

// searchKeywordOnly serves the degraded path: every indexed record that
// literally contains a query token is scored by its keyword fraction
// alone.
func (e *Engine) searchKeywordOnly(ctx context.Context, tokens []string, filter vector.Filter, maxResults int) (*ResultSet, error) {
	recs, err := e.store.Scan(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("keyword scan failed: %w", err)
	}

	hits := make([]Hit, 0, len(recs))
	for _, rec := range recs {
		fraction := keywordFraction(tokens, rec.Meta)
		if fraction == 0 {
			continue
		}
		hit, ok := e.toHit(rec)
		if !ok {
			continue
		}
		// Scaled into the same range a full-match vector hit would get,
		// so normalization downstream stays uniform.
		hit.Score = fraction * (1 + e.opts.KeywordBoostWeight)
		hits = append(hits, hit)
	}

	sortHits(hits)
	return e.formatter.Format(hits, maxResults, true), nil
}

// toHit converts an index record into a result hit, applying the
// authoritative enabled check. Records whose entity (or owning server)
// is disabled or no longer registered are dropped.
func (e *Engine) toHit(rec vector.Record) (Hit, bool) {
	hit := Hit{
		EntityID:    rec.EntityID,
		EntityType:  rec.Meta.EntityType,
		Name:        rec.Meta.Name,
		Description: rec.Meta.Description,
		Tags:        rec.Meta.Tags,
	}

	switch rec.Meta.EntityType {
	case models.EntityTypeServer:
		_, enabled, ok := e.reader.ServerState(rec.EntityID)
		if !ok || !enabled {
			return Hit{}, false
		}
	case models.EntityTypeTool:
		ownerName, enabled, ok := e.reader.ServerState(rec.Meta.OwnerID)
		if !ok || !enabled {
			return Hit{}, false
		}
		hit.OwnerID = rec.Meta.OwnerID
		hit.OwnerName = ownerName
	case models.EntityTypeAgent:
		enabled, ok := e.reader.AgentState(rec.EntityID)
		if !ok || !enabled {
			return Hit{}, false
		}
	default:
		return Hit{}, false
	}

	return hit, true
}

// keywordFraction returns the fraction of query tokens found as
// substrings of the record's name, description, or tags. Monotonic: more
// matching tokens never lowers the fraction.
func keywordFraction(tokens []string, meta vector.Meta) float64 {
	if len(tokens) == 0 {
		return 0
	}

	name := strings.ToLower(meta.Name)
	description := strings.ToLower(meta.Description)

	matched := 0
	for _, token := range tokens {
		if strings.Contains(name, token) || strings.Contains(description, token) {
			matched++
			continue
		}
		for _, tag := range meta.Tags {
			if strings.Contains(strings.ToLower(tag), token) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(tokens))
}

// sortHits orders by combined score descending, entity ID ascending on
// ties. The tie-break keeps repeated searches byte-identical.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].EntityID < hits[j].EntityID
	})
}
