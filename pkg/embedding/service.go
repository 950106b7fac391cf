// Package embedding wraps an embedding provider with the operational
// concerns the rest of the system should not care about: circuit breaking,
// per-call timeouts, caching, and metrics.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mcp-mesh/gateway-registry/pkg/embedding/cache"
	"github.com/mcp-mesh/gateway-registry/pkg/embedding/providers"
	"github.com/mcp-mesh/gateway-registry/pkg/observability"
)

// Re-exported provider sentinels so callers depend on one package
var (
	ErrUnavailable = providers.ErrUnavailable
	ErrTimeout     = providers.ErrTimeout
)

// IsDegradable reports whether an embedding error should degrade the
// caller (keyword-only search, index retry) rather than propagate as a
// hard failure.
func IsDegradable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}

// ServiceConfig configures the embedding service
type ServiceConfig struct {
	Provider providers.Provider
	Cache    cache.Cache
	Model    string
	Timeout  time.Duration
	Logger   observability.Logger
	Metrics  observability.MetricsClient
}

// Service is the embedding entry point for the indexer and the query
// engine. It is safe for concurrent use.
type Service struct {
	provider providers.Provider
	cache    cache.Cache
	model    string
	timeout  time.Duration
	breaker  *gobreaker.CircuitBreaker
	logger   observability.Logger
	metrics  observability.MetricsClient
}

// NewService creates a new embedding service
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Provider == nil {
		return nil, errors.New("embedding provider is required")
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.NewNoopCache()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewNoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NewNoopMetricsClient()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "embedding-" + cfg.Provider.Name(),
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Service{
		provider: cfg.Provider,
		cache:    cfg.Cache,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		breaker:  breaker,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}, nil
}

// Dimensions returns the provider's fixed output dimensionality
func (s *Service) Dimensions() int {
	return s.provider.Dimensions()
}

// Embed returns one vector per input text, in input order.
// Whitespace-only texts embed to the zero vector without touching the
// provider; the zero vector scores cosine similarity 0 against every
// query, so blank documents never rank. Cached vectors are reused; only
// misses reach the provider, in one batched call.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			vectors[i] = make([]float32, s.provider.Dimensions())
			continue
		}
		if cached, ok := s.cache.Get(ctx, cache.Key(s.model, text)); ok {
			s.metrics.IncrementCounter("embedding.cache.hit", 1)
			vectors[i] = cached
			continue
		}
		s.metrics.IncrementCounter("embedding.cache.miss", 1)
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	stop := s.metrics.StartTimer("embedding.provider.duration", map[string]string{
		"provider": s.provider.Name(),
	})
	result, err := s.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return s.provider.Embed(callCtx, missTexts)
	})
	stop()

	if err != nil {
		s.metrics.IncrementCounter("embedding.provider.error", 1)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("embedding circuit open: %w", ErrUnavailable)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding call: %w", ErrTimeout)
		}
		return nil, err
	}

	computed, ok := result.([][]float32)
	if !ok || len(computed) != len(missTexts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d texts: %w",
			len(computed), len(missTexts), ErrUnavailable)
	}

	for j, vec := range computed {
		vectors[missIdx[j]] = vec
		s.cache.Set(ctx, cache.Key(s.model, missTexts[j]), vec)
	}

	return vectors, nil
}

// Close releases the provider and cache
func (s *Service) Close() error {
	if err := s.cache.Close(); err != nil {
		s.logger.Warn("Failed to close embedding cache", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return s.provider.Close()
}
