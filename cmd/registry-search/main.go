// registry-search runs the MCP gateway registry search service: the
// entity registry, the embedding pipeline, the vector index, and the
// hybrid search HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mcp-mesh/gateway-registry/pkg/api"
	"github.com/mcp-mesh/gateway-registry/pkg/common/config"
	"github.com/mcp-mesh/gateway-registry/pkg/embedding"
	"github.com/mcp-mesh/gateway-registry/pkg/embedding/cache"
	"github.com/mcp-mesh/gateway-registry/pkg/embedding/providers"
	"github.com/mcp-mesh/gateway-registry/pkg/observability"
	"github.com/mcp-mesh/gateway-registry/pkg/registry"
	"github.com/mcp-mesh/gateway-registry/pkg/repository/vector"
	"github.com/mcp-mesh/gateway-registry/pkg/search"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "registry-search: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		// Misconfiguration is fatal. Running with a broken embedding or
		// store setup would serve silently wrong results.
		return err
	}

	logger := observability.NewStandardLoggerWithLevel("registry-search", parseLevel(cfg.Logging.Level))
	metrics := observability.NewMetricsClient()
	defer metrics.Close()

	provider, err := newProvider(cfg.Embedding)
	if err != nil {
		return err
	}

	embedCache, err := newCache(cfg.Embedding.Cache, logger)
	if err != nil {
		return err
	}

	embedService, err := embedding.NewService(embedding.ServiceConfig{
		Provider: provider,
		Cache:    embedCache,
		Model:    cfg.Embedding.Model,
		Timeout:  cfg.Embedding.RequestTimeout,
		Logger:   logger.WithPrefix("embedding"),
		Metrics:  metrics,
	})
	if err != nil {
		return err
	}
	defer embedService.Close()

	store, err := vector.NewStore(cfg.VectorStore, logger.WithPrefix("vector"))
	if err != nil {
		return err
	}
	defer store.Close()

	ensureCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.EnsureIndex(ensureCtx, cfg.Embedding.Dimensions)
	cancel()
	if err != nil {
		if errors.Is(err, vector.ErrDimensionMismatch) {
			return fmt.Errorf("index dimensionality does not match embedding.dimensions=%d; "+
				"drop the index or restore the previous model: %w", cfg.Embedding.Dimensions, err)
		}
		return fmt.Errorf("failed to prepare vector index: %w", err)
	}

	indexer, err := search.NewIndexer(search.IndexerConfig{
		Embedder:   embedService,
		Store:      store,
		Logger:     logger.WithPrefix("indexer"),
		Metrics:    metrics,
		MaxRetries: cfg.Embedding.MaxRetries,
	})
	if err != nil {
		return err
	}

	reg := registry.New(indexer, logger.WithPrefix("registry"))

	engine, err := search.NewEngine(search.EngineConfig{
		Embedder: embedService,
		Store:    store,
		Reader:   reg,
		Options: search.Options{
			MinQueryLength:      cfg.Search.MinQueryLength,
			CandidateMultiplier: cfg.Search.CandidateMultiplier,
			KeywordBoostWeight:  cfg.Search.KeywordBoostWeight,
			DefaultMaxResults:   cfg.Search.DefaultMaxResults,
			MaxConcurrency:      cfg.Search.MaxConcurrency,
		},
		Logger:  logger.WithPrefix("engine"),
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	router := api.NewRouter(api.Deps{
		Engine:   engine,
		Registry: reg,
		Store:    store,
		Logger:   logger.WithPrefix("api"),
		Metrics:  metrics,
	})

	srv := &http.Server{
		Addr:         cfg.API.ListenAddress,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening", map[string]interface{}{
			"address": cfg.API.ListenAddress,
			"backend": cfg.VectorStore.Backend,
			"mode":    string(store.Mode()),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("Shutting down", map[string]interface{}{"signal": sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newProvider(cfg config.EmbeddingConfig) (providers.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return providers.NewOpenAIProvider(providers.ProviderConfig{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			Dimensions:     cfg.Dimensions,
			RequestTimeout: cfg.RequestTimeout,
		})
	case "local":
		return providers.NewLocalProvider(cfg.Dimensions), nil
	case "mock":
		return providers.NewMockProvider(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func newCache(cfg config.EmbeddingCacheConfig, logger observability.Logger) (cache.Cache, error) {
	switch cfg.Type {
	case "memory":
		return cache.NewLRUCache(cfg.Size)
	case "redis":
		return cache.NewRedisCache(cfg.Address, cfg.TTL, logger.WithPrefix("cache")), nil
	case "none":
		return cache.NewNoopCache(), nil
	default:
		return nil, fmt.Errorf("unknown embedding cache type %q", cfg.Type)
	}
}

func parseLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.LogLevelDebug
	case "warn", "warning":
		return observability.LogLevelWarn
	case "error":
		return observability.LogLevelError
	default:
		return observability.LogLevelInfo
	}
}
