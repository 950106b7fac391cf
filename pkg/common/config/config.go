// Package config loads and validates the gateway registry configuration
// from file and environment. Configuration is read once at startup and
// passed to components by injection; nothing re-reads it per request.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIConfig defines the HTTP API server configuration
type APIConfig struct {
	ListenAddress string        `mapstructure:"listen_address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
}

// EmbeddingCacheConfig configures the embedding cache
type EmbeddingCacheConfig struct {
	// Type selects the cache implementation: "memory", "redis" or "none"
	Type    string        `mapstructure:"type"`
	Size    int           `mapstructure:"size"`
	Address string        `mapstructure:"address"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// EmbeddingConfig configures the embedding provider
type EmbeddingConfig struct {
	// Provider selects the embedding backend: "openai", "local" or "mock"
	Provider       string               `mapstructure:"provider"`
	Model          string               `mapstructure:"model"`
	Dimensions     int                  `mapstructure:"dimensions"`
	APIKey         string               `mapstructure:"api_key"`
	BaseURL        string               `mapstructure:"base_url"`
	RequestTimeout time.Duration        `mapstructure:"request_timeout"`
	MaxRetries     int                  `mapstructure:"max_retries"`
	Cache          EmbeddingCacheConfig `mapstructure:"cache"`
}

// VectorStoreConfig configures the vector index store
type VectorStoreConfig struct {
	// Backend selects the store implementation: "postgres", "memory" or "file"
	Backend      string        `mapstructure:"backend"`
	DSN          string        `mapstructure:"dsn"`
	Schema       string        `mapstructure:"schema"`
	Path         string        `mapstructure:"path"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// SearchConfig configures the hybrid query engine
type SearchConfig struct {
	MinQueryLength      int     `mapstructure:"min_query_length"`
	CandidateMultiplier int     `mapstructure:"candidate_multiplier"`
	KeywordBoostWeight  float64 `mapstructure:"keyword_boost_weight"`
	DefaultMaxResults   int     `mapstructure:"default_max_results"`
	MaxConcurrency      int64   `mapstructure:"max_concurrency"`
}

// LoggingConfig configures process logging
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Config holds the complete application configuration
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	VectorStore VectorStoreConfig `mapstructure:"vector_store"`
	Search      SearchConfig      `mapstructure:"search"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Environment string            `mapstructure:"environment"`
}

// ValidationError is a fatal configuration error. The process must refuse
// to start rather than run with a broken embedding or store setup.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// Load loads configuration from file and environment variables. The config
// file path defaults to configs/config.yaml and can be overridden with
// REGISTRY_CONFIG_FILE. Environment variables prefixed with REGISTRY_
// override file values (REGISTRY_EMBEDDING_API_KEY etc.).
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	configFile := os.Getenv("REGISTRY_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	v.SetEnvPrefix("REGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)

	if err := v.ReadInConfig(); err != nil {
		// A config file is not required when environment variables carry
		// the full configuration.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.listen_address", ":8080")
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)

	v.SetDefault("embedding.provider", "local")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.request_timeout", 30*time.Second)
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.cache.type", "memory")
	v.SetDefault("embedding.cache.size", 4096)
	v.SetDefault("embedding.cache.ttl", time.Hour)

	// Keys with no meaningful default still need registering: AutomaticEnv
	// only binds keys viper already knows, so without these an env-only
	// deployment would silently lose its credentials and DSN.
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.cache.address", "")

	v.SetDefault("vector_store.backend", "memory")
	v.SetDefault("vector_store.schema", "registry")
	v.SetDefault("vector_store.query_timeout", 10*time.Second)
	v.SetDefault("vector_store.dsn", "")
	v.SetDefault("vector_store.path", "")

	v.SetDefault("search.min_query_length", 2)
	v.SetDefault("search.candidate_multiplier", 5)
	v.SetDefault("search.keyword_boost_weight", 0.5)
	v.SetDefault("search.default_max_results", 10)
	v.SetDefault("search.max_concurrency", 16)

	v.SetDefault("logging.level", "info")
	v.SetDefault("environment", "development")
}

// Validate checks the configuration for fatal errors
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.APIKey == "" {
			return &ValidationError{Field: "embedding.api_key", Reason: "required for the openai provider"}
		}
	case "local", "mock":
	default:
		return &ValidationError{Field: "embedding.provider", Reason: fmt.Sprintf("unknown provider %q", c.Embedding.Provider)}
	}

	if c.Embedding.Dimensions <= 0 {
		return &ValidationError{Field: "embedding.dimensions", Reason: "must be positive"}
	}

	switch c.VectorStore.Backend {
	case "postgres":
		if c.VectorStore.DSN == "" {
			return &ValidationError{Field: "vector_store.dsn", Reason: "required for the postgres backend"}
		}
	case "file":
		if c.VectorStore.Path == "" {
			return &ValidationError{Field: "vector_store.path", Reason: "required for the file backend"}
		}
	case "memory":
	default:
		return &ValidationError{Field: "vector_store.backend", Reason: fmt.Sprintf("unknown backend %q", c.VectorStore.Backend)}
	}

	switch c.Embedding.Cache.Type {
	case "memory", "none":
	case "redis":
		if c.Embedding.Cache.Address == "" {
			return &ValidationError{Field: "embedding.cache.address", Reason: "required for the redis cache"}
		}
	default:
		return &ValidationError{Field: "embedding.cache.type", Reason: fmt.Sprintf("unknown cache type %q", c.Embedding.Cache.Type)}
	}

	if c.Search.MinQueryLength < 1 {
		return &ValidationError{Field: "search.min_query_length", Reason: "must be at least 1"}
	}
	if c.Search.CandidateMultiplier < 1 {
		return &ValidationError{Field: "search.candidate_multiplier", Reason: "must be at least 1"}
	}
	if c.Search.KeywordBoostWeight < 0 {
		return &ValidationError{Field: "search.keyword_boost_weight", Reason: "must not be negative"}
	}
	if c.Search.DefaultMaxResults < 1 {
		return &ValidationError{Field: "search.default_max_results", Reason: "must be at least 1"}
	}
	if c.Search.MaxConcurrency < 1 {
		return &ValidationError{Field: "search.max_concurrency", Reason: "must be at least 1"}
	}

	return nil
}
