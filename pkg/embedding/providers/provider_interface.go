// Package providers contains the embedding provider implementations:
// a remote OpenAI-compatible client, a deterministic local embedder for
// offline deployments, and a mock for tests.
package providers

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the embedding provider is unreachable,
// misconfigured, or returned malformed data. Callers degrade rather than
// fail: the query path falls back to keyword-only scoring and the index
// path retries.
var ErrUnavailable = errors.New("embedding provider unavailable")

// ErrTimeout indicates the provider call exceeded its deadline
var ErrTimeout = errors.New("embedding provider timed out")

// Provider generates fixed-dimensionality embeddings for text. Embed is
// batch-first: passing all texts of a bulk re-index in one call avoids a
// round-trip per document.
type Provider interface {
	// Name returns the provider name (e.g. "openai", "local")
	Name() string

	// Embed returns one vector per input text, in input order. Failures
	// that callers should degrade on wrap ErrUnavailable or ErrTimeout.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed output dimensionality
	Dimensions() int

	// Close releases any held resources
	Close() error
}

// ProviderConfig contains common configuration for providers. Credentials
// and endpoints are injected here; providers never read global state.
type ProviderConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Dimensions     int
	RequestTimeout time.Duration
}
