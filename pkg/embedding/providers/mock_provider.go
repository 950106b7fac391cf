package providers

import (
	"context"
	"sync"
)

// MockProvider is a configurable Provider for tests
type MockProvider struct {
	mu sync.Mutex

	// DimensionsVal is the reported dimensionality
	DimensionsVal int

	// EmbedFn, when set, overrides the default embedding behavior
	EmbedFn func(ctx context.Context, texts []string) ([][]float32, error)

	// Err, when set, is returned from every Embed call
	Err error

	// Calls records every batch of texts passed to Embed
	Calls [][]string
}

// NewMockProvider creates a mock provider with the given dimensionality
func NewMockProvider(dimensions int) *MockProvider {
	return &MockProvider{DimensionsVal: dimensions}
}

// Name returns the provider name
func (p *MockProvider) Name() string { return "mock" }

// Dimensions returns the configured dimensionality
func (p *MockProvider) Dimensions() int { return p.DimensionsVal }

// Embed records the call and returns configured vectors or errors. The
// default behavior delegates to a LocalProvider of the same dimensionality
// so tests get deterministic, content-dependent vectors for free.
func (p *MockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	batch := make([]string, len(texts))
	copy(batch, texts)
	p.Calls = append(p.Calls, batch)
	embedFn := p.EmbedFn
	err := p.Err
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if embedFn != nil {
		return embedFn(ctx, texts)
	}
	return NewLocalProvider(p.DimensionsVal).Embed(ctx, texts)
}

// CallCount returns the number of Embed calls made so far
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Close implements Provider.Close
func (p *MockProvider) Close() error { return nil }
