package providers

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalProvider is a deterministic, offline embedder based on token
// feature hashing: each token is hashed into one of D buckets with a
// hash-derived sign, and the resulting vector is L2-normalized. It needs
// no model files and no network, so it can never be unavailable. The
// semantic quality is far below a transformer model, but token-overlap
// similarity is exactly what air-gapped registry deployments and the test
// suite need: identical text always embeds to the identical unit vector.
type LocalProvider struct {
	dimensions int
}

// NewLocalProvider creates a local hashing embedder with the given
// dimensionality.
func NewLocalProvider(dimensions int) *LocalProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &LocalProvider{dimensions: dimensions}
}

// Name returns the provider name
func (p *LocalProvider) Name() string { return "local" }

// Dimensions returns the configured output dimensionality
func (p *LocalProvider) Dimensions() int { return p.dimensions }

// Embed generates one vector per text. Whitespace-only input embeds to
// the zero vector, which has cosine similarity 0 against everything.
func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = p.embedOne(text)
	}
	return vectors, nil
}

func (p *LocalProvider) embedOne(text string) []float32 {
	vec := make([]float32, p.dimensions)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for _, token := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()

		bucket := int(sum % uint64(p.dimensions))
		// One hash bit decides the sign so that unrelated tokens sharing a
		// bucket tend to cancel instead of accumulate.
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		vec[bucket] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}

	return vec
}

// Close implements Provider.Close
func (p *LocalProvider) Close() error { return nil }
