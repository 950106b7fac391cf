// Package vector provides the vector index store: persistence of one
// embedding record per indexed entity, nearest-neighbor queries, and the
// native/fallback degradation between pgvector search and in-process
// cosine ranking.
package vector

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrBackend indicates a native store operation failed. On the query path
// the store absorbs it by switching to fallback mode; on the index path it
// propagates, since silent data loss is worse than an error.
var ErrBackend = errors.New("vector store backend error")

// ErrDimensionMismatch indicates the configured embedding dimensionality
// does not match the store's. This is a fatal configuration error.
var ErrDimensionMismatch = errors.New("vector dimensionality mismatch")

// Mode describes how queries are currently served
type Mode string

const (
	// ModeNative delegates nearest-neighbor search to the backing store
	ModeNative Mode = "native"
	// ModeFallback ranks by exact cosine similarity computed in-process
	ModeFallback Mode = "fallback"
)

// Meta carries the searchable attributes stored alongside each vector.
// Keeping name/description/tags in the index lets the query engine apply
// keyword boosting without a registry round-trip per candidate.
type Meta struct {
	EntityType  string   `json:"entity_type"`
	OwnerID     string   `json:"owner_id,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// Record is one vector plus metadata, keyed by entity ID
type Record struct {
	EntityID string    `json:"entity_id"`
	Vector   []float32 `json:"vector"`
	Meta     Meta      `json:"meta"`
}

// Match is a query hit
type Match struct {
	Record     Record
	Similarity float64
}

// Filter restricts queries and scans by entity type. An empty type list
// matches everything.
type Filter struct {
	EntityTypes []string
}

// Matches reports whether the filter admits the given record
func (f Filter) Matches(rec Record) bool {
	if len(f.EntityTypes) == 0 {
		return true
	}
	for _, t := range f.EntityTypes {
		if rec.Meta.EntityType == t {
			return true
		}
	}
	return false
}

// CosineSimilarity computes the cosine similarity of two vectors. Vectors
// of different lengths or zero magnitude score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rankBruteForce scores records against the query vector by exact cosine
// similarity and returns the top k, ordered by similarity descending with
// ties broken by entity ID ascending for deterministic results.
func rankBruteForce(recs []Record, queryVec []float32, k int, f Filter) []Match {
	matches := make([]Match, 0, len(recs))
	for _, rec := range recs {
		if !f.Matches(rec) {
			continue
		}
		matches = append(matches, Match{
			Record:     rec,
			Similarity: CosineSimilarity(queryVec, rec.Vector),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Record.EntityID < matches[j].Record.EntityID
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

func validateDimensions(expected int, rec Record) error {
	if len(rec.Vector) != expected {
		return fmt.Errorf("record %s has %d dimensions, store configured for %d: %w",
			rec.EntityID, len(rec.Vector), expected, ErrDimensionMismatch)
	}
	return nil
}
