package vector

import "context"

// Store persists one embedding record per indexed entity and answers
// nearest-neighbor queries. The entity indexer owns all writes; the query
// engine only reads.
type Store interface {
	// EnsureIndex idempotently prepares the backing index for vectors of
	// the given dimensionality. Safe to call on every startup. A missing
	// native vector-search capability does not fail startup; the store
	// enters fallback mode instead. A dimensionality conflict with
	// previously indexed data returns ErrDimensionMismatch, which is
	// fatal.
	EnsureIndex(ctx context.Context, dimensions int) error

	// Upsert inserts or replaces the record for its entity ID.
	// Concurrent upserts to the same ID resolve last-write-wins.
	Upsert(ctx context.Context, rec Record) error

	// ReplaceOwned atomically deletes every record whose entity ID or
	// owner ID equals ownerID and inserts recs. It is the primitive
	// behind idempotent re-indexing (stale tool vectors cannot survive)
	// and cascade removal (recs == nil).
	ReplaceOwned(ctx context.Context, ownerID string, recs []Record) error

	// Remove deletes the record for entityID. Removing a missing ID is a
	// no-op.
	Remove(ctx context.Context, entityID string) error

	// Query returns up to k records nearest to vec by cosine similarity,
	// ordered descending with ties broken by entity ID ascending.
	Query(ctx context.Context, vec []float32, k int, f Filter) ([]Match, error)

	// Scan returns all records admitted by the filter. It backs the
	// keyword-only degraded query path, which needs metadata but no
	// vector math.
	Scan(ctx context.Context, f Filter) ([]Record, error)

	// Mode reports whether queries are currently served natively or by
	// in-process cosine ranking.
	Mode() Mode

	// Close releases store resources
	Close() error
}
