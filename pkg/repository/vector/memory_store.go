package vector

import (
	"context"
	"sync"
)

// MemoryStore keeps all records in process memory. It always serves
// queries by exact cosine ranking. Queries snapshot the record set under
// the read lock before scoring, so a concurrent upsert can never be
// observed half-applied mid-scan.
type MemoryStore struct {
	mu         sync.RWMutex
	dimensions int
	records    map[string]Record
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

// EnsureIndex implements Store.EnsureIndex
func (s *MemoryStore) EnsureIndex(ctx context.Context, dimensions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimensions != 0 && s.dimensions != dimensions && len(s.records) > 0 {
		return ErrDimensionMismatch
	}
	s.dimensions = dimensions
	return nil
}

// Upsert implements Store.Upsert
func (s *MemoryStore) Upsert(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimensions != 0 {
		if err := validateDimensions(s.dimensions, rec); err != nil {
			return err
		}
	}
	s.records[rec.EntityID] = rec
	return nil
}

// ReplaceOwned implements Store.ReplaceOwned
func (s *MemoryStore) ReplaceOwned(ctx context.Context, ownerID string, recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimensions != 0 {
		for _, rec := range recs {
			if err := validateDimensions(s.dimensions, rec); err != nil {
				return err
			}
		}
	}

	for id, rec := range s.records {
		if id == ownerID || rec.Meta.OwnerID == ownerID {
			delete(s.records, id)
		}
	}
	for _, rec := range recs {
		s.records[rec.EntityID] = rec
	}
	return nil
}

// Remove implements Store.Remove
func (s *MemoryStore) Remove(ctx context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, entityID)
	return nil
}

// Query implements Store.Query
func (s *MemoryStore) Query(ctx context.Context, vec []float32, k int, f Filter) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rankBruteForce(s.snapshot(), vec, k, f), nil
}

// Scan implements Store.Scan
func (s *MemoryStore) Scan(ctx context.Context, f Filter) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range s.snapshot() {
		if f.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Mode implements Store.Mode. The in-memory store has no native ANN
// capability; it always ranks in-process.
func (s *MemoryStore) Mode() Mode { return ModeFallback }

// Close implements Store.Close
func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored records
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) snapshot() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}
