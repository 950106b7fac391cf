package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mcp-mesh/gateway-registry/pkg/observability"
)

type fileSnapshot struct {
	Dimensions int      `json:"dimensions"`
	Records    []Record `json:"records"`
}

// FileStore is a MemoryStore that survives restarts by persisting the
// full record set to a JSON file after every mutation. Writes go through
// a temp file plus rename so a crash mid-write never corrupts the index.
// Suitable for single-process file-based deployments; registry-scale
// entity counts keep the rewrite cheap.
type FileStore struct {
	mem    *MemoryStore
	path   string
	logger observability.Logger

	// serializes persist calls so concurrent mutations cannot interleave
	// partial snapshots
	persistMu sync.Mutex
}

// NewFileStore creates a file-backed store persisting to path
func NewFileStore(path string, logger observability.Logger) *FileStore {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &FileStore{
		mem:    NewMemoryStore(),
		path:   path,
		logger: logger,
	}
}

// EnsureIndex loads the persisted snapshot, if any, and validates its
// dimensionality against the configured one.
func (s *FileStore) EnsureIndex(ctx context.Context, dimensions int) error {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.mem.EnsureIndex(ctx, dimensions)
		}
		return fmt.Errorf("failed to read index file %s: %w", s.path, err)
	}

	var snap fileSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return fmt.Errorf("failed to parse index file %s: %w", s.path, err)
	}
	if snap.Dimensions != 0 && snap.Dimensions != dimensions && len(snap.Records) > 0 {
		return fmt.Errorf("index file has %d dimensions, configured %d: %w",
			snap.Dimensions, dimensions, ErrDimensionMismatch)
	}

	if err := s.mem.EnsureIndex(ctx, dimensions); err != nil {
		return err
	}
	for _, rec := range snap.Records {
		if err := s.mem.Upsert(ctx, rec); err != nil {
			return err
		}
	}

	s.logger.Info("Loaded vector index from file", map[string]interface{}{
		"path":    s.path,
		"records": len(snap.Records),
	})
	return nil
}

// Upsert implements Store.Upsert
func (s *FileStore) Upsert(ctx context.Context, rec Record) error {
	if err := s.mem.Upsert(ctx, rec); err != nil {
		return err
	}
	return s.persist()
}

// ReplaceOwned implements Store.ReplaceOwned
func (s *FileStore) ReplaceOwned(ctx context.Context, ownerID string, recs []Record) error {
	if err := s.mem.ReplaceOwned(ctx, ownerID, recs); err != nil {
		return err
	}
	return s.persist()
}

// Remove implements Store.Remove
func (s *FileStore) Remove(ctx context.Context, entityID string) error {
	if err := s.mem.Remove(ctx, entityID); err != nil {
		return err
	}
	return s.persist()
}

// Query implements Store.Query
func (s *FileStore) Query(ctx context.Context, vec []float32, k int, f Filter) ([]Match, error) {
	return s.mem.Query(ctx, vec, k, f)
}

// Scan implements Store.Scan
func (s *FileStore) Scan(ctx context.Context, f Filter) ([]Record, error) {
	return s.mem.Scan(ctx, f)
}

// Mode implements Store.Mode
func (s *FileStore) Mode() Mode { return ModeFallback }

// Close implements Store.Close
func (s *FileStore) Close() error { return nil }

func (s *FileStore) persist() error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	recs, err := s.mem.Scan(context.Background(), Filter{})
	if err != nil {
		return err
	}
	s.mem.mu.RLock()
	dims := s.mem.dimensions
	s.mem.mu.RUnlock()

	payload, err := json.Marshal(fileSnapshot{Dimensions: dims, Records: recs})
	if err != nil {
		return fmt.Errorf("failed to marshal index snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".index-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write index snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp index file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace index file: %w", err)
	}
	return nil
}
