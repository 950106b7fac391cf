package vector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorePersistsAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	ctx := context.Background()

	s := NewFileStore(path, nil)
	require.NoError(t, s.EnsureIndex(ctx, 2))
	require.NoError(t, s.ReplaceOwned(ctx, "/srv", []Record{
		serverRecord("/srv", "srv", []float32{1, 0}),
		toolRecord("/srv/tool", "/srv", []float32{0, 1}),
	}))
	require.NoError(t, s.Close())

	reopened := NewFileStore(path, nil)
	require.NoError(t, reopened.EnsureIndex(ctx, 2))

	matches, err := reopened.Query(ctx, []float32{1, 0}, 10, Filter{})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "/srv", matches[0].Record.EntityID)
	assert.Equal(t, "srv", matches[0].Record.Meta.Name)
}

func TestFileStoreRejectsDimensionChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	ctx := context.Background()

	s := NewFileStore(path, nil)
	require.NoError(t, s.EnsureIndex(ctx, 2))
	require.NoError(t, s.Upsert(ctx, serverRecord("/srv", "srv", []float32{1, 0})))

	reopened := NewFileStore(path, nil)
	assert.ErrorIs(t, reopened.EnsureIndex(ctx, 3), ErrDimensionMismatch)
}

func TestFileStoreMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	s := NewFileStore(path, nil)
	require.NoError(t, s.EnsureIndex(context.Background(), 2))

	recs, err := s.Scan(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFileStoreCorruptFileFailsEnsure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	s := NewFileStore(path, nil)
	assert.Error(t, s.EnsureIndex(context.Background(), 2))
}

func TestFileStoreRemoveIsPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	ctx := context.Background()

	s := NewFileStore(path, nil)
	require.NoError(t, s.EnsureIndex(ctx, 2))
	require.NoError(t, s.Upsert(ctx, serverRecord("/srv", "srv", []float32{1, 0})))
	require.NoError(t, s.Remove(ctx, "/srv"))

	reopened := NewFileStore(path, nil)
	require.NoError(t, reopened.EnsureIndex(ctx, 2))
	recs, err := reopened.Scan(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}
