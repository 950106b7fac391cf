package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mcp-mesh/gateway-registry/pkg/observability"
)

// PostgresStore persists records in Postgres. Vectors live in a real[]
// column; when the pgvector extension is installed, nearest-neighbor
// queries run natively via the <=> cosine operator over an expression
// index, otherwise (or after a native failure) the store loads the
// filtered rows and ranks them in-process. The external contract is
// identical in both modes.
type PostgresStore struct {
	db     *sqlx.DB
	schema string
	logger observability.Logger

	mu             sync.Mutex
	mode           Mode
	dimensions     int
	fallbackLogged bool
}

// NewPostgresStore creates a store on the given database connection. Call
// EnsureIndex before use.
func NewPostgresStore(db *sqlx.DB, schema string, logger observability.Logger) *PostgresStore {
	if schema == "" {
		schema = "registry"
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &PostgresStore{
		db:     db,
		schema: schema,
		logger: logger,
		mode:   ModeFallback,
	}
}

func (s *PostgresStore) table() string     { return s.schema + ".search_index" }
func (s *PostgresStore) metaTable() string { return s.schema + ".search_index_meta" }

// EnsureIndex implements Store.EnsureIndex. A missing pgvector extension
// is not fatal: the store stays in fallback mode and logs a warning. A
// database that is unreachable, or a dimensionality conflict with
// previously indexed data, is an error.
func (s *PostgresStore) EnsureIndex(ctx context.Context, dimensions int) error {
	var extExists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`,
	).Scan(&extExists)
	if err != nil {
		return fmt.Errorf("failed to probe pgvector extension: %v: %w", err, ErrBackend)
	}

	ddl := fmt.Sprintf(`
		CREATE SCHEMA IF NOT EXISTS %s;

		CREATE TABLE IF NOT EXISTS %s (
			entity_id    TEXT PRIMARY KEY,
			entity_type  TEXT NOT NULL,
			owner_id     TEXT NOT NULL DEFAULT '',
			display_name TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			tags         TEXT[] NOT NULL DEFAULT '{}',
			embedding    REAL[] NOT NULL,
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_search_index_entity_type ON %s (entity_type);
		CREATE INDEX IF NOT EXISTS idx_search_index_owner_id ON %s (owner_id);

		CREATE TABLE IF NOT EXISTS %s (
			dimensions INTEGER NOT NULL
		);
	`, s.schema, s.table(), s.table(), s.table(), s.metaTable())

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure search index tables: %v: %w", err, ErrBackend)
	}

	var stored int
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT dimensions FROM %s LIMIT 1`, s.metaTable())).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %s (dimensions) VALUES ($1)`, s.metaTable()), dimensions); err != nil {
			return fmt.Errorf("failed to record index dimensions: %v: %w", err, ErrBackend)
		}
	case err != nil:
		return fmt.Errorf("failed to read index dimensions: %v: %w", err, ErrBackend)
	case stored != dimensions:
		return fmt.Errorf("index holds %d-dimensional vectors, configured %d: %w",
			stored, dimensions, ErrDimensionMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimensions = dimensions

	if !extExists {
		s.mode = ModeFallback
		s.logger.Warn("pgvector extension not installed; serving queries in fallback mode", map[string]interface{}{
			"schema": s.schema,
		})
		return nil
	}

	annDDL := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_search_index_embedding
		ON %s USING ivfflat ((embedding::vector(%d)) vector_cosine_ops)
		WITH (lists = 100)
	`, s.table(), dimensions)
	if _, err := s.db.ExecContext(ctx, annDDL); err != nil {
		// Native search still works through a sequential scan of the cast
		// expression; only the ANN index is missing.
		s.logger.Warn("Failed to create ivfflat index; native queries will not use ANN", map[string]interface{}{
			"error": err.Error(),
		})
	}

	s.mode = ModeNative
	s.fallbackLogged = false
	return nil
}

// Upsert implements Store.Upsert. ON CONFLICT gives last-write-wins for
// concurrent upserts to the same entity ID.
func (s *PostgresStore) Upsert(ctx context.Context, rec Record) error {
	if err := s.checkDimensions(rec); err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (entity_id, entity_type, owner_id, display_name, description, tags, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (entity_id) DO UPDATE SET
			entity_type = EXCLUDED.entity_type,
			owner_id = EXCLUDED.owner_id,
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			tags = EXCLUDED.tags,
			embedding = EXCLUDED.embedding,
			updated_at = now()
	`, s.table())

	if _, err := s.db.ExecContext(ctx, query,
		rec.EntityID, rec.Meta.EntityType, rec.Meta.OwnerID,
		rec.Meta.Name, rec.Meta.Description,
		pq.Array(rec.Meta.Tags), pq.Float32Array(rec.Vector),
	); err != nil {
		return fmt.Errorf("failed to upsert vector for %s: %v: %w", rec.EntityID, err, ErrBackend)
	}
	return nil
}

// ReplaceOwned implements Store.ReplaceOwned in one transaction
func (s *PostgresStore) ReplaceOwned(ctx context.Context, ownerID string, recs []Record) error {
	for _, rec := range recs {
		if err := s.checkDimensions(rec); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v: %w", err, ErrBackend)
	}
	defer func() { _ = tx.Rollback() }()

	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE entity_id = $1 OR owner_id = $1`, s.table())
	if _, err := tx.ExecContext(ctx, deleteQuery, ownerID); err != nil {
		return fmt.Errorf("failed to delete records owned by %s: %v: %w", ownerID, err, ErrBackend)
	}

	insertQuery := fmt.Sprintf(`
		INSERT INTO %s (entity_id, entity_type, owner_id, display_name, description, tags, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`, s.table())
	for _, rec := range recs {
		if _, err := tx.ExecContext(ctx, insertQuery,
			rec.EntityID, rec.Meta.EntityType, rec.Meta.OwnerID,
			rec.Meta.Name, rec.Meta.Description,
			pq.Array(rec.Meta.Tags), pq.Float32Array(rec.Vector),
		); err != nil {
			return fmt.Errorf("failed to insert vector for %s: %v: %w", rec.EntityID, err, ErrBackend)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit replace for %s: %v: %w", ownerID, err, ErrBackend)
	}
	return nil
}

// Remove implements Store.Remove
func (s *PostgresStore) Remove(ctx context.Context, entityID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE entity_id = $1`, s.table())
	if _, err := s.db.ExecContext(ctx, query, entityID); err != nil {
		return fmt.Errorf("failed to remove vector for %s: %v: %w", entityID, err, ErrBackend)
	}
	return nil
}

// Query implements Store.Query. In native mode the database computes
// cosine similarity; any native failure switches the store to fallback
// mode for subsequent queries (until the next EnsureIndex) and serves the
// current query by in-process ranking.
func (s *PostgresStore) Query(ctx context.Context, vec []float32, k int, f Filter) ([]Match, error) {
	if s.Mode() == ModeNative {
		matches, err := s.queryNative(ctx, vec, k, f)
		if err == nil {
			return matches, nil
		}
		s.switchToFallback(err)
	}
	return s.queryFallback(ctx, vec, k, f)
}

func (s *PostgresStore) queryNative(ctx context.Context, vec []float32, k int, f Filter) ([]Match, error) {
	dims := s.currentDimensions()

	var sb strings.Builder
	fmt.Fprintf(&sb, `
		SELECT entity_id, entity_type, owner_id, display_name, description, tags, embedding,
			1 - (embedding::vector(%d) <=> $1::vector(%d)) AS similarity
		FROM %s`, dims, dims, s.table())

	args := []interface{}{vectorLiteral(vec)}
	if len(f.EntityTypes) > 0 {
		sb.WriteString(` WHERE entity_type = ANY($2)`)
		args = append(args, pq.Array(f.EntityTypes))
	}
	fmt.Fprintf(&sb, ` ORDER BY similarity DESC, entity_id ASC LIMIT $%d`, len(args)+1)
	args = append(args, k)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("native vector query failed: %v: %w", err, ErrBackend)
	}
	defer func() { _ = rows.Close() }()

	var matches []Match
	for rows.Next() {
		var (
			rec        Record
			tags       pq.StringArray
			embedding  pq.Float32Array
			similarity float64
		)
		if err := rows.Scan(&rec.EntityID, &rec.Meta.EntityType, &rec.Meta.OwnerID,
			&rec.Meta.Name, &rec.Meta.Description, &tags, &embedding, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan vector match: %v: %w", err, ErrBackend)
		}
		rec.Meta.Tags = tags
		rec.Vector = embedding
		matches = append(matches, Match{Record: rec, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vector matches: %v: %w", err, ErrBackend)
	}
	return matches, nil
}

func (s *PostgresStore) queryFallback(ctx context.Context, vec []float32, k int, f Filter) ([]Match, error) {
	recs, err := s.Scan(ctx, f)
	if err != nil {
		return nil, err
	}
	return rankBruteForce(recs, vec, k, f), nil
}

// Scan implements Store.Scan
func (s *PostgresStore) Scan(ctx context.Context, f Filter) ([]Record, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT entity_id, entity_type, owner_id, display_name, description, tags, embedding FROM %s`, s.table())

	var args []interface{}
	if len(f.EntityTypes) > 0 {
		sb.WriteString(` WHERE entity_type = ANY($1)`)
		args = append(args, pq.Array(f.EntityTypes))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan search index: %v: %w", err, ErrBackend)
	}
	defer func() { _ = rows.Close() }()

	var recs []Record
	for rows.Next() {
		var (
			rec       Record
			tags      pq.StringArray
			embedding pq.Float32Array
		)
		if err := rows.Scan(&rec.EntityID, &rec.Meta.EntityType, &rec.Meta.OwnerID,
			&rec.Meta.Name, &rec.Meta.Description, &tags, &embedding); err != nil {
			return nil, fmt.Errorf("failed to scan index record: %v: %w", err, ErrBackend)
		}
		rec.Meta.Tags = tags
		rec.Vector = embedding
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating index records: %v: %w", err, ErrBackend)
	}
	return recs, nil
}

// Mode implements Store.Mode
func (s *PostgresStore) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Close implements Store.Close
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) switchToFallback(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == ModeFallback {
		return
	}
	s.mode = ModeFallback
	if !s.fallbackLogged {
		s.fallbackLogged = true
		s.logger.Warn("Native vector search failed; switching to in-process fallback until next index ensure", map[string]interface{}{
			"error": cause.Error(),
		})
	}
}

func (s *PostgresStore) currentDimensions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dimensions
}

func (s *PostgresStore) checkDimensions(rec Record) error {
	dims := s.currentDimensions()
	if dims == 0 {
		return nil
	}
	return validateDimensions(dims, rec)
}

// vectorLiteral renders a vector in pgvector text format: "[v1,v2,...]"
func vectorLiteral(vec []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
