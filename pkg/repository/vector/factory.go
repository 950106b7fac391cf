package vector

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	// Postgres driver, registered for sqlx.Connect
	_ "github.com/lib/pq"

	"github.com/mcp-mesh/gateway-registry/pkg/common/config"
	"github.com/mcp-mesh/gateway-registry/pkg/observability"
)

// NewStore builds the vector index store selected by configuration. All
// call sites depend only on the Store interface; the backend choice is
// made exactly once here.
func NewStore(cfg config.VectorStoreConfig, logger observability.Logger) (Store, error) {
	switch cfg.Backend {
	case "postgres":
		db, err := sqlx.Connect("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return NewPostgresStore(db, cfg.Schema, logger), nil
	case "file":
		return NewFileStore(cfg.Path, logger), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.Backend)
	}
}
