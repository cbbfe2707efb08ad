package cli

import (
	"context"
	"fmt"

	"github.com/roach88/eventstore/internal/config"
	"github.com/roach88/eventstore/internal/dialect/postgres"
	sqlitedialect "github.com/roach88/eventstore/internal/dialect/sqlite"
	"github.com/roach88/eventstore/internal/docstore"
	"github.com/roach88/eventstore/internal/persistence"
	"github.com/roach88/eventstore/internal/sqlstore"
)

// openEngine constructs and initializes the persistence.Engine named by
// cfg.Backend. The caller owns the returned engine and must Close it.
func openEngine(ctx context.Context, cfg config.Config) (persistence.Engine, error) {
	var engine persistence.Engine

	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := sqlstore.Open(cfg.DSN, sqlstore.WithDialect(sqlitedialect.New()))
		if err != nil {
			return nil, fmt.Errorf("open sqlite backend: %w", err)
		}
		engine = store
	case config.BackendPostgres:
		store, err := sqlstore.Open(cfg.DSN, sqlstore.WithDialect(postgres.New()))
		if err != nil {
			return nil, fmt.Errorf("open postgres backend: %w", err)
		}
		engine = store
	case config.BackendDocument:
		engine = docstore.New()
	case config.BackendMongo:
		m, err := docstore.DialMongo(ctx, cfg.DSN, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("dial mongo backend: %w", err)
		}
		engine = m
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if err := engine.Initialize(ctx); err != nil {
		engine.Close()
		return nil, fmt.Errorf("initialize backend: %w", err)
	}
	return engine, nil
}
