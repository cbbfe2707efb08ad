// Package sqlstore implements the persistence.Engine contract over a
// relational backend (internal/dialect), grounded on the teacher's
// internal/store package: database/sql, WAL-mode SQLite by default, a
// single-writer connection pool, and ON CONFLICT-based idempotency.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/eventstore/internal/dialect"
	sqlitedialect "github.com/roach88/eventstore/internal/dialect/sqlite"
	"github.com/roach88/eventstore/internal/persistence"
	"github.com/roach88/eventstore/internal/serializer"
)

// Store is a persistence.Engine backed by a relational database through a
// dialect.Dialect.
type Store struct {
	db         *sql.DB
	dialect    dialect.Dialect
	serializer serializer.Serializer
	heads      *persistence.HeadMaintainer
	tracer     trace.Tracer
}

var _ persistence.Engine = (*Store)(nil)

// Option configures Open.
type Option func(*options)

type options struct {
	dialect    dialect.Dialect
	serializer serializer.Serializer
}

// WithDialect overrides the default SQLite dialect, e.g. with
// internal/dialect/postgres.New() against a Postgres DSN.
func WithDialect(d dialect.Dialect) Option {
	return func(o *options) { o.dialect = d }
}

// WithSerializer overrides the default JSON serializer for headers/events blobs.
func WithSerializer(s serializer.Serializer) Option {
	return func(o *options) { o.serializer = s }
}

// Open opens (or creates) the database at dsn and applies the dialect's
// schema. Safe to call multiple times (Initialize is idempotent).
//
// The default dialect is SQLite; dsn is then a filesystem path (":memory:"
// is valid, as in the teacher's store tests).
func Open(dsn string, opts ...Option) (*Store, error) {
	o := options{dialect: sqlitedialect.New(), serializer: serializer.NewJSON()}
	for _, opt := range opts {
		opt(&o)
	}

	driverName := "sqlite3"
	if o.dialect.Name() != "sqlite" {
		driverName = o.dialect.Name()
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driverName, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}

	if o.dialect.Name() == "sqlite" {
		// SQLite only supports one writer at a time.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applySQLitePragmas(db); err != nil {
			db.Close()
			return nil, err
		}
	}

	s := &Store{db: db, dialect: o.dialect, serializer: o.serializer, tracer: otel.Tracer("eventstore/sqlstore")}
	s.heads = persistence.NewHeadMaintainer(s)
	return s, nil
}

func applySQLitePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("sqlstore: pragma %q: %w", p, err)
		}
	}
	return nil
}

// Initialize runs the dialect's schema statement. Idempotent: every
// statement in a dialect's schema uses IF NOT EXISTS.
func (s *Store) Initialize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.SchemaStatement()); err != nil {
		return fmt.Errorf("sqlstore: initialize: %w", err)
	}
	slog.Info("sqlstore initialized", "dialect", s.dialect.Name())
	return nil
}

// Close stops the head maintainer and releases the connection pool.
// Safe to call once.
func (s *Store) Close() error {
	if s.heads != nil {
		s.heads.Stop()
	}
	return s.db.Close()
}
