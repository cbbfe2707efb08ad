// Package postgres is a second relational dialect.Dialect implementation,
// proving the abstraction in internal/dialect is derivable across
// substrates and not invented for SQLite alone. It is grounded on the
// pack's lib/pq-based event store example (go-eventstore/eventstore.go):
// same $N placeholders, same pq.Error.Code "23505" unique-violation check.
//
// Experimental: exercised by dialect-shape tests only (no live Postgres in
// this module's test suite); internal/sqlstore defaults to sqlite.Dialect.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/roach88/eventstore/internal/dialect"
)

const schema = `
CREATE TABLE IF NOT EXISTS commits (
	seq_no                    BIGSERIAL PRIMARY KEY,
	stream_id                 UUID NOT NULL,
	commit_id                 UUID NOT NULL,
	commit_sequence           INTEGER NOT NULL,
	starting_stream_revision  INTEGER NOT NULL,
	stream_revision           INTEGER NOT NULL,
	commit_stamp              TIMESTAMPTZ NOT NULL,
	headers                   BYTEA NOT NULL,
	payload                   BYTEA NOT NULL,
	dispatched                BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (stream_id, commit_sequence),
	UNIQUE (stream_id, stream_revision),
	UNIQUE (commit_id)
);
CREATE INDEX IF NOT EXISTS idx_commits_stamp ON commits(commit_stamp);
CREATE INDEX IF NOT EXISTS idx_commits_dispatched ON commits(dispatched, commit_stamp);
CREATE INDEX IF NOT EXISTS idx_commits_revision_window ON commits(stream_id, starting_stream_revision, stream_revision);

CREATE TABLE IF NOT EXISTS snapshots (
	stream_id       UUID NOT NULL,
	stream_revision INTEGER NOT NULL,
	payload         BYTEA NOT NULL,
	UNIQUE (stream_id, stream_revision)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_revision_desc ON snapshots(stream_id, stream_revision DESC);

CREATE TABLE IF NOT EXISTS stream_heads (
	stream_id         UUID PRIMARY KEY,
	head_revision     INTEGER NOT NULL,
	snapshot_revision INTEGER NOT NULL DEFAULT 0
);
`

var statements = map[dialect.Operation]string{
	dialect.OpInsertCommit: `
		INSERT INTO commits
			(stream_id, commit_id, commit_sequence, starting_stream_revision, stream_revision, commit_stamp, headers, payload, dispatched)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
	`,
	dialect.OpSelectCommitByKey: `
		SELECT stream_id, commit_id, commit_sequence, starting_stream_revision, stream_revision, commit_stamp, headers, payload, dispatched
		FROM commits
		WHERE stream_id = $1 AND commit_sequence = $2
	`,
	dialect.OpSelectFromRevision: `
		SELECT stream_id, commit_id, commit_sequence, starting_stream_revision, stream_revision, commit_stamp, headers, payload, dispatched
		FROM commits
		WHERE stream_id = $1 AND starting_stream_revision <= $2 AND stream_revision >= $3
		ORDER BY starting_stream_revision ASC
	`,
	dialect.OpSelectFromStamp: `
		SELECT stream_id, commit_id, commit_sequence, starting_stream_revision, stream_revision, commit_stamp, headers, payload, dispatched
		FROM commits
		WHERE commit_stamp >= $1
		ORDER BY commit_stamp ASC, seq_no ASC
	`,
	dialect.OpSelectUndispatched: `
		SELECT stream_id, commit_id, commit_sequence, starting_stream_revision, stream_revision, commit_stamp, headers, payload, dispatched
		FROM commits
		WHERE dispatched = FALSE
		ORDER BY commit_stamp ASC, seq_no ASC
	`,
	dialect.OpMarkDispatched: `
		UPDATE commits SET dispatched = TRUE WHERE stream_id = $1 AND commit_id = $2
	`,
	dialect.OpInsertSnapshot: `
		INSERT INTO snapshots (stream_id, stream_revision, payload) VALUES ($1, $2, $3)
	`,
	dialect.OpSelectSnapshot: `
		SELECT stream_id, stream_revision, payload
		FROM snapshots
		WHERE stream_id = $1 AND stream_revision <= $2
		ORDER BY stream_revision DESC
		LIMIT 1
	`,
	dialect.OpInsertStreamHeadIfAbsent: `
		INSERT INTO stream_heads (stream_id, head_revision, snapshot_revision)
		VALUES ($1, $2, 0)
		ON CONFLICT (stream_id) DO NOTHING
	`,
	dialect.OpUpdateStreamHeadRevision: `
		UPDATE stream_heads SET head_revision = $1 WHERE stream_id = $2
	`,
	dialect.OpUpdateStreamHeadSnapshot: `
		UPDATE stream_heads SET snapshot_revision = $1 WHERE stream_id = $2
	`,
	dialect.OpSelectStreamsToSnap: `
		SELECT stream_id, head_revision, snapshot_revision
		FROM stream_heads
		WHERE (head_revision - snapshot_revision) >= $1
	`,
}

// Dialect implements dialect.Dialect for PostgreSQL.
type Dialect struct{}

// New constructs the Postgres dialect.
func New() Dialect { return Dialect{} }

func (Dialect) Name() string { return "postgres" }

func (Dialect) SchemaStatement() string { return schema }

func (Dialect) Statement(op dialect.Operation) string { return statements[op] }

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// BeginTx opts out of ambient transactions, same as the SQLite dialect: a
// long-running caller transaction must never enlist this storage.
func (Dialect) BeginTx(_ context.Context, db *sql.DB) (dialect.Tx, error) {
	return noTx{db}, nil
}

// IsUniqueViolation checks pq.Error.Code == "23505", as the pack's
// go-eventstore example does when catching the optimistic-concurrency race.
func (Dialect) IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	if pqErr.Code != "23505" {
		return false
	}
	if constraint == "" {
		return true
	}
	return pqErr.Constraint == constraint
}

// NewStatementBuilder associates conn/tx with a fresh disposable resource
// stack; see internal/dialect.StatementBuilder.
func (Dialect) NewStatementBuilder(conn *sql.DB, tx dialect.Tx) *dialect.StatementBuilder {
	return dialect.NewStatementBuilder(conn, tx)
}

type noTx struct{ db *sql.DB }

func (t noTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.db.ExecContext(ctx, query, args...)
}

func (t noTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.db.QueryContext(ctx, query, args...)
}

func (t noTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.db.QueryRowContext(ctx, query, args...)
}

func (noTx) Commit() error   { return nil }
func (noTx) Rollback() error { return nil }
