// Package sqlite implements the relational storage dialect (internal/dialect)
// for SQLite, grounded on the teacher's internal/store package: WAL mode,
// a single-writer connection pool, and ON CONFLICT DO NOTHING for
// idempotent inserts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/roach88/eventstore/internal/dialect"
)

func asSqliteErr(err error, target *sqlite3.Error) bool {
	return errors.As(err, target)
}

const schema = `
CREATE TABLE IF NOT EXISTS commits (
	seq_no                    INTEGER PRIMARY KEY AUTOINCREMENT,
	stream_id                 TEXT NOT NULL,
	commit_id                 TEXT NOT NULL,
	commit_sequence           INTEGER NOT NULL,
	starting_stream_revision  INTEGER NOT NULL,
	stream_revision           INTEGER NOT NULL,
	commit_stamp              TEXT NOT NULL,
	headers                   BLOB NOT NULL,
	payload                   BLOB NOT NULL,
	dispatched                INTEGER NOT NULL DEFAULT 0,
	UNIQUE (stream_id, commit_sequence),
	UNIQUE (stream_id, stream_revision),
	UNIQUE (commit_id)
);
CREATE INDEX IF NOT EXISTS idx_commits_stamp ON commits(commit_stamp);
CREATE INDEX IF NOT EXISTS idx_commits_dispatched ON commits(dispatched, commit_stamp);
CREATE INDEX IF NOT EXISTS idx_commits_revision_window ON commits(stream_id, starting_stream_revision, stream_revision);

CREATE TABLE IF NOT EXISTS snapshots (
	stream_id       TEXT NOT NULL,
	stream_revision INTEGER NOT NULL,
	payload         BLOB NOT NULL,
	UNIQUE (stream_id, stream_revision)
);
CREATE INDEX IF NOT EXISTS idx_snapshots_revision_desc ON snapshots(stream_id, stream_revision DESC);

CREATE TABLE IF NOT EXISTS stream_heads (
	stream_id         TEXT PRIMARY KEY,
	head_revision     INTEGER NOT NULL,
	snapshot_revision INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_stream_heads_age ON stream_heads((head_revision - snapshot_revision));
`

var statements = map[dialect.Operation]string{
	dialect.OpInsertCommit: `
		INSERT INTO commits
			(stream_id, commit_id, commit_sequence, starting_stream_revision, stream_revision, commit_stamp, headers, payload, dispatched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
	`,
	dialect.OpSelectCommitByKey: `
		SELECT stream_id, commit_id, commit_sequence, starting_stream_revision, stream_revision, commit_stamp, headers, payload, dispatched
		FROM commits
		WHERE stream_id = ? AND commit_sequence = ?
	`,
	dialect.OpSelectFromRevision: `
		SELECT stream_id, commit_id, commit_sequence, starting_stream_revision, stream_revision, commit_stamp, headers, payload, dispatched
		FROM commits
		WHERE stream_id = ? AND starting_stream_revision <= ? AND stream_revision >= ?
		ORDER BY starting_stream_revision ASC
	`,
	dialect.OpSelectFromStamp: `
		SELECT stream_id, commit_id, commit_sequence, starting_stream_revision, stream_revision, commit_stamp, headers, payload, dispatched
		FROM commits
		WHERE commit_stamp >= ?
		ORDER BY commit_stamp ASC, seq_no ASC
	`,
	dialect.OpSelectUndispatched: `
		SELECT stream_id, commit_id, commit_sequence, starting_stream_revision, stream_revision, commit_stamp, headers, payload, dispatched
		FROM commits
		WHERE dispatched = 0
		ORDER BY commit_stamp ASC, seq_no ASC
	`,
	dialect.OpMarkDispatched: `
		UPDATE commits SET dispatched = 1 WHERE stream_id = ? AND commit_id = ?
	`,
	dialect.OpInsertSnapshot: `
		INSERT INTO snapshots (stream_id, stream_revision, payload) VALUES (?, ?, ?)
	`,
	dialect.OpSelectSnapshot: `
		SELECT stream_id, stream_revision, payload
		FROM snapshots
		WHERE stream_id = ? AND stream_revision <= ?
		ORDER BY stream_revision DESC
		LIMIT 1
	`,
	dialect.OpInsertStreamHeadIfAbsent: `
		INSERT INTO stream_heads (stream_id, head_revision, snapshot_revision)
		VALUES (?, ?, 0)
		ON CONFLICT(stream_id) DO NOTHING
	`,
	dialect.OpUpdateStreamHeadRevision: `
		UPDATE stream_heads SET head_revision = ? WHERE stream_id = ?
	`,
	dialect.OpUpdateStreamHeadSnapshot: `
		UPDATE stream_heads SET snapshot_revision = ? WHERE stream_id = ?
	`,
	dialect.OpSelectStreamsToSnap: `
		SELECT stream_id, head_revision, snapshot_revision
		FROM stream_heads
		WHERE (head_revision - snapshot_revision) >= ?
	`,
}

// Dialect implements dialect.Dialect for SQLite.
type Dialect struct{}

// New constructs the SQLite dialect.
func New() Dialect { return Dialect{} }

func (Dialect) Name() string { return "sqlite" }

func (Dialect) SchemaStatement() string { return schema }

func (Dialect) Statement(op dialect.Operation) string { return statements[op] }

func (Dialect) Placeholder(int) string { return "?" }

// BeginTx returns a no-explicit-transaction Tx: per spec.md §5 the engine
// explicitly opts out of ambient transactions, and SQLite's single-writer
// connection pool (db.SetMaxOpenConns(1), as the teacher configures it)
// already serializes writers without needing BEGIN/COMMIT around every
// statement.
func (Dialect) BeginTx(_ context.Context, db *sql.DB) (dialect.Tx, error) {
	return noTx{db}, nil
}

// IsUniqueViolation reports whether err is a SQLite UNIQUE constraint
// violation, optionally on a specific constraint/column substring.
func (Dialect) IsUniqueViolation(err error, constraint string) bool {
	var sqliteErr sqlite3.Error
	if !asSqliteErr(err, &sqliteErr) {
		return false
	}
	if sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return false
	}
	if constraint == "" {
		return true
	}
	return strings.Contains(err.Error(), constraint)
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
