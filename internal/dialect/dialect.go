// Package dialect defines the relational storage dialect contract used by
// internal/sqlstore: parameterised statements, a transaction opener that
// may legitimately return "no explicit transaction", and a statement
// builder that chains disposable resources released in LIFO order.
//
// This is the Go realization of spec.md §4.5/§9's "disposable resource
// chain" note, generalized from the teacher's repeated
// defer rows.Close() / defer tx.Rollback() pairing in internal/store into a
// reusable stack so a dialect can describe arbitrarily many buffers/readers
// per statement without every call site re-deriving the release order.
package dialect

import (
	"context"
	"database/sql"
)

// Operation identifies one parameterised statement a Dialect must supply.
type Operation string

const (
	OpInsertCommit             Operation = "insert_commit"
	OpSelectCommitByKey        Operation = "select_commit_by_key"
	OpSelectFromRevision       Operation = "select_from_revision"
	OpSelectFromStamp          Operation = "select_from_stamp"
	OpSelectUndispatched       Operation = "select_undispatched"
	OpMarkDispatched           Operation = "mark_dispatched"
	OpInsertSnapshot           Operation = "insert_snapshot"
	OpSelectSnapshot           Operation = "select_snapshot"
	OpInsertStreamHeadIfAbsent Operation = "insert_stream_head_if_absent"
	OpUpdateStreamHeadRevision Operation = "update_stream_head_revision"
	OpUpdateStreamHeadSnapshot Operation = "update_stream_head_snapshot"
	OpSelectStreamsToSnap      Operation = "select_streams_to_snapshot"
)

// Tx abstracts a backend transaction. A dialect that opts out of ambient
// transactions (per spec.md §5) returns a Tx whose Commit/Rollback are
// no-ops and whose Queryer/Execer delegate straight to the connection.
type Tx interface {
	Execer
	Queryer
	Commit() error
	Rollback() error
}

// Execer and Queryer mirror the subset of *sql.DB / *sql.Tx that statements
// need, so a StatementBuilder can be handed either interchangeably.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect is the contract each relational backend supplies.
type Dialect interface {
	// Name identifies the dialect for logging/diagnostics.
	Name() string

	// SchemaStatement returns the idempotent DDL that creates every table
	// and index required by spec.md §6.
	SchemaStatement() string

	// Statement returns the parameterised SQL for op.
	Statement(op Operation) string

	// Placeholder returns the named/positional placeholder for the nth
	// (1-based) parameter of a statement, e.g. "?" for SQLite, "$1" for
	// Postgres.
	Placeholder(n int) string

	// BeginTx opens a transaction scoped to one operation, or returns a
	// no-explicit-transaction Tx if the dialect/backend prefers to run
	// bare statements (spec.md §5: ambient transactions are suppressed).
	BeginTx(ctx context.Context, db *sql.DB) (Tx, error)

	// IsUniqueViolation reports whether err is a unique-constraint
	// violation on the given constraint name (backend-specific encoding).
	IsUniqueViolation(err error, constraint string) bool

	// NewStatementBuilder associates conn and an optional tx (nil means
	// "run bare statements directly against conn") with a fresh disposable
	// resource stack for one call's worth of statements.
	NewStatementBuilder(conn *sql.DB, tx Tx) *StatementBuilder
}

// Resource is anything a StatementBuilder must release on Close.
type Resource interface {
	Close() error
}

// StatementBuilder associates a connection, an optional transaction, and a
// LIFO stack of disposable resources (parameter buffers, open *sql.Rows) so
// that one Close() call releases everything acquired for a statement in
// reverse acquisition order, independently and best-effort.
type StatementBuilder struct {
	DB        *sql.DB
	Tx        Tx
	resources []Resource
}

// NewStatementBuilder is the shared constructor backing every concrete
// Dialect's NewStatementBuilder method: db and an optional tx (nil means
// "run bare statements directly against db").
func NewStatementBuilder(db *sql.DB, tx Tx) *StatementBuilder {
	return &StatementBuilder{DB: db, Tx: tx}
}

// Track registers r to be released on Close, after anything registered
// after it (LIFO).
func (b *StatementBuilder) Track(r Resource) {
	b.resources = append(b.resources, r)
}

// Exec runs query via the transaction if one is open, else directly
// against the connection.
func (b *StatementBuilder) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if b.Tx != nil {
		return b.Tx.ExecContext(ctx, query, args...)
	}
	return b.DB.ExecContext(ctx, query, args...)
}

// Query runs query via the transaction if one is open, else directly
// against the connection, tracking the returned *sql.Rows for release.
func (b *StatementBuilder) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	var err error
	if b.Tx != nil {
		rows, err = b.Tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = b.DB.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	b.Track(rowsResource{rows})
	return rows, nil
}

// QueryRow runs query via the transaction if one is open, else directly
// against the connection.
func (b *StatementBuilder) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	if b.Tx != nil {
		return b.Tx.QueryRowContext(ctx, query, args...)
	}
	return b.DB.QueryRowContext(ctx, query, args...)
}

// Close releases every tracked resource in LIFO order, then the
// transaction (if any), best-effort and independent: one resource's
// release error never prevents the next from being attempted.
func (b *StatementBuilder) Close() error {
	var first error
	for i := len(b.resources) - 1; i >= 0; i-- {
		if err := b.resources[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	b.resources = nil
	if b.Tx != nil {
		if err := b.Tx.Rollback(); err != nil && err != sql.ErrTxDone && first == nil {
			first = err
		}
	}
	return first
}

type rowsResource struct{ rows *sql.Rows }

func (r rowsResource) Close() error { return r.rows.Close() }
