package sqlite

import (
	"strings"
	"testing"

	"github.com/roach88/eventstore/internal/dialect"
)

var allOps = []dialect.Operation{
	dialect.OpInsertCommit,
	dialect.OpSelectCommitByKey,
	dialect.OpSelectFromRevision,
	dialect.OpSelectFromStamp,
	dialect.OpSelectUndispatched,
	dialect.OpMarkDispatched,
	dialect.OpInsertSnapshot,
	dialect.OpSelectSnapshot,
	dialect.OpInsertStreamHeadIfAbsent,
	dialect.OpUpdateStreamHeadRevision,
	dialect.OpUpdateStreamHeadSnapshot,
	dialect.OpSelectStreamsToSnap,
}

func TestDialect_Name(t *testing.T) {
	if got := New().Name(); got != "sqlite" {
		t.Fatalf("Name() = %q, want \"sqlite\"", got)
	}
}

func TestDialect_SchemaStatement_NonEmpty(t *testing.T) {
	schema := New().SchemaStatement()
	if strings.TrimSpace(schema) == "" {
		t.Fatal("SchemaStatement() returned empty DDL")
	}
	if !strings.Contains(schema, "CREATE TABLE") {
		t.Errorf("SchemaStatement() = %q, want it to contain CREATE TABLE", schema)
	}
}

func TestDialect_Statement_EveryOpReturnsSQL(t *testing.T) {
	d := New()
	for _, op := range allOps {
		stmt := d.Statement(op)
		if strings.TrimSpace(stmt) == "" {
			t.Errorf("Statement(%q) returned empty SQL", op)
		}
	}
}

func TestDialect_NewStatementBuilder_ClosesCleanly(t *testing.T) {
	b := New().NewStatementBuilder(nil, nil)
	if b == nil {
		t.Fatal("NewStatementBuilder() returned nil")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
}

func TestDialect_Placeholder_PositionalQuestionMark(t *testing.T) {
	d := New()
	if got := d.Placeholder(1); got != "?" {
		t.Errorf("Placeholder(1) = %q, want \"?\"", got)
	}
	if got := d.Placeholder(7); got != "?" {
		t.Errorf("Placeholder(7) = %q, want \"?\"", got)
	}
}
