package event

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind categorizes a persistence error so callers can branch on it without
// string matching.
type Kind string

const (
	// KindDuplicateCommit means a commit with the same key and the same
	// CommitID already exists. Callers should treat the retry as successful.
	KindDuplicateCommit Kind = "DUPLICATE_COMMIT"

	// KindConcurrency means a commit at the same (StreamID, CommitSequence)
	// but a different CommitID already exists. Callers must re-read the
	// stream and rebase.
	KindConcurrency Kind = "CONCURRENCY"

	// KindStorage is any backend/transport error not otherwise classified.
	KindStorage Kind = "STORAGE"

	// KindArgumentNull means a required argument was nil. Commit.Validate
	// does not use it: a zero-value identifier is KindInvalidCommit.
	KindArgumentNull Kind = "ARGUMENT_NULL"

	// KindInvalidCommit means a commit's fields violate a structural
	// precondition (zero-value identifier, impossible revisions, empty
	// event list).
	KindInvalidCommit Kind = "INVALID_COMMIT"
)

// Error is the persistence core's uniform error type. It wraps an
// underlying cause (if any) and carries enough context for diagnostics.
type Error struct {
	Kind     Kind
	Message  string
	StreamID uuid.UUID
	CommitID uuid.UUID
	Cause    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StreamID != uuid.Nil {
		return fmt.Sprintf("%s: %s (stream=%s)", e.Kind, e.Message, e.StreamID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf extracts the Kind from err, walking wrapped errors. Returns
// ("", false) if err is not (or does not wrap) an *Error.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind.
func Is(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}

func newInvalidCommit(msg string) *Error {
	return &Error{Kind: KindInvalidCommit, Message: msg}
}

// NewDuplicateCommit builds a DuplicateCommit error for the given key.
func NewDuplicateCommit(streamID, commitID uuid.UUID) *Error {
	return &Error{
		Kind:     KindDuplicateCommit,
		Message:  "commit already exists with the same commit id; treat as idempotent retry",
		StreamID: streamID,
		CommitID: commitID,
	}
}

// NewConcurrency builds a Concurrency error for the given key.
func NewConcurrency(streamID, commitID uuid.UUID) *Error {
	return &Error{
		Kind:     KindConcurrency,
		Message:  "another commit already occupies this stream revision",
		StreamID: streamID,
		CommitID: commitID,
	}
}

// NewStorage wraps a backend error as Storage.
func NewStorage(cause error) *Error {
	return &Error{
		Kind:    KindStorage,
		Message: "storage operation failed",
		Cause:   cause,
	}
}

// NewArgumentNull builds an ArgumentNull error.
func NewArgumentNull(what string) *Error {
	return &Error{
		Kind:    KindArgumentNull,
		Message: fmt.Sprintf("%s must not be nil/zero", what),
	}
}
