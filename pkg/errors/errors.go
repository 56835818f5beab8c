package errors

import (
	"fmt"

	cerrors "github.com/cockroachdb/errors"
)

// ErrTxnAborted is returned by Commit when TicToc validation detects a
// conflict: a read tuple was overwritten since it was observed, or it is
// locked by another committer and could not be extended. Write-set locking
// never aborts; it retries until every lock is held. The caller must
// discard the transaction and may retry.
var ErrTxnAborted = cerrors.New("transaction aborted: read or write set validation failed")

// DuplicateKeyError is returned by a unique index when a key already exists.
type DuplicateKeyError struct {
	Key string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key violation: key %q already exists in unique index", e.Key)
}

// KeyNotFoundError is returned when an operation requires an existing key
// that the backend does not have.
type KeyNotFoundError struct {
	Key string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found", e.Key)
}

// InvariantViolationError marks a condition the commit protocol asserts can
// never happen (e.g. merging onto a deleted entry, or a transaction's
// read/write set growing past rwset.RWSetSizeLimit).
type InvariantViolationError struct {
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Detail)
}

// NewInvariantViolation builds an InvariantViolationError with a formatted detail.
func NewInvariantViolation(format string, args ...any) *InvariantViolationError {
	return &InvariantViolationError{Detail: fmt.Sprintf(format, args...)}
}

// WrapBackend wraps an error surfaced by a KV backend with the operation and
// key that triggered it, preserving the original cause for errors.Is/As.
func WrapBackend(err error, op, key string) error {
	if err == nil {
		return nil
	}
	return cerrors.Wrapf(err, "backend %s failed for key %q", op, key)
}
