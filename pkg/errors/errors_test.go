package errors

import (
	"testing"

	cerrors "github.com/cockroachdb/errors"
)

func TestErrors_ErrorMethod(t *testing.T) {
	errs := []error{
		&DuplicateKeyError{Key: "k1"},
		&KeyNotFoundError{Key: "k1"},
		&InvariantViolationError{Detail: "boom"},
		ErrTxnAborted,
	}

	for _, e := range errs {
		if e.Error() == "" {
			t.Errorf("Error() returned empty string for %T", e)
		}
	}
}

func TestNewInvariantViolation(t *testing.T) {
	err := NewInvariantViolation("merge onto deleted key %q", "k1")
	want := `invariant violation: merge onto deleted key "k1"`
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestWrapBackend(t *testing.T) {
	if WrapBackend(nil, "insert", "k1") != nil {
		t.Fatalf("expected nil passthrough for nil error")
	}

	cause := cerrors.New("disk full")
	wrapped := WrapBackend(cause, "insert", "k1")
	if wrapped == nil {
		t.Fatalf("expected non-nil wrapped error")
	}
	if !cerrors.Is(wrapped, cause) {
		t.Errorf("wrapped error lost its cause: %v", wrapped)
	}
}
