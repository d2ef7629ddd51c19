package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrStoreFailure, "save failed").
		WithCause(root).
		WithHTTPStatus(503).
		WithRetryable(true)

	if GetErrorCode(err) != ErrStoreFailure {
		t.Fatalf("expected code %s, got %s", ErrStoreFailure, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_CodeThroughWrapping(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrActionAlreadyResolved, "action already resolved")
	wrapped := fmt.Errorf("resume w1: %w", inner)

	if GetErrorCode(wrapped) != ErrActionAlreadyResolved {
		t.Fatalf("expected code to survive wrapping, got %s", GetErrorCode(wrapped))
	}
	if !IsCode(wrapped, ErrActionAlreadyResolved) {
		t.Fatalf("expected IsCode match")
	}
	if IsCode(errors.New("plain"), ErrActionAlreadyResolved) {
		t.Fatalf("plain error must not match a code")
	}
}
