package cerrors

import (
	"errors"
	"testing"
)

func TestNewPreservesAlreadyTaggedCause(t *testing.T) {
	inner := New(KindFetcher, PhaseFetcher, "k", "", "inner failure", errors.New("boom"))
	outer := New(KindCacheGet, PhaseCacheGet, "k", "cache", "outer wrap attempt", inner)

	if outer != inner {
		t.Fatalf("expected identity preservation, got a new *Error")
	}
	if outer.Kind != KindFetcher {
		t.Fatalf("expected the original Kind to survive, got %s", outer.Kind)
	}
}

func TestErrorsIsMatchesSentinel(t *testing.T) {
	err := New(KindAborted, PhaseAbort, "k", "", "aborted", nil)
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected errors.Is to match ErrAborted")
	}
	if errors.Is(err, ErrHook) {
		t.Fatalf("did not expect errors.Is to match an unrelated sentinel")
	}
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("root cause")
	err := New(KindCacheSet, PhaseCacheSet, "k", "cache", "set failed", cause)
	if errors.Unwrap(err) != cause {
		t.Fatalf("expected Unwrap to return the original cause")
	}
}
