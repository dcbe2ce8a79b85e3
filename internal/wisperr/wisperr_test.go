package wisperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	err := New(NotFound, "no handler for completion")
	want := "[NOT_FOUND] no handler for completion"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := Wrap(ExecutionError, "rename failed", errors.New("symbol vanished"))
	want = "[EXECUTION_ERROR] rename failed: symbol vanished"
	if wrapped.Error() != want {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), want)
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ProviderError, "embed call failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"direct", New(Timeout, "too slow"), Timeout},
		{"wrapped deeper", fmt.Errorf("context: %w", New(PoolSaturated, "queue full")), PoolSaturated},
		{"plain error", errors.New("anonymous"), InternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := Newf(MutationRejected, "empty uri in %s", "upsert")
	if !Is(err, MutationRejected) {
		t.Error("Is should match the carried code")
	}
	if Is(err, Timeout) {
		t.Error("Is should not match a different code")
	}
}
