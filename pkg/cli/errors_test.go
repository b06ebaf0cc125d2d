package cli

import (
	"errors"
	"fmt"
	"testing"

	"mercator-hq/nettrace/pkg/config"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("store.path", "missing required field")

	expected := "config error in store.path: missing required field"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := NewCommandError("spans query", underlyingErr)

	expected := "command spans query failed: underlying error"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is() should work with CommandError.Unwrap()")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"generic", errors.New("boom"), ExitError},
		{"config error", NewConfigError("output", "bad"), ExitConfig},
		{
			"wrapped validation error",
			fmt.Errorf("load: %w", config.ValidationError{Errors: []config.FieldError{{Field: "a", Message: "b"}}}),
			ExitConfig,
		},
		{"probe failed", NewCommandError("probe", ErrProbeFailed), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
