package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/variantlabs/imagesync/internal/catalog"
	"github.com/variantlabs/imagesync/internal/cdn"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"op error passthrough", opErr(CodeDuplicate, "already attached"), CodeDuplicate},
		{"wrapped op error", fmt.Errorf("outer: %w", opErr(CodeInvalidPayload, "bad row")), CodeInvalidPayload},
		{"entity not found", fmt.Errorf("%w: shelf-1", catalog.ErrEntityNotFound), CodeNotFound},
		{"cdn not configured", cdn.ErrNotConfigured, CodeMissingEnv},
		{"service response", errors.New("image service upload: unsupported format"), CodeUpstreamUnavailable},
		{"connection refused", errors.New(`Post "https://api": dial tcp: connection refused`), CodeNetworkError},
		{"dns failure", errors.New("lookup api.example: no such host"), CodeNetworkError},
		{"timeout", errors.New("context deadline exceeded"), CodeNetworkError},
		{"client timeout", errors.New("Client.Timeout exceeded while awaiting headers"), CodeNetworkError},
		{"pg duplicate", errors.New(`ERROR: duplicate key value violates unique constraint "x"`), CodeDuplicate},
		{"unclassified", errors.New("something odd happened"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.want {
				t.Errorf("MapError(%v).Code = %q, want %q", tt.err, got.Code, tt.want)
			}
		})
	}
}

func TestOpError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := wrapErr(CodeInternal, cause, "wrapped")
	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the cause")
	}
	if err.Error() == "" || err.Unwrap() != cause {
		t.Errorf("unexpected error shape: %v", err)
	}
}
