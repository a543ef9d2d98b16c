package core

// errors.go defines the operation error taxonomy and the mapping from
// low-level driver/transport errors onto it.
//
// Every failing operation returns *OpError with one of the stable codes
// below. The web layer renders the code in the response envelope and picks
// the HTTP status from it; nothing downstream should parse message text.

import (
	"errors"
	"fmt"
	"strings"

	"github.com/variantlabs/imagesync/internal/catalog"
	"github.com/variantlabs/imagesync/internal/cdn"
)

// Code is a stable machine-readable error classification.
type Code string

const (
	// CodeNotFound means the referenced entity does not exist.
	CodeNotFound Code = "not_found"

	// CodeDuplicate means the entry is already present on the entity.
	CodeDuplicate Code = "duplicate"

	// CodeUpstreamUnavailable means the image service call failed, timed
	// out, or returned a non-success response.
	CodeUpstreamUnavailable Code = "upstream_unavailable"

	// CodeInvalidPayload means the file, URL, or row was malformed.
	CodeInvalidPayload Code = "invalid_payload"

	// CodeMissingEnv means the CDN integration is not configured.
	CodeMissingEnv Code = "missing_env"

	// CodeNetworkError means a client-side transport failure, distinct
	// from an error returned by the image service itself.
	CodeNetworkError Code = "network_error"

	// CodeInternal is the fallback for unclassified failures.
	CodeInternal Code = "internal"
)

// OpError is a structured operation failure.
type OpError struct {
	Code    Code
	Message string
	Err     error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(code Code, format string, args ...any) *OpError {
	return &OpError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapErr(code Code, err error, format string, args ...any) *OpError {
	return &OpError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// errorPatterns maps substrings of low-level error text (case-insensitive)
// to taxonomy codes. The first matching pattern wins, so specific patterns
// come before general ones. "image service" errors are responses the CDN
// actually returned; the transport patterns cover failures to reach it.
var errorPatterns = []struct {
	pattern string
	code    Code
}{
	{"image service", CodeUpstreamUnavailable},
	{"connection refused", CodeNetworkError},
	{"connection reset", CodeNetworkError},
	{"no such host", CodeNetworkError},
	{"context deadline exceeded", CodeNetworkError},
	{"client.timeout", CodeNetworkError},
	{"request:", CodeNetworkError},
	{"duplicate key", CodeDuplicate},
	{"unique constraint", CodeDuplicate},
}

// MapError classifies err as an *OpError. Existing *OpError values pass
// through unchanged; known sentinels and error-text patterns map to their
// taxonomy code; everything else becomes CodeInternal.
func MapError(err error) *OpError {
	var op *OpError
	if errors.As(err, &op) {
		return op
	}
	if errors.Is(err, catalog.ErrEntityNotFound) {
		return &OpError{Code: CodeNotFound, Message: "entity not found", Err: err}
	}
	if errors.Is(err, cdn.ErrNotConfigured) {
		return &OpError{Code: CodeMissingEnv, Message: "image service integration is not configured", Err: err}
	}

	text := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(text, p.pattern) {
			return &OpError{Code: p.code, Message: err.Error(), Err: err}
		}
	}
	return &OpError{Code: CodeInternal, Message: err.Error(), Err: err}
}
