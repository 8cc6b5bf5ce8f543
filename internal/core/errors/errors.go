// Package errors provides the error taxonomy shared by the report pipeline.
// Errors are organized by failure kind so handlers can classify them without
// string matching.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - UpstreamError carries the status and message returned by a generation service
//   - Use fmt.Errorf with %w to wrap sentinel errors with context
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Lookup errors.
var (
	// ErrNotFound indicates an identifier did not resolve to a row.
	ErrNotFound = errors.New("not found")
)

// Request errors.
var (
	// ErrValidation indicates a request or payload is missing required fields
	// or carries values outside the accepted set.
	ErrValidation = errors.New("validation failed")
)

// Precondition errors.
var (
	// ErrPreconditionFailed indicates a declared prerequisite result is missing.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrDataNotFresh indicates the subject's source data has not been collected yet.
	// It wraps ErrPreconditionFailed.
	ErrDataNotFresh = fmt.Errorf("%w: data not fresh", ErrPreconditionFailed)
)

// Upstream errors.
var (
	// ErrUpstream indicates the external generation service failed or returned an unusable body.
	ErrUpstream = errors.New("upstream generation failed")

	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

	// ErrNoProvidersAvailable indicates no generation provider is registered or usable.
	ErrNoProvidersAvailable = errors.New("no generation providers available")
)

// Concurrency errors.
var (
	// ErrConflict indicates a concurrent regeneration committed first and this write is stale.
	ErrConflict = errors.New("conflicting concurrent update")
)

// Error kinds exposed to API clients.
const (
	KindNotFound     = "not_found"
	KindValidation   = "validation"
	KindPrecondition = "precondition_failed"
	KindDataNotFresh = "data_not_fresh"
	KindUpstream     = "upstream"
	KindCircuitOpen  = "circuit_open"
	KindConflict     = "conflict"
	KindInternal     = "internal"
)

// UpstreamError describes a failed call to an external generation service.
type UpstreamError struct {
	Provider  string
	Status    int
	Message   string
	Retryable bool
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: upstream %s returned %d: %s", ErrUpstream, e.Provider, e.Status, e.Message)
	}

	return fmt.Sprintf("%s: upstream %s: %s", ErrUpstream, e.Provider, e.Message)
}

// Unwrap lets errors.Is match ErrUpstream.
func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// NewUpstreamError builds an UpstreamError and derives retryability from the status code.
func NewUpstreamError(provider string, status int, message string) *UpstreamError {
	return &UpstreamError{
		Provider:  provider,
		Status:    status,
		Message:   message,
		Retryable: RetryableStatus(status),
	}
}

// MalformedResponse builds a non-retryable UpstreamError for bodies that fail to parse or validate.
func MalformedResponse(provider string, cause error) *UpstreamError {
	return &UpstreamError{
		Provider: provider,
		Status:   0,
		Message:  "malformed response: " + cause.Error(),
	}
}

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= http.StatusInternalServerError
}

// IsRetryable reports whether err describes a transient failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.Retryable
	}

	return false
}

// Kind classifies err into one of the Kind* constants.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDataNotFresh):
		return KindDataNotFresh
	case errors.Is(err, ErrPreconditionFailed):
		return KindPrecondition
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrCircuitBreakerOpen):
		return KindCircuitOpen
	case errors.Is(err, ErrUpstream), errors.Is(err, ErrNoProvidersAvailable):
		return KindUpstream
	default:
		return KindInternal
	}
}

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
