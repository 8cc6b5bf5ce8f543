package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "not found", err: fmt.Errorf("load subject: %w", ErrNotFound), want: KindNotFound},
		{name: "validation", err: fmt.Errorf("%w: category", ErrValidation), want: KindValidation},
		{name: "precondition", err: fmt.Errorf("%w: Competition missing", ErrPreconditionFailed), want: KindPrecondition},
		{name: "data not fresh wins over precondition", err: fmt.Errorf("check: %w", ErrDataNotFresh), want: KindDataNotFresh},
		{name: "conflict", err: ErrConflict, want: KindConflict},
		{name: "circuit", err: fmt.Errorf("%w until later", ErrCircuitBreakerOpen), want: KindCircuitOpen},
		{name: "upstream type", err: NewUpstreamError("webhook", http.StatusBadGateway, "bad gateway"), want: KindUpstream},
		{name: "no providers", err: ErrNoProvidersAvailable, want: KindUpstream},
		{name: "other", err: errors.New("boom"), want: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestDataNotFreshIsPrecondition(t *testing.T) {
	assert.ErrorIs(t, ErrDataNotFresh, ErrPreconditionFailed)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(fmt.Errorf("call: %w", context.DeadlineExceeded)))
	assert.True(t, IsRetryable(NewUpstreamError("openai", http.StatusTooManyRequests, "slow down")))
	assert.True(t, IsRetryable(NewUpstreamError("openai", http.StatusServiceUnavailable, "down")))
	assert.False(t, IsRetryable(NewUpstreamError("openai", http.StatusBadRequest, "bad prompt")))
	assert.False(t, IsRetryable(MalformedResponse("webhook", errors.New("eof"))))
	assert.False(t, IsRetryable(ErrCircuitBreakerOpen))
}

func TestUpstreamErrorMessage(t *testing.T) {
	err := NewUpstreamError("webhook", http.StatusInternalServerError, "exploded")

	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "exploded")

	var upstream *UpstreamError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &upstream))
	assert.Equal(t, http.StatusInternalServerError, upstream.Status)
}
