package llm

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/insights-engine/internal/core/circuit"
	"github.com/lueurxax/insights-engine/internal/core/domain"
	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
	"github.com/lueurxax/insights-engine/internal/platform/config"
)

const testOutput = `{"overallSummary":"ok","factors":[]}`

// scriptedProvider returns errs in order, then succeeds.
type scriptedProvider struct {
	name     ProviderName
	priority int
	errs     []error
	calls    atomic.Int32
	models   []string
}

func (p *scriptedProvider) Name() ProviderName   { return p.name }
func (p *scriptedProvider) IsAvailable() bool    { return true }
func (p *scriptedProvider) Priority() int        { return p.priority }
func (p *scriptedProvider) DefaultModel() string { return "default-" + string(p.name) }

func (p *scriptedProvider) Generate(_ context.Context, _ GenerationRequest, model string) ([]byte, error) {
	n := int(p.calls.Add(1)) - 1
	p.models = append(p.models, model)

	if n < len(p.errs) {
		return nil, p.errs[n]
	}

	return []byte(testOutput), nil
}

func newTestRegistry(maxRetries int) *Registry {
	logger := zerolog.Nop()

	return NewRegistry(RetryPolicy{MaxRetries: maxRetries, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}, &logger)
}

func testRequest() GenerationRequest {
	return GenerationRequest{
		Category:   domain.CategoryBusinessAndMoat,
		OutputKind: domain.OutputKindCategory,
	}
}

func TestRegistry_RetriesRetryableErrors(t *testing.T) {
	r := newTestRegistry(2)
	p := &scriptedProvider{
		name: ProviderWebhook,
		errs: []error{apperrors.NewUpstreamError("webhook", http.StatusServiceUnavailable, "busy")},
	}
	r.Register(p, circuit.Config{Threshold: 10, ResetAfter: time.Minute})

	gen, err := r.Generate(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, int32(2), p.calls.Load())
	assert.Equal(t, 2, gen.Attempts)
	assert.Equal(t, ProviderWebhook, gen.Provider)
	assert.Equal(t, "default-webhook", gen.Model)
	assert.JSONEq(t, testOutput, string(gen.Raw))
}

func TestRegistry_DoesNotRetryFatalErrors(t *testing.T) {
	r := newTestRegistry(3)
	p := &scriptedProvider{
		name: ProviderWebhook,
		errs: []error{apperrors.NewUpstreamError("webhook", http.StatusBadRequest, "bad input")},
	}
	r.Register(p, circuit.Config{Threshold: 10, ResetAfter: time.Minute})

	gen, err := r.Generate(context.Background(), testRequest())

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
	assert.False(t, apperrors.IsRetryable(err))
	assert.Equal(t, int32(1), p.calls.Load())
	assert.Equal(t, 1, gen.Attempts)
}

func TestRegistry_GivesUpAfterMaxRetries(t *testing.T) {
	r := newTestRegistry(2)
	busy := apperrors.NewUpstreamError("webhook", http.StatusBadGateway, "down")
	p := &scriptedProvider{name: ProviderWebhook, errs: []error{busy, busy, busy, busy}}
	r.Register(p, circuit.Config{Threshold: 10, ResetAfter: time.Minute})

	_, err := r.Generate(context.Background(), testRequest())

	require.Error(t, err)
	assert.Equal(t, int32(3), p.calls.Load(), "one call plus two retries")

	var upstream *apperrors.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadGateway, upstream.Status)
}

func TestRegistry_FallsBackByPriority(t *testing.T) {
	r := newTestRegistry(0)
	primary := &scriptedProvider{
		name:     ProviderWebhook,
		priority: PriorityPrimary,
		errs:     []error{apperrors.NewUpstreamError("webhook", http.StatusInternalServerError, "boom")},
	}
	fallback := &scriptedProvider{name: ProviderOpenAI, priority: PriorityFallback}

	r.Register(fallback, circuit.Config{Threshold: 10, ResetAfter: time.Minute})
	r.Register(primary, circuit.Config{Threshold: 10, ResetAfter: time.Minute})

	assert.Equal(t, []ProviderName{ProviderWebhook, ProviderOpenAI}, r.Providers())

	gen, err := r.Generate(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, gen.Provider)
	assert.Equal(t, 2, gen.Attempts)
}

func TestRegistry_OpenCircuitSkipsProvider(t *testing.T) {
	r := newTestRegistry(0)
	down := apperrors.NewUpstreamError("webhook", http.StatusInternalServerError, "boom")
	p := &scriptedProvider{name: ProviderWebhook, errs: []error{down, down, down}}
	r.Register(p, circuit.Config{Threshold: 1, ResetAfter: time.Hour})

	_, err := r.Generate(context.Background(), testRequest())
	require.ErrorIs(t, err, apperrors.ErrUpstream)

	_, err = r.Generate(context.Background(), testRequest())

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCircuitBreakerOpen)
	assert.Equal(t, apperrors.KindCircuitOpen, apperrors.Kind(err))
	assert.Equal(t, int32(1), p.calls.Load(), "open circuit must not reach the provider")
}

func TestRegistry_RequestFaultsDoNotOpenCircuit(t *testing.T) {
	r := newTestRegistry(0)
	bad := apperrors.NewUpstreamError("webhook", http.StatusUnprocessableEntity, "invalid input")
	p := &scriptedProvider{name: ProviderWebhook, errs: []error{bad, bad, bad}}
	r.Register(p, circuit.Config{Threshold: 1, ResetAfter: time.Hour})

	for i := 0; i < 3; i++ {
		_, err := r.Generate(context.Background(), testRequest())
		require.ErrorIs(t, err, apperrors.ErrUpstream)
		assert.NotErrorIs(t, err, apperrors.ErrCircuitBreakerOpen)
	}

	gen, err := r.Generate(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, ProviderWebhook, gen.Provider)
	assert.Equal(t, int32(4), p.calls.Load(), "every request reached the provider")
}

func TestRegistry_PinnedProvider(t *testing.T) {
	r := newTestRegistry(0)
	webhook := &scriptedProvider{name: ProviderWebhook, priority: PriorityPrimary}
	openai := &scriptedProvider{name: ProviderOpenAI, priority: PriorityFallback}

	r.Register(webhook, circuit.Config{})
	r.Register(openai, circuit.Config{})

	req := testRequest()
	req.Provider = ProviderOpenAI
	req.Model = "gpt-4o"

	gen, err := r.Generate(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, gen.Provider)
	assert.Equal(t, int32(0), webhook.calls.Load())
	assert.Equal(t, []string{"gpt-4o"}, openai.models)

	req.Provider = ProviderAnthropic

	_, err = r.Generate(context.Background(), req)
	assert.ErrorIs(t, err, apperrors.ErrNoProvidersAvailable)
}

func TestRegistry_NoProviders(t *testing.T) {
	r := newTestRegistry(0)

	_, err := r.Generate(context.Background(), testRequest())

	assert.ErrorIs(t, err, apperrors.ErrNoProvidersAvailable)
	assert.Equal(t, 0, r.ProviderCount())
}

func TestParseProviderName(t *testing.T) {
	tests := []struct {
		in      string
		want    ProviderName
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "OpenAI", want: ProviderOpenAI},
		{in: " webhook ", want: ProviderWebhook},
		{in: "gemini", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProviderName(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrValidation)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_MockRequiresExplicitOptIn(t *testing.T) {
	logger := zerolog.Nop()

	r := New(&config.Config{AppEnv: "local"}, &logger)
	assert.Zero(t, r.ProviderCount(), "no configured backend means no provider, even locally")

	r = New(&config.Config{AppEnv: "local", MockGenerationEnabled: true}, &logger)
	assert.Equal(t, []ProviderName{ProviderMock}, r.Providers())
}
