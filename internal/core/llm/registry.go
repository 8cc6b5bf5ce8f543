package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/lueurxax/insights-engine/internal/core/circuit"
	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
	"github.com/lueurxax/insights-engine/internal/platform/observability"
)

// RetryPolicy bounds the retries issued against a single provider.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Registry manages generation providers with retry, circuit breaking and fallback.
type Registry struct {
	mu              sync.RWMutex
	providers       map[ProviderName]Provider
	order           []ProviderName // Priority order (highest first)
	circuitBreakers map[ProviderName]*circuit.Breaker
	retry           RetryPolicy
	logger          *zerolog.Logger
}

// NewRegistry creates a new provider registry.
func NewRegistry(retry RetryPolicy, logger *zerolog.Logger) *Registry {
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = defaultRetryInitial
	}

	if retry.MaxInterval <= 0 {
		retry.MaxInterval = defaultRetryMaxBackoff
	}

	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}

	return &Registry{
		providers:       make(map[ProviderName]Provider),
		order:           make([]ProviderName, 0),
		circuitBreakers: make(map[ProviderName]*circuit.Breaker),
		retry:           retry,
		logger:          logger,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider, cfg circuit.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; !exists {
		r.order = append(r.order, name)
	}

	r.providers[name] = p
	r.circuitBreakers[name] = circuit.New(string(name), cfg, r.logger)

	r.sortProvidersByPriority()

	observability.CircuitBreakerState.WithLabelValues(string(name)).Set(metricCBClosed)

	r.logger.Info().
		Str(logKeyProvider, string(name)).
		Int("priority", p.Priority()).
		Msg("registered generation provider")
}

// ProviderCount returns the number of registered providers.
func (r *Registry) ProviderCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.providers)
}

// Providers returns registered provider names in priority order.
func (r *Registry) Providers() []ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderName, len(r.order))
	copy(out, r.order)

	return out
}

// Generate implements Client. Providers are tried in priority order unless req pins one.
// Each provider gets bounded retries for retryable errors before the next one is tried.
func (r *Registry) Generate(ctx context.Context, req GenerationRequest) (Generation, error) {
	chain := r.chainFor(req.Provider)
	if len(chain) == 0 {
		if req.Provider != "" {
			return Generation{}, fmt.Errorf("%w: provider %q is not configured", apperrors.ErrNoProvidersAvailable, req.Provider)
		}

		return Generation{}, apperrors.ErrNoProvidersAvailable
	}

	var (
		lastErr          error
		attempts         int
		previousProvider ProviderName
	)

	for _, name := range chain {
		p, cb := r.lookup(name)
		if p == nil || !p.IsAvailable() {
			continue
		}

		if err := cb.Check(); err != nil {
			observability.CircuitBreakerState.WithLabelValues(string(name)).Set(metricCBOpen)

			r.logger.Debug().
				Str(logKeyProvider, string(name)).
				Str(logKeyCategory, string(req.Category)).
				Msg(logMsgCircuitBreakerOpen)

			lastErr = err

			continue
		}

		model := req.Model
		if model == "" {
			model = p.DefaultModel()
		}

		raw, n, err := r.callWithRetry(ctx, p, cb, req, model)
		attempts += n

		if err != nil {
			lastErr = err

			if previousProvider == "" {
				previousProvider = name
			}

			r.logger.Warn().
				Err(err).
				Str(logKeyProvider, string(name)).
				Str(logKeyModel, model).
				Str(logKeyCategory, string(req.Category)).
				Int(logKeyAttempt, n).
				Msg(logMsgProviderFailed)

			if ctx.Err() != nil {
				break
			}

			continue
		}

		if previousProvider != "" {
			observability.GenerationFallbacks.WithLabelValues(string(previousProvider), string(name)).Inc()

			r.logger.Info().
				Str(logKeyProvider, string(name)).
				Str("from_provider", string(previousProvider)).
				Msg("used fallback generation provider")
		}

		return Generation{Raw: raw, Provider: name, Model: model, Attempts: attempts}, nil
	}

	if lastErr == nil {
		return Generation{Attempts: attempts}, apperrors.ErrNoProvidersAvailable
	}

	return Generation{Attempts: attempts}, lastErr
}

// callWithRetry runs one provider with exponential backoff on retryable errors.
func (r *Registry) callWithRetry(ctx context.Context, p Provider, cb *circuit.Breaker, req GenerationRequest, model string) ([]byte, int, error) {
	name := string(p.Name())
	attempts := 0

	var raw []byte

	operation := func() error {
		if err := cb.Check(); err != nil {
			return backoff.Permanent(err)
		}

		attempts++
		start := time.Now()

		out, err := p.Generate(ctx, req, model)

		observability.GenerationLatency.WithLabelValues(name, model).Observe(time.Since(start).Seconds())

		if err != nil {
			observability.GenerationRequests.WithLabelValues(name, model, metricStatusError).Inc()

			// Request faults say nothing about the provider's health.
			if !apperrors.IsRetryable(err) {
				return backoff.Permanent(err)
			}

			if cb.RecordFailure() {
				observability.CircuitBreakerOpens.WithLabelValues(name).Inc()
				observability.CircuitBreakerState.WithLabelValues(name).Set(metricCBOpen)
			}

			return err
		}

		observability.GenerationRequests.WithLabelValues(name, model, metricStatusSuccess).Inc()
		cb.RecordSuccess()
		observability.CircuitBreakerState.WithLabelValues(name).Set(metricCBClosed)

		raw = out

		return nil
	}

	notify := func(err error, wait time.Duration) {
		observability.GenerationRetries.WithLabelValues(name).Inc()

		r.logger.Warn().
			Err(err).
			Str(logKeyProvider, name).
			Int(logKeyAttempt, attempts).
			Dur(logKeyBackoff, wait).
			Msg(logMsgRetrying)
	}

	err := backoff.RetryNotify(operation, r.newBackOff(ctx), notify)

	return raw, attempts, err
}

func (r *Registry) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.retry.InitialInterval
	exp.MaxInterval = r.retry.MaxInterval
	exp.Multiplier = retryMultiplier
	exp.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.retry.MaxRetries)), ctx)
}

// chainFor returns the providers to try, highest priority first.
func (r *Registry) chainFor(pinned ProviderName) []ProviderName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if pinned != "" {
		if _, ok := r.providers[pinned]; ok {
			return []ProviderName{pinned}
		}

		return nil
	}

	out := make([]ProviderName, len(r.order))
	copy(out, r.order)

	return out
}

func (r *Registry) lookup(name ProviderName) (Provider, *circuit.Breaker) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.providers[name], r.circuitBreakers[name]
}

// sortProvidersByPriority sorts providers by priority in descending order.
func (r *Registry) sortProvidersByPriority() {
	sort.SliceStable(r.order, func(i, j int) bool {
		pi := r.providers[r.order[i]].Priority()
		pj := r.providers[r.order[j]].Priority()

		return pi > pj
	})
}
