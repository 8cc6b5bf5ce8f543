package circuit

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
)

const (
	defaultThreshold  = 5
	defaultResetAfter = time.Minute
)

// Config holds the tripping policy of a Breaker.
type Config struct {
	Threshold  int
	ResetAfter time.Duration
}

// Breaker opens after Threshold consecutive failures and stays open for ResetAfter.
type Breaker struct {
	name                string
	threshold           int
	resetAfter          time.Duration
	consecutiveFailures int
	openUntil           time.Time
	now                 func() time.Time
	mu                  sync.Mutex
	logger              *zerolog.Logger
}

// New creates a breaker for the named dependency.
func New(name string, cfg Config, logger *zerolog.Logger) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}

	if cfg.ResetAfter <= 0 {
		cfg.ResetAfter = defaultResetAfter
	}

	return &Breaker{
		name:       name,
		threshold:  cfg.Threshold,
		resetAfter: cfg.ResetAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// Check returns ErrCircuitBreakerOpen while the circuit is open.
func (b *Breaker) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.now().Before(b.openUntil) {
		return fmt.Errorf("%w: %s until %v", apperrors.ErrCircuitBreakerOpen, b.name, b.openUntil)
	}

	return nil
}

// RecordSuccess resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
}

// RecordFailure counts a failure and reports whether this call opened the circuit.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++

	if b.consecutiveFailures < b.threshold {
		return false
	}

	wasOpen := b.now().Before(b.openUntil)
	b.openUntil = b.now().Add(b.resetAfter)

	if !wasOpen && b.logger != nil {
		b.logger.Warn().
			Str("provider", b.name).
			Int("consecutive_failures", b.consecutiveFailures).
			Time("open_until", b.openUntil).
			Msg("circuit breaker opened")
	}

	return !wasOpen
}
