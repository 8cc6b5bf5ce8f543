// Package report runs the report generation flow: intake, precondition fetch,
// external generation, persistence, score refresh and cache invalidation.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lueurxax/insights-engine/internal/cache"
	"github.com/lueurxax/insights-engine/internal/core/domain"
	apperrors "github.com/lueurxax/insights-engine/internal/core/errors"
	"github.com/lueurxax/insights-engine/internal/core/llm"
	"github.com/lueurxax/insights-engine/internal/platform/observability"
	"github.com/lueurxax/insights-engine/internal/queue"
)

const (
	defaultGenerationTimeout = 5 * time.Minute
	defaultPopTimeout        = 5 * time.Second

	outcomeSuccess = "success"

	logKeySubject      = "subject"
	logKeyCategory     = "category"
	logKeyInvocationID = "invocation_id"
)

// Store is the persistence port of the service.
type Store interface {
	GetSubjectByKey(ctx context.Context, key string) (*domain.Subject, error)
	GetIndustry(ctx context.Context, key string) (*domain.Industry, error)
	ListFactorDefinitions(ctx context.Context, category domain.Category) ([]domain.FactorDefinition, error)
	GetCategoryResult(ctx context.Context, subjectID string, category domain.Category) (*domain.CategoryResult, error)
	ListCompetitionEntries(ctx context.Context, subjectID string) ([]domain.CompetitionEntry, error)
	GetInvestorResult(ctx context.Context, subjectID string, investor domain.InvestorKey) (*domain.InvestorResult, error)
	ListCategoryScores(ctx context.Context, subjectID string) ([]domain.CategoryScore, error)
	PersistReport(ctx context.Context, w domain.ReportWrite) (*domain.PersistOutcome, error)
	CreateInvocation(ctx context.Context, inv *domain.Invocation) error
	UpdateInvocation(ctx context.Context, inv *domain.Invocation) error
	GetInvocation(ctx context.Context, id string) (*domain.Invocation, error)
	ListInvocations(ctx context.Context, subjectID string, limit int) ([]domain.Invocation, error)
}

// Request names a subject and category to (re)generate, with optional overrides.
type Request struct {
	SubjectKey  string
	Category    string
	InvestorKey string
	Model       string
	Provider    string
}

// Ack acknowledges a generation request.
type Ack struct {
	Success      bool
	InvocationID string
	Status       domain.InvocationStatus
}

// Options tune the service.
type Options struct {
	GenerationTimeout time.Duration
	PopTimeout        time.Duration
}

// Service implements the report operations.
type Service struct {
	store       Store
	generator   llm.Client
	invalidator cache.Invalidator
	views       cache.ViewCache
	queue       queue.Queue
	opts        Options
	logger      *zerolog.Logger
	newID       func() string
}

// NewService wires the service. views and q may be nil.
func NewService(store Store, generator llm.Client, invalidator cache.Invalidator, views cache.ViewCache, q queue.Queue, opts Options, logger *zerolog.Logger) *Service {
	if opts.GenerationTimeout <= 0 {
		opts.GenerationTimeout = defaultGenerationTimeout
	}

	if opts.PopTimeout <= 0 {
		opts.PopTimeout = defaultPopTimeout
	}

	if views == nil {
		views = cache.NopViews{}
	}

	return &Service{
		store:       store,
		generator:   generator,
		invalidator: invalidator,
		views:       views,
		queue:       q,
		opts:        opts,
		logger:      logger,
		newID:       uuid.NewString,
	}
}

// Generate checks preconditions, calls the generation service, persists the result and
// invalidates caches. Nothing is written when a precondition fails.
func (s *Service) Generate(ctx context.Context, req Request) (Ack, error) {
	start := time.Now()

	p, err := s.prepare(ctx, req)
	if err != nil {
		s.recordOutcome(categoryLabel(req.Category), err)

		return Ack{}, err
	}

	inv := p.newInvocation(s.newID(), domain.InvocationRunning)
	if err := s.store.CreateInvocation(ctx, inv); err != nil {
		return Ack{}, fmt.Errorf("create invocation: %w", err)
	}

	err = s.execute(ctx, p, inv)

	observability.ReportGenerationDuration.WithLabelValues(string(p.category)).Observe(time.Since(start).Seconds())
	s.recordOutcome(string(p.category), err)

	if err != nil {
		return Ack{}, err
	}

	return Ack{Success: true, InvocationID: inv.ID, Status: inv.Status}, nil
}

// Enqueue validates and checks preconditions, then queues the generation for a worker.
func (s *Service) Enqueue(ctx context.Context, req Request) (Ack, error) {
	if s.queue == nil {
		return Ack{}, fmt.Errorf("%w: async generation is not enabled", apperrors.ErrValidation)
	}

	p, err := s.prepare(ctx, req)
	if err != nil {
		return Ack{}, err
	}

	inv := p.newInvocation(s.newID(), domain.InvocationPending)
	if err := s.store.CreateInvocation(ctx, inv); err != nil {
		return Ack{}, fmt.Errorf("create invocation: %w", err)
	}

	job := queue.Job{
		InvocationID:    inv.ID,
		SubjectKey:      p.subject.Key,
		Category:        string(p.category),
		InvestorKey:     string(p.investor),
		Model:           p.model,
		Provider:        string(p.provider),
		ExpectedVersion: p.expectedVersion,
	}

	if err := s.queue.Push(ctx, job); err != nil {
		s.fail(ctx, inv, err)

		return Ack{}, fmt.Errorf("enqueue generation: %w", err)
	}

	s.logger.Info().
		Str(logKeySubject, p.subject.Key).
		Str(logKeyCategory, string(p.category)).
		Str(logKeyInvocationID, inv.ID).
		Msg("generation queued")

	return Ack{Success: true, InvocationID: inv.ID, Status: inv.Status}, nil
}

// ProcessNext runs one queued job. It reports false when the queue stayed empty.
// Job failures are recorded on the invocation and not returned.
func (s *Service) ProcessNext(ctx context.Context) (bool, error) {
	if s.queue == nil {
		return false, nil
	}

	job, err := s.queue.Pop(ctx, s.opts.PopTimeout)
	if err != nil {
		return false, fmt.Errorf("pop job: %w", err)
	}

	if job == nil {
		return false, nil
	}

	start := time.Now()

	inv, err := s.store.GetInvocation(ctx, job.InvocationID)
	if err != nil {
		s.logger.Error().Err(err).Str(logKeyInvocationID, job.InvocationID).Msg("dropping job without invocation")

		return true, nil
	}

	p, err := s.prepare(ctx, Request{
		SubjectKey:  job.SubjectKey,
		Category:    job.Category,
		InvestorKey: job.InvestorKey,
		Model:       job.Model,
		Provider:    job.Provider,
	})
	if err != nil {
		s.fail(ctx, inv, err)
		s.recordOutcome(categoryLabel(job.Category), err)

		return true, nil
	}

	// The version seen at enqueue time guards against regenerations that ran in between.
	p.expectedVersion = job.ExpectedVersion

	inv.Status = domain.InvocationRunning
	if err := s.store.UpdateInvocation(ctx, inv); err != nil {
		s.logger.Warn().Err(err).Str(logKeyInvocationID, inv.ID).Msg("failed to mark invocation running")
	}

	err = s.execute(ctx, p, inv)

	observability.ReportGenerationDuration.WithLabelValues(string(p.category)).Observe(time.Since(start).Seconds())
	s.recordOutcome(string(p.category), err)

	return true, nil
}

// execute runs generation, persistence and invalidation for a prepared request.
// It is detached from ctx cancellation so a started write is not abandoned.
func (s *Service) execute(ctx context.Context, p *plan, inv *domain.Invocation) error {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.GenerationTimeout)
	defer cancel()

	logger := s.logger.With().
		Str(logKeySubject, p.subject.Key).
		Str(logKeyCategory, string(p.category)).
		Str(logKeyInvocationID, inv.ID).
		Logger()

	gen, err := s.generator.Generate(runCtx, p.generationRequest())

	inv.Attempts = gen.Attempts
	if gen.Provider != "" {
		inv.Provider = string(gen.Provider)
		inv.Model = gen.Model
	}

	if err != nil {
		s.fail(runCtx, inv, err)

		return fmt.Errorf("generate %s: %w", p.category, err)
	}

	out, err := domain.DecodeOutput(p.category.OutputKind(), gen.Raw)
	if err != nil {
		err = apperrors.MalformedResponse(inv.Provider, err)
		s.fail(runCtx, inv, err)

		return err
	}

	outcome, err := s.store.PersistReport(runCtx, domain.ReportWrite{
		SubjectID:       p.subject.ID,
		Category:        p.category,
		InvestorKey:     p.investor,
		ExpectedVersion: p.expectedVersion,
		Output:          out,
		Factors:         p.factors,
	})
	if err != nil {
		if apperrors.Is(err, apperrors.ErrConflict) {
			observability.UpsertConflicts.WithLabelValues(string(p.category)).Inc()
		}

		s.fail(runCtx, inv, err)

		return fmt.Errorf("persist %s: %w", p.category, err)
	}

	if err := s.invalidator.Invalidate(runCtx, cache.ReportTags(p.subject.Key, p.category)...); err != nil {
		logger.Warn().Err(err).Msg("cache invalidation failed, relying on cache_invalidated_at")
	}

	inv.Status = domain.InvocationSucceeded
	inv.ErrorKind = ""
	inv.ErrorMessage = ""

	if err := s.store.UpdateInvocation(runCtx, inv); err != nil {
		logger.Warn().Err(err).Msg("failed to record invocation success")
	}

	event := logger.Info().
		Str("provider", inv.Provider).
		Int("attempts", inv.Attempts).
		Int("version", outcome.Version)

	if outcome.Score != nil {
		event = event.Int("score", outcome.Score.Score)
	}

	event.Msg("report generated")

	return nil
}

// fail records err on the invocation.
func (s *Service) fail(ctx context.Context, inv *domain.Invocation, err error) {
	inv.Status = domain.InvocationFailed
	inv.ErrorKind = apperrors.Kind(err)
	inv.ErrorMessage = err.Error()

	if updateErr := s.store.UpdateInvocation(context.WithoutCancel(ctx), inv); updateErr != nil {
		s.logger.Warn().Err(updateErr).Str(logKeyInvocationID, inv.ID).Msg("failed to record invocation failure")
	}

	s.logger.Warn().
		Err(err).
		Str(logKeyInvocationID, inv.ID).
		Str("kind", inv.ErrorKind).
		Msg("report generation failed")
}

func (s *Service) recordOutcome(category string, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = apperrors.Kind(err)
	}

	observability.ReportGenerations.WithLabelValues(category, outcome).Inc()
}
