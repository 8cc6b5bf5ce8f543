// Package app provides the main application bootstrap and runtime orchestration.
//
// The App type wires together all dependencies and exposes methods to run
// different operational modes:
//
//   - Server mode: report API plus health and metrics endpoints
//   - Worker mode: drains the regeneration queue
//
// Without Redis the server runs the queue in memory and drains it in-process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lueurxax/insights-engine/internal/api"
	"github.com/lueurxax/insights-engine/internal/cache"
	"github.com/lueurxax/insights-engine/internal/core/llm"
	"github.com/lueurxax/insights-engine/internal/factors"
	"github.com/lueurxax/insights-engine/internal/platform/config"
	"github.com/lueurxax/insights-engine/internal/platform/observability"
	"github.com/lueurxax/insights-engine/internal/platform/worker"
	"github.com/lueurxax/insights-engine/internal/queue"
	"github.com/lueurxax/insights-engine/internal/report"
	db "github.com/lueurxax/insights-engine/internal/storage"
)

const (
	workerName          = "report-regeneration"
	queueSampleInterval = 15 * time.Second
	logFieldProviders   = "providers"
	logFieldQueue       = "queue"
)

var (
	// ErrRedisRequired is returned by modes that cannot run on in-memory fallbacks.
	ErrRedisRequired = errors.New("REDIS_URL is required for this mode")

	ErrNoGenerationProvider = errors.New("no generation provider configured: set GENERATION_WEBHOOK_URL, LLM_API_KEY, ANTHROPIC_API_KEY or MOCK_GENERATION_ENABLED")
)

var _ report.Store = (*db.DB)(nil)

// App holds the application dependencies and provides methods to run different modes.
type App struct {
	cfg      *config.Config
	database *db.DB
	redis    *redis.Client
	logger   *zerolog.Logger
}

// New creates a new App instance with the given dependencies. redisClient may be nil.
func New(cfg *config.Config, database *db.DB, redisClient *redis.Client, logger *zerolog.Logger) *App {
	return &App{
		cfg:      cfg,
		database: database,
		redis:    redisClient,
		logger:   logger,
	}
}

// components are the report service and the queue it feeds.
type components struct {
	service *report.Service
	queue   queue.Queue
	inProc  bool
}

func (a *App) build() (*components, error) {
	if !a.cfg.HasGenerationProvider() && !a.cfg.MockGenerationEnabled {
		return nil, ErrNoGenerationProvider
	}

	generator := llm.New(a.cfg, a.logger)

	names := make([]string, 0, generator.ProviderCount())
	for _, name := range generator.Providers() {
		names = append(names, string(name))
	}

	a.logger.Info().Strs(logFieldProviders, names).Msg("generation providers registered")

	var (
		invalidator cache.Invalidator = cache.NewLogInvalidator(a.logger)
		views       cache.ViewCache   = cache.NopViews{}
		q           queue.Queue
		inProc      bool
	)

	if a.redis != nil {
		invalidator = cache.NewRedisInvalidator(a.redis, a.logger)
		views = cache.NewRedisViews(a.redis, a.cfg.CacheViewTTL)
		q = queue.NewRedisQueue(a.redis, a.cfg.QueueKey)
	} else {
		q = queue.NewMemoryQueue()
		inProc = true

		a.logger.Warn().Msg("REDIS_URL not set, using in-memory queue and no view cache")
	}

	svc := report.NewService(a.database, generator, invalidator, views, q, report.Options{
		GenerationTimeout: a.cfg.GenerationTimeout,
		PopTimeout:        a.cfg.WorkerPopTimeout,
	}, a.logger)

	return &components{service: svc, queue: q, inProc: inProc}, nil
}

// RunServer serves the report API, health and metrics until ctx is canceled.
func (a *App) RunServer(ctx context.Context) error {
	c, err := a.build()
	if err != nil {
		return err
	}

	router := api.NewRouter(c.service, api.Options{
		AllowedOrigins: a.cfg.CORSAllowedOrigins,
		StrictStatus:   a.cfg.APIStrictStatus,
	}, a.logger)

	srv := observability.NewServerWithAPI(a.database, a.cfg.HTTPPort, router, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("api server start: %w", err)
		}

		return nil
	})

	if c.inProc {
		g.Go(func() error {
			return a.runWorkerLoop(gctx, c)
		})
	}

	return g.Wait()
}

// RunWorker drains the shared regeneration queue. Health and metrics are served alongside.
func (a *App) RunWorker(ctx context.Context) error {
	if a.redis == nil {
		return ErrRedisRequired
	}

	c, err := a.build()
	if err != nil {
		return err
	}

	srv := observability.NewServer(a.database, a.cfg.HTTPPort, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("health server start: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		return a.runWorkerLoop(gctx, c)
	})

	return g.Wait()
}

func (a *App) runWorkerLoop(ctx context.Context, c *components) error {
	return worker.Loop(ctx, worker.Config{
		Name:         workerName,
		PollInterval: a.cfg.WorkerPollInterval,
		Process:      c.service.ProcessNext,
		PeriodicTasks: []worker.PeriodicTask{{
			Name:     "sample queue depth",
			Interval: queueSampleInterval,
			Run: func(ctx context.Context) {
				n, err := c.queue.Len(ctx)
				if err != nil {
					a.logger.Warn().Err(err).Msg("failed to sample queue depth")

					return
				}

				observability.QueueDepth.Set(float64(n))
				a.logger.Debug().Int64(logFieldQueue, n).Msg("queue depth sampled")
			},
		}},
		Logger: a.logger,
	})
}

// SeedFactors upserts the built-in factor definitions.
func (a *App) SeedFactors(ctx context.Context) (int, error) {
	defs, err := factors.Builtin()
	if err != nil {
		return 0, err
	}

	if err := a.database.UpsertFactorDefinitions(ctx, defs); err != nil {
		return 0, err
	}

	a.logger.Info().Int("factors", len(defs)).Msg("factor definitions seeded")

	return len(defs), nil
}
