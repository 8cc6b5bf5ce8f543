// Package worker runs background loops that drain queued work and run periodic housekeeping.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	logFieldWorker = "worker"
	logFieldTask   = "task"
)

// ProcessFunc handles at most one unit of work. processed is false when nothing was available,
// which makes the loop wait PollInterval before the next attempt.
type ProcessFunc func(ctx context.Context) (processed bool, err error)

// PeriodicTask represents a task that runs at regular intervals.
type PeriodicTask struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
	lastRun  time.Time
}

// Config configures the worker loop behavior.
type Config struct {
	// Name identifies the worker for logging.
	Name string

	// PollInterval is the pause after an iteration that found no work or failed.
	PollInterval time.Duration

	// Process is called each iteration to do the main work.
	Process ProcessFunc

	// PeriodicTasks are run at their configured intervals.
	PeriodicTasks []PeriodicTask

	// OnError is called when Process returns an error.
	// Return true to continue, false to exit the loop.
	OnError func(err error) bool

	Logger *zerolog.Logger
}

// Loop runs the worker until ctx is canceled or OnError asks it to stop.
func Loop(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	logger.Info().Str(logFieldWorker, cfg.Name).Msg("starting worker loop")
	defer logger.Info().Str(logFieldWorker, cfg.Name).Msg("worker loop stopped")

	periodicTasks := make([]PeriodicTask, len(cfg.PeriodicTasks))
	copy(periodicTasks, cfg.PeriodicTasks)

	for {
		if err := checkCanceled(ctx, cfg.Name); err != nil {
			return err
		}

		runPeriodicTasks(ctx, periodicTasks, logger)

		processed, err := runProcessStep(ctx, cfg, logger)
		if err != nil {
			return err
		}

		if processed {
			continue
		}

		if err := Wait(ctx, cfg.PollInterval); err != nil {
			return err
		}
	}
}

func runPeriodicTasks(ctx context.Context, tasks []PeriodicTask, logger *zerolog.Logger) {
	now := time.Now()

	for i := range tasks {
		task := &tasks[i]
		if task.Interval <= 0 || task.Run == nil {
			continue
		}

		if now.Sub(task.lastRun) >= task.Interval {
			logger.Debug().Str(logFieldTask, task.Name).Msg("running periodic task")
			task.Run(ctx)
			task.lastRun = now
		}
	}
}

func runProcessStep(ctx context.Context, cfg Config, logger *zerolog.Logger) (bool, error) {
	if cfg.Process == nil {
		return false, nil
	}

	processed, err := safeProcess(ctx, cfg.Process, logger, cfg.Name)
	if err == nil {
		return processed, nil
	}

	if ctx.Err() != nil {
		return false, fmt.Errorf("worker loop %s: %w", cfg.Name, ctx.Err())
	}

	if cfg.OnError != nil {
		if !cfg.OnError(err) {
			return false, err
		}

		return false, nil
	}

	logger.Error().Err(err).Str(logFieldWorker, cfg.Name).Msg("process error")

	return false, nil
}

// safeProcess turns a panic in fn into an error so one bad job does not stop the loop.
func safeProcess(ctx context.Context, fn ProcessFunc, logger *zerolog.Logger, name string) (processed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str(logFieldWorker, name).Msg("recovered from panic")

			processed, err = true, fmt.Errorf("worker %s panicked: %v", name, r)
		}
	}()

	return fn(ctx)
}

func checkCanceled(ctx context.Context, name string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("worker loop %s: %w", name, ctx.Err())
	default:
		return nil
	}
}

// Wait blocks until duration elapses or context is canceled.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
