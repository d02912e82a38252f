package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/middleware"
)

// Schedule binds a job to its interval.
type Schedule struct {
	Job      Job
	Interval time.Duration
}

// Scheduler runs each job on its own ticker until the context is cancelled.
type Scheduler struct {
	schedules []Schedule
	locker    Locker
	lockTTL   time.Duration
	opts      RunOptions
	logger    zerolog.Logger
}

// NewScheduler constructs a scheduler. locker may be nil.
func NewScheduler(schedules []Schedule, locker Locker, lockTTL time.Duration, opts RunOptions, logger zerolog.Logger) *Scheduler {
	if locker == nil {
		locker = noopLocker{}
	}
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &Scheduler{
		schedules: schedules,
		locker:    locker,
		lockTTL:   lockTTL,
		opts:      opts,
		logger:    logger.With().Str("component", "worker_scheduler").Logger(),
	}
}

// Run blocks until ctx is done. Each job fires once on start and then on every tick.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, schedule := range s.schedules {
		if schedule.Interval <= 0 {
			s.logger.Warn().Str("worker", schedule.Job.Name()).Msg("schedule disabled, interval not positive")
			continue
		}

		wg.Add(1)
		go func(schedule Schedule) {
			defer wg.Done()
			s.loop(ctx, schedule)
		}(schedule)
	}
	wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, schedule Schedule) {
	ticker := time.NewTicker(schedule.Interval)
	defer ticker.Stop()

	s.logger.Info().Str("worker", schedule.Job.Name()).Dur("interval", schedule.Interval).Msg("schedule registered")

	for {
		runCtx := middleware.ContextWithCorrelation(ctx, uuid.NewString())
		runLogger := middleware.LoggerWithCorrelation(runCtx, s.logger)
		if _, err := RunLocked(runCtx, schedule.Job, s.locker, s.lockTTL, s.opts, runLogger); err != nil && !errors.Is(err, context.Canceled) {
			runLogger.Error().Err(err).Str("worker", schedule.Job.Name()).Msg("worker run failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunLocked runs job once while holding its lock. When another instance holds the
// lock the run is skipped and an empty report is returned. A lock backend failure
// does not block the run.
func RunLocked(ctx context.Context, job Job, locker Locker, ttl time.Duration, opts RunOptions, logger zerolog.Logger) (Report, error) {
	if locker == nil {
		locker = noopLocker{}
	}

	release, acquired, err := locker.Acquire(ctx, job.Name(), ttl)
	switch {
	case err != nil:
		logger.Warn().Err(err).Str("worker", job.Name()).Msg("run lock unavailable, running unlocked")
	case !acquired:
		logger.Info().Str("worker", job.Name()).Msg("run skipped, lock held elsewhere")
		return Report{Worker: job.Name(), DryRun: opts.DryRun}, nil
	default:
		defer release()
	}

	return job.Run(ctx, opts)
}
