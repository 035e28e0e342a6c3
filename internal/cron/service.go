package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/metrics"
)

const (
	defaultTick       = time.Minute
	defaultJobTimeout = 10 * time.Minute
	lockGrace         = time.Minute
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Locks    Locker
	Metrics  *metrics.CronJobMetrics
	// Tick is how often the registry is checked for due jobs.
	Tick time.Duration
	// JobTimeout bounds a single job run. Defaults to 10 minutes.
	JobTimeout time.Duration
}

// Service runs due jobs, each under its own lock.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	locks      Locker
	metrics    *metrics.CronJobMetrics
	tick       time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Locks == nil {
		return nil, fmt.Errorf("job locks required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	jobTimeout := params.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		locks:      params.Locks,
		metrics:    params.Metrics,
		tick:       tick,
		jobTimeout: jobTimeout,
		now:        time.Now,
	}, nil
}

// Run checks for due jobs every tick until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.runDue(ctx)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// RunOnce runs every registered job now, ignoring cadence. Locks still
// apply, so a job held by another replica is skipped.
func (s *Service) RunOnce(ctx context.Context) error {
	var failed []string
	for _, job := range s.registry.Jobs() {
		if err := s.runLocked(ctx, job); err != nil {
			failed = append(failed, job.Name())
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("cron jobs failed: %v", failed)
	}
	return nil
}

func (s *Service) runDue(ctx context.Context) {
	for _, job := range s.registry.Due(s.now()) {
		_ = s.runLocked(ctx, job)
	}
}

// runLocked claims the job lock for its whole cadence. A successful run
// keeps the claim until it expires, so other replicas skip the job until
// the next slot; a failed run gives it back for a retry on the next tick.
func (s *Service) runLocked(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

	lock, err := s.locks.For(name, s.hold(name))
	if err != nil {
		s.logg.Error(jobCtx, "cron.lock_unavailable", err)
		return err
	}
	claimed, err := lock.Acquire(ctx)
	if err != nil {
		s.logg.Error(jobCtx, "cron.lock_acquire_failed", err)
		return err
	}
	s.registry.MarkRan(name, s.now())
	if !claimed {
		s.logg.Info(jobCtx, "job held by another replica; skipping")
		return nil
	}

	if err := s.runJob(jobCtx, job); err != nil {
		if relErr := lock.Release(ctx); relErr != nil {
			s.logg.Error(jobCtx, "cron.lock_release_failed", relErr)
		}
		return err
	}
	return nil
}

// hold is the lock TTL of a job: its cadence, and never shorter than a
// full run plus grace.
func (s *Service) hold(name string) time.Duration {
	hold := s.jobTimeout + lockGrace
	if every, ok := s.registry.Cadence(name); ok && every > hold {
		hold = every
	}
	return hold
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	s.logg.Info(ctx, "job start")
	start := s.now()
	runCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	err := job.Run(runCtx)
	cancel()
	duration := s.now().Sub(start)
	if s.metrics != nil {
		s.metrics.ObserveDuration(job.Name(), duration)
	}
	ctx = s.logg.WithField(ctx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		if s.metrics != nil {
			s.metrics.IncFailure(job.Name())
		}
		return err
	}
	s.logg.Info(ctx, "job completed")
	if s.metrics != nil {
		s.metrics.IncSuccess(job.Name())
	}
	return nil
}
