package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
)

const defaultInterval = 15 * time.Minute

// ServiceParams configure the cron service. JobTimeout bounds each job run;
// zero leaves jobs bounded only by the worker's context.
type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronJobMetrics
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs the registered circulation jobs on a fixed cadence, one
// replica at a time.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

// CycleReport summarizes one pass over the registry.
type CycleReport struct {
	CycleID  string
	Skipped  bool
	Ran      []string
	Failed   []string
	Duration time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: params.JobTimeout,
	}, nil
}

// Run executes a cycle immediately and then once per interval until ctx is
// canceled.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"interval": s.interval.String(),
		"jobs":     s.registry.Names(),
	})
	s.logg.Info(ctx, "cron.started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs a single locked cycle. Failures are logged and reported, never
// returned, so a bad cycle does not stop the worker.
func (s *Service) RunOnce(ctx context.Context) CycleReport {
	report := CycleReport{CycleID: uuid.NewString()}
	ctx = s.logg.WithField(ctx, "cycle_id", report.CycleID)
	start := time.Now()

	if err := s.runCycle(ctx, &report); err != nil {
		s.logg.Error(ctx, "cron.cycle_failed", err)
	}
	report.Duration = time.Since(start)
	if report.Skipped {
		s.metrics.CycleSkipped()
	} else {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"ran":         report.Ran,
			"failed":      report.Failed,
			"duration_ms": report.Duration.Milliseconds(),
		}), "cron.cycle_complete")
	}
	return report
}

func (s *Service) runCycle(ctx context.Context, report *CycleReport) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		report.Skipped = true
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		report.Skipped = true
		s.logg.Info(ctx, "cron.lock_held_elsewhere")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", relErr)
		}
	}()

	for _, job := range s.registry.Jobs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Ran = append(report.Ran, job.Name())
		if !s.runJob(ctx, job) {
			report.Failed = append(report.Failed, job.Name())
		}
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) bool {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(ctx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)

	ctx = s.logg.WithField(ctx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.metrics.IncFailure(job.Name())
		s.logg.Error(ctx, "cron.job_failed", err)
		return false
	}
	s.metrics.IncSuccess(job.Name())
	s.logg.Info(ctx, "cron.job_completed")
	return true
}
