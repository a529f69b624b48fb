package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sherlocker/sherlocker-backend/pkg/logger"
	"github.com/sherlocker/sherlocker-backend/pkg/metrics"
)

const day = 24 * time.Hour

// errLeaseLost stops a run whose lock expired under it; another replica may
// already be charging the same subscriptions.
var errLeaseLost = errors.New("cron lock lost during run")

// Job represents a task that runs inside a schedule.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule is a group of jobs that runs once a day at Offset past UTC
// midnight, in order, while holding its own lock.
type Schedule struct {
	Name   string
	Offset time.Duration
	Lock   Lock
	Jobs   []Job
}

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger    *logger.Logger
	Schedules []Schedule
	Metrics   *metrics.CronJobMetrics
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service executes schedules on their daily cadence.
type Service struct {
	logg      *logger.Logger
	schedules []Schedule
	metrics   *metrics.CronJobMetrics
	now       func() time.Time
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if len(params.Schedules) == 0 {
		return nil, fmt.Errorf("at least one schedule required")
	}
	seen := map[string]bool{}
	schedules := make([]Schedule, 0, len(params.Schedules))
	for _, sched := range params.Schedules {
		if sched.Name == "" {
			return nil, fmt.Errorf("schedule name required")
		}
		if seen[sched.Name] {
			return nil, fmt.Errorf("duplicate schedule %q", sched.Name)
		}
		if sched.Lock == nil {
			return nil, fmt.Errorf("schedule %q: lock required", sched.Name)
		}
		if sched.Offset < 0 || sched.Offset >= day {
			return nil, fmt.Errorf("schedule %q: offset must be within a day", sched.Name)
		}
		jobs := make([]Job, 0, len(sched.Jobs))
		for _, job := range sched.Jobs {
			if job != nil {
				jobs = append(jobs, job)
			}
		}
		sched.Jobs = jobs
		seen[sched.Name] = true
		schedules = append(schedules, sched)
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		logg:      params.Logger,
		schedules: schedules,
		metrics:   params.Metrics,
		now:       clock,
	}, nil
}

// Run drives every schedule until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var wg sync.WaitGroup
	for _, sched := range s.schedules {
		wg.Add(1)
		go func(sched Schedule) {
			defer wg.Done()
			s.loop(ctx, sched)
		}(sched)
	}
	wg.Wait()
	s.logg.Info(ctx, "cron service context canceled")
	return ctx.Err()
}

// RunNow executes the named schedule once, outside its cadence.
func (s *Service) RunNow(ctx context.Context, name string) error {
	for _, sched := range s.schedules {
		if sched.Name == name {
			return s.runSchedule(ctx, sched)
		}
	}
	return fmt.Errorf("unknown schedule %q", name)
}

func (s *Service) loop(ctx context.Context, sched Schedule) {
	schedCtx := s.logg.WithField(ctx, "schedule", sched.Name)
	for {
		now := s.now().UTC()
		next := nextRun(now, sched.Offset)
		s.logg.Info(s.logg.WithField(schedCtx, "next_run", next), "schedule armed")

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := s.runSchedule(ctx, sched); err != nil {
				s.logg.Error(schedCtx, "scheduled run failed", err)
			}
		}
	}
}

// nextRun returns the first instant after now that falls offset past a UTC midnight.
func nextRun(now time.Time, offset time.Duration) time.Time {
	y, m, d := now.UTC().Date()
	candidate := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(offset)
	if !candidate.After(now) {
		candidate = candidate.Add(day)
	}
	return candidate
}

func (s *Service) runSchedule(ctx context.Context, sched Schedule) error {
	ctx = s.logg.WithField(ctx, "schedule", sched.Name)
	locked, err := sched.Lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		return nil
	}
	defer func() {
		if relErr := sched.Lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if renewer, ok := sched.Lock.(LeaseRenewer); ok {
		stop := s.keepLease(runCtx, cancel, renewer)
		defer stop()
	}

	s.logg.Info(ctx, "scheduled run starting")
	for _, job := range sched.Jobs {
		if runCtx.Err() != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errLeaseLost
		}
		s.runJob(runCtx, job)
	}
	if runCtx.Err() != nil && ctx.Err() == nil {
		return errLeaseLost
	}
	s.logg.Info(ctx, "scheduled run complete")
	return nil
}

// keepLease renews the schedule lock in the background and cancels the run
// when the lease is gone. The returned func stops renewal and waits for it.
func (s *Service) keepLease(ctx context.Context, cancel context.CancelFunc, renewer LeaseRenewer) func() {
	interval := renewer.RefreshInterval()
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				held, err := renewer.Refresh(ctx)
				switch {
				case err != nil:
					// Transient; the lease still has two intervals left.
					s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cron lock refresh failed")
				case !held:
					s.logg.Warn(ctx, "cron lock lost; stopping run")
					cancel()
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}

// runJob never stops the schedule: a failing job is logged and counted.
func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithJob(ctx, job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")
	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.Record(job.Name(), duration, s.now(), err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return
	}
	s.logg.Info(jobCtx, "job completed")
}
