// SafetyBot - Fleet Safety Event Monitoring and Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/safetybot

// Package scheduler fires jobs on interval or cron schedules.
//
// Each job has its own timer loop. A fire dispatches the job in a new
// goroutine so a slow run never delays the cadence; jobs that must not
// overlap guard themselves (the poll cycle uses a single-flight state).
// Stop waits for in-flight runs to return.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/safetybot/internal/logging"
)

// Job is a named unit of scheduled work.
type Job struct {
	Name     string
	Schedule Schedule
	// RunOnStart fires the job immediately when the scheduler starts.
	RunOnStart bool
	// Timeout bounds a single run. Zero means no limit.
	Timeout time.Duration
	Run     func(ctx context.Context)
}

// Scheduler runs registered jobs.
type Scheduler struct {
	logger zerolog.Logger
	now    func() time.Time

	mu      sync.Mutex
	jobs    []Job
	running bool
	stopCh  chan struct{}
	loops   sync.WaitGroup
	runs    sync.WaitGroup
}

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{
		logger: logging.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
}

// Add registers a job. Jobs must be added before Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Schedule == nil || job.Run == nil {
		return fmt.Errorf("job requires a name, schedule and run function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running, cannot add %s", job.Name)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.Name)
	}
	return names
}

// Start begins the job loops. Runs stop when ctx is canceled or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})

	for _, job := range s.jobs {
		s.logger.Info().
			Str("job", job.Name).
			Str("schedule", job.Schedule.String()).
			Bool("run_on_start", job.RunOnStart).
			Msg("Scheduling job")
		s.loops.Add(1)
		go s.loop(ctx, job, s.stopCh)
	}
	return nil
}

// Stop ends the job loops and waits for in-flight runs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	s.loops.Wait()
	s.runs.Wait()
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job, stopCh <-chan struct{}) {
	defer s.loops.Done()

	// Runs observe both the parent context and Stop.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	if job.RunOnStart {
		s.dispatch(runCtx, job)
	}

	for {
		now := s.now()
		next := job.Schedule.Next(now)
		if next.IsZero() {
			s.logger.Warn().Str("job", job.Name).Msg("Schedule has no future fire time, job disabled")
			return
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-timer.C:
			s.dispatch(runCtx, job)
		case <-runCtx.Done():
			timer.Stop()
			return
		}
	}
}

func (s *Scheduler) dispatch(ctx context.Context, job Job) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Str("job", job.Name).Interface("panic", r).Msg("Scheduled job panicked")
			}
		}()

		if job.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, job.Timeout)
			defer cancel()
		}

		start := s.now()
		job.Run(ctx)
		s.logger.Debug().Str("job", job.Name).Dur("duration", s.now().Sub(start)).Msg("Job run finished")
	}()
}
