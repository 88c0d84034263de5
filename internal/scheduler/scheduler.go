// Package scheduler triggers periodic pipeline runs in serve mode.
//
// Each tick re-runs the full batch; the loader's upsert semantics make the
// repeat runs converge instead of accumulating. Runs are serialized with a
// mutex so overlapping ticks cannot interleave loads.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"weather-etl/internal/etl"
)

// Scheduler runs the pipeline on a cron schedule.
type Scheduler struct {
	pipeline   *etl.Pipeline
	runTimeout time.Duration
	cron       *cron.Cron

	runMu sync.Mutex // serializes pipeline runs

	mu      sync.Mutex // guards lastRun/lastErr
	lastRun *etl.RunSummary
	lastErr error
}

// New creates a scheduler around the given pipeline. runTimeout bounds each
// scheduled run.
func New(pipeline *etl.Pipeline, runTimeout time.Duration) *Scheduler {
	return &Scheduler{
		pipeline:   pipeline,
		runTimeout: runTimeout,
		cron:       cron.New(),
	}
}

// Start registers the cron spec and begins scheduling. Returns an error for
// an invalid spec.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.runJob); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("scheduler started", "cron", spec)
	return nil
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()

	// A job started before Stop may still be running; taking the run mutex
	// blocks until it has finished.
	s.runMu.Lock()
	defer s.runMu.Unlock()
	slog.Info("scheduler stopped")
}

// runJob executes one pipeline run. Failures are logged and recorded, never
// fatal: the next tick gets a fresh attempt.
func (s *Scheduler) runJob() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	summary, err := s.pipeline.Run(ctx)

	s.mu.Lock()
	s.lastRun = summary
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		slog.Error("scheduled run failed", "error", err)
	}
}

// LastRun returns the most recent run summary and error, if any run has
// happened yet.
func (s *Scheduler) LastRun() (*etl.RunSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}
