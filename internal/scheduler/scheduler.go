// Package scheduler wires up the cron jobs that run every watch, sweep
// expired guest watches and prune the match log.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"jobmate/watch-service/internal/model"
)

// Jobs is the work the scheduler triggers.
type Jobs interface {
	RunAll(ctx context.Context) (*model.BatchReport, error)
	SweepExpired(ctx context.Context) (int64, error)
	PruneMatches(ctx context.Context) (int64, error)
}

// Config holds cron specs ("@daily", "@every 1h", "0 6 * * *"). An empty
// spec leaves that job unscheduled.
type Config struct {
	RunAll    string
	Sweep     string
	Retention string
	// RunOnStart fires one RunAll as soon as Start returns.
	RunOnStart bool
}

// Scheduler wraps robfig/cron. Batch runs never overlap: a tick that
// arrives while a batch is still going is skipped, and Trigger waits.
type Scheduler struct {
	cron *cron.Cron
	jobs Jobs
	cfg  Config
	log  *zap.Logger
	mu   sync.Mutex // serializes RunAll
}

// New creates a Scheduler; nothing runs until Start.
func New(jobs Jobs, cfg Config, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cron.PrintfLogger(zap.NewStdLog(log.Named("cron")))
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		jobs: jobs,
		cfg:  cfg,
		log:  log,
	}
}

// Start registers the jobs and starts the cron loop. ctx is handed to
// every job run.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		fn   func(context.Context)
	}{
		{"run-all", s.cfg.RunAll, func(ctx context.Context) { _, _ = s.Trigger(ctx) }},
		{"sweep", s.cfg.Sweep, s.sweep},
		{"retention", s.cfg.Retention, s.prune},
	}
	for _, j := range jobs {
		if j.spec == "" {
			continue
		}
		fn := j.fn
		if _, err := s.cron.AddFunc(j.spec, func() { fn(ctx) }); err != nil {
			return fmt.Errorf("schedule %s %q: %w", j.name, j.spec, err)
		}
		s.log.Info("job scheduled", zap.String("job", j.name), zap.String("spec", j.spec))
	}

	s.cron.Start()
	if s.cfg.RunOnStart {
		go func() { _, _ = s.Trigger(ctx) }()
	}
	return nil
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Trigger runs every watch now. It is the on-demand counterpart of the
// scheduled run-all job.
func (s *Scheduler) Trigger(ctx context.Context) (*model.BatchReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Info("run-all started")
	report, err := s.jobs.RunAll(ctx)
	if err != nil {
		s.log.Error("run-all failed", zap.Error(err))
		return nil, err
	}
	if len(report.Traces) == 0 {
		s.log.Info("no runnable watches; nothing to do")
	}
	return report, nil
}

func (s *Scheduler) sweep(ctx context.Context) {
	if _, err := s.jobs.SweepExpired(ctx); err != nil {
		s.log.Error("expiry sweep failed", zap.Error(err))
	}
}

func (s *Scheduler) prune(ctx context.Context) {
	if _, err := s.jobs.PruneMatches(ctx); err != nil {
		s.log.Error("match retention failed", zap.Error(err))
	}
}
