// Package scheduler runs named background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

const defaultJobTimeout = 2 * time.Minute

// Runner wraps a cron scheduler. Overlapping runs of the same job are skipped
// and panics inside a job are recovered.
type Runner struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]Job

	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger zerolog.Logger) *Runner {
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		timeout: defaultJobTimeout,
		jobs:    make(map[string]Job),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers job under name on the given cron spec (standard five-field
// syntax or descriptors such as "@every 5m").
func (r *Runner) Add(spec, name string, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	if _, err := r.cron.AddFunc(spec, func() { _ = r.run(r.ctx, name, job) }); err != nil {
		return fmt.Errorf("schedule %q: %w", name, err)
	}
	r.jobs[name] = job
	return nil
}

// RunNow executes a registered job synchronously and returns its error.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	r.mu.Lock()
	job, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not registered", name)
	}
	return r.run(ctx, name, job)
}

func (r *Runner) run(parent context.Context, name string, job Job) error {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	start := time.Now()
	err := job(ctx)
	evt := r.logger.Info()
	if err != nil {
		evt = r.logger.Error().Err(err)
	}
	evt.Str("job", name).Dur("duration", time.Since(start)).Msg("job finished")
	return err
}

func (r *Runner) Start() {
	r.cron.Start()
	r.logger.Info().Int("jobs", len(r.cron.Entries())).Msg("scheduler started")
}

// Stop prevents new runs, cancels running jobs' context and waits for them
// to return or for ctx to expire.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	r.cancel()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
