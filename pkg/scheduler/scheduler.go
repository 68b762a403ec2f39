// Package scheduler runs named periodic jobs on robfig/cron with a seconds field.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	applogger "CandleCast/pkg/logger"

	"github.com/robfig/cron/v3"
)

// JobFunc is one scheduled run. The context is cancelled on Stop.
type JobFunc func(ctx context.Context) error

// Scheduler owns a cron instance. A run that is still in flight when its next
// tick fires is skipped rather than queued.
type Scheduler struct {
	cron   *cron.Cron
	log    *applogger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]JobFunc
}

func New(l *applogger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		log:    l.With(applogger.String("component", "scheduler")),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]JobFunc),
	}
}

// Add registers fn under name with a six-field cron spec.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}
	if _, err := s.cron.AddFunc(spec, func() { s.run(name, fn) }); err != nil {
		return fmt.Errorf("scheduler: job %q spec %q: %w", name, spec, err)
	}
	s.jobs[name] = fn
	s.log.Info("job scheduled", applogger.String("job", name), applogger.String("spec", spec))
	return nil
}

// RunNow executes a registered job synchronously, outside the schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	fn, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	return s.run(name, fn)
}

func (s *Scheduler) run(name string, fn JobFunc) error {
	start := time.Now()
	err := fn(s.ctx)
	if err != nil {
		s.log.Error("scheduled job failed",
			applogger.String("job", name),
			applogger.Duration("elapsed", time.Since(start)),
			applogger.Error(err))
		return err
	}
	s.log.Debug("scheduled job done", applogger.String("job", name), applogger.Duration("elapsed", time.Since(start)))
	return nil
}

// Len is the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs' context and waits for them up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}
