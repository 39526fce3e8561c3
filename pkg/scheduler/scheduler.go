// Package scheduler runs periodic jobs on robfig/cron with context-aware shutdown.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	applogger "Overlord/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Job is one periodic unit of work. The context is cancelled when the
// scheduler stops.
type Job func(ctx context.Context)

// Scheduler wraps a cron instance. Runs of the same job may overlap; jobs are
// expected to tolerate that themselves.
type Scheduler struct {
	cron *cron.Cron
	log  *applogger.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	jobs   map[string]cron.EntryID
}

// New creates a scheduler whose panics are recovered and logged.
func New(l *applogger.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	adapter := cronLogger{l: l}
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(adapter)), cron.WithLogger(adapter)),
		log:    l,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]cron.EntryID),
	}
}

// Every registers job under name to run at a fixed interval (whole seconds).
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval < time.Second {
		return fmt.Errorf("job %s: interval %s below 1s", name, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	ctx := s.ctx
	id := s.cron.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		job(ctx)
	}))
	s.jobs[name] = id

	s.log.Debug("job scheduled",
		applogger.String("job", name),
		applogger.Duration("interval", interval),
	)
	return nil
}

// Remove unregisters a job by name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Debug("scheduler stopped")
}

type cronLogger struct {
	l *applogger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, applogger.Any("kv", keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, applogger.Error(err), applogger.Any("kv", keysAndValues))
}
