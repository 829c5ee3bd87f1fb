package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

type Logger interface {
	Infof(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// cronLogger adapts the sugared logger interface to cron.Logger.
type cronLogger struct {
	log Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Infof("cron: %s %v", msg, keysAndValues)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Errorf("cron: %s: %v %v", msg, err, keysAndValues)
}

// Scheduler runs named jobs on six-field cron specs. A panicking job is
// recovered and logged; the schedule keeps running. Jobs see a context that
// is cancelled on Stop.
type Scheduler struct {
	cron   *cron.Cron
	log    Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(log Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{log: log}
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cl)), cron.WithLogger(cron.DiscardLogger)),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) AddJob(name, spec string, job func(context.Context) error) (cron.EntryID, error) {
	id, err := s.cron.AddFunc(spec, func() {
		if err := job(s.ctx); err != nil {
			s.log.Errorf("[%s] scheduled job failed: %v", name, err)
		}
	})
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q for %s: %w", spec, name, err)
	}
	s.log.Infof("[%s] scheduled with %q", name, spec)
	return id, nil
}

func (s *Scheduler) Remove(id cron.EntryID) {
	s.cron.Remove(id)
}

func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels the job context and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}
