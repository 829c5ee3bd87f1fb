package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/semmidev/dbtoolkit/internal/domain"
)

var (
	ErrQueueFull = domain.ErrQueueFull
	ErrStopped   = errors.New("worker pool is stopped")
)

// Task is one unit of background work. The context is cancelled when the
// pool is stopped without enough time to drain.
type Task = func(ctx context.Context) error

type Config struct {
	Workers   int
	QueueSize int

	// OnError receives task errors, including recovered panics.
	OnError func(key string, err error)
}

type job struct {
	key  string
	task Task
}

// Pool runs tasks on a fixed set of goroutines fed by a bounded queue.
type Pool struct {
	config Config
	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
	started bool

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
}

type Stats struct {
	Workers   int   `json:"workers"`
	Active    int64 `json:"active"`
	Queued    int   `json:"queued"`
	Capacity  int   `json:"capacity"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panicked  int64 `json:"panicked"`
}

func New(config Config) *Pool {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.Workers * 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		config: config,
		queue:  make(chan job, config.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
}

func (p *Pool) work() {
	defer p.wg.Done()
	for j := range p.queue {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	p.active.Add(1)
	defer p.active.Add(-1)

	err := p.safeCall(j)
	if err != nil {
		p.failed.Add(1)
		if p.config.OnError != nil {
			p.config.OnError(j.key, err)
		}
		return
	}
	p.completed.Add(1)
}

func (p *Pool) safeCall(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			err = fmt.Errorf("task %s panicked: %v\n%s", j.key, r, debug.Stack())
		}
	}()
	return j.task(p.ctx)
}

// TrySubmit enqueues without blocking. It fails with ErrQueueFull when every
// slot is taken.
func (p *Pool) TrySubmit(key string, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}

	select {
	case p.queue <- job{key: key, task: task}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new work and lets queued tasks finish. If ctx expires first,
// running tasks are cancelled and Stop waits for them to return.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if !started {
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   p.config.Workers,
		Active:    p.active.Load(),
		Queued:    len(p.queue),
		Capacity:  cap(p.queue),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panicked:  p.panicked.Load(),
	}
}
