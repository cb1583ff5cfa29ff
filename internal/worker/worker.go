// Package worker runs background tasks on a bounded pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

var (
	// ErrQueueFull is returned by Submit when every worker is busy and the queue is at capacity.
	ErrQueueFull = errors.New("worker queue full")
	// ErrStopped is returned by Submit after Stop has been called.
	ErrStopped = errors.New("worker pool stopped")
)

// Task is a unit of background work.
type Task struct {
	// Name identifies the task in logs ("discovery:01H...").
	Name string
	Run  func(ctx context.Context)
	// OnPanic is called with the recovered value if Run panics. May be nil.
	OnPanic func(ctx context.Context, recovered any)
}

// Config holds pool configuration.
type Config struct {
	Concurrency int // Default: 4
	QueueSize   int // Default: 256
}

// Pool executes submitted tasks on Concurrency goroutines.
type Pool struct {
	queue       chan Task
	concurrency int
	mu          sync.RWMutex
	stopped     bool
	wg          sync.WaitGroup
	running     atomic.Int64
	logger      *slog.Logger
	// OnTaskDone, when set, is called after every task with whether it panicked.
	OnTaskDone func(name string, panicked bool)
}

// New creates a pool. Call Start before submitting.
func New(cfg Config, logger *slog.Logger) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:       make(chan Task, cfg.QueueSize),
		concurrency: cfg.Concurrency,
		logger:      logger.With("component", "worker"),
	}
}

// Start launches the workers. Tasks run with ctx; it should outlive individual requests.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting", "concurrency", p.concurrency, "queue_size", cap(p.queue))
	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Submit queues t without blocking.
func (p *Pool) Submit(t Task) error {
	if t.Run == nil {
		return fmt.Errorf("task %q has no Run func", t.Name)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.queue <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of queued tasks not yet picked up.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Busy reports whether any task is queued or running.
func (p *Pool) Busy() bool {
	return p.running.Load() > 0 || len(p.queue) > 0
}

// Stop refuses new tasks, drains the queue and waits for in-flight tasks.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.logger.Info("stopping")
	p.wg.Wait()
	p.logger.Info("stopped")
}

func (p *Pool) runWorker(ctx context.Context, workerID int) {
	defer p.wg.Done()
	for t := range p.queue {
		p.execute(ctx, workerID, t)
	}
}

func (p *Pool) execute(ctx context.Context, workerID int, t Task) {
	p.running.Add(1)
	panicked := false
	defer func() {
		p.running.Add(-1)
		if r := recover(); r != nil {
			panicked = true
			p.logger.Error("task panicked",
				"worker_id", workerID,
				"task", t.Name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			if t.OnPanic != nil {
				p.safeOnPanic(ctx, t, r)
			}
		}
		if p.OnTaskDone != nil {
			p.OnTaskDone(t.Name, panicked)
		}
	}()

	p.logger.Debug("running task", "worker_id", workerID, "task", t.Name)
	t.Run(ctx)
}

// safeOnPanic keeps a panicking handler from taking the worker down.
func (p *Pool) safeOnPanic(ctx context.Context, t Task, recovered any) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic handler panicked", "task", t.Name, "panic", r)
		}
	}()
	t.OnPanic(ctx, recovered)
}
