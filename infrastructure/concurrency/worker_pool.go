// Package concurrency runs node operations off the request goroutine on a
// bounded set of workers.
package concurrency

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"flowstudio/application/ports"
	pkgerrors "flowstudio/pkg/errors"
	"flowstudio/pkg/observability"
)

// PoolConfig contains configuration for the worker pool
type PoolConfig struct {
	Workers   int
	QueueSize int
}

// DefaultWorkerCount sizes the pool for I/O bound work.
func DefaultWorkerCount() int {
	workers := runtime.NumCPU() * 2
	if workers > 20 {
		return 20
	}
	return workers
}

// WorkerPool executes tasks on a fixed number of goroutines. Workers start
// on the first submission. A panicking task is recovered and reported to
// its callback as an error; the worker keeps running.
type WorkerPool struct {
	config  PoolConfig
	queue   chan ports.Task
	ctx     context.Context
	cancel  context.CancelFunc
	closing chan struct{}
	logger  *zap.Logger
	metrics *observability.Collector

	// mu guards running and the closing of queue. Workers never take it.
	mu        sync.RWMutex
	wg        sync.WaitGroup
	running   bool
	started   sync.Once
	closeOnce sync.Once

	active atomic.Int64
	done   atomic.Int64
	failed atomic.Int64
	panics atomic.Int64
}

var _ ports.TaskRunner = (*WorkerPool)(nil)

// NewWorkerPool creates a pool whose tasks see a context derived from ctx.
func NewWorkerPool(ctx context.Context, config PoolConfig, metrics *observability.Collector, logger *zap.Logger) *WorkerPool {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkerCount()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	poolCtx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		config:  config,
		queue:   make(chan ports.Task, config.QueueSize),
		ctx:     poolCtx,
		cancel:  cancel,
		closing: make(chan struct{}),
		logger:  logger,
		metrics: metrics,
	}
}

func (p *WorkerPool) start() {
	p.started.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		select {
		case <-p.closing:
			return
		default:
		}

		for i := 0; i < p.config.Workers; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
		p.running = true
		p.logger.Debug("Worker pool started", zap.Int("workers", p.config.Workers), zap.Int("queue", p.config.QueueSize))
	})
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(id, task)
	}
}

func (p *WorkerPool) run(worker int, task ports.Task) {
	p.active.Add(1)
	err := p.execute(worker, task)
	p.active.Add(-1)
	p.done.Add(1)
	if err != nil {
		p.failed.Add(1)
	}

	if task.Callback != nil {
		task.Callback(task.ID, err)
	}
}

func (p *WorkerPool) execute(worker int, task ports.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", task.ID, r)
			p.panics.Add(1)
			if p.metrics != nil {
				p.metrics.TaskPanics.Inc()
			}
			p.logger.Error("Worker recovered from panic",
				zap.Int("worker", worker),
				zap.String("taskID", task.ID),
				zap.String("nodeID", task.NodeID),
				zap.Any("panic", r),
			)
		}
	}()
	return task.Execute(p.ctx)
}

// Submit queues task. When the queue is full it waits for room until ctx
// ends or the pool shuts down.
func (p *WorkerPool) Submit(ctx context.Context, task ports.Task) error {
	if task.Execute == nil {
		return pkgerrors.NewValidationError("task has nothing to execute")
	}
	p.start()

	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return pkgerrors.NewUnavailableError("worker pool")
	}

	select {
	case p.queue <- task:
		return nil
	default:
	}

	p.logger.Debug("Task queue full, waiting", zap.String("taskID", task.ID))
	select {
	case p.queue <- task:
		return nil
	case <-p.closing:
		return pkgerrors.NewUnavailableError("worker pool")
	case <-ctx.Done():
		return pkgerrors.Wrap(ctx.Err(), "submit task")
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish. When
// ctx ends first, running tasks are cancelled and Shutdown returns once
// they have returned.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.closeOnce.Do(func() { close(p.closing) })

	p.mu.Lock()
	wasRunning := p.running
	if p.running {
		p.running = false
		close(p.queue)
	}
	p.mu.Unlock()

	if !wasRunning {
		p.cancel()
		return nil
	}

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-drained
		return pkgerrors.NewTimeoutError("worker pool shutdown").WithCause(ctx.Err())
	}
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Workers       int  `json:"workers"`
	QueueLength   int  `json:"queue_length"`
	QueueCapacity int  `json:"queue_capacity"`
	Active        int  `json:"active"`
	Completed     int  `json:"completed"`
	Failed        int  `json:"failed"`
	Panics        int  `json:"panics"`
	Running       bool `json:"running"`
	Closed        bool `json:"closed"`
}

// Stats returns current pool statistics. Running stays false until the
// first submission starts the workers.
func (p *WorkerPool) Stats() Stats {
	closed := false
	select {
	case <-p.closing:
		closed = true
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{
		Workers:       p.config.Workers,
		QueueLength:   len(p.queue),
		QueueCapacity: cap(p.queue),
		Active:        int(p.active.Load()),
		Completed:     int(p.done.Load()),
		Failed:        int(p.failed.Load()),
		Panics:        int(p.panics.Load()),
		Running:       p.running,
		Closed:        closed,
	}
}
