// Package queue runs background tasks on a fixed set of workers, detached
// from the request that submitted them.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/moltasthornblom/beam/core/metrics"
	"github.com/moltasthornblom/beam/logger"
)

var (
	ErrQueueFull  = errors.New("task queue is full")
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// Task is one unit of background work. ctx is cancelled on Shutdown.
type Task struct {
	Name string
	Run  func(ctx context.Context)
}

// WorkerPool runs Tasks on a fixed number of goroutines.
type WorkerPool struct {
	tasks  chan Task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts workerCount workers sharing a queue of queueSize tasks.
func NewWorkerPool(workerCount, queueSize int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		tasks:  make(chan Task, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	return p
}

func (p *WorkerPool) work(id int) {
	defer p.wg.Done()
	for {
		select {
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			metrics.QueueDepth.Dec()
			if p.ctx.Err() != nil {
				logger.Warn("Dropping task after shutdown", logger.Int("worker", id), logger.String("task", task.Name))
				continue
			}
			p.run(id, task)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *WorkerPool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Task panicked",
				logger.Int("worker", id),
				logger.String("task", task.Name),
				logger.String("panic", fmt.Sprint(r)))
		}
	}()
	logger.Debug("Task started", logger.Int("worker", id), logger.String("task", task.Name))
	task.Run(p.ctx)
}

// Submit enqueues task without blocking. It fails with ErrQueueFull when
// every slot is taken and ErrPoolClosed after Shutdown.
func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		metrics.QueueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks, cancels running ones and waits for the
// workers to exit or ctx to expire.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
