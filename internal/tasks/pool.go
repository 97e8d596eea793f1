package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/your-org/facewatch/internal/apperr"
	"github.com/your-org/facewatch/internal/observability"
)

// Func is a unit of background work. The context is cancelled when the
// pool is shut down past its drain deadline.
type Func func(ctx context.Context)

type job struct {
	name string
	fn   Func
}

// Pool runs fire-and-forget work on a fixed set of workers fed by a
// bounded queue.
type Pool struct {
	queue  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  make(chan job, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for j := range p.queue {
		observability.BackgroundQueueDepth.Set(float64(len(p.queue)))
		p.run(id, j)
	}
}

func (p *Pool) run(workerID int, j job) {
	defer func() {
		if r := recover(); r != nil {
			observability.BackgroundPanics.WithLabelValues(j.name).Inc()
			slog.Error("background task panicked", "task", j.name, "worker", workerID, "panic", fmt.Sprint(r))
		}
	}()
	j.fn(p.ctx)
}

// Submit enqueues fn without blocking. It returns ErrQueueUnavailable when
// the queue is full or the pool is shutting down.
func (p *Pool) Submit(name string, fn Func) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		observability.BackgroundRejected.WithLabelValues(name).Inc()
		return apperr.ErrQueueUnavailable.WithMessage("background pool is shut down")
	}

	select {
	case p.queue <- job{name: name, fn: fn}:
		observability.BackgroundQueueDepth.Set(float64(len(p.queue)))
		return nil
	default:
		observability.BackgroundRejected.WithLabelValues(name).Inc()
		slog.Warn("background queue full, task dropped", "task", name)
		return apperr.ErrQueueUnavailable.WithMessage("background queue is full")
	}
}

// Shutdown stops accepting work and waits for queued tasks to finish.
// When ctx expires first, running tasks see their context cancelled and
// ctx.Err() is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

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
		return ctx.Err()
	}
}
