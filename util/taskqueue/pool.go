package taskqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tripbot/util/metrics"
)

const taskTimeout = 2 * time.Minute

// Pool is an in-process Submitter backed by a bounded channel and a fixed
// number of workers.
type Pool struct {
	h   Handler
	log *slog.Logger

	mu     sync.RWMutex
	queue  chan Task
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(workers, size int, h Handler, log *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = workers
	}
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{h: h, log: log, queue: make(chan Task, size), ctx: ctx, cancel: cancel}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit enqueues t without blocking.
func (p *Pool) Submit(_ context.Context, t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- t:
		metrics.QueueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for t := range p.queue {
		metrics.QueueDepth.Dec()
		p.run(id, t)
	}
}

func (p *Pool) run(id int, t Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task panicked", "worker_id", id, "task_id", t.ID, "panic", r)
		}
	}()
	ctx, cancel := context.WithTimeout(p.ctx, taskTimeout)
	defer cancel()
	// Mux already logs failures.
	_ = p.h.Handle(ctx, t)
}

// Close stops accepting tasks and waits for queued ones to finish. If ctx
// expires first, running tasks are cancelled.
func (p *Pool) Close(ctx context.Context) error {
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
		<-done
		return ctx.Err()
	}
}
