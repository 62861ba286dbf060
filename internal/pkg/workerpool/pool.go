package workerpool

import (
	"context"
	"errors"
	"sync"

	"github.com/paulexconde/bizassess/internal/logger"
)

var ErrClosed = errors.New("worker pool closed")

type Job func(ctx context.Context)

type WorkerPool struct {
	queue  chan Job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	log    *logger.Logger
}

func NewWorkerPool(ctx context.Context, log *logger.Logger, workerCount int, queueSize int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	pool := &WorkerPool{
		queue: make(chan Job, queueSize),
		log:   log,
	}

	for range workerCount {
		go pool.worker(ctx)
	}

	return pool
}

func (p *WorkerPool) worker(ctx context.Context) {
	for job := range p.queue {
		if ctx.Err() != nil {
			// Drain without running so Wait still returns.
			p.wg.Done()
			continue
		}
		p.run(ctx, job)
	}
}

func (p *WorkerPool) run(ctx context.Context, job Job) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker pool job panicked", "panic", r)
		}
	}()
	job(ctx)
}

// SubmitWait enqueues job, blocking until there is room or ctx is done.
func (p *WorkerPool) SubmitWait(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	p.wg.Add(1)
	select {
	case p.queue <- job:
		return nil
	case <-ctx.Done():
		p.wg.Done()
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
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
	case <-ctx.Done():
		p.log.Warn("worker pool shutdown timed out")
		return ctx.Err()
	case <-done:
		p.log.Debug("worker pool shutdown complete")
		return nil
	}
}
