package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("worker pool is shutting down")

// Task is a blocking unit of work hosted on a pool worker.
type Task func(ctx context.Context) (any, error)

type result struct {
	val any
	err error
}

type work struct {
	ctx  context.Context
	task Task
	out  chan result
}

// Pool runs blocking tasks on a small fixed set of workers so callers never
// hold more than `workers` subprocesses at once.
type Pool struct {
	logger  *slog.Logger
	workers int

	ch   chan work
	wg   sync.WaitGroup
	once sync.Once

	// quit is closed by Shutdown; senders tracks Submits between the closed
	// check and their send so ch is closed only once none remain.
	quit    chan struct{}
	senders sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan work, n)
		}
	}
}

func NewPool(logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		logger:  logger,
		workers: 2,
		ch:      make(chan work, 64),
		quit:    make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Debug("pool worker started", "worker_id", workerID)

				for w := range p.ch {
					if err := w.ctx.Err(); err != nil {
						w.out <- result{err: err}
						continue
					}
					val, err := runTask(w.ctx, w.task)
					w.out <- result{val: val, err: err}
				}

				p.logger.Debug("pool worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func runTask(ctx context.Context, task Task) (val any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("task panicked")
		}
	}()
	return task(ctx)
}

// Submit queues task and waits for its result or for ctx to end, whichever
// comes first. A task abandoned by ctx still runs to completion on its worker
// and its result is discarded.
func (p *Pool) Submit(ctx context.Context, task Task) (any, error) {
	w := work{ctx: ctx, task: task, out: make(chan result, 1)}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.senders.Add(1)
	p.mu.Unlock()

	err := p.send(ctx, w)
	p.senders.Done()
	if err != nil {
		return nil, err
	}

	select {
	case r := <-w.out:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// send blocks while the queue is full, until ctx ends or the pool shuts down.
func (p *Pool) send(ctx context.Context, w work) error {
	select {
	case p.ch <- w:
		return nil
	default:
	}
	p.logger.Warn("pool queue full, applying backpressure")
	select {
	case p.ch <- w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.quit:
		return ErrPoolClosed
	}
}

// Shutdown stops accepting work. Queued tasks still run; it waits for the
// workers to finish or for ctx to end.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.quit)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.senders.Wait()
		close(p.ch)
		p.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		p.logger.Warn("pool shutdown interrupted by context")
	case <-done:
		p.logger.Info("pool drained, shutdown complete")
	}
}
