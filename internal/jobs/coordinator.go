package jobs

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Runner executes a single job to a terminal status.
type Runner interface {
	Run(ctx context.Context, jobID uuid.UUID)
}

// BatchStore stamps a batch once its driver has gone through every job.
type BatchStore interface {
	MarkCompleted(ctx context.Context, id uuid.UUID) error
}

// JobFailer fails a queued job that was cancelled before it started.
type JobFailer interface {
	Fail(ctx context.Context, id uuid.UUID, errMessage, progressMessage string) error
}

type handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func newHandle(parent context.Context) (*handle, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &handle{cancel: cancel, done: make(chan struct{})}, ctx
}

// Coordinator runs batches one job at a time and tracks what is in flight.
// Its maps are empty at boot; the store is the source of truth.
type Coordinator struct {
	logger  *slog.Logger
	runner  Runner
	batches BatchStore
	jobs    JobFailer

	base context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu        sync.Mutex
	batchRuns map[uuid.UUID]*handle
	jobRuns   map[uuid.UUID]*handle
	queued    map[uuid.UUID]uuid.UUID // job -> batch, not started yet
	skip      map[uuid.UUID]struct{}
}

func NewCoordinator(logger *slog.Logger, runner Runner, batches BatchStore, jobs JobFailer) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &Coordinator{
		logger:    logger,
		runner:    runner,
		batches:   batches,
		jobs:      jobs,
		base:      base,
		stop:      stop,
		batchRuns: make(map[uuid.UUID]*handle),
		jobRuns:   make(map[uuid.UUID]*handle),
		queued:    make(map[uuid.UUID]uuid.UUID),
		skip:      make(map[uuid.UUID]struct{}),
	}
}

// StartBatch launches a driver that runs jobIDs in order. It returns false
// and does nothing when the batch is already running. Jobs that are already
// running or queued are left out of the new batch.
func (c *Coordinator) StartBatch(batchID uuid.UUID, jobIDs []uuid.UUID) bool {
	c.mu.Lock()
	if _, ok := c.batchRuns[batchID]; ok {
		c.mu.Unlock()
		c.logger.Warn("batch.start.duplicate", "batch_id", batchID)
		return false
	}
	// a job already running or queued elsewhere keeps its single run
	ids := make([]uuid.UUID, 0, len(jobIDs))
	var dropped []uuid.UUID
	for _, id := range jobIDs {
		_, running := c.jobRuns[id]
		_, queued := c.queued[id]
		if running || queued {
			dropped = append(dropped, id)
			continue
		}
		c.queued[id] = batchID
		ids = append(ids, id)
	}
	h, ctx := newHandle(c.base)
	c.batchRuns[batchID] = h
	c.mu.Unlock()

	if len(dropped) > 0 {
		c.logger.Warn("batch.job.duplicate", "batch_id", batchID, "job_ids", dropped)
	}
	c.wg.Add(1)
	go c.driveBatch(ctx, batchID, ids, h)
	c.logger.Info("batch.start", "batch_id", batchID, "jobs", len(ids))
	return true
}

func (c *Coordinator) driveBatch(ctx context.Context, batchID uuid.UUID, jobIDs []uuid.UUID, h *handle) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.batchRuns, batchID)
		for _, id := range jobIDs {
			delete(c.queued, id)
			delete(c.skip, id)
		}
		c.mu.Unlock()
		h.cancel()
		close(h.done)
	}()

	for i, jobID := range jobIDs {
		if ctx.Err() != nil {
			c.logger.Warn("batch.interrupted", "batch_id", batchID, "remaining", len(jobIDs)-i)
			return
		}

		c.mu.Lock()
		delete(c.queued, jobID)
		if _, skipped := c.skip[jobID]; skipped {
			delete(c.skip, jobID)
			c.mu.Unlock()
			c.logger.Info("batch.job.skipped", "batch_id", batchID, "job_id", jobID)
			continue
		}
		jh, jctx := newHandle(ctx)
		c.jobRuns[jobID] = jh
		c.mu.Unlock()

		c.runTracked(jctx, jobID, jh)
	}

	if err := c.batches.MarkCompleted(context.WithoutCancel(ctx), batchID); err != nil {
		c.logger.Error("batch.complete.failed", "batch_id", batchID, "err", err)
		return
	}
	c.logger.Info("batch.done", "batch_id", batchID, "jobs", len(jobIDs))
}

// StartJob runs one job outside any batch. It returns false when the job is
// already running or queued.
func (c *Coordinator) StartJob(jobID uuid.UUID) bool {
	c.mu.Lock()
	_, running := c.jobRuns[jobID]
	_, queued := c.queued[jobID]
	if running || queued {
		c.mu.Unlock()
		c.logger.Warn("job.start.duplicate", "job_id", jobID)
		return false
	}
	h, ctx := newHandle(c.base)
	c.jobRuns[jobID] = h
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runTracked(ctx, jobID, h)
	}()
	return true
}

func (c *Coordinator) runTracked(ctx context.Context, jobID uuid.UUID, h *handle) {
	defer func() {
		c.mu.Lock()
		delete(c.jobRuns, jobID)
		c.mu.Unlock()
		h.cancel()
		close(h.done)
	}()
	c.runner.Run(ctx, jobID)
}

// IsRunning reports whether the job is executing right now.
func (c *Coordinator) IsRunning(jobID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.jobRuns[jobID]
	return ok
}

// CancelJob cancels a running job and waits for it to stop, or marks a job
// still queued in a running batch so the driver skips it. It reports whether
// anything was cancelled.
func (c *Coordinator) CancelJob(ctx context.Context, jobID uuid.UUID) bool {
	c.mu.Lock()
	if h, ok := c.jobRuns[jobID]; ok {
		c.mu.Unlock()
		h.cancel()
		select {
		case <-h.done:
		case <-ctx.Done():
			c.logger.Warn("job.cancel.wait_interrupted", "job_id", jobID)
		}
		c.logger.Info("job.cancelled", "job_id", jobID)
		return true
	}
	batchID, ok := c.queued[jobID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.queued, jobID)
	c.skip[jobID] = struct{}{}
	c.mu.Unlock()

	if err := c.jobs.Fail(ctx, jobID, MsgCancelled, MsgFailed); err != nil {
		c.logger.Error("job.cancel.persist_failed", "job_id", jobID, "batch_id", batchID, "err", err)
	}
	c.logger.Info("job.cancelled", "job_id", jobID, "batch_id", batchID, "queued", true)
	return true
}

// Shutdown cancels everything in flight and waits for the drivers to return.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.stop()

	done := make(chan struct{})
	go func() { defer close(done); c.wg.Wait() }()

	select {
	case <-ctx.Done():
		c.logger.Warn("coordinator shutdown interrupted by context")
	case <-done:
		c.logger.Info("coordinator drained, shutdown complete")
	}
}

// AbandonedJobs fails what the store reports as abandoned.
type AbandonedJobs interface {
	FailAbandoned(ctx context.Context, errMessage, progressMessage string) (int64, error)
}

// RecoverAbandoned fails jobs a previous process left RUNNING. They are not
// resumed.
func RecoverAbandoned(ctx context.Context, jobs AbandonedJobs, logger *slog.Logger) (int64, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n, err := jobs.FailAbandoned(ctx, MsgAbandoned, MsgFailed)
	if err != nil {
		return 0, err
	}
	logger.Info("jobs.recovered", "abandoned", n)
	return n, nil
}
