// Package async runs ingestions through a bounded worker pool with
// at-least-once semantics: retryable failures are retried with backoff,
// and a request is only dropped after retries exhaust.
package async

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/cognidex/cognidex/internal/errors"
	"github.com/cognidex/cognidex/internal/ingest"
)

// IngestFunc is the work executed per queued request.
type IngestFunc func(ctx context.Context, req ingest.Request) (*ingest.Result, error)

// RunnerConfig configures the worker pool.
type RunnerConfig struct {
	Workers   int
	QueueSize int
	Retry     errors.RetryConfig
}

// RunnerStats reports queue counters.
type RunnerStats struct {
	Enqueued  int64
	Succeeded int64
	Failed    int64
}

// Runner consumes ingestion requests from a bounded queue across a fixed
// set of workers. Retries happen inside the worker, so a request occupies
// one worker until it succeeds or exhausts its retries; ingestion is
// idempotent per document version, which is what makes the retry safe.
type Runner struct {
	cfg    RunnerConfig
	fn     IngestFunc
	logger *slog.Logger

	queue  chan ingest.Request
	group  *errgroup.Group
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
	stopped bool

	enqueued  atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// NewRunner creates a runner over the given ingest function.
func NewRunner(fn IngestFunc, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 128
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry = errors.DefaultRetryConfig()
	}
	return &Runner{
		cfg:    cfg,
		fn:     fn,
		logger: logger,
		queue:  make(chan ingest.Request, cfg.QueueSize),
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	r.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < r.cfg.Workers; i++ {
		r.group.Go(func() error {
			r.worker(ctx)
			return nil
		})
	}
}

// Enqueue queues a request, blocking while the queue is full. Returns an
// error once the runner is stopped or the context is done.
func (r *Runner) Enqueue(ctx context.Context, req ingest.Request) error {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.mu.Unlock()
		return errors.InternalError("ingest runner is not running", nil)
	}
	r.mu.Unlock()

	select {
	case r.queue <- req:
		r.enqueued.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains the queue: no new requests are accepted, queued work
// finishes, then the workers exit.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.queue)
	_ = r.group.Wait()
	r.cancel()
}

// Stats returns the current counters.
func (r *Runner) Stats() RunnerStats {
	return RunnerStats{
		Enqueued:  r.enqueued.Load(),
		Succeeded: r.succeeded.Load(),
		Failed:    r.failed.Load(),
	}
}

func (r *Runner) worker(ctx context.Context) {
	for req := range r.queue {
		err := errors.Retry(ctx, r.cfg.Retry, func() error {
			_, err := r.fn(ctx, req)
			return err
		})
		if err != nil {
			r.failed.Add(1)
			r.logger.Error("ingestion failed",
				"tenant_id", req.TenantID, "source_id", req.SourceID,
				"version", req.Version, "error", err)
			continue
		}
		r.succeeded.Add(1)
	}
}
