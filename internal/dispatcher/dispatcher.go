// Package dispatcher runs submitted jobs on a fixed pool of workers pulling
// from a FIFO queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/icon-harvester/internal/metrics"
	"github.com/JakeFAU/icon-harvester/internal/queue/memory"
)

// ErrPoolClosed settles jobs that were still queued, or submitted, after Close.
var ErrPoolClosed = errors.New("dispatcher closed")

// PanicError settles a job whose function panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.Value)
}

// Job is one unit of work. The context carries the optional job timeout.
type Job[R any] func(ctx context.Context) (R, error)

// Config controls pool sizing and per-job limits.
type Config struct {
	// Workers is the fixed number of concurrently executing jobs.
	Workers int
	// JobTimeout bounds each job when positive. Zero lets jobs run to
	// completion.
	JobTimeout time.Duration
	// Name labels log lines.
	Name string
}

type pendingJob[R any] struct {
	job      Job[R]
	future   *Future[R]
	queuedAt time.Time
}

// Dispatcher fans queued jobs out to a pool of workers.
type Dispatcher[R any] struct {
	cfg    Config
	queue  *memory.Queue[pendingJob[R]]
	logger *zap.Logger

	active atomic.Int64
	wg     sync.WaitGroup

	mu      sync.Mutex
	baseCtx context.Context
	started bool

	closeOnce sync.Once
	closeErr  error
}

// New creates a Dispatcher. Call Start before expecting progress.
func New[R any](cfg Config, logger *zap.Logger) (*Dispatcher[R], error) {
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("dispatcher workers must be >= 1, got %d", cfg.Workers)
	}
	if cfg.JobTimeout < 0 {
		return nil, fmt.Errorf("dispatcher job timeout must be >= 0, got %s", cfg.JobTimeout)
	}
	if cfg.Name == "" {
		cfg.Name = "pool"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher[R]{
		cfg:    cfg,
		queue:  memory.NewQueue[pendingJob[R]](),
		logger: logger.Named("dispatcher").With(zap.String("pool", cfg.Name)),
	}, nil
}

// Start launches the workers. Jobs receive a context derived from ctx with
// its cancellation stripped, so in-flight jobs always run to completion
// unless JobTimeout says otherwise. Calling Start twice is a no-op.
func (d *Dispatcher[R]) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true
	d.baseCtx = context.WithoutCancel(ctx)
	for i := range d.cfg.Workers {
		d.wg.Add(1)
		go d.runWorker(i)
	}
	d.logger.Info("dispatcher started", zap.Int("workers", d.cfg.Workers), zap.Duration("job_timeout", d.cfg.JobTimeout))
}

// Submit queues job and returns its future. It never blocks. Submitting to a
// closed dispatcher returns a future rejected with ErrPoolClosed.
func (d *Dispatcher[R]) Submit(job Job[R]) *Future[R] {
	if job == nil {
		return Rejected[R](errors.New("nil job"))
	}
	p := pendingJob[R]{
		job:      job,
		future:   newFuture[R](),
		queuedAt: time.Now(),
	}
	if err := d.queue.Enqueue(p); err != nil {
		metrics.ObserveJob(metrics.StatusRejected, 0)
		return Rejected[R](ErrPoolClosed)
	}
	metrics.SetQueueDepth(d.queue.Len())
	return p.future
}

// Active reports how many jobs are executing right now.
func (d *Dispatcher[R]) Active() int {
	return int(d.active.Load())
}

// Pending reports how many jobs are waiting for a worker.
func (d *Dispatcher[R]) Pending() int {
	return d.queue.Len()
}

// Workers reports the pool size.
func (d *Dispatcher[R]) Workers() int {
	return d.cfg.Workers
}

// Close stops accepting work, rejects every queued job with ErrPoolClosed,
// and waits for in-flight jobs until ctx ends.
func (d *Dispatcher[R]) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		remaining := d.queue.Close()
		var zero R
		for _, p := range remaining {
			if p.future.settle(zero, ErrPoolClosed) {
				metrics.ObserveJob(metrics.StatusRejected, 0)
			}
		}
		metrics.SetQueueDepth(0)
		if len(remaining) > 0 {
			d.logger.Warn("rejected queued jobs on close", zap.Int("count", len(remaining)))
		}

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			d.logger.Info("dispatcher stopped")
		case <-ctx.Done():
			d.closeErr = fmt.Errorf("dispatcher close: %w", ctx.Err())
		}
	})
	return d.closeErr
}

func (d *Dispatcher[R]) runWorker(id int) {
	defer d.wg.Done()
	logger := d.logger.With(zap.Int("worker", id))
	for {
		p, err := d.queue.Dequeue(context.Background())
		if err != nil {
			logger.Debug("worker exiting", zap.Error(err))
			return
		}
		metrics.SetQueueDepth(d.queue.Len())
		d.execute(logger, p)
	}
}

func (d *Dispatcher[R]) execute(logger *zap.Logger, p pendingJob[R]) {
	start := time.Now()
	result, err := d.invoke(p)
	elapsed := time.Since(start)

	status := metrics.StatusSucceeded
	var panicErr *PanicError
	switch {
	case errors.As(err, &panicErr):
		status = metrics.StatusPanicked
		logger.Error("job panicked",
			zap.Any("panic", panicErr.Value),
			zap.ByteString("stack", panicErr.Stack),
		)
	case err != nil:
		status = metrics.StatusFailed
	}
	metrics.ObserveJob(status, elapsed)
	logger.Debug("job settled",
		zap.String("status", status),
		zap.Duration("queued", start.Sub(p.queuedAt)),
		zap.Duration("elapsed", elapsed),
	)
	p.future.settle(result, err)
}

// invoke runs the job inside an active slot. The slot is released on every
// exit path, including a panic, before the future settles.
func (d *Dispatcher[R]) invoke(p pendingJob[R]) (result R, err error) {
	d.active.Add(1)
	metrics.IncActiveWorkers()
	defer func() {
		d.active.Add(-1)
		metrics.DecActiveWorkers()
	}()
	defer func() {
		if rec := recover(); rec != nil {
			var zero R
			result = zero
			err = &PanicError{Value: rec, Stack: debug.Stack()}
		}
	}()

	ctx := d.baseCtx
	if d.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.JobTimeout)
		defer cancel()
	}
	return p.job(ctx)
}
