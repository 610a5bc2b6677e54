package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/irgordon/karidc/api/internal/core/services"
)

var (
	ErrQueueFull     = errors.New("batch queue is full")
	ErrWorkerStopped = errors.New("batch worker stopped")
)

// BatchWorker runs queued batch jobs one at a time, in submission order.
// It implements services.Dispatcher.
type BatchWorker struct {
	queue   chan func(ctx context.Context)
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	stopped bool
}

var _ services.Dispatcher = (*BatchWorker)(nil)

// NewBatchWorker initializes the background processor. Each job gets at most
// timeout to finish once it starts.
func NewBatchWorker(depth int, timeout time.Duration, logger *slog.Logger) *BatchWorker {
	if depth <= 0 {
		depth = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchWorker{
		queue:   make(chan func(ctx context.Context), depth),
		timeout: timeout,
		logger:  logger,
	}
}

// Submit queues job without blocking.
func (w *BatchWorker) Submit(job func(ctx context.Context)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrWorkerStopped
	}
	select {
	case w.queue <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending counts queued jobs.
func (w *BatchWorker) Pending() int { return len(w.queue) }

// Start processes jobs until ctx is cancelled. Jobs still queued at that
// point are dropped.
func (w *BatchWorker) Start(ctx context.Context) {
	w.logger.Info("batch worker started")
	defer func() {
		w.mu.Lock()
		w.stopped = true
		w.mu.Unlock()
		w.logger.Info("batch worker shutting down", slog.Int("dropped", len(w.queue)))
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.queue:
			w.run(ctx, job)
		}
	}
}

func (w *BatchWorker) run(ctx context.Context, job func(ctx context.Context)) {
	// 🛡️ One wedged runtime must not stall the queue forever
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("batch job panicked", slog.Any("panic", r))
		}
	}()
	job(ctx)
}
