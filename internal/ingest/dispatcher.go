package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/containerd/errdefs"
	"golang.org/x/sync/errgroup"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
	batchTimeout     = 30 * time.Second
)

// ErrDispatcherStopped is returned by Submit after Stop.
var ErrDispatcherStopped = fmt.Errorf("%w: ingest dispatcher stopped", errdefs.ErrUnavailable)

// BatchHandler processes one decoded delivery.
type BatchHandler interface {
	Handle(ctx context.Context, batch Batch) error
}

// Dispatcher processes webhook batches on a fixed pool of workers so the
// webhook endpoint can acknowledge before persistence runs.
type Dispatcher struct {
	handler BatchHandler
	workers int
	queue   chan Batch
	logger  *slog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	group   *errgroup.Group
	cancel  context.CancelFunc
}

// NewDispatcher creates a dispatcher; workers and queueSize <= 0 use defaults.
func NewDispatcher(log *slog.Logger, handler BatchHandler, workers, queueSize int) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		handler: handler,
		workers: workers,
		queue:   make(chan Batch, queueSize),
		logger:  log.With(slog.String("component", "ingest_dispatcher")),
	}
}

// Start launches the workers. Batches are processed under a context detached
// from any request, bounded per batch.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	g, gctx := errgroup.WithContext(workCtx)
	g.SetLimit(d.workers)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for batch := range d.queue {
				d.process(gctx, batch)
			}
			return nil
		})
	}
	d.group = g
	d.logger.Info("ingest dispatcher started", slog.Int("workers", d.workers))
}

// Submit queues a batch, waiting for room when the queue is full.
func (d *Dispatcher) Submit(ctx context.Context, batch Batch) error {
	if batch.Empty() {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- batch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains queued batches and waits for the workers, or gives up when ctx ends.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	group, cancel := d.group, d.cancel
	d.mu.Unlock()

	if group == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()
	select {
	case err := <-done:
		cancel()
		return err
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) process(ctx context.Context, batch Batch) {
	ctx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()
	if err := d.handler.Handle(ctx, batch); err != nil {
		d.logger.Warn("webhook batch finished with errors",
			slog.Int("messages", len(batch.Messages)),
			slog.Int("statuses", len(batch.Statuses)),
			slog.Any("error", err),
		)
	}
}
