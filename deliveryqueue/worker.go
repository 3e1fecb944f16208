package deliveryqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/palomarmail/palomar/consts"
	"github.com/palomarmail/palomar/logger"
	"github.com/palomarmail/palomar/pkg/metrics"
)

// DispatchQueue defines the queue operations required by the worker.
// This allows for mocking in tests and decouples the worker from the concrete Queue.
type DispatchQueue interface {
	Dequeue() (*Entry, error)
	GetStats() Stats
}

// DispatchFunc handles a single dequeued entry. There is no retry: a failed
// dispatch is logged and counted, the entry is not requeued.
type DispatchFunc func(ctx context.Context, entry *Entry) error

// Worker manages background draining of the dispatch queue.
//
// The worker dequeues entries in priority order and hands each to the
// dispatch function. It supports:
//   - Immediate processing via notification channel
//   - Error reporting via error channel
//   - Graceful shutdown with WaitGroup
//   - Idempotent Start/Stop (safe to call multiple times)
type Worker struct {
	queue     DispatchQueue
	dispatch  DispatchFunc
	interval  time.Duration
	batchSize int
	notifyCh  chan struct{}
	stopCh    chan struct{}
	errCh     chan<- error
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool
}

// NewWorker creates a new dispatch queue worker.
//
// Parameters:
//   - queue: Queue implementation (typically *Queue)
//   - dispatch: Handler invoked for each dequeued entry
//   - interval: How often to drain the queue
//   - batchSize: Maximum entries to dispatch per cycle
//   - errCh: Channel for error reporting (can be nil)
func NewWorker(queue DispatchQueue, dispatch DispatchFunc, interval time.Duration, batchSize int, errCh chan<- error) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 10
	}

	return &Worker{
		queue:     queue,
		dispatch:  dispatch,
		interval:  interval,
		batchSize: batchSize,
		notifyCh:  make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		errCh:     errCh,
	}
}

// Start begins background draining of the dispatch queue.
// It is safe to call Start multiple times - subsequent calls are no-ops if already running.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run(ctx)

	logger.Info("Dispatch: worker started")
	return nil
}

// Stop gracefully stops the worker and waits for the loop to exit.
// It is safe to call Stop multiple times - subsequent calls are no-ops if already stopped.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()

	logger.Info("Dispatch: worker stopped")
}

// NotifyQueued signals the worker to drain the queue immediately without waiting
// for the interval. If a notification is already pending, this is a no-op.
func (w *Worker) NotifyQueued() {
	select {
	case w.notifyCh <- struct{}{}:
	default:
		// Don't block if notifyCh already has a signal
	}
}

// run is the main worker loop
func (w *Worker) run(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		w.wg.Done()
	}()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logger.Info("Dispatch: worker processing", "interval", w.interval, "batch_size", w.batchSize)

	// Drain immediately on start
	w.drainQueue(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Dispatch: worker stopped due to context cancellation")
			return
		case <-w.stopCh:
			logger.Info("Dispatch: worker stopped due to stop signal")
			return
		case <-ticker.C:
			if err := w.drainQueue(ctx); err != nil {
				w.reportError(err)
			}
		case <-w.notifyCh:
			logger.Debug("Dispatch: worker notified")
			if err := w.drainQueue(ctx); err != nil {
				w.reportError(err)
			}
		}
	}
}

// drainQueue dispatches up to batchSize entries in priority order. Entries
// are handled one at a time so dispatch order follows dequeue order. An empty
// queue ends the cycle; it is the normal stop condition, not an error.
func (w *Worker) drainQueue(ctx context.Context) error {
	start := time.Now()
	processed := 0

	for processed < w.batchSize {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		entry, err := w.queue.Dequeue()
		if err != nil {
			if errors.Is(err, consts.ErrQueueEmpty) {
				break
			}
			return fmt.Errorf("failed to dequeue entry: %w", err)
		}

		if err := w.dispatch(ctx, entry); err != nil {
			logger.Error("Dispatch: entry failed", "entry_id", entry.ID,
				"message_id", entry.MessageID, "recipient", entry.Recipient, "error", err)
			metrics.DispatchWorkerJobs.WithLabelValues("error").Inc()
		} else {
			metrics.DispatchWorkerJobs.WithLabelValues("success").Inc()
		}
		processed++
	}

	metrics.DispatchWorkerDuration.Observe(time.Since(start).Seconds())

	if processed > 0 {
		stats := w.queue.GetStats()
		logger.Info("Dispatch: drained entries", "count", processed, "remaining", stats.Total)
	}

	return nil
}

// reportError sends an error to the error channel if configured, otherwise logs it
func (w *Worker) reportError(err error) {
	if w.errCh != nil {
		select {
		case w.errCh <- err:
		default:
			logger.Error("Dispatch: worker error (no listener)", "error", err)
		}
	} else {
		logger.Error("Dispatch: worker error", "error", err)
	}
}

// GetStats returns current queue statistics.
func (w *Worker) GetStats() Stats {
	return w.queue.GetStats()
}
