package imagenotify

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPollInterval is the pause between two queue drains
const DefaultPollInterval = 5 * time.Second

// BatchProcessor is the part of Service the Worker drives
type BatchProcessor interface {
	ProcessBatch(ctx context.Context) (BatchResult, error)
}

// Worker drains the notification queue on a fixed interval.
type Worker struct {
	processor BatchProcessor
	interval  time.Duration
	logger    *slog.Logger
}

// NewWorker creates a worker polling every interval.
func NewWorker(processor BatchProcessor, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		processor: processor,
		interval:  interval,
		logger:    logger,
	}
}

// Run processes one batch immediately and then one per tick until ctx is
// cancelled. A failed batch is logged; the next tick starts independently.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("Queue worker running", "interval", w.interval)

	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Queue worker is stopping")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	result, err := w.processor.ProcessBatch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("Failed to drain notification queue", "err", err)
		return
	}
	if result.Received > 0 {
		w.logger.Info("Processed notification batch",
			"received", result.Received,
			"published", result.Published,
			"acked", result.Acked,
			"failed", result.Failed)
	}
}
