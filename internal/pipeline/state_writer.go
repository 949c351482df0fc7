package pipeline

import (
	"context"
	"log/slog"
	"time"

	"st-telemetry/gateway/internal/domain"
	"st-telemetry/gateway/internal/metrics"
	"st-telemetry/gateway/internal/store"
)

const stateBatchSize = 100

// StateWriter mirrors the latest value of every PID into redis off the hot
// path. Submissions never block the pipeline; when the channel is full the
// update is dropped, since only the most recent value matters anyway.
type StateWriter struct {
	ch            chan domain.Reading
	redis         *store.RedisStore
	flushInterval time.Duration
	logger        *slog.Logger
}

func NewStateWriter(redis *store.RedisStore, chanSize int, flushInterval time.Duration, logger *slog.Logger) *StateWriter {
	if chanSize <= 0 {
		chanSize = 1000
	}
	if flushInterval <= 0 {
		flushInterval = 50 * time.Millisecond
	}
	return &StateWriter{
		ch:            make(chan domain.Reading, chanSize),
		redis:         redis,
		flushInterval: flushInterval,
		logger:        logger,
	}
}

// Submit hands a reading to the writer without blocking.
func (w *StateWriter) Submit(r domain.Reading) {
	select {
	case w.ch <- r:
	default:
	}
}

// Run batches submissions and flushes on size or interval until ctx is
// cancelled, flushing whatever remains on the way out.
func (w *StateWriter) Run(ctx context.Context) {
	batch := make([]domain.Reading, 0, stateBatchSize)
	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case r := <-w.ch:
			batch = append(batch, r)
			if len(batch) >= stateBatchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			if len(batch) > 0 {
				w.flush(context.Background(), batch)
			}
			return
		}
	}
}

func (w *StateWriter) flush(ctx context.Context, batch []domain.Reading) {
	if err := w.redis.UpdateState(ctx, batch); err != nil {
		metrics.StateWriteFailures.Add(1)
		w.logger.Error("state cache update failed",
			"readings", len(batch), "error", err)
	}
}
