package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
)

// BulkReplacer issues one bulk upsert-by-id for a batch of completed units.
type BulkReplacer interface {
	BulkReplaceUnits(ctx context.Context, units []*domain.DeliveryUnit) error
}

// Flusher accumulates completed delivery units and writes them in batches.
// The guarded check-and-drain after every Add keeps flush sizes exact: only
// the final flush may be smaller than the configured batch size.
type Flusher struct {
	store     BulkReplacer
	batchSize int
	logger    *slog.Logger

	mu  sync.Mutex
	buf []*domain.DeliveryUnit
}

func NewFlusher(store BulkReplacer, batchSize int, logger *slog.Logger) *Flusher {
	return &Flusher{
		store:     store,
		batchSize: batchSize,
		logger:    logger,
		buf:       make([]*domain.DeliveryUnit, 0, batchSize),
	}
}

// Add buffers a completed unit and drains exactly batchSize units when the
// threshold is reached.
func (f *Flusher) Add(ctx context.Context, unit *domain.DeliveryUnit) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf = append(f.buf, unit)
	if len(f.buf) < f.batchSize {
		return
	}

	batch := make([]*domain.DeliveryUnit, f.batchSize)
	copy(batch, f.buf[:f.batchSize])
	f.buf = append(f.buf[:0], f.buf[f.batchSize:]...)

	f.flush(ctx, batch)
}

// Final drains and flushes whatever remains after all workers finish.
func (f *Flusher) Final(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.buf) == 0 {
		return
	}

	batch := make([]*domain.DeliveryUnit, len(f.buf))
	copy(batch, f.buf)
	f.buf = f.buf[:0]

	f.flush(ctx, batch)
}

// flush issues the bulk write, retrying once at the batch level. Callers hold
// the mutex.
func (f *Flusher) flush(ctx context.Context, batch []*domain.DeliveryUnit) {
	err := f.store.BulkReplaceUnits(ctx, batch)
	if err != nil {
		f.logger.Warn("batch flush failed, retrying", "batch_size", len(batch), "error", err)
		err = f.store.BulkReplaceUnits(ctx, batch)
	}
	if err != nil {
		f.logger.Error("batch flush failed after retry", "batch_size", len(batch), "error", err)
		return
	}

	f.logger.Info("flushed delivery unit batch", "batch_size", len(batch))
}
