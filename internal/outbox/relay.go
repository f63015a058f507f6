package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Ashish12meena/aigreentick-microservices/internal/broker"
	"github.com/Ashish12meena/aigreentick-microservices/internal/config"
	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
	"github.com/nats-io/nats.go/jetstream"
)

// Store is the outbox table surface the relay polls.
type Store interface {
	FetchPendingOutbox(ctx context.Context, limit int) ([]domain.OutboxEntry, error)
	MarkOutboxPublished(ctx context.Context, id string) error
	MarkOutboxFailed(ctx context.Context, id, errMsg string) error
}

// Publisher publishes entries to the audit subject.
type Publisher interface {
	Publish(ctx context.Context, subjectPrefix, key, msgID string, data []byte) (*jetstream.PubAck, error)
}

// Relay asynchronously publishes pending outbox entries. Entries are written
// transactionally with their primary record elsewhere; the relay's only job
// is draining them to the log and recording the result, so the request path
// never blocks on publishing.
type Relay struct {
	store  Store
	pub    Publisher
	cfg    config.OutboxConfig
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewRelay(store Store, pub Publisher, cfg config.OutboxConfig, logger *slog.Logger) *Relay {
	return &Relay{
		store:    store,
		pub:      pub,
		cfg:      cfg,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start launches the poll loop.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("outbox relay already running")
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(ctx)

	r.logger.Info("outbox relay started",
		"poll_interval", r.cfg.PollInterval,
		"batch_size", r.cfg.BatchSize,
	)
	return nil
}

// Stop halts the poll loop and waits for the in-flight poll to finish.
func (r *Relay) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("outbox relay not running")
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopChan)
	r.wg.Wait()

	r.logger.Info("outbox relay stopped")
	return nil
}

func (r *Relay) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	// Drain whatever accumulated before startup.
	r.Poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.Poll(ctx)
		}
	}
}

// Poll fetches one bounded batch of pending entries, oldest first, and
// publishes each. Every fetched entry leaves the pending state: published on
// success, failed (with an incremented retry count and the error) otherwise.
func (r *Relay) Poll(ctx context.Context) {
	entries, err := r.store.FetchPendingOutbox(ctx, r.cfg.BatchSize)
	if err != nil {
		r.logger.Error("failed to fetch pending outbox entries", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	published := 0
	for _, entry := range entries {
		if err := r.publish(ctx, entry); err != nil {
			if markErr := r.store.MarkOutboxFailed(ctx, entry.ID, err.Error()); markErr != nil {
				r.logger.Error("failed to mark outbox entry failed", "entry_id", entry.ID, "error", markErr)
			}
			r.logger.Error("failed to publish outbox entry",
				"entry_id", entry.ID,
				"event_type", entry.EventType,
				"error", err,
			)
			continue
		}

		if err := r.store.MarkOutboxPublished(ctx, entry.ID); err != nil {
			// The entry stays pending and will republish next poll;
			// consumers dedupe on the audit id.
			r.logger.Error("failed to mark outbox entry published", "entry_id", entry.ID, "error", err)
			continue
		}
		published++
	}

	r.logger.Info("processed outbox entries", "total", len(entries), "published", published)
}

func (r *Relay) publish(ctx context.Context, entry domain.OutboxEntry) error {
	_, err := r.pub.Publish(ctx, broker.SubjectAudit, entry.AggregateID, entry.EventID, []byte(entry.Payload))
	return err
}
