package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"
)

// RetryConsumer consumes the retry subject. It computes the backoff for the
// event's retry count and defers reprocessing on a timer, so the consume loop
// never sleeps for the backoff duration.
type RetryConsumer struct {
	inner     *Consumer
	scheduler *Scheduler
	clock     clockwork.Clock
	logger    *slog.Logger

	wg sync.WaitGroup
}

func NewRetryConsumer(inner *Consumer, scheduler *Scheduler, clock clockwork.Clock, logger *slog.Logger) *RetryConsumer {
	return &RetryConsumer{
		inner:     inner,
		scheduler: scheduler,
		clock:     clock,
		logger:    logger,
	}
}

// Start begins consuming from the retry subject's durable consumer.
func (rc *RetryConsumer) Start(ctx context.Context, consumer jetstream.Consumer) (jetstream.ConsumeContext, error) {
	return consumer.Consume(func(msg jetstream.Msg) {
		event, ok := rc.inner.parse(msg)
		if !ok {
			return
		}
		rc.schedule(ctx, msg, event)
	})
}

// schedule defers reprocessing by the event's backoff on a timer goroutine.
func (rc *RetryConsumer) schedule(ctx context.Context, msg Acker, event *domain.DeliveryEvent) {
	// The most recent retry publish incremented the count, so the delay
	// grows with each round.
	delay := rc.scheduler.Delay(event.RetryCount)
	rc.logger.Info("deferring retry",
		"event_id", event.EventID,
		"retry_count", event.RetryCount,
		"delay_ms", delay.Milliseconds(),
	)

	rc.wg.Add(1)
	go func() {
		defer rc.wg.Done()
		select {
		case <-rc.clock.After(delay):
			rc.inner.Handle(ctx, msg, event)
		case <-ctx.Done():
			// Shutdown before the backoff elapsed; let the log
			// redeliver the message later.
			_ = msg.Nak()
		}
	}()
}

// Wait blocks until all deferred retries in flight have finished.
func (rc *RetryConsumer) Wait() {
	rc.wg.Wait()
}
