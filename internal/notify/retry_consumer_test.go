package notify

import (
	"context"
	"testing"
	"time"

	"github.com/Ashish12meena/aigreentick-microservices/internal/provider"
	"github.com/jonboulle/clockwork"
)

func TestRetryConsumer_DefersUntilBackoffElapses(t *testing.T) {
	fx := setupConsumer(t, provider.Sent("prov-1", "{}"))
	clock := clockwork.NewFakeClock()
	rc := NewRetryConsumer(fx.consumer, NewScheduler(fx.pub, retryConfig(), testLogger()), clock, testLogger())

	msg := &fakeMsg{}
	event := testEvent("evt-deferred")
	event.RetryCount = 1

	rc.schedule(context.Background(), msg, event)

	// The timer has not fired; nothing should have happened yet.
	if err := clock.BlockUntilContext(context.Background(), 1); err != nil {
		t.Fatalf("waiting for timer: %v", err)
	}
	if fx.client.callCount() != 0 {
		t.Fatal("event must not be processed before the backoff elapses")
	}

	// Jitter caps the delay at 1.25x the computed backoff; advancing well
	// past that fires the timer.
	clock.Advance(10 * time.Second)
	rc.Wait()

	if fx.client.callCount() != 1 {
		t.Errorf("expected 1 provider call after the backoff, got %d", fx.client.callCount())
	}
	if !msg.acked {
		t.Error("successful deferred delivery should ack")
	}
}

func TestRetryConsumer_ShutdownNaksDeferredRetries(t *testing.T) {
	fx := setupConsumer(t)
	clock := clockwork.NewFakeClock()
	rc := NewRetryConsumer(fx.consumer, NewScheduler(fx.pub, retryConfig(), testLogger()), clock, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	msg := &fakeMsg{}
	event := testEvent("evt-shutdown")
	event.RetryCount = 2

	rc.schedule(ctx, msg, event)
	if err := clock.BlockUntilContext(context.Background(), 1); err != nil {
		t.Fatalf("waiting for timer: %v", err)
	}

	cancel()
	rc.Wait()

	if !msg.naked {
		t.Error("pending retry should nak on shutdown so the log redelivers")
	}
	if fx.client.callCount() != 0 {
		t.Error("cancelled retry must not reach the provider")
	}
}
