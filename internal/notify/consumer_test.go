package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/Ashish12meena/aigreentick-microservices/internal/broker"
	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
	"github.com/Ashish12meena/aigreentick-microservices/internal/provider"
	"github.com/Ashish12meena/aigreentick-microservices/internal/template"
)

type fakeIdem struct {
	mu        sync.Mutex
	claimed   map[string]bool
	processed []string
	failed    []string
	duplicate bool
	err       error
}

func newFakeIdem() *fakeIdem {
	return &fakeIdem{claimed: make(map[string]bool)}
}

func (f *fakeIdem) IsFirstProcessing(ctx context.Context, eventID, attemptToken string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.duplicate {
		return false, nil
	}
	f.claimed[eventID] = true
	return true, nil
}

func (f *fakeIdem) MarkProcessed(ctx context.Context, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, eventID)
	return nil
}

func (f *fakeIdem) MarkFailed(ctx context.Context, eventID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, eventID)
	return nil
}

type fakeOutcomes struct {
	mu       sync.Mutex
	outcomes []*domain.NotificationOutcome
	entries  []*domain.OutboxEntry
}

func (f *fakeOutcomes) SaveOutcomeWithAudit(ctx context.Context, outcome *domain.NotificationOutcome, entry *domain.OutboxEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
	f.entries = append(f.entries, entry)
	return nil
}

type fakeMsg struct {
	acked  bool
	naked  bool
	termed bool
}

func (m *fakeMsg) Ack() error { m.acked = true; return nil }
func (m *fakeMsg) Nak() error { m.naked = true; return nil }

type scriptedClient struct {
	mu      sync.Mutex
	results []provider.Result
	calls   int
}

func (c *scriptedClient) Send(ctx context.Context, req provider.Request) provider.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls >= len(c.results) {
		c.calls++
		return provider.Sent("msg-default", "{}")
	}
	res := c.results[c.calls]
	c.calls++
	return res
}

func (c *scriptedClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type consumerFixture struct {
	consumer *Consumer
	idem     *fakeIdem
	client   *scriptedClient
	pub      *fakePublisher
	outcomes *fakeOutcomes
}

func setupConsumer(t *testing.T, results ...provider.Result) *consumerFixture {
	t.Helper()
	logger := testLogger()
	idem := newFakeIdem()
	client := &scriptedClient{results: results}
	pub := &fakePublisher{}
	outcomes := &fakeOutcomes{}
	resolver := template.NewResolver(map[string]string{
		"WELCOME": "Hi {name}, welcome!",
	})
	scheduler := NewScheduler(pub, retryConfig(), logger)
	consumer := NewConsumer(idem, resolver, client, scheduler, pub, outcomes, logger)
	return &consumerFixture{consumer: consumer, idem: idem, client: client, pub: pub, outcomes: outcomes}
}

func TestConsumer_SuccessfulDelivery(t *testing.T) {
	fx := setupConsumer(t, provider.Sent("prov-123", `{"message_id":"prov-123"}`))
	msg := &fakeMsg{}
	event := testEvent("evt-ok")

	fx.consumer.Handle(context.Background(), msg, event)

	if !msg.acked {
		t.Error("successful delivery should ack")
	}
	if len(fx.idem.processed) != 1 || fx.idem.processed[0] != "evt-ok" {
		t.Errorf("expected evt-ok marked processed, got %v", fx.idem.processed)
	}

	if len(fx.outcomes.outcomes) != 1 {
		t.Fatalf("expected 1 persisted outcome, got %d", len(fx.outcomes.outcomes))
	}
	outcome := fx.outcomes.outcomes[0]
	if outcome.Status != domain.NotificationDelivered {
		t.Errorf("expected delivered outcome, got %s", outcome.Status)
	}
	if outcome.ProviderMessageID != "prov-123" {
		t.Errorf("expected provider message id prov-123, got %q", outcome.ProviderMessageID)
	}

	if len(fx.outcomes.entries) != 1 {
		t.Fatalf("expected 1 outbox entry, got %d", len(fx.outcomes.entries))
	}
	entry := fx.outcomes.entries[0]
	if entry.Status != domain.OutboxPending {
		t.Errorf("outbox entry should start pending, got %s", entry.Status)
	}
	if entry.AggregateID != outcome.ID {
		t.Error("outbox entry should reference the outcome")
	}

	success := fx.pub.bySubject(broker.SubjectSuccess)
	if len(success) != 1 {
		t.Fatalf("expected 1 success publish, got %d", len(success))
	}
	if success[0].msgID != "evt-ok-ok" {
		t.Errorf("expected publish id evt-ok-ok, got %q", success[0].msgID)
	}
}

func TestConsumer_DuplicateDropped(t *testing.T) {
	fx := setupConsumer(t)
	fx.idem.duplicate = true
	msg := &fakeMsg{}

	fx.consumer.Handle(context.Background(), msg, testEvent("evt-dup"))

	if !msg.acked {
		t.Error("duplicate should ack so the log does not redeliver")
	}
	if fx.client.callCount() != 0 {
		t.Error("duplicate must not reach the provider")
	}
	if len(fx.outcomes.outcomes) != 0 {
		t.Error("duplicate must not persist an outcome")
	}
	if len(fx.pub.msgs) != 0 {
		t.Error("duplicate must not publish anything")
	}
}

func TestConsumer_IdempotencyErrorNaks(t *testing.T) {
	fx := setupConsumer(t)
	fx.idem.err = context.DeadlineExceeded
	msg := &fakeMsg{}

	fx.consumer.Handle(context.Background(), msg, testEvent("evt-gate"))

	if !msg.naked {
		t.Error("gate failure should nak for redelivery")
	}
	if msg.acked {
		t.Error("gate failure must not ack")
	}
	if fx.client.callCount() != 0 {
		t.Error("gate failure must not reach the provider")
	}
}

func TestConsumer_TransientFailureSchedulesRetry(t *testing.T) {
	fx := setupConsumer(t, provider.Failure("server_error", "provider returned 500", false))
	msg := &fakeMsg{}

	fx.consumer.Handle(context.Background(), msg, testEvent("evt-fail"))

	if !msg.acked {
		t.Error("handled failure should ack; the retry subject owns redelivery")
	}
	if len(fx.idem.failed) != 1 {
		t.Errorf("expected idempotency record marked failed, got %v", fx.idem.failed)
	}
	if len(fx.pub.bySubject(broker.SubjectRetry)) != 1 {
		t.Error("expected a retry publish")
	}
	if len(fx.outcomes.outcomes) != 0 {
		t.Error("failed delivery must not persist a success outcome")
	}
}

func TestConsumer_PermanentFailureDeadLetters(t *testing.T) {
	fx := setupConsumer(t, provider.Failure("rejected", "provider returned 400", true))
	msg := &fakeMsg{}

	fx.consumer.Handle(context.Background(), msg, testEvent("evt-perm"))

	if !msg.acked {
		t.Error("dead-lettered failure should still ack")
	}
	if len(fx.pub.bySubject(broker.SubjectRetry)) != 0 {
		t.Error("permanent failure must not retry")
	}
	if len(fx.pub.bySubject(broker.SubjectDLQ)) != 1 {
		t.Error("expected a dead-letter publish")
	}
}

func TestConsumer_UnknownTemplateIsPermanent(t *testing.T) {
	fx := setupConsumer(t)
	msg := &fakeMsg{}
	event := testEvent("evt-tmpl")
	event.TemplateCode = "NO_SUCH_TEMPLATE"

	fx.consumer.Handle(context.Background(), msg, event)

	if fx.client.callCount() != 0 {
		t.Error("unresolvable template must not reach the provider")
	}
	if len(fx.pub.bySubject(broker.SubjectDLQ)) != 1 {
		t.Error("unresolvable template should dead-letter immediately")
	}
}

func TestConsumer_TemplateRendered(t *testing.T) {
	fx := setupConsumer(t, provider.Sent("prov-1", "{}"))
	msg := &fakeMsg{}
	event := testEvent("evt-render")
	event.TemplateCode = "WELCOME"
	event.TemplateVariables = map[string]string{"name": "Asha"}
	event.Body = ""

	fx.consumer.Handle(context.Background(), msg, event)

	if !msg.acked {
		t.Fatal("expected successful delivery")
	}
	if fx.client.callCount() != 1 {
		t.Fatalf("expected 1 provider call, got %d", fx.client.callCount())
	}
}

func TestConsumer_NoRecipientsIsPermanent(t *testing.T) {
	fx := setupConsumer(t)
	msg := &fakeMsg{}
	event := testEvent("evt-empty")
	event.Recipients = nil
	event.UserID = "user-1"

	fx.consumer.Handle(context.Background(), msg, event)

	if fx.client.callCount() != 0 {
		t.Error("event without recipients must not reach the provider")
	}
	if len(fx.pub.bySubject(broker.SubjectDLQ)) != 1 {
		t.Error("event without recipients should dead-letter immediately")
	}
}

func TestConsumer_SchedulerErrorNaks(t *testing.T) {
	fx := setupConsumer(t, provider.Failure("server_error", "provider returned 500", false))
	fx.pub.err = context.DeadlineExceeded
	msg := &fakeMsg{}

	fx.consumer.Handle(context.Background(), msg, testEvent("evt-pub"))

	if !msg.naked {
		t.Error("a failure that cannot be routed should nak for redelivery")
	}
	if msg.acked {
		t.Error("unrouted failure must not ack")
	}
}
