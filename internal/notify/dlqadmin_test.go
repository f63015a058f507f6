package notify

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ashish12meena/aigreentick-microservices/internal/broker"
	"github.com/Ashish12meena/aigreentick-microservices/internal/domain"
)

type fakeDeadLetterStore struct {
	mu      sync.Mutex
	records map[string]*domain.DeadLetterRecord
}

func newFakeDeadLetterStore() *fakeDeadLetterStore {
	return &fakeDeadLetterStore{records: make(map[string]*domain.DeadLetterRecord)}
}

func (f *fakeDeadLetterStore) add(rec *domain.DeadLetterRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.ID] = rec
}

func (f *fakeDeadLetterStore) GetDeadLetter(ctx context.Context, id string) (*domain.DeadLetterRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeDeadLetterStore) ListUnprocessedDeadLetters(ctx context.Context, offset, limit int) ([]domain.DeadLetterRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DeadLetterRecord
	for _, rec := range f.records {
		if !rec.Processed {
			out = append(out, *rec)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeDeadLetterStore) DeadLetterStats(ctx context.Context) (domain.DeadLetterStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stats domain.DeadLetterStats
	for _, rec := range f.records {
		stats.Total++
		if rec.Processed {
			stats.Processed++
		} else {
			stats.Unprocessed++
		}
	}
	return stats, nil
}

func (f *fakeDeadLetterStore) MarkDeadLetterProcessed(ctx context.Context, id, operator, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil
	}
	rec.Processed = true
	rec.ReprocessedBy = &operator
	rec.ReprocessingNotes = &notes
	return nil
}

func deadLetterFixture(t *testing.T, id, eventID string) *domain.DeadLetterRecord {
	t.Helper()
	event := testEvent(eventID)
	event.RetryCount = 3
	event.SetMeta(domain.MetaDLQReason, "provider returned 503")
	event.SetMeta(domain.MetaDLQTimestamp, time.Now().UTC().Format(time.RFC3339))
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return &domain.DeadLetterRecord{
		ID:            id,
		EventID:       eventID,
		OriginSubject: broker.SubjectDLQ,
		Payload:       string(payload),
		RetryCount:    3,
		FailureReason: "provider returned 503",
		Audit:         domain.NewAuditInfo("dlq-consumer"),
	}
}

func setupAdmin(t *testing.T) (*DLQAdmin, *fakeDeadLetterStore, *fakePublisher) {
	t.Helper()
	store := newFakeDeadLetterStore()
	pub := &fakePublisher{}
	producer := NewProducer(pub, testLogger())
	return NewDLQAdmin(store, producer, testLogger()), store, pub
}

func TestDLQAdmin_RetryResetsAndReplays(t *testing.T) {
	admin, store, pub := setupAdmin(t)
	store.add(deadLetterFixture(t, "dl-1", "evt-1"))

	if err := admin.Retry(context.Background(), "dl-1", "ops@example.com", "root cause fixed"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	replays := pub.bySubject(broker.SubjectMain)
	if len(replays) != 1 {
		t.Fatalf("expected 1 replay publish, got %d", len(replays))
	}
	if !strings.HasPrefix(replays[0].msgID, "evt-1-replay-") {
		t.Errorf("replay must use a fresh publish id, got %q", replays[0].msgID)
	}

	var replayed domain.DeliveryEvent
	if err := json.Unmarshal(replays[0].data, &replayed); err != nil {
		t.Fatalf("unmarshal replayed event: %v", err)
	}
	if replayed.RetryCount != 0 {
		t.Errorf("replay must reset retry count, got %d", replayed.RetryCount)
	}
	if _, ok := replayed.Metadata[domain.MetaDLQReason]; ok {
		t.Error("replay must strip dead-letter reason metadata")
	}
	if _, ok := replayed.Metadata[domain.MetaDLQTimestamp]; ok {
		t.Error("replay must strip dead-letter timestamp metadata")
	}

	rec, _ := store.GetDeadLetter(context.Background(), "dl-1")
	if !rec.Processed {
		t.Error("retried record must be marked processed, not deleted")
	}
	if rec.ReprocessedBy == nil || *rec.ReprocessedBy != "ops@example.com" {
		t.Error("retried record must carry operator attribution")
	}
	if rec.ReprocessingNotes == nil || *rec.ReprocessingNotes != "root cause fixed" {
		t.Error("retried record must carry the operator notes")
	}
}

func TestDLQAdmin_RetryNotFound(t *testing.T) {
	admin, _, _ := setupAdmin(t)

	err := admin.Retry(context.Background(), "missing", "ops", "")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestDLQAdmin_RetryAlreadyProcessed(t *testing.T) {
	admin, store, pub := setupAdmin(t)
	rec := deadLetterFixture(t, "dl-2", "evt-2")
	rec.Processed = true
	store.add(rec)

	err := admin.Retry(context.Background(), "dl-2", "ops", "")
	if err == nil || !strings.Contains(err.Error(), "already processed") {
		t.Errorf("expected already processed error, got %v", err)
	}
	if len(pub.msgs) != 0 {
		t.Error("processed record must not be replayed")
	}
}

func TestDLQAdmin_RetryDefaultNotes(t *testing.T) {
	admin, store, _ := setupAdmin(t)
	store.add(deadLetterFixture(t, "dl-3", "evt-3"))

	if err := admin.Retry(context.Background(), "dl-3", "ops", ""); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	rec, _ := store.GetDeadLetter(context.Background(), "dl-3")
	if rec.ReprocessingNotes == nil || *rec.ReprocessingNotes != "retried via admin" {
		t.Error("empty notes should default to the admin retry note")
	}
}

func TestDLQAdmin_RetryAll(t *testing.T) {
	admin, store, pub := setupAdmin(t)
	store.add(deadLetterFixture(t, "dl-a", "evt-a"))
	store.add(deadLetterFixture(t, "dl-b", "evt-b"))
	processed := deadLetterFixture(t, "dl-c", "evt-c")
	processed.Processed = true
	store.add(processed)

	retried, err := admin.RetryAll(context.Background(), "ops", "bulk replay")
	if err != nil {
		t.Fatalf("retry all failed: %v", err)
	}
	if retried != 2 {
		t.Errorf("expected 2 retried, got %d", retried)
	}
	if len(pub.bySubject(broker.SubjectMain)) != 2 {
		t.Errorf("expected 2 replays, got %d", len(pub.bySubject(broker.SubjectMain)))
	}

	stats, _ := store.DeadLetterStats(context.Background())
	if stats.Unprocessed != 0 {
		t.Errorf("expected no unprocessed records left, got %d", stats.Unprocessed)
	}
	if stats.Total != 3 {
		t.Errorf("records must never be deleted, expected total 3, got %d", stats.Total)
	}
}

func TestDLQAdmin_MarkProcessedWithoutRetry(t *testing.T) {
	admin, store, pub := setupAdmin(t)
	store.add(deadLetterFixture(t, "dl-4", "evt-4"))

	if err := admin.MarkProcessed(context.Background(), "dl-4", "ops", ""); err != nil {
		t.Fatalf("mark processed failed: %v", err)
	}

	if len(pub.msgs) != 0 {
		t.Error("mark processed must not replay the event")
	}
	rec, _ := store.GetDeadLetter(context.Background(), "dl-4")
	if !rec.Processed {
		t.Error("record should be processed")
	}
	if rec.ReprocessingNotes == nil || *rec.ReprocessingNotes != "manually marked as processed" {
		t.Error("empty notes should default to the manual resolution note")
	}
}

func TestDLQAdmin_ListUnprocessedPagination(t *testing.T) {
	admin, store, _ := setupAdmin(t)
	store.add(deadLetterFixture(t, "dl-x", "evt-x"))

	records, err := admin.ListUnprocessed(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("defaulted pagination should return the record, got %d", len(records))
	}
}
