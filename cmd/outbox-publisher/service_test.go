package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshfold/freshfold-backend/pkg/config"
	"github.com/freshfold/freshfold-backend/pkg/db/models"
	"github.com/freshfold/freshfold-backend/pkg/enums"
	"github.com/freshfold/freshfold-backend/pkg/logger"
	"github.com/freshfold/freshfold-backend/pkg/outbox"
	"github.com/freshfold/freshfold-backend/pkg/outbox/payloads"
	"github.com/freshfold/freshfold-backend/pkg/outbox/registry"
)

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakePubSub struct{}

func (fakePubSub) Ping(context.Context) error            { return nil }
func (fakePubSub) Publisher(string) *gcppubsub.Publisher { return nil }

type fakeRepo struct {
	pending   []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (r *fakeRepo) FetchUnpublishedForPublish(_ *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	var out []models.OutboxEvent
	for _, evt := range r.pending {
		if evt.AttemptCount >= maxAttempts {
			continue
		}
		out = append(out, evt)
		if len(out) == limit {
			break
		}
	}
	r.pending = nil
	return out, nil
}

func (r *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	r.published = append(r.published, id)
	return nil
}

func (r *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	r.failed = append(r.failed, id)
	return nil
}

func (r *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	r.terminal = append(r.terminal, id)
	return nil
}

type fakeDLQ struct {
	entries []models.OutboxDLQ
}

func (d *fakeDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	d.entries = append(d.entries, entry)
	return nil
}

type fakePublisher struct {
	err      error
	messages []*gcppubsub.Message
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return fakeResult{err: p.err}
}

type fakeResult struct {
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}

func newTestService(t *testing.T, repo *fakeRepo, dlq *fakeDLQ, pub *fakePublisher) *Service {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{
		OrdersTopic:  "orders-topic",
		BillingTopic: "billing-topic",
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Config: &config.Config{
			Outbox: config.OutboxConfig{BatchSize: 10, PollIntervalMS: 5, MaxAttempts: 3},
		},
		Logger:        logger.New(logger.Options{ServiceName: "outbox-publisher-test"}),
		DB:            fakeDB{},
		PubSub:        fakePubSub{},
		Repository:    repo,
		DLQRepository: dlq,
		Registry:      reg,
		PublisherFactory: func(string) publisher {
			return pub
		},
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return svc
}

func statusChangedEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	orderID := uuid.New()
	data, err := json.Marshal(payloads.OrderStatusChangedEvent{
		OrderID:    orderID,
		FromStatus: enums.OrderStatusBookingConfirmed,
		ToStatus:   enums.OrderStatusPickupScheduled,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       envelope,
		AttemptCount:  attempts,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	repo := &fakeRepo{}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{}
	event := statusChangedEvent(t, 0)
	repo.pending = []models.OutboxEvent{event}

	svc := newTestService(t, repo, dlq, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report work")
	}
	if len(repo.published) != 1 || repo.published[0] != event.ID {
		t.Fatalf("expected event marked published, got %v", repo.published)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one publish, got %d", len(pub.messages))
	}
	attrs := pub.messages[0].Attributes
	if attrs["event_type"] != string(enums.EventOrderStatusChanged) {
		t.Fatalf("unexpected event_type attribute %q", attrs["event_type"])
	}
	if attrs["aggregate_id"] != event.AggregateID.String() {
		t.Fatalf("unexpected aggregate_id attribute %q", attrs["aggregate_id"])
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("expected no dlq entries, got %d", len(dlq.entries))
	}
}

func TestProcessBatchEmptyQueue(t *testing.T) {
	repo := &fakeRepo{}
	svc := newTestService(t, repo, &fakeDLQ{}, &fakePublisher{})

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Fatalf("expected idle batch")
	}
}

func TestProcessBatchRetryableFailure(t *testing.T) {
	repo := &fakeRepo{}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{err: errors.New("transient broker outage")}
	event := statusChangedEvent(t, 0)
	repo.pending = []models.OutboxEvent{event}

	svc := newTestService(t, repo, dlq, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.failed) != 1 || repo.failed[0] != event.ID {
		t.Fatalf("expected event marked failed, got %v", repo.failed)
	}
	if len(repo.terminal) != 0 || len(dlq.entries) != 0 {
		t.Fatalf("retryable failure must not dead-letter")
	}
}

func TestProcessBatchMaxAttemptsDeadLetters(t *testing.T) {
	repo := &fakeRepo{}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{err: errors.New("still down")}
	event := statusChangedEvent(t, 2)
	repo.pending = []models.OutboxEvent{event}

	svc := newTestService(t, repo, dlq, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected event marked terminal, got %v", repo.terminal)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected one dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected dlq reason %s", entry.ErrorReason)
	}
	if entry.EventID != event.ID {
		t.Fatalf("dlq entry references wrong event %s", entry.EventID)
	}
	if entry.ErrorMessage == nil {
		t.Fatalf("dlq entry missing error message")
	}
}

func TestProcessBatchUnknownEventDeadLetters(t *testing.T) {
	repo := &fakeRepo{}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{}
	event := statusChangedEvent(t, 0)
	event.EventType = enums.OutboxEventType("order_teleported")
	repo.pending = []models.OutboxEvent{event}

	svc := newTestService(t, repo, dlq, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("unresolvable event must not publish")
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non-retryable dlq entry, got %+v", dlq.entries)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected terminal mark, got %v", repo.terminal)
	}
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	reg, err := registry.NewEventRegistry(config.PubSubConfig{
		OrdersTopic:  "orders-topic",
		BillingTopic: "billing-topic",
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Config:        &config.Config{},
		Logger:        logger.New(logger.Options{ServiceName: "outbox-publisher-test"}),
		DB:            fakeDB{},
		PubSub:        fakePubSub{},
		Repository:    &fakeRepo{},
		DLQRepository: &fakeDLQ{},
		Registry:      reg,
	})
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	if svc.batchSize != defaultBatchSize {
		t.Fatalf("unexpected batch size %d", svc.batchSize)
	}
	if svc.maxAttempts != defaultMaxAttempts {
		t.Fatalf("unexpected max attempts %d", svc.maxAttempts)
	}
	if svc.pollInterval != time.Duration(defaultPollMs)*time.Millisecond {
		t.Fatalf("unexpected poll interval %s", svc.pollInterval)
	}
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	base := 500 * time.Millisecond
	current := base
	for i := 0; i < 10; i++ {
		current = nextBackoff(current, base, maxBackoff)
	}
	if current != maxBackoff {
		t.Fatalf("expected backoff capped at %s, got %s", maxBackoff, current)
	}
}
