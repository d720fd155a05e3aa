package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/freshfold/freshfold-backend/pkg/logger"
)

type fakeSubscriptionExpiryRepo struct {
	lastNow time.Time
	called  int
	err     error
}

func (f *fakeSubscriptionExpiryRepo) DeactivateExpired(_ context.Context, now time.Time) (int64, error) {
	f.called++
	f.lastNow = now
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func TestSubscriptionExpiryJobSweepsWithCurrentTime(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &fakeSubscriptionExpiryRepo{}
	jobIface, err := NewSubscriptionExpiryJob(SubscriptionExpiryJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
		Now:        func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("NewSubscriptionExpiryJob: %v", err)
	}

	if err := jobIface.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if repo.called != 1 {
		t.Fatalf("expected repo called once, got %d", repo.called)
	}
	if !repo.lastNow.Equal(now) {
		t.Fatalf("expected sweep at %s, got %s", now, repo.lastNow)
	}
}

func TestSubscriptionExpiryJobPropagatesError(t *testing.T) {
	repo := &fakeSubscriptionExpiryRepo{err: errors.New("boom")}
	jobIface, err := NewSubscriptionExpiryJob(SubscriptionExpiryJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("NewSubscriptionExpiryJob: %v", err)
	}
	if err := jobIface.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestSubscriptionExpiryJobRequiresRepository(t *testing.T) {
	_, err := NewSubscriptionExpiryJob(SubscriptionExpiryJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
	})
	if err == nil {
		t.Fatal("expected error")
	}
}
