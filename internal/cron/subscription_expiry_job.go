package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/freshfold/freshfold-backend/pkg/logger"
)

type subscriptionExpiryRepo interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type SubscriptionExpiryJobParams struct {
	Logger     *logger.Logger
	Repository subscriptionExpiryRepo
	Now        func() time.Time
}

// NewSubscriptionExpiryJob builds the sweep that deactivates subscriptions
// past their expires_at. The deduction path already rejects expired
// subscriptions; the sweep keeps overview reads accurate for ones that never
// receive another deduction.
func NewSubscriptionExpiryJob(params SubscriptionExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &subscriptionExpiryJob{
		logg: params.Logger,
		repo: params.Repository,
		now:  now,
	}, nil
}

type subscriptionExpiryJob struct {
	logg *logger.Logger
	repo subscriptionExpiryRepo
	now  func() time.Time
}

func (j *subscriptionExpiryJob) Name() string { return "subscription-expiry" }

func (j *subscriptionExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	deactivated, err := j.repo.DeactivateExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("subscription expiry sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"as_of":       now,
		"deactivated": deactivated,
	})
	j.logg.Info(logCtx, "subscription expiry sweep complete")
	return nil
}
