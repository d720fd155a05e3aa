package subscriptions

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshfold/freshfold-backend/pkg/db/models"
	pkgerrors "github.com/freshfold/freshfold-backend/pkg/errors"
)

func decPtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func intPtr(v int) *int {
	return &v
}

func activeSubscription() *models.Subscription {
	return &models.Subscription{
		RemainingPickups: 5,
		UsedKg:           decimal.RequireFromString("3"),
		UsedItemsCount:   10,
		ExpiresAt:        time.Now().Add(30 * 24 * time.Hour),
		Active:           true,
	}
}

func TestResolveLimitsOverridePrecedence(t *testing.T) {
	plan := &models.SubscriptionPlan{
		MaxPickups: 8,
		KgLimit:    decPtr("40"),
		ItemsLimit: intPtr(100),
	}

	t.Run("plan defaults when no overrides", func(t *testing.T) {
		sub := activeSubscription()
		limits := ResolveLimits(sub, plan)
		assert.Equal(t, 8, limits.MaxPickups)
		assert.True(t, limits.KgLimit.Equal(decimal.RequireFromString("40")))
		assert.Equal(t, 100, *limits.ItemsLimit)
	})

	t.Run("overrides win per dimension", func(t *testing.T) {
		sub := activeSubscription()
		sub.KgLimitOverride = decPtr("25")
		sub.MaxPickupsOverride = intPtr(4)
		limits := ResolveLimits(sub, plan)
		assert.Equal(t, 4, limits.MaxPickups)
		assert.True(t, limits.KgLimit.Equal(decimal.RequireFromString("25")))
		assert.Equal(t, 100, *limits.ItemsLimit)
	})

	t.Run("nil plan limit means unmetered", func(t *testing.T) {
		sub := activeSubscription()
		limits := ResolveLimits(sub, &models.SubscriptionPlan{MaxPickups: 8})
		assert.Nil(t, limits.KgLimit)
		assert.Nil(t, limits.ItemsLimit)
	})
}

func TestAssertDeductionAllowed(t *testing.T) {
	now := time.Now()
	limits := EffectiveLimits{
		MaxPickups: 8,
		KgLimit:    decPtr("4"),
		ItemsLimit: intPtr(20),
	}

	t.Run("inactive subscription", func(t *testing.T) {
		sub := activeSubscription()
		sub.Active = false
		err := AssertDeductionAllowed(sub, limits, Deduction{Pickups: 1}, now)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSubscriptionExpired))
	})

	t.Run("expired subscription", func(t *testing.T) {
		sub := activeSubscription()
		sub.ExpiresAt = now.Add(-time.Hour)
		err := AssertDeductionAllowed(sub, limits, Deduction{Pickups: 1}, now)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSubscriptionExpired))
	})

	t.Run("no remaining pickups", func(t *testing.T) {
		sub := activeSubscription()
		sub.RemainingPickups = 0
		err := AssertDeductionAllowed(sub, limits, Deduction{Pickups: 1}, now)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNoRemainingPickups))
	})

	t.Run("zero pickup deduction allowed with none remaining", func(t *testing.T) {
		sub := activeSubscription()
		sub.RemainingPickups = 0
		sub.UsedKg = decimal.RequireFromString("2")
		err := AssertDeductionAllowed(sub, limits, Deduction{Pickups: 0, Kg: decimal.RequireFromString("1")}, now)
		assert.NoError(t, err)
	})

	t.Run("landing exactly on kg limit passes", func(t *testing.T) {
		sub := activeSubscription()
		sub.UsedKg = decimal.RequireFromString("3")
		err := AssertDeductionAllowed(sub, limits, Deduction{Pickups: 1, Kg: decimal.RequireFromString("1")}, now)
		assert.NoError(t, err)
	})

	t.Run("any kg overshoot fails", func(t *testing.T) {
		sub := activeSubscription()
		sub.UsedKg = decimal.RequireFromString("3")
		err := AssertDeductionAllowed(sub, limits, Deduction{Pickups: 1, Kg: decimal.RequireFromString("1.001")}, now)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeExceededLimit))
	})

	t.Run("landing exactly on items limit passes", func(t *testing.T) {
		sub := activeSubscription()
		err := AssertDeductionAllowed(sub, limits, Deduction{Pickups: 1, Items: 10}, now)
		assert.NoError(t, err)
	})

	t.Run("items overshoot fails", func(t *testing.T) {
		sub := activeSubscription()
		err := AssertDeductionAllowed(sub, limits, Deduction{Pickups: 1, Items: 11}, now)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeExceededLimit))
	})

	t.Run("unmetered dimensions never fail", func(t *testing.T) {
		sub := activeSubscription()
		open := EffectiveLimits{MaxPickups: 8}
		err := AssertDeductionAllowed(sub, open, Deduction{Pickups: 1, Kg: decimal.RequireFromString("999"), Items: 999}, now)
		assert.NoError(t, err)
	})
}

func TestIsExhausted(t *testing.T) {
	now := time.Now()
	limits := EffectiveLimits{
		MaxPickups: 8,
		KgLimit:    decPtr("4"),
		ItemsLimit: intPtr(20),
	}

	cases := []struct {
		name   string
		mutate func(*models.Subscription)
		want   bool
	}{
		{"healthy subscription", func(s *models.Subscription) {}, false},
		{"inactive", func(s *models.Subscription) { s.Active = false }, true},
		{"expired", func(s *models.Subscription) { s.ExpiresAt = now.Add(-time.Minute) }, true},
		{"zero pickups", func(s *models.Subscription) { s.RemainingPickups = 0 }, true},
		{"kg at limit", func(s *models.Subscription) { s.UsedKg = decimal.RequireFromString("4") }, true},
		{"items at limit", func(s *models.Subscription) { s.UsedItemsCount = 20 }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := activeSubscription()
			tc.mutate(sub)
			assert.Equal(t, tc.want, IsExhausted(sub, limits, now))
		})
	}
}
