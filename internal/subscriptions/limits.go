package subscriptions

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/freshfold/freshfold-backend/pkg/db/models"
	pkgerrors "github.com/freshfold/freshfold-backend/pkg/errors"
)

// Deduction is a proposed consumption against a subscription.
type Deduction struct {
	Pickups int
	Kg      decimal.Decimal
	Items   int
}

// EffectiveLimits are the limits actually in force for a subscription after
// resolving overrides. A nil KgLimit or ItemsLimit means that dimension is
// unmetered.
type EffectiveLimits struct {
	MaxPickups int
	KgLimit    *decimal.Decimal
	ItemsLimit *int
}

// ResolveLimits applies subscription-level overrides over the plan defaults.
// Precedence lives here and nowhere else.
func ResolveLimits(sub *models.Subscription, plan *models.SubscriptionPlan) EffectiveLimits {
	var limits EffectiveLimits
	if plan != nil {
		limits.MaxPickups = plan.MaxPickups
		limits.KgLimit = plan.KgLimit
		limits.ItemsLimit = plan.ItemsLimit
	}
	if sub.MaxPickupsOverride != nil {
		limits.MaxPickups = *sub.MaxPickupsOverride
	}
	if sub.KgLimitOverride != nil {
		limits.KgLimit = sub.KgLimitOverride
	}
	if sub.ItemsLimitOverride != nil {
		limits.ItemsLimit = sub.ItemsLimitOverride
	}
	return limits
}

// AssertDeductionAllowed validates the proposed deduction in a fixed order,
// each violation carrying its own stable code. Landing exactly on a limit
// passes; only strictly exceeding it fails.
func AssertDeductionAllowed(sub *models.Subscription, limits EffectiveLimits, d Deduction, now time.Time) error {
	if !sub.Active {
		return pkgerrors.New(pkgerrors.CodeSubscriptionExpired, "subscription is inactive")
	}
	if sub.ExpiresAt.Before(now) {
		return pkgerrors.New(pkgerrors.CodeSubscriptionExpired,
			fmt.Sprintf("subscription expired on %s", sub.ExpiresAt.Format(time.RFC3339)))
	}
	if sub.RemainingPickups < d.Pickups {
		return pkgerrors.New(pkgerrors.CodeNoRemainingPickups,
			fmt.Sprintf("%d pickups remaining, %d requested", sub.RemainingPickups, d.Pickups))
	}
	if limits.KgLimit != nil && sub.UsedKg.Add(d.Kg).GreaterThan(*limits.KgLimit) {
		return pkgerrors.New(pkgerrors.CodeExceededLimit, "deduction exceeds kg limit").
			WithDetails(map[string]any{
				"limit":     "kg",
				"used_kg":   sub.UsedKg.String(),
				"deduct_kg": d.Kg.String(),
				"kg_limit":  limits.KgLimit.String(),
			})
	}
	if limits.ItemsLimit != nil && sub.UsedItemsCount+d.Items > *limits.ItemsLimit {
		return pkgerrors.New(pkgerrors.CodeExceededLimit, "deduction exceeds items limit").
			WithDetails(map[string]any{
				"limit":        "items",
				"used_items":   sub.UsedItemsCount,
				"deduct_items": d.Items,
				"items_limit":  *limits.ItemsLimit,
			})
	}
	return nil
}

// IsExhausted reports whether the subscription has hit any of its limits and
// must be flagged inactive.
func IsExhausted(sub *models.Subscription, limits EffectiveLimits, now time.Time) bool {
	if !sub.Active || sub.ExpiresAt.Before(now) {
		return true
	}
	if sub.RemainingPickups <= 0 {
		return true
	}
	if limits.KgLimit != nil && sub.UsedKg.GreaterThanOrEqual(*limits.KgLimit) {
		return true
	}
	if limits.ItemsLimit != nil && sub.UsedItemsCount >= *limits.ItemsLimit {
		return true
	}
	return false
}
