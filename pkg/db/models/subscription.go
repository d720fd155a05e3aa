package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Subscription tracks a purchased plan and its remaining quota. The
// *_override columns take precedence over the plan's limits when set.
// Counters are only mutated by the deduction use case; a subscription is
// never deleted, it goes permanently inactive once exhausted.
type Subscription struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PlanID     uuid.UUID `gorm:"column:plan_id;type:uuid;not null;index"`
	CustomerID uuid.UUID `gorm:"column:customer_id;type:uuid;not null;index"`

	RemainingPickups int             `gorm:"column:remaining_pickups;not null"`
	UsedKg           decimal.Decimal `gorm:"column:used_kg;type:numeric(10,3);not null;default:0"`
	UsedItemsCount   int             `gorm:"column:used_items_count;not null;default:0"`

	MaxPickupsOverride *int             `gorm:"column:max_pickups_override"`
	KgLimitOverride    *decimal.Decimal `gorm:"column:kg_limit_override;type:numeric(10,3)"`
	ItemsLimitOverride *int             `gorm:"column:items_limit_override"`

	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
	Active    bool      `gorm:"column:active;not null;default:true"`
	Paid      bool      `gorm:"column:paid;not null;default:false"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
