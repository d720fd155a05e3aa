package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionPlan holds the purchasable plan template. A nil KgLimit or
// ItemsLimit means that dimension is unmetered.
type SubscriptionPlan struct {
	ID           uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string           `gorm:"column:name;not null"`
	MaxPickups   int              `gorm:"column:max_pickups;not null"`
	KgLimit      *decimal.Decimal `gorm:"column:kg_limit;type:numeric(10,3)"`
	ItemsLimit   *int             `gorm:"column:items_limit"`
	DurationDays int              `gorm:"column:duration_days;not null"`
	PriceCents   int              `gorm:"column:price_cents;not null"`
	Active       bool             `gorm:"column:active;not null;default:true"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
