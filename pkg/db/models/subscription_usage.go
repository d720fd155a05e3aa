package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubscriptionUsage is a ledger row recording one deduction against a
// subscription. Partial unique indexes allow at most one row per
// (invoice_id, subscription_id) when invoice_id is set, otherwise one per
// (order_id, subscription_id); that constraint, not application checks, is
// what makes the deduction idempotent under concurrent retries.
type SubscriptionUsage struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID  `gorm:"column:subscription_id;type:uuid;not null;index"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	InvoiceID      *uuid.UUID `gorm:"column:invoice_id;type:uuid"`

	DeductedPickups int             `gorm:"column:deducted_pickups;not null"`
	DeductedKg      decimal.Decimal `gorm:"column:deducted_kg;type:numeric(10,3);not null;default:0"`
	DeductedItems   int             `gorm:"column:deducted_items;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
