package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/freshfold/freshfold-backend/pkg/enums"
)

// Invoice is the order's billing document, at most one per (order, type).
// Drafts are upserted repeatedly; issuing is a one-way transition that
// stamps IssuedAt and generates the PDF.
type Invoice struct {
	ID      uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	Type    enums.InvoiceType   `gorm:"column:type;type:invoice_type;not null"`
	Status  enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null;default:'draft'"`

	// Provisional subscription usage shown on the document; written back
	// after the deduction succeeds.
	SubscriptionKg    *decimal.Decimal `gorm:"column:subscription_kg;type:numeric(10,3)"`
	SubscriptionItems *int             `gorm:"column:subscription_items"`
	ApplySubscription bool             `gorm:"column:apply_subscription;not null;default:false"`

	SubtotalCents int `gorm:"column:subtotal_cents;not null;default:0"`
	TaxCents      int `gorm:"column:tax_cents;not null;default:0"`
	DiscountCents int `gorm:"column:discount_cents;not null;default:0"`
	TotalCents    int `gorm:"column:total_cents;not null;default:0"`

	IssuedAt *time.Time `gorm:"column:issued_at"`
	PdfURL   *string    `gorm:"column:pdf_url"`

	Items []InvoiceLineItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// InvoiceLineItem is one priced entry on an invoice. AmountCents is either
// caller-supplied or derived as round(quantity * unit price).
type InvoiceLineItem struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID      uuid.UUID       `gorm:"column:invoice_id;type:uuid;not null;index"`
	Position       int             `gorm:"column:position;not null"`
	Name           string          `gorm:"column:name;not null"`
	Quantity       decimal.Decimal `gorm:"column:quantity;type:numeric(10,3);not null"`
	UnitPriceCents int             `gorm:"column:unit_price_cents;not null"`
	AmountCents    int             `gorm:"column:amount_cents;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
