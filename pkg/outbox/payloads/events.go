package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/freshfold/freshfold-backend/pkg/enums"
)

// OrderStatusChangedEvent records a single state machine transition.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	FromStatus     enums.OrderStatus `json:"from_status"`
	ToStatus       enums.OrderStatus `json:"to_status"`
	SubscriptionID *uuid.UUID        `json:"subscription_id,omitempty"`
}

// OrderCancelledEvent accompanies the status-changed event on cancellation.
type OrderCancelledEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  *string   `json:"reason,omitempty"`
}

// OrderPaymentCapturedEvent marks an order as settled without a charge, which
// happens when the final invoice nets to zero.
type OrderPaymentCapturedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	InvoiceID uuid.UUID `json:"invoice_id"`
}

// InvoiceIssuedEvent is emitted whenever a draft is promoted to issued.
type InvoiceIssuedEvent struct {
	InvoiceID  uuid.UUID         `json:"invoice_id"`
	OrderID    uuid.UUID         `json:"order_id"`
	Type       enums.InvoiceType `json:"type"`
	TotalCents int               `json:"total_cents"`
}

// SubscriptionDeductedEvent carries the quota snapshot after a provisional
// deduction.
type SubscriptionDeductedEvent struct {
	SubscriptionID   uuid.UUID       `json:"subscription_id"`
	OrderID          uuid.UUID       `json:"order_id"`
	InvoiceID        *uuid.UUID      `json:"invoice_id,omitempty"`
	DeductedPickups  int             `json:"deducted_pickups"`
	DeductedKg       decimal.Decimal `json:"deducted_kg"`
	DeductedItems    int             `json:"deducted_items"`
	RemainingPickups int             `json:"remaining_pickups"`
	UsedKg           decimal.Decimal `json:"used_kg"`
	UsedItemsCount   int             `json:"used_items_count"`
}

// SubscriptionReconciledEvent captures the provisional-to-final usage swap.
type SubscriptionReconciledEvent struct {
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	OrderID        uuid.UUID       `json:"order_id"`
	PreviousKg     decimal.Decimal `json:"previous_kg"`
	PreviousItems  int             `json:"previous_items"`
	FinalKg        decimal.Decimal `json:"final_kg"`
	FinalItems     int             `json:"final_items"`
}

// SubscriptionExhaustedEvent signals a subscription went inactive after
// hitting one of its limits.
type SubscriptionExhaustedEvent struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	OrderID        uuid.UUID `json:"order_id"`
}
