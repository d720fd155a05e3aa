package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/freshfold/freshfold-backend/pkg/enums"
)

// Order is the laundry order aggregate. Status only moves along the
// transition table in internal/orders; the per-status timestamps are
// first-write-wins and never overwritten.
type Order struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber    int64               `gorm:"column:order_number;not null"`
	CustomerID     uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index"`
	Status         enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'booking_confirmed'"`
	OrderType      enums.OrderType     `gorm:"column:order_type;type:order_type;not null;default:'individual'"`
	OrderSource    enums.OrderSource   `gorm:"column:order_source;type:order_source;not null;default:'app'"`
	PaymentMode    enums.PaymentMode   `gorm:"column:payment_mode;type:payment_mode;not null;default:'cash'"`
	PaymentStatus  enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'unpaid'"`
	SubscriptionID *uuid.UUID          `gorm:"column:subscription_id;type:uuid;index"`

	CancellationReason *string `gorm:"column:cancellation_reason"`

	ConfirmedAt       *time.Time `gorm:"column:confirmed_at"`
	PickupScheduledAt *time.Time `gorm:"column:pickup_scheduled_at"`
	PickedUpAt        *time.Time `gorm:"column:picked_up_at"`
	ProcessingAt      *time.Time `gorm:"column:processing_at"`
	ReadyAt           *time.Time `gorm:"column:ready_at"`
	OutForDeliveryAt  *time.Time `gorm:"column:out_for_delivery_at"`
	DeliveredAt       *time.Time `gorm:"column:delivered_at"`
	CancelledAt       *time.Time `gorm:"column:cancelled_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// StatusTimestamp returns a pointer to the timestamp field tracking entry
// into the given status, or nil when the status has no dedicated field.
func (o *Order) StatusTimestamp(status enums.OrderStatus) **time.Time {
	switch status {
	case enums.OrderStatusBookingConfirmed:
		return &o.ConfirmedAt
	case enums.OrderStatusPickupScheduled:
		return &o.PickupScheduledAt
	case enums.OrderStatusPickedUp:
		return &o.PickedUpAt
	case enums.OrderStatusInProcessing:
		return &o.ProcessingAt
	case enums.OrderStatusReady:
		return &o.ReadyAt
	case enums.OrderStatusOutForDelivery:
		return &o.OutForDeliveryAt
	case enums.OrderStatusDelivered:
		return &o.DeliveredAt
	case enums.OrderStatusCancelled:
		return &o.CancelledAt
	default:
		return nil
	}
}
