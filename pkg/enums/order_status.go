package enums

import "fmt"

// OrderStatus tracks the lifecycle of a laundry order.
type OrderStatus string

const (
	OrderStatusBookingConfirmed OrderStatus = "booking_confirmed"
	OrderStatusPickupScheduled  OrderStatus = "pickup_scheduled"
	OrderStatusPickedUp         OrderStatus = "picked_up"
	OrderStatusInProcessing     OrderStatus = "in_processing"
	OrderStatusReady            OrderStatus = "ready"
	OrderStatusOutForDelivery   OrderStatus = "out_for_delivery"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCancelled        OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusBookingConfirmed,
	OrderStatusPickupScheduled,
	OrderStatusPickedUp,
	OrderStatusInProcessing,
	OrderStatusReady,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// AllOrderStatuses returns every known status, in lifecycle order.
func AllOrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(validOrderStatuses))
	copy(out, validOrderStatuses)
	return out
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave this status.
func (o OrderStatus) IsTerminal() bool {
	return o == OrderStatusDelivered || o == OrderStatusCancelled
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
