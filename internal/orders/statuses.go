package orders

import (
	"fmt"

	"github.com/freshfold/freshfold-backend/pkg/enums"
)

// transitions is the complete order status state machine. Every status owns
// an entry, terminal statuses map to the empty set. Cancellation is only
// reachable before the laundry has been picked up.
var transitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusBookingConfirmed: {enums.OrderStatusPickupScheduled, enums.OrderStatusCancelled},
	enums.OrderStatusPickupScheduled:  {enums.OrderStatusPickedUp, enums.OrderStatusCancelled},
	enums.OrderStatusPickedUp:         {enums.OrderStatusInProcessing},
	enums.OrderStatusInProcessing:     {enums.OrderStatusReady},
	enums.OrderStatusReady:            {enums.OrderStatusOutForDelivery},
	enums.OrderStatusOutForDelivery:   {enums.OrderStatusDelivered},
	enums.OrderStatusDelivered:        {},
	enums.OrderStatusCancelled:        {},
}

func init() {
	for _, status := range enums.AllOrderStatuses() {
		if _, ok := transitions[status]; !ok {
			panic(fmt.Sprintf("order status %q missing from transition table", status))
		}
	}
}

// IsAllowedTransition reports whether the order may move from one status to
// another. It is total over the enum; unknown statuses are never allowed.
func IsAllowedTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
