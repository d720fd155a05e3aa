package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateSubscription OutboxAggregateType = "subscription"
	AggregateInvoice      OutboxAggregateType = "invoice"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateSubscription,
	AggregateInvoice,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderStatusChanged     OutboxEventType = "order_status_changed"
	EventOrderCancelled         OutboxEventType = "order_cancelled"
	EventOrderPaymentCaptured   OutboxEventType = "order_payment_captured"
	EventInvoiceIssued          OutboxEventType = "invoice_issued"
	EventSubscriptionDeducted   OutboxEventType = "subscription_deducted"
	EventSubscriptionReconciled OutboxEventType = "subscription_reconciled"
	EventSubscriptionExhausted  OutboxEventType = "subscription_exhausted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderStatusChanged,
	EventOrderCancelled,
	EventOrderPaymentCaptured,
	EventInvoiceIssued,
	EventSubscriptionDeducted,
	EventSubscriptionReconciled,
	EventSubscriptionExhausted,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
