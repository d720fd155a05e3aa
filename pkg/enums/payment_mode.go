package enums

import "fmt"

// PaymentMode describes how an order expects to be settled.
type PaymentMode string

const (
	PaymentModeCash             PaymentMode = "cash"
	PaymentModeSubscriptionOnly PaymentMode = "subscription_only"
	PaymentModeBoth             PaymentMode = "both"
)

var validPaymentModes = []PaymentMode{
	PaymentModeCash,
	PaymentModeSubscriptionOnly,
	PaymentModeBoth,
}

// UsesSubscription reports whether the mode draws on a subscription plan.
func (p PaymentMode) UsesSubscription() bool {
	return p == PaymentModeSubscriptionOnly || p == PaymentModeBoth
}

// String implements fmt.Stringer.
func (p PaymentMode) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMode.
func (p PaymentMode) IsValid() bool {
	for _, candidate := range validPaymentModes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMode converts raw input into a PaymentMode.
func ParsePaymentMode(value string) (PaymentMode, error) {
	for _, candidate := range validPaymentModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment mode %q", value)
}
