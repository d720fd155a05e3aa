package enums

import "fmt"

// InvoiceType separates the provisional pickup-time invoice from the
// delivery-time one.
type InvoiceType string

const (
	InvoiceTypeAcknowledgement InvoiceType = "acknowledgement"
	InvoiceTypeFinal           InvoiceType = "final"
)

var validInvoiceTypes = []InvoiceType{
	InvoiceTypeAcknowledgement,
	InvoiceTypeFinal,
}

// String implements fmt.Stringer.
func (i InvoiceType) String() string {
	return string(i)
}

// IsValid reports whether the value is a known InvoiceType.
func (i InvoiceType) IsValid() bool {
	for _, candidate := range validInvoiceTypes {
		if candidate == i {
			return true
		}
	}
	return false
}

// ParseInvoiceType converts raw input into an InvoiceType.
func ParseInvoiceType(value string) (InvoiceType, error) {
	for _, candidate := range validInvoiceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid invoice type %q", value)
}
