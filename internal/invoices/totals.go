package invoices

import (
	"github.com/shopspring/decimal"
)

// LineInput is one priced entry going into the totals calculation. A nil
// AmountCents means the amount is derived from quantity and unit price.
type LineInput struct {
	Name           string
	Quantity       decimal.Decimal
	UnitPriceCents int
	AmountCents    *int
}

// Totals is the result of the calculation. ItemAmounts holds the resolved
// per-line amounts in input order.
type Totals struct {
	SubtotalCents int
	TaxCents      int
	TotalCents    int
	ItemAmounts   []int
}

// CalculateTotals is the single place invoice totals are computed. Tax is a
// flat amount, not a rate. Derived line amounts round half away from zero on
// the cent value; callers subtract any discount from TotalCents afterwards.
func CalculateTotals(items []LineInput, taxCents int) Totals {
	totals := Totals{
		TaxCents:    taxCents,
		ItemAmounts: make([]int, len(items)),
	}
	for i, item := range items {
		amount := 0
		if item.AmountCents != nil {
			amount = *item.AmountCents
		} else {
			amount = int(item.Quantity.
				Mul(decimal.NewFromInt(int64(item.UnitPriceCents))).
				Round(0).
				IntPart())
		}
		totals.ItemAmounts[i] = amount
		totals.SubtotalCents += amount
	}
	totals.TotalCents = totals.SubtotalCents + taxCents
	return totals
}
