package invoices

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCalculateTotals(t *testing.T) {
	t.Run("derives amounts and sums subtotal", func(t *testing.T) {
		items := []LineInput{
			{Name: "wash & fold", Quantity: decimal.RequireFromString("3.5"), UnitPriceCents: 200},
			{Name: "ironing", Quantity: decimal.RequireFromString("4"), UnitPriceCents: 150},
		}
		totals := CalculateTotals(items, 100)
		assert.Equal(t, []int{700, 600}, totals.ItemAmounts)
		assert.Equal(t, 1300, totals.SubtotalCents)
		assert.Equal(t, 100, totals.TaxCents)
		assert.Equal(t, 1400, totals.TotalCents)
	})

	t.Run("explicit amount wins over derivation", func(t *testing.T) {
		amount := 999
		items := []LineInput{
			{Name: "flat rate bag", Quantity: decimal.RequireFromString("2"), UnitPriceCents: 300, AmountCents: &amount},
		}
		totals := CalculateTotals(items, 0)
		assert.Equal(t, []int{999}, totals.ItemAmounts)
		assert.Equal(t, 999, totals.SubtotalCents)
	})

	t.Run("rounds half away from zero", func(t *testing.T) {
		items := []LineInput{
			{Name: "delicates", Quantity: decimal.RequireFromString("1.5"), UnitPriceCents: 33},
		}
		totals := CalculateTotals(items, 0)
		// 1.5 * 33 = 49.5 -> 50
		assert.Equal(t, []int{50}, totals.ItemAmounts)
	})

	t.Run("empty items", func(t *testing.T) {
		totals := CalculateTotals(nil, 40)
		assert.Equal(t, 0, totals.SubtotalCents)
		assert.Equal(t, 40, totals.TotalCents)
		assert.Empty(t, totals.ItemAmounts)
	})

	t.Run("subtotal reproducible from per item amounts", func(t *testing.T) {
		items := []LineInput{
			{Name: "a", Quantity: decimal.RequireFromString("1.333"), UnitPriceCents: 75},
			{Name: "b", Quantity: decimal.RequireFromString("2.667"), UnitPriceCents: 149},
			{Name: "c", Quantity: decimal.RequireFromString("0.5"), UnitPriceCents: 99},
		}
		totals := CalculateTotals(items, 0)
		sum := 0
		for _, amount := range totals.ItemAmounts {
			sum += amount
		}
		assert.Equal(t, totals.SubtotalCents, sum)
	})
}
