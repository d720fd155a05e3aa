package pdf

import (
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
)

// InvoiceDocument is everything the renderer needs to draw one invoice.
// Money values arrive in minor currency units and are formatted here.
type InvoiceDocument struct {
	BusinessName  string
	Title         string
	InvoiceNumber string
	OrderNumber   string
	IssueDate     string
	Currency      string

	Items []InvoiceDocumentItem

	SubscriptionKg    *decimal.Decimal
	SubscriptionItems *int

	SubtotalCents int
	TaxCents      int
	DiscountCents int
	TotalCents    int
}

// InvoiceDocumentItem is one rendered line entry.
type InvoiceDocumentItem struct {
	Name           string
	Quantity       decimal.Decimal
	UnitPriceCents int
	AmountCents    int
}

// Renderer draws invoice documents with maroto.
type Renderer struct{}

// NewRenderer returns a PDF renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// RenderInvoice produces the PDF bytes for the document.
func (r *Renderer) RenderInvoice(doc InvoiceDocument) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, doc.Title, props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(6).Add(
			text.New("Invoice number: "+doc.InvoiceNumber, props.Text{Top: 0}),
			text.New("Order: "+doc.OrderNumber, props.Text{Top: 4}),
			text.New("Date of issue: "+doc.IssueDate, props.Text{Top: 8}),
		),
		col.New(6).Add(
			text.New(doc.BusinessName, props.Text{Style: fontstyle.Bold, Align: align.Right}),
		),
	)

	if doc.SubscriptionKg != nil || doc.SubscriptionItems != nil {
		usage := "Subscription usage:"
		if doc.SubscriptionKg != nil {
			usage += fmt.Sprintf(" %s kg", doc.SubscriptionKg.String())
		}
		if doc.SubscriptionItems != nil {
			usage += fmt.Sprintf(" %d items", *doc.SubscriptionItems)
		}
		m.AddRow(8,
			text.NewCol(12, usage, props.Text{Size: 9}),
		)
	}

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, item := range doc.Items {
		m.AddRow(10,
			text.NewCol(6, item.Name, props.Text{Size: 9}),
			text.NewCol(2, item.Quantity.String(), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, formatCents(item.UnitPriceCents, doc.Currency), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, formatCents(item.AmountCents, doc.Currency), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Subtotal", props.Text{Size: 9}),
		text.NewCol(2, formatCents(doc.SubtotalCents, doc.Currency), props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Tax", props.Text{Size: 9}),
		text.NewCol(2, formatCents(doc.TaxCents, doc.Currency), props.Text{Size: 9, Align: align.Right}),
	)
	if doc.DiscountCents != 0 {
		m.AddRow(10,
			col.New(8),
			text.NewCol(2, "Discount", props.Text{Size: 9}),
			text.NewCol(2, "-"+formatCents(doc.DiscountCents, doc.Currency), props.Text{Size: 9, Align: align.Right}),
		)
	}
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Total", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, formatCents(doc.TotalCents, doc.Currency), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	generated, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return generated.GetBytes(), nil
}

func formatCents(cents int, currency string) string {
	value := decimal.NewFromInt(int64(cents)).Div(decimal.NewFromInt(100))
	if currency == "" {
		return value.StringFixed(2)
	}
	return currency + " " + value.StringFixed(2)
}
