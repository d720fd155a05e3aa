package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/freshfold/freshfold-backend/internal/repo"
	"github.com/freshfold/freshfold-backend/pkg/db/models"
	"github.com/freshfold/freshfold-backend/pkg/enums"
)

// Repository handles invoice persistence. One ACK and one FINAL invoice
// exist per order at most, enforced by the unique (order_id, type) index.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByOrderAndType(ctx context.Context, orderID uuid.UUID, invoiceType enums.InvoiceType) (*models.Invoice, error)
	CreateDraft(ctx context.Context, invoice *models.Invoice) error
	UpdateDraft(ctx context.Context, invoice *models.Invoice) error
	SetIssued(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePdfURL(ctx context.Context, id uuid.UUID, url string) error
	UpdateSubscriptionAmounts(ctx context.Context, id uuid.UUID, kg decimal.Decimal, items int) error
}

type repository struct {
	base repo.Base
}

// NewRepository returns an invoice repository backed by the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) FindByOrderAndType(ctx context.Context, orderID uuid.UUID, invoiceType enums.InvoiceType) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.base.DB(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("order_id = ? AND type = ?", orderID, invoiceType).
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// CreateDraft assigns the ID here rather than leaving it to the column
// default, so follow-up updates by ID see the exact value that was written.
func (r *repository) CreateDraft(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	return r.base.DB(ctx).Create(invoice).Error
}

// UpdateDraft rewrites the invoice header and replaces its line items.
func (r *repository) UpdateDraft(ctx context.Context, invoice *models.Invoice) error {
	db := r.base.DB(ctx)
	updates := map[string]any{
		"subscription_kg":    invoice.SubscriptionKg,
		"subscription_items": invoice.SubscriptionItems,
		"apply_subscription": invoice.ApplySubscription,
		"subtotal_cents":     invoice.SubtotalCents,
		"tax_cents":          invoice.TaxCents,
		"discount_cents":     invoice.DiscountCents,
		"total_cents":        invoice.TotalCents,
	}
	if err := db.Model(&models.Invoice{}).Where("id = ?", invoice.ID).Updates(updates).Error; err != nil {
		return err
	}
	if err := db.Where("invoice_id = ?", invoice.ID).Delete(&models.InvoiceLineItem{}).Error; err != nil {
		return err
	}
	for i := range invoice.Items {
		invoice.Items[i].ID = uuid.Nil
		invoice.Items[i].InvoiceID = invoice.ID
	}
	if len(invoice.Items) == 0 {
		return nil
	}
	return db.Create(&invoice.Items).Error
}

func (r *repository) SetIssued(ctx context.Context, id uuid.UUID, at time.Time) error {
	res := r.base.DB(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":    enums.InvoiceStatusIssued,
			"issued_at": at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) UpdatePdfURL(ctx context.Context, id uuid.UUID, url string) error {
	return r.base.DB(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", id).
		Update("pdf_url", url).Error
}

func (r *repository) UpdateSubscriptionAmounts(ctx context.Context, id uuid.UUID, kg decimal.Decimal, items int) error {
	return r.base.DB(ctx).
		Model(&models.Invoice{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"subscription_kg":    kg,
			"subscription_items": items,
		}).Error
}
