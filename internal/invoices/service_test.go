package invoices

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/freshfold/freshfold-backend/internal/orders"
	"github.com/freshfold/freshfold-backend/internal/subscriptions"
	"github.com/freshfold/freshfold-backend/pkg/db/models"
	"github.com/freshfold/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfold/freshfold-backend/pkg/errors"
	"github.com/freshfold/freshfold-backend/pkg/outbox"
	"github.com/freshfold/freshfold-backend/pkg/pdf"
)

func setupInvoicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  order_number INTEGER NOT NULL,
  customer_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'booking_confirmed',
  order_type TEXT NOT NULL DEFAULT 'individual',
  order_source TEXT NOT NULL DEFAULT 'app',
  payment_mode TEXT NOT NULL DEFAULT 'cash',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  subscription_id TEXT,
  cancellation_reason TEXT,
  confirmed_at DATETIME,
  pickup_scheduled_at DATETIME,
  picked_up_at DATETIME,
  processing_at DATETIME,
  ready_at DATETIME,
  out_for_delivery_at DATETIME,
  delivered_at DATETIME,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE subscription_plans (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL DEFAULT '',
  max_pickups INTEGER NOT NULL,
  kg_limit NUMERIC,
  items_limit INTEGER,
  duration_days INTEGER NOT NULL DEFAULT 30,
  price_cents INTEGER NOT NULL DEFAULT 0,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE subscriptions (
  id TEXT PRIMARY KEY,
  plan_id TEXT NOT NULL,
  customer_id TEXT NOT NULL,
  remaining_pickups INTEGER NOT NULL,
  used_kg NUMERIC NOT NULL DEFAULT 0,
  used_items_count INTEGER NOT NULL DEFAULT 0,
  max_pickups_override INTEGER,
  kg_limit_override NUMERIC,
  items_limit_override INTEGER,
  expires_at DATETIME NOT NULL,
  active INTEGER NOT NULL DEFAULT 1,
  paid INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE subscription_usages (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  subscription_id TEXT NOT NULL,
  order_id TEXT NOT NULL,
  invoice_id TEXT,
  deducted_pickups INTEGER NOT NULL DEFAULT 0,
  deducted_kg NUMERIC NOT NULL DEFAULT 0,
  deducted_items INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE UNIQUE INDEX ux_subscription_usages_invoice_subscription
  ON subscription_usages(invoice_id, subscription_id)
  WHERE invoice_id IS NOT NULL;`, `
CREATE UNIQUE INDEX ux_subscription_usages_order_subscription
  ON subscription_usages(order_id, subscription_id)
  WHERE invoice_id IS NULL;`, `
CREATE TABLE invoices (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  order_id TEXT NOT NULL,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'draft',
  subscription_kg NUMERIC,
  subscription_items INTEGER,
  apply_subscription INTEGER NOT NULL DEFAULT 0,
  subtotal_cents INTEGER NOT NULL DEFAULT 0,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL DEFAULT 0,
  issued_at DATETIME,
  pdf_url TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE UNIQUE INDEX ux_invoices_order_type ON invoices(order_id, type);`, `
CREATE TABLE invoice_line_items (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  invoice_id TEXT NOT NULL,
  position INTEGER NOT NULL,
  name TEXT NOT NULL,
  quantity NUMERIC NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  amount_cents INTEGER NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  dedup_key TEXT NOT NULL DEFAULT '',
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type testTxRunner struct {
	db *gorm.DB
}

func (r testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}

type stubRenderer struct {
	renders int
}

func (s *stubRenderer) RenderInvoice(doc pdf.InvoiceDocument) ([]byte, error) {
	s.renders++
	return []byte("%PDF-1.4 stub"), nil
}

type stubStore struct {
	uploads []string
}

func (s *stubStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	s.uploads = append(s.uploads, path)
	return "https://storage.test/invoices/" + path, nil
}

type invoicesFixture struct {
	db       *gorm.DB
	service  Service
	subsRepo subscriptions.Repository
	renderer *stubRenderer
	store    *stubStore
}

func newInvoicesFixture(t *testing.T) *invoicesFixture {
	t.Helper()
	db := setupInvoicesTestDB(t)
	ordersRepo := orders.NewRepository(db)
	subsRepo := subscriptions.NewRepository(db)
	usageRepo := subscriptions.NewUsageRepository(db)
	outboxSvc := outbox.NewService(outbox.NewRepository(db), nil)
	tx := testTxRunner{db: db}

	subsSvc, err := subscriptions.NewService(subsRepo, usageRepo, ordersRepo, tx, outboxSvc, nil, nil)
	require.NoError(t, err)

	renderer := &stubRenderer{}
	store := &stubStore{}
	svc, err := NewService(NewRepository(db), ordersRepo, subsSvc, subsRepo, tx, outboxSvc, renderer, store, Settings{
		Currency:     "USD",
		BusinessName: "FreshFold Laundry",
	}, nil, nil)
	require.NoError(t, err)

	return &invoicesFixture{
		db:       db,
		service:  svc,
		subsRepo: subsRepo,
		renderer: renderer,
		store:    store,
	}
}

func (f *invoicesFixture) seedOrder(t *testing.T, mutate func(*models.Order)) uuid.UUID {
	t.Helper()
	order := models.Order{
		ID:          uuid.New(),
		OrderNumber: 2024,
		CustomerID:  uuid.New(),
		Status:      enums.OrderStatusPickedUp,
		OrderType:   enums.OrderTypeIndividual,
		OrderSource: enums.OrderSourceApp,
		PaymentMode: enums.PaymentModeCash,
	}
	if mutate != nil {
		mutate(&order)
	}
	require.NoError(t, f.db.Create(&order).Error)
	return order.ID
}

func (f *invoicesFixture) seedSubscription(t *testing.T, mutate func(*models.Subscription)) uuid.UUID {
	t.Helper()
	plan := models.SubscriptionPlan{
		ID:         uuid.New(),
		Name:       "monthly",
		MaxPickups: 8,
	}
	kgLimit := decimal.RequireFromString("40")
	plan.KgLimit = &kgLimit
	require.NoError(t, f.db.Create(&plan).Error)

	sub := models.Subscription{
		ID:               uuid.New(),
		PlanID:           plan.ID,
		CustomerID:       uuid.New(),
		RemainingPickups: 5,
		UsedKg:           decimal.Zero,
		ExpiresAt:        time.Now().Add(30 * 24 * time.Hour),
		Active:           true,
		Paid:             true,
	}
	if mutate != nil {
		mutate(&sub)
	}
	require.NoError(t, f.db.Create(&sub).Error)
	return sub.ID
}

func (f *invoicesFixture) upsertDraft(t *testing.T, input UpsertDraftInput) *models.Invoice {
	t.Helper()
	invoice, err := f.service.UpsertDraft(context.Background(), input)
	require.NoError(t, err)
	return invoice
}

func washItems() []LineInput {
	return []LineInput{
		{Name: "wash & fold", Quantity: decimal.RequireFromString("6"), UnitPriceCents: 250},
	}
}

func TestUpsertDraftCreatesAndReplaces(t *testing.T) {
	f := newInvoicesFixture(t)
	ctx := context.Background()

	orderID := f.seedOrder(t, nil)

	first := f.upsertDraft(t, UpsertDraftInput{
		OrderID: orderID,
		Type:    enums.InvoiceTypeAcknowledgement,
		Items:   washItems(),
	})
	assert.Equal(t, 1500, first.SubtotalCents)
	assert.Equal(t, 1500, first.TotalCents)
	assert.Equal(t, enums.InvoiceStatusDraft, first.Status)

	second, err := f.service.UpsertDraft(ctx, UpsertDraftInput{
		OrderID:       orderID,
		Type:          enums.InvoiceTypeAcknowledgement,
		DiscountCents: 100,
		Items: []LineInput{
			{Name: "wash & fold", Quantity: decimal.RequireFromString("4"), UnitPriceCents: 250},
			{Name: "stain treatment", Quantity: decimal.RequireFromString("1"), UnitPriceCents: 500},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "upsert must keep the same invoice row")
	assert.Equal(t, 1500, second.SubtotalCents)
	assert.Equal(t, 1400, second.TotalCents)

	var lineCount int64
	require.NoError(t, f.db.Model(&models.InvoiceLineItem{}).
		Where("invoice_id = ?", first.ID).
		Count(&lineCount).Error)
	assert.Equal(t, int64(2), lineCount, "line items must be replaced, not appended")
}

func TestUpsertDraftMissingOrder(t *testing.T) {
	f := newInvoicesFixture(t)

	_, err := f.service.UpsertDraft(context.Background(), UpsertDraftInput{
		OrderID: uuid.New(),
		Type:    enums.InvoiceTypeAcknowledgement,
		Items:   washItems(),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOrderNotFound))
}

func TestIssueAcknowledgementWithSubscription(t *testing.T) {
	f := newInvoicesFixture(t)
	ctx := context.Background()

	subID := f.seedSubscription(t, nil)
	orderID := f.seedOrder(t, func(o *models.Order) {
		o.OrderType = enums.OrderTypeSubscription
		o.PaymentMode = enums.PaymentModeSubscriptionOnly
		o.SubscriptionID = &subID
	})

	kg := decimal.RequireFromString("6")
	f.upsertDraft(t, UpsertDraftInput{
		OrderID:        orderID,
		Type:           enums.InvoiceTypeAcknowledgement,
		Items:          washItems(),
		SubscriptionKg: &kg,
	})

	result, err := f.service.IssueAcknowledgement(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, enums.InvoiceStatusIssued, result.Invoice.Status)
	assert.NotEmpty(t, result.PdfURL)
	assert.Equal(t, 1, f.renderer.renders)

	sub, err := f.subsRepo.FindSubscription(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, 4, sub.RemainingPickups)
	assert.True(t, sub.UsedKg.Equal(kg), "got %s", sub.UsedKg)

	// Re-issue is idempotent: same PDF, no second deduction.
	again, err := f.service.IssueAcknowledgement(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, result.PdfURL, again.PdfURL)
	assert.Equal(t, 1, f.renderer.renders)

	sub, err = f.subsRepo.FindSubscription(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, 4, sub.RemainingPickups)
}

func TestIssueAcknowledgementGuards(t *testing.T) {
	f := newInvoicesFixture(t)
	ctx := context.Background()

	t.Run("cancelled order", func(t *testing.T) {
		orderID := f.seedOrder(t, func(o *models.Order) {
			o.Status = enums.OrderStatusCancelled
		})
		_, err := f.service.IssueAcknowledgement(ctx, orderID)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAckInvoiceNotAllowed))
	})

	t.Run("missing draft", func(t *testing.T) {
		orderID := f.seedOrder(t, nil)
		_, err := f.service.IssueAcknowledgement(ctx, orderID)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvoiceNotFound))
	})

	t.Run("unpaid subscription", func(t *testing.T) {
		subID := f.seedSubscription(t, func(s *models.Subscription) {
			s.Paid = false
		})
		orderID := f.seedOrder(t, func(o *models.Order) {
			o.PaymentMode = enums.PaymentModeSubscriptionOnly
			o.SubscriptionID = &subID
		})
		f.upsertDraft(t, UpsertDraftInput{
			OrderID: orderID,
			Type:    enums.InvoiceTypeAcknowledgement,
			Items:   washItems(),
		})
		_, err := f.service.IssueAcknowledgement(ctx, orderID)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSubscriptionNotPaid))
	})
}

func TestIssueFinalStatusGate(t *testing.T) {
	f := newInvoicesFixture(t)
	ctx := context.Background()

	t.Run("rejected while processing", func(t *testing.T) {
		orderID := f.seedOrder(t, func(o *models.Order) {
			o.Status = enums.OrderStatusInProcessing
		})
		f.upsertDraft(t, UpsertDraftInput{
			OrderID: orderID,
			Type:    enums.InvoiceTypeFinal,
			Items:   washItems(),
		})
		_, err := f.service.IssueFinal(ctx, orderID)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFinalInvoiceNotAllowed))
	})

	t.Run("walk-in ready is allowed", func(t *testing.T) {
		orderID := f.seedOrder(t, func(o *models.Order) {
			o.Status = enums.OrderStatusReady
			o.OrderSource = enums.OrderSourceWalkIn
		})
		f.upsertDraft(t, UpsertDraftInput{
			OrderID: orderID,
			Type:    enums.InvoiceTypeFinal,
			Items:   washItems(),
		})
		result, err := f.service.IssueFinal(ctx, orderID)
		require.NoError(t, err)
		assert.Equal(t, enums.InvoiceStatusIssued, result.Invoice.Status)
	})

	t.Run("app-sourced ready is rejected", func(t *testing.T) {
		orderID := f.seedOrder(t, func(o *models.Order) {
			o.Status = enums.OrderStatusReady
		})
		f.upsertDraft(t, UpsertDraftInput{
			OrderID: orderID,
			Type:    enums.InvoiceTypeFinal,
			Items:   washItems(),
		})
		_, err := f.service.IssueFinal(ctx, orderID)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeFinalInvoiceNotAllowed))
	})
}

func TestIssueFinalReconcilesUsage(t *testing.T) {
	f := newInvoicesFixture(t)
	ctx := context.Background()

	subID := f.seedSubscription(t, nil)
	orderID := f.seedOrder(t, func(o *models.Order) {
		o.Status = enums.OrderStatusOutForDelivery
		o.OrderType = enums.OrderTypeSubscription
		o.PaymentMode = enums.PaymentModeSubscriptionOnly
		o.SubscriptionID = &subID
	})

	ackKg := decimal.RequireFromString("6")
	f.upsertDraft(t, UpsertDraftInput{
		OrderID:        orderID,
		Type:           enums.InvoiceTypeAcknowledgement,
		Items:          washItems(),
		SubscriptionKg: &ackKg,
	})
	_, err := f.service.IssueAcknowledgement(ctx, orderID)
	require.NoError(t, err)

	sub, err := f.subsRepo.FindSubscription(ctx, subID)
	require.NoError(t, err)
	require.True(t, sub.UsedKg.Equal(ackKg))
	pickupsAfterAck := sub.RemainingPickups

	finalKg := decimal.RequireFromString("5")
	f.upsertDraft(t, UpsertDraftInput{
		OrderID:        orderID,
		Type:           enums.InvoiceTypeFinal,
		Items:          washItems(),
		SubscriptionKg: &finalKg,
	})
	_, err = f.service.IssueFinal(ctx, orderID)
	require.NoError(t, err)

	sub, err = f.subsRepo.FindSubscription(ctx, subID)
	require.NoError(t, err)
	assert.True(t, sub.UsedKg.Equal(finalKg), "used kg must drop from 6 to 5, got %s", sub.UsedKg)
	assert.Equal(t, pickupsAfterAck, sub.RemainingPickups, "pickups are finalized at acknowledgement time")

	var usage models.SubscriptionUsage
	require.NoError(t, f.db.Where("order_id = ? AND subscription_id = ?", orderID, subID).First(&usage).Error)
	assert.True(t, usage.DeductedKg.Equal(finalKg))
}

func TestIssueFinalZeroTotalCapturesPayment(t *testing.T) {
	f := newInvoicesFixture(t)
	ctx := context.Background()

	orderID := f.seedOrder(t, func(o *models.Order) {
		o.Status = enums.OrderStatusDelivered
	})
	f.upsertDraft(t, UpsertDraftInput{
		OrderID: orderID,
		Type:    enums.InvoiceTypeFinal,
		Items:   nil,
	})

	result, err := f.service.IssueFinal(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Invoice.TotalCents)

	var order models.Order
	require.NoError(t, f.db.Where("id = ?", orderID).First(&order).Error)
	assert.Equal(t, enums.PaymentStatusCaptured, order.PaymentStatus)

	var captured int64
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", "order_payment_captured").
		Count(&captured).Error)
	assert.Equal(t, int64(1), captured)
}

func TestIssueAcknowledgementUploadsUnderOrderPath(t *testing.T) {
	f := newInvoicesFixture(t)
	ctx := context.Background()

	orderID := f.seedOrder(t, nil)
	f.upsertDraft(t, UpsertDraftInput{
		OrderID: orderID,
		Type:    enums.InvoiceTypeAcknowledgement,
		Items:   washItems(),
	})

	result, err := f.service.IssueAcknowledgement(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, f.store.uploads, 1)
	assert.Equal(t, fmt.Sprintf("%s/acknowledgement.pdf", orderID), f.store.uploads[0])
	assert.Contains(t, result.PdfURL, "https://storage.test/")
}

func TestCreateDraftAssignsInvoiceID(t *testing.T) {
	f := newInvoicesFixture(t)

	orderID := f.seedOrder(t, nil)
	invoice := f.upsertDraft(t, UpsertDraftInput{
		OrderID: orderID,
		Type:    enums.InvoiceTypeAcknowledgement,
		Items:   washItems(),
	})
	require.NotEqual(t, uuid.Nil, invoice.ID)
}

func TestIssueAcknowledgementPersistsIssuedRow(t *testing.T) {
	f := newInvoicesFixture(t)
	ctx := context.Background()

	orderID := f.seedOrder(t, nil)
	f.upsertDraft(t, UpsertDraftInput{
		OrderID: orderID,
		Type:    enums.InvoiceTypeAcknowledgement,
		Items:   washItems(),
	})

	_, err := f.service.IssueAcknowledgement(ctx, orderID)
	require.NoError(t, err)

	var row models.Invoice
	require.NoError(t, f.db.
		Where("order_id = ? AND type = ?", orderID, enums.InvoiceTypeAcknowledgement).
		First(&row).Error)
	assert.Equal(t, enums.InvoiceStatusIssued, row.Status)
	require.NotNil(t, row.IssuedAt)
	require.NotNil(t, row.PdfURL)
}

func TestSetIssuedUnknownInvoice(t *testing.T) {
	f := newInvoicesFixture(t)

	err := NewRepository(f.db).SetIssued(context.Background(), uuid.New(), time.Now())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
