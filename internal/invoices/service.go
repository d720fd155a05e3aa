package invoices

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/freshfold/freshfold-backend/internal/orders"
	"github.com/freshfold/freshfold-backend/internal/subscriptions"
	"github.com/freshfold/freshfold-backend/pkg/db/models"
	"github.com/freshfold/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfold/freshfold-backend/pkg/errors"
	"github.com/freshfold/freshfold-backend/pkg/logger"
	"github.com/freshfold/freshfold-backend/pkg/metrics"
	"github.com/freshfold/freshfold-backend/pkg/outbox"
	"github.com/freshfold/freshfold-backend/pkg/pdf"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type subscriptionApplier interface {
	ApplyToOrder(ctx context.Context, input subscriptions.ApplyInput) (subscriptions.ApplyResult, error)
	Reconcile(ctx context.Context, input subscriptions.ReconcileInput) error
}

type subscriptionReader interface {
	FindSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
}

type pdfRenderer interface {
	RenderInvoice(doc pdf.InvoiceDocument) ([]byte, error)
}

type objectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// Settings carries the billing configuration applied at draft time.
type Settings struct {
	TaxBasisPoints int
	Currency       string
	BusinessName   string
}

// UpsertDraftInput replaces the draft content for one (order, type) invoice.
type UpsertDraftInput struct {
	OrderID           uuid.UUID
	Type              enums.InvoiceType
	Items             []LineInput
	DiscountCents     int
	SubscriptionKg    *decimal.Decimal
	SubscriptionItems *int
	ApplySubscription bool
}

// IssueResult reports the issued invoice and where its PDF lives.
type IssueResult struct {
	Invoice *models.Invoice
	PdfURL  string
}

// Service exposes the invoicing operations.
type Service interface {
	UpsertDraft(ctx context.Context, input UpsertDraftInput) (*models.Invoice, error)
	IssueAcknowledgement(ctx context.Context, orderID uuid.UUID) (*IssueResult, error)
	IssueFinal(ctx context.Context, orderID uuid.UUID) (*IssueResult, error)
}

type service struct {
	repo     Repository
	orders   orders.Repository
	subs     subscriptionApplier
	subsRepo subscriptionReader
	tx       txRunner
	outbox   outboxPublisher
	renderer pdfRenderer
	store    objectStore
	settings Settings
	logg     *logger.Logger
	metrics  *metrics.BillingMetrics
	now      func() time.Time
}

// NewService builds an invoice service with the required dependencies.
func NewService(repo Repository, ordersRepo orders.Repository, subs subscriptionApplier, subsRepo subscriptionReader, tx txRunner, outboxSvc outboxPublisher, renderer pdfRenderer, store objectStore, settings Settings, logg *logger.Logger, billing *metrics.BillingMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("invoices repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if subs == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	if subsRepo == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("pdf renderer required")
	}
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	return &service{
		repo:     repo,
		orders:   ordersRepo,
		subs:     subs,
		subsRepo: subsRepo,
		tx:       tx,
		outbox:   outboxSvc,
		renderer: renderer,
		store:    store,
		settings: settings,
		logg:     logg,
		metrics:  billing,
		now:      time.Now,
	}, nil
}

// IssuedEvent is emitted the first time an invoice is issued.
type IssuedEvent struct {
	InvoiceID  uuid.UUID         `json:"invoice_id"`
	OrderID    uuid.UUID         `json:"order_id"`
	Type       enums.InvoiceType `json:"type"`
	TotalCents int               `json:"total_cents"`
}

// PaymentCapturedEvent is emitted when a zero-total final invoice settles
// the order.
type PaymentCapturedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	InvoiceID uuid.UUID `json:"invoice_id"`
}

// UpsertDraft creates or replaces the draft invoice content. Totals are
// computed here and nowhere else; the configured tax rate converts to a flat
// amount before the calculation and the discount is subtracted afterwards.
func (s *service) UpsertDraft(ctx context.Context, input UpsertDraftInput) (*models.Invoice, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown invoice type")
	}
	if input.DiscountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount cannot be negative")
	}

	order, err := s.orders.FindOrder(ctx, input.OrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	totals := CalculateTotals(input.Items, s.taxFor(input.Items))
	lineItems := make([]models.InvoiceLineItem, len(input.Items))
	for i, item := range input.Items {
		lineItems[i] = models.InvoiceLineItem{
			Position:       i + 1,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			AmountCents:    totals.ItemAmounts[i],
		}
	}

	invoice := &models.Invoice{
		OrderID:           input.OrderID,
		Type:              input.Type,
		Status:            enums.InvoiceStatusDraft,
		SubscriptionKg:    input.SubscriptionKg,
		SubscriptionItems: input.SubscriptionItems,
		ApplySubscription: input.ApplySubscription,
		SubtotalCents:     totals.SubtotalCents,
		TaxCents:          totals.TaxCents,
		DiscountCents:     input.DiscountCents,
		TotalCents:        totals.TotalCents - input.DiscountCents,
		Items:             lineItems,
	}

	existing, err := s.repo.FindByOrderAndType(ctx, input.OrderID, input.Type)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	if existing == nil || err == gorm.ErrRecordNotFound {
		if err := s.repo.CreateDraft(ctx, invoice); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create draft")
		}
		return invoice, nil
	}

	// Issued invoices stay editable until the payment is captured.
	if existing.Status == enums.InvoiceStatusIssued && order.PaymentStatus == enums.PaymentStatusCaptured {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "invoice can no longer be edited")
	}
	invoice.ID = existing.ID
	invoice.Status = existing.Status
	invoice.IssuedAt = existing.IssuedAt
	invoice.PdfURL = existing.PdfURL
	if err := s.repo.UpdateDraft(ctx, invoice); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update draft")
	}
	return invoice, nil
}

// taxFor converts the configured rate into the flat amount the calculator
// expects, rounding half away from zero.
func (s *service) taxFor(items []LineInput) int {
	if s.settings.TaxBasisPoints == 0 {
		return 0
	}
	subtotal := CalculateTotals(items, 0).SubtotalCents
	tax := decimal.NewFromInt(int64(subtotal)).
		Mul(decimal.NewFromInt(int64(s.settings.TaxBasisPoints))).
		Div(decimal.NewFromInt(10000)).
		Round(0)
	return int(tax.IntPart())
}

// IssueAcknowledgement issues the provisional invoice around pickup time and
// runs the subscription deduction once. Re-issuing an already issued invoice
// is a no-op returning the stored PDF location.
func (s *service) IssueAcknowledgement(ctx context.Context, orderID uuid.UUID) (*IssueResult, error) {
	start := s.now()
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeAckInvoiceNotAllowed, "order is cancelled")
	}

	invoice, err := s.loadInvoice(ctx, orderID, enums.InvoiceTypeAcknowledgement)
	if err != nil {
		return nil, err
	}
	if invoice.Status == enums.InvoiceStatusIssued {
		return s.reissueResult(ctx, order, invoice)
	}

	applySub := s.shouldApplySubscription(order, invoice)
	if applySub {
		sub, err := s.subsRepo.FindSubscription(ctx, *order.SubscriptionID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
		}
		if !sub.Paid {
			return nil, pkgerrors.New(pkgerrors.CodeSubscriptionNotPaid, "subscription invoice unpaid")
		}
	}

	if err := s.markIssued(ctx, order, invoice); err != nil {
		return nil, err
	}
	url, err := s.renderAndStore(ctx, order, invoice)
	if err != nil {
		return nil, err
	}

	if applySub {
		if _, err := s.subs.ApplyToOrder(ctx, subscriptions.ApplyInput{
			OrderID:        order.ID,
			SubscriptionID: *order.SubscriptionID,
			InvoiceID:      &invoice.ID,
			WeightKg:       invoice.SubscriptionKg,
			ItemsCount:     invoice.SubscriptionItems,
		}); err != nil {
			return nil, err
		}
		kg := decimal.Zero
		if invoice.SubscriptionKg != nil {
			kg = *invoice.SubscriptionKg
		}
		items := 0
		if invoice.SubscriptionItems != nil {
			items = *invoice.SubscriptionItems
		}
		if err := s.repo.UpdateSubscriptionAmounts(ctx, invoice.ID, kg, items); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist applied amounts")
		}
	}

	s.metrics.RecordInvoiceIssued(enums.InvoiceTypeAcknowledgement.String())
	s.metrics.ObserveIssueDuration(enums.InvoiceTypeAcknowledgement.String(), s.now().Sub(start))
	s.logIssued(ctx, order, invoice)
	return &IssueResult{Invoice: invoice, PdfURL: url}, nil
}

// IssueFinal issues the delivery-time invoice and replaces the provisional
// subscription usage with the final measured amounts. A zero total marks the
// order paid immediately.
func (s *service) IssueFinal(ctx context.Context, orderID uuid.UUID) (*IssueResult, error) {
	start := s.now()
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canIssueFinal(order) {
		return nil, pkgerrors.New(pkgerrors.CodeFinalInvoiceNotAllowed,
			fmt.Sprintf("final invoice not allowed while order is %s", order.Status))
	}

	invoice, err := s.loadInvoice(ctx, orderID, enums.InvoiceTypeFinal)
	if err != nil {
		return nil, err
	}
	if invoice.Status == enums.InvoiceStatusIssued {
		return s.reissueResult(ctx, order, invoice)
	}

	if err := s.markIssued(ctx, order, invoice); err != nil {
		return nil, err
	}
	url, err := s.renderAndStore(ctx, order, invoice)
	if err != nil {
		return nil, err
	}

	if order.SubscriptionID != nil && (invoice.SubscriptionKg != nil || invoice.SubscriptionItems != nil) {
		finalKg := decimal.Zero
		if invoice.SubscriptionKg != nil {
			finalKg = *invoice.SubscriptionKg
		}
		finalItems := 0
		if invoice.SubscriptionItems != nil {
			finalItems = *invoice.SubscriptionItems
		}
		if err := s.subs.Reconcile(ctx, subscriptions.ReconcileInput{
			OrderID:        order.ID,
			SubscriptionID: *order.SubscriptionID,
			FinalKg:        finalKg,
			FinalItems:     finalItems,
		}); err != nil {
			return nil, err
		}
	}

	if invoice.TotalCents == 0 {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.orders.WithTx(tx).UpdatePaymentStatus(ctx, order.ID, enums.PaymentStatusCaptured); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "capture payment")
			}
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderPaymentCaptured,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Version:       1,
				Data: PaymentCapturedEvent{
					OrderID:   order.ID,
					InvoiceID: invoice.ID,
				},
			})
		})
		if err != nil {
			return nil, err
		}
	}

	s.metrics.RecordInvoiceIssued(enums.InvoiceTypeFinal.String())
	s.metrics.ObserveIssueDuration(enums.InvoiceTypeFinal.String(), s.now().Sub(start))
	s.logIssued(ctx, order, invoice)
	return &IssueResult{Invoice: invoice, PdfURL: url}, nil
}

// canIssueFinal gates final issuance to the delivery leg, with the walk-in
// exception where the customer collects as soon as the laundry is ready.
func canIssueFinal(order *models.Order) bool {
	switch order.Status {
	case enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered:
		return true
	case enums.OrderStatusReady:
		return order.OrderSource == enums.OrderSourceWalkIn
	default:
		return false
	}
}

// shouldApplySubscription decides whether issuance triggers a deduction:
// either the payment mode involves the subscription, or the draft asked for
// it explicitly. Both require the order to actually carry a subscription.
func (s *service) shouldApplySubscription(order *models.Order, invoice *models.Invoice) bool {
	if order.SubscriptionID == nil {
		return false
	}
	return order.PaymentMode.UsesSubscription() || invoice.ApplySubscription
}

func (s *service) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.orders.FindOrder(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) loadInvoice(ctx context.Context, orderID uuid.UUID, invoiceType enums.InvoiceType) (*models.Invoice, error) {
	invoice, err := s.repo.FindByOrderAndType(ctx, orderID, invoiceType)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeInvoiceNotFound,
				fmt.Sprintf("no %s invoice draft for order", invoiceType))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return invoice, nil
}

// reissueResult handles the idempotent re-issue path. A missing PDF from an
// earlier failed render is regenerated here.
func (s *service) reissueResult(ctx context.Context, order *models.Order, invoice *models.Invoice) (*IssueResult, error) {
	if invoice.PdfURL != nil {
		return &IssueResult{Invoice: invoice, PdfURL: *invoice.PdfURL}, nil
	}
	url, err := s.renderAndStore(ctx, order, invoice)
	if err != nil {
		return nil, err
	}
	return &IssueResult{Invoice: invoice, PdfURL: url}, nil
}

func (s *service) markIssued(ctx context.Context, order *models.Order, invoice *models.Invoice) error {
	now := s.now()
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).SetIssued(ctx, invoice.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark invoice issued")
		}
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceIssued,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoice.ID,
			Version:       1,
			Data: IssuedEvent{
				InvoiceID:  invoice.ID,
				OrderID:    order.ID,
				Type:       invoice.Type,
				TotalCents: invoice.TotalCents,
			},
		})
	})
	if err != nil {
		return err
	}
	invoice.Status = enums.InvoiceStatusIssued
	invoice.IssuedAt = &now
	return nil
}

func (s *service) renderAndStore(ctx context.Context, order *models.Order, invoice *models.Invoice) (string, error) {
	doc := s.buildDocument(order, invoice)
	data, err := s.renderer.RenderInvoice(doc)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "render invoice pdf")
	}
	path := fmt.Sprintf("%s/%s.pdf", order.ID, invoice.Type)
	url, err := s.store.Upload(ctx, path, data, "application/pdf")
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload invoice pdf")
	}
	if err := s.repo.UpdatePdfURL(ctx, invoice.ID, url); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist pdf url")
	}
	invoice.PdfURL = &url
	return url, nil
}

func (s *service) buildDocument(order *models.Order, invoice *models.Invoice) pdf.InvoiceDocument {
	title := "Acknowledgement Invoice"
	if invoice.Type == enums.InvoiceTypeFinal {
		title = "Final Invoice"
	}
	issueDate := s.now()
	if invoice.IssuedAt != nil {
		issueDate = *invoice.IssuedAt
	}
	items := make([]pdf.InvoiceDocumentItem, len(invoice.Items))
	for i, item := range invoice.Items {
		items[i] = pdf.InvoiceDocumentItem{
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			AmountCents:    item.AmountCents,
		}
	}
	return pdf.InvoiceDocument{
		BusinessName:      s.settings.BusinessName,
		Title:             title,
		InvoiceNumber:     invoice.ID.String(),
		OrderNumber:       fmt.Sprintf("%d", order.OrderNumber),
		IssueDate:         issueDate.Format("2006-01-02"),
		Currency:          s.settings.Currency,
		Items:             items,
		SubscriptionKg:    invoice.SubscriptionKg,
		SubscriptionItems: invoice.SubscriptionItems,
		SubtotalCents:     invoice.SubtotalCents,
		TaxCents:          invoice.TaxCents,
		DiscountCents:     invoice.DiscountCents,
		TotalCents:        invoice.TotalCents,
	}
}

func (s *service) logIssued(ctx context.Context, order *models.Order, invoice *models.Invoice) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithInvoiceID(logCtx, invoice.ID.String())
	s.logg.Info(logCtx, fmt.Sprintf("%s invoice issued", invoice.Type))
}
