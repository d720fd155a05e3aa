package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/freshfold/freshfold-backend/api/responses"
	"github.com/freshfold/freshfold-backend/api/validators"
	internalinvoices "github.com/freshfold/freshfold-backend/internal/invoices"
	"github.com/freshfold/freshfold-backend/pkg/db/models"
	"github.com/freshfold/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfold/freshfold-backend/pkg/errors"
	"github.com/freshfold/freshfold-backend/pkg/logger"
)

type invoiceLineItemRequest struct {
	Name           string  `json:"name" validate:"required,max=200"`
	Quantity       string  `json:"quantity" validate:"required"`
	UnitPriceCents int     `json:"unit_price_cents" validate:"gte=0"`
	AmountCents    *int    `json:"amount_cents,omitempty" validate:"omitempty,gte=0"`
}

type upsertDraftRequest struct {
	Items             []invoiceLineItemRequest `json:"items" validate:"required,min=1,dive"`
	DiscountCents     int                      `json:"discount_cents" validate:"gte=0"`
	SubscriptionKg    *string                  `json:"subscription_kg,omitempty"`
	SubscriptionItems *int                     `json:"subscription_items,omitempty" validate:"omitempty,gte=0"`
	ApplySubscription bool                     `json:"apply_subscription"`
}

type invoiceLineItemResponse struct {
	ID             uuid.UUID `json:"id"`
	Position       int       `json:"position"`
	Name           string    `json:"name"`
	Quantity       string    `json:"quantity"`
	UnitPriceCents int       `json:"unit_price_cents"`
	AmountCents    int       `json:"amount_cents"`
}

type invoiceResponse struct {
	ID                uuid.UUID                 `json:"id"`
	OrderID           uuid.UUID                 `json:"order_id"`
	Type              string                    `json:"type"`
	Status            string                    `json:"status"`
	SubscriptionKg    *string                   `json:"subscription_kg,omitempty"`
	SubscriptionItems *int                      `json:"subscription_items,omitempty"`
	ApplySubscription bool                      `json:"apply_subscription"`
	SubtotalCents     int                       `json:"subtotal_cents"`
	TaxCents          int                       `json:"tax_cents"`
	DiscountCents     int                       `json:"discount_cents"`
	TotalCents        int                       `json:"total_cents"`
	IssuedAt          *time.Time                `json:"issued_at,omitempty"`
	PdfURL            *string                   `json:"pdf_url,omitempty"`
	Items             []invoiceLineItemResponse `json:"items"`
	CreatedAt         time.Time                 `json:"created_at"`
	UpdatedAt         time.Time                 `json:"updated_at"`
}

type issueResponse struct {
	Invoice invoiceResponse `json:"invoice"`
	PdfURL  string          `json:"pdf_url"`
}

func newInvoiceResponse(invoice *models.Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:                invoice.ID,
		OrderID:           invoice.OrderID,
		Type:              string(invoice.Type),
		Status:            string(invoice.Status),
		SubscriptionItems: invoice.SubscriptionItems,
		ApplySubscription: invoice.ApplySubscription,
		SubtotalCents:     invoice.SubtotalCents,
		TaxCents:          invoice.TaxCents,
		DiscountCents:     invoice.DiscountCents,
		TotalCents:        invoice.TotalCents,
		IssuedAt:          invoice.IssuedAt,
		PdfURL:            invoice.PdfURL,
		Items:             make([]invoiceLineItemResponse, 0, len(invoice.Items)),
		CreatedAt:         invoice.CreatedAt,
		UpdatedAt:         invoice.UpdatedAt,
	}
	if invoice.SubscriptionKg != nil {
		kg := invoice.SubscriptionKg.String()
		resp.SubscriptionKg = &kg
	}
	for _, item := range invoice.Items {
		resp.Items = append(resp.Items, invoiceLineItemResponse{
			ID:             item.ID,
			Position:       item.Position,
			Name:           item.Name,
			Quantity:       item.Quantity.String(),
			UnitPriceCents: item.UnitPriceCents,
			AmountCents:    item.AmountCents,
		})
	}
	return resp
}

// UpsertInvoiceDraft creates or replaces the draft invoice for (order, type).
func UpsertInvoiceDraft(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoices service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceType, err := parseInvoiceType(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload upsertDraftRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalinvoices.UpsertDraftInput{
			OrderID:           orderID,
			Type:              invoiceType,
			DiscountCents:     payload.DiscountCents,
			SubscriptionItems: payload.SubscriptionItems,
			ApplySubscription: payload.ApplySubscription,
		}

		for _, item := range payload.Items {
			quantity, err := decimal.NewFromString(strings.TrimSpace(item.Quantity))
			if err != nil || quantity.IsNegative() {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "quantity must be a non-negative decimal").
						WithDetails(map[string]any{"item": item.Name}))
				return
			}
			input.Items = append(input.Items, internalinvoices.LineInput{
				Name:           validators.SanitizeString(item.Name, 200),
				Quantity:       quantity,
				UnitPriceCents: item.UnitPriceCents,
				AmountCents:    item.AmountCents,
			})
		}

		if payload.SubscriptionKg != nil {
			kg, err := decimal.NewFromString(strings.TrimSpace(*payload.SubscriptionKg))
			if err != nil || kg.IsNegative() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "subscription_kg must be a non-negative decimal"))
				return
			}
			input.SubscriptionKg = &kg
		}

		invoice, err := svc.UpsertDraft(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newInvoiceResponse(invoice))
	}
}

// IssueAcknowledgementInvoice issues the acknowledgement invoice and applies
// the subscription deduction when the order carries one.
func IssueAcknowledgementInvoice(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return issueHandler(svc, logg, func(svc internalinvoices.Service, r *http.Request, orderID uuid.UUID) (*internalinvoices.IssueResult, error) {
		return svc.IssueAcknowledgement(r.Context(), orderID)
	})
}

// IssueFinalInvoice issues the final invoice, reconciling provisional
// subscription usage against the measured weight.
func IssueFinalInvoice(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return issueHandler(svc, logg, func(svc internalinvoices.Service, r *http.Request, orderID uuid.UUID) (*internalinvoices.IssueResult, error) {
		return svc.IssueFinal(r.Context(), orderID)
	})
}

func issueHandler(
	svc internalinvoices.Service,
	logg *logger.Logger,
	issue func(internalinvoices.Service, *http.Request, uuid.UUID) (*internalinvoices.IssueResult, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoices service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := issue(svc, r, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, issueResponse{
			Invoice: newInvoiceResponse(result.Invoice),
			PdfURL:  result.PdfURL,
		})
	}
}

func parseInvoiceType(r *http.Request) (enums.InvoiceType, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "invoiceType"))
	if raw == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invoice type is required")
	}
	invoiceType, err := enums.ParseInvoiceType(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid invoice type")
	}
	return invoiceType, nil
}
