package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/freshfold/freshfold-backend/internal/invoices"
	"github.com/freshfold/freshfold-backend/internal/orders"
	"github.com/freshfold/freshfold-backend/internal/subscriptions"
	"github.com/freshfold/freshfold-backend/pkg/config"
	"github.com/freshfold/freshfold-backend/pkg/db/models"
	"github.com/freshfold/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfold/freshfold-backend/pkg/errors"
)

type stubOrdersService struct{}

func (stubOrdersService) UpdateOrderStatus(_ context.Context, input orders.UpdateStatusInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID, Status: input.NewStatus}, nil
}

func (stubOrdersService) GetOrder(_ context.Context, id uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: id, Status: enums.OrderStatusBookingConfirmed}, nil
}

func (stubOrdersService) ListOrders(context.Context, orders.ListInput) (*orders.ListResult, error) {
	return &orders.ListResult{}, nil
}

type stubInvoicesService struct{}

func (stubInvoicesService) UpsertDraft(_ context.Context, input invoices.UpsertDraftInput) (*models.Invoice, error) {
	return &models.Invoice{OrderID: input.OrderID, Type: input.Type, Status: enums.InvoiceStatusDraft}, nil
}

func (stubInvoicesService) IssueAcknowledgement(_ context.Context, orderID uuid.UUID) (*invoices.IssueResult, error) {
	return &invoices.IssueResult{
		Invoice: &models.Invoice{OrderID: orderID, Type: enums.InvoiceTypeAcknowledgement, Status: enums.InvoiceStatusIssued},
		PdfURL:  "https://storage.test/ack.pdf",
	}, nil
}

func (stubInvoicesService) IssueFinal(_ context.Context, orderID uuid.UUID) (*invoices.IssueResult, error) {
	return &invoices.IssueResult{
		Invoice: &models.Invoice{OrderID: orderID, Type: enums.InvoiceTypeFinal, Status: enums.InvoiceStatusIssued},
		PdfURL:  "https://storage.test/final.pdf",
	}, nil
}

type stubSubscriptionsService struct{}

func (stubSubscriptionsService) ApplyToOrder(context.Context, subscriptions.ApplyInput) (subscriptions.ApplyResult, error) {
	return subscriptions.ApplyResult{}, nil
}

func (stubSubscriptionsService) Reconcile(context.Context, subscriptions.ReconcileInput) error {
	return nil
}

func (stubSubscriptionsService) GetOverview(_ context.Context, id uuid.UUID) (*subscriptions.Overview, error) {
	return &subscriptions.Overview{
		Subscription: &models.Subscription{ID: id, RemainingPickups: 3, UsedKg: decimal.Zero, Active: true, Paid: true},
		Limits:       subscriptions.EffectiveLimits{MaxPickups: 8},
	}, nil
}

func newTestRouter() http.Handler {
	return NewRouter(Deps{
		Config:        &config.Config{App: config.AppConfig{Env: "test", Port: "8080"}},
		Orders:        stubOrdersService{},
		Invoices:      stubInvoicesService{},
		Subscriptions: stubSubscriptionsService{},
	})
}

func do(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter()

	live := do(t, router, http.MethodGet, "/health/live", "")
	if live.Code != http.StatusOK {
		t.Fatalf("live returned %d", live.Code)
	}
	if got := live.Header().Get("X-FreshFold-Env"); got != "test" {
		t.Fatalf("unexpected env header %q", got)
	}

	ready := do(t, router, http.MethodGet, "/health/ready", "")
	if ready.Code != http.StatusOK {
		t.Fatalf("ready returned %d", ready.Code)
	}
}

func TestOrderRoutes(t *testing.T) {
	router := newTestRouter()
	orderID := uuid.NewString()

	if rec := do(t, router, http.MethodGet, "/api/v1/orders/"+orderID, ""); rec.Code != http.StatusOK {
		t.Fatalf("get order returned %d: %s", rec.Code, rec.Body.String())
	}

	if rec := do(t, router, http.MethodGet, "/api/v1/orders/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed order id returned %d", rec.Code)
	}

	if rec := do(t, router, http.MethodGet, "/api/v1/orders", ""); rec.Code != http.StatusOK {
		t.Fatalf("list orders returned %d", rec.Code)
	}

	rec := do(t, router, http.MethodPatch, "/api/v1/orders/"+orderID+"/status", `{"status":"pickup_scheduled"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status update returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInvoiceRoutesSkipIdempotencyWithoutRedis(t *testing.T) {
	// Without a Redis client the idempotency middleware is a pass-through.
	router := newTestRouter()
	orderID := uuid.NewString()

	rec := do(t, router, http.MethodPost, "/api/v1/orders/"+orderID+"/invoices/acknowledgement/issue", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("ack issue returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, router, http.MethodPut, "/api/v1/orders/"+orderID+"/invoices/final", `{"items":[{"name":"wash","quantity":"2","unit_price_cents":500}],"discount_cents":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("draft upsert returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, router, http.MethodPut, "/api/v1/orders/"+orderID+"/invoices/bogus", `{"items":[{"name":"wash","quantity":"2","unit_price_cents":500}],"discount_cents":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bogus invoice type returned %d", rec.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error payload: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected error code %s", payload.Error.Code)
	}
}

func TestSubscriptionRoute(t *testing.T) {
	router := newTestRouter()

	rec := do(t, router, http.MethodGet, "/api/v1/subscriptions/"+uuid.NewString(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("subscription overview returned %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "remaining_pickups") {
		t.Fatalf("overview payload missing quota fields: %s", rec.Body.String())
	}
}
