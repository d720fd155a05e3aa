package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/freshfold/freshfold-backend/api/responses"
	"github.com/freshfold/freshfold-backend/api/validators"
	internalorders "github.com/freshfold/freshfold-backend/internal/orders"
	"github.com/freshfold/freshfold-backend/pkg/db/models"
	"github.com/freshfold/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfold/freshfold-backend/pkg/errors"
	"github.com/freshfold/freshfold-backend/pkg/logger"
	"github.com/freshfold/freshfold-backend/pkg/pagination"
)

type updateOrderStatusRequest struct {
	Status             string  `json:"status" validate:"required"`
	CancellationReason *string `json:"cancellation_reason,omitempty" validate:"omitempty,max=500"`
}

type orderResponse struct {
	ID                 uuid.UUID  `json:"id"`
	OrderNumber        int64      `json:"order_number"`
	CustomerID         uuid.UUID  `json:"customer_id"`
	Status             string     `json:"status"`
	OrderType          string     `json:"order_type"`
	OrderSource        string     `json:"order_source"`
	PaymentMode        string     `json:"payment_mode"`
	PaymentStatus      string     `json:"payment_status"`
	SubscriptionID     *uuid.UUID `json:"subscription_id,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty"`
	PickupScheduledAt  *time.Time `json:"pickup_scheduled_at,omitempty"`
	PickedUpAt         *time.Time `json:"picked_up_at,omitempty"`
	ProcessingAt       *time.Time `json:"processing_at,omitempty"`
	ReadyAt            *time.Time `json:"ready_at,omitempty"`
	OutForDeliveryAt   *time.Time `json:"out_for_delivery_at,omitempty"`
	DeliveredAt        *time.Time `json:"delivered_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func newOrderResponse(order *models.Order) orderResponse {
	return orderResponse{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		CustomerID:         order.CustomerID,
		Status:             string(order.Status),
		OrderType:          string(order.OrderType),
		OrderSource:        string(order.OrderSource),
		PaymentMode:        string(order.PaymentMode),
		PaymentStatus:      string(order.PaymentStatus),
		SubscriptionID:     order.SubscriptionID,
		CancellationReason: order.CancellationReason,
		ConfirmedAt:        order.ConfirmedAt,
		PickupScheduledAt:  order.PickupScheduledAt,
		PickedUpAt:         order.PickedUpAt,
		ProcessingAt:       order.ProcessingAt,
		ReadyAt:            order.ReadyAt,
		OutForDeliveryAt:   order.OutForDeliveryAt,
		DeliveredAt:        order.DeliveredAt,
		CancelledAt:        order.CancelledAt,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
}

// UpdateOrderStatus moves an order along the lifecycle table.
func UpdateOrderStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		order, err := svc.UpdateOrderStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID:            orderID,
			NewStatus:          status,
			CancellationReason: payload.CancellationReason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// GetOrder returns one order with its lifecycle timestamps.
func GetOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// ListOrders returns a cursor page of orders, optionally filtered by status
// and customer.
func ListOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filter internalorders.ListFilter
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			filter.Status = &status
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("customer_id")); raw != "" {
			customerID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer id"))
				return
			}
			filter.CustomerID = &customerID
		}

		result, err := svc.ListOrders(r.Context(), internalorders.ListInput{
			Filter: filter,
			Page: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := orderListResponse{
			Orders:     make([]orderResponse, 0, len(result.Orders)),
			NextCursor: result.NextCursor,
		}
		for i := range result.Orders {
			resp.Orders = append(resp.Orders, newOrderResponse(&result.Orders[i]))
		}
		responses.WriteSuccess(w, resp)
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
