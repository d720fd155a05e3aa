package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/freshfold/freshfold-backend/api/responses"
	internalsubscriptions "github.com/freshfold/freshfold-backend/internal/subscriptions"
	pkgerrors "github.com/freshfold/freshfold-backend/pkg/errors"
	"github.com/freshfold/freshfold-backend/pkg/logger"
)

type subscriptionOverviewResponse struct {
	ID               uuid.UUID `json:"id"`
	PlanID           uuid.UUID `json:"plan_id"`
	CustomerID       uuid.UUID `json:"customer_id"`
	RemainingPickups int       `json:"remaining_pickups"`
	UsedKg           string    `json:"used_kg"`
	UsedItemsCount   int       `json:"used_items_count"`
	MaxPickups       int       `json:"max_pickups"`
	KgLimit          *string   `json:"kg_limit,omitempty"`
	ItemsLimit       *int      `json:"items_limit,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
	Active           bool      `json:"active"`
	Paid             bool      `json:"paid"`
	Exhausted        bool      `json:"exhausted"`
}

// GetSubscription returns the subscription with its effective limits and
// remaining quota.
func GetSubscription(svc internalsubscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscriptions service unavailable"))
			return
		}

		raw := strings.TrimSpace(chi.URLParam(r, "subscriptionId"))
		if raw == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required"))
			return
		}
		subscriptionID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid subscription id"))
			return
		}

		overview, err := svc.GetOverview(r.Context(), subscriptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub := overview.Subscription
		resp := subscriptionOverviewResponse{
			ID:               sub.ID,
			PlanID:           sub.PlanID,
			CustomerID:       sub.CustomerID,
			RemainingPickups: sub.RemainingPickups,
			UsedKg:           sub.UsedKg.String(),
			UsedItemsCount:   sub.UsedItemsCount,
			MaxPickups:       overview.Limits.MaxPickups,
			ExpiresAt:        sub.ExpiresAt,
			Active:           sub.Active,
			Paid:             sub.Paid,
			Exhausted:        overview.Exhausted,
		}
		if overview.Limits.KgLimit != nil {
			kg := overview.Limits.KgLimit.String()
			resp.KgLimit = &kg
		}
		resp.ItemsLimit = overview.Limits.ItemsLimit

		responses.WriteSuccess(w, resp)
	}
}
