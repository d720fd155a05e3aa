package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/freshfold/freshfold-backend/api/controllers"
	"github.com/freshfold/freshfold-backend/api/middleware"
	"github.com/freshfold/freshfold-backend/internal/invoices"
	"github.com/freshfold/freshfold-backend/internal/orders"
	"github.com/freshfold/freshfold-backend/internal/subscriptions"
	"github.com/freshfold/freshfold-backend/pkg/config"
	"github.com/freshfold/freshfold-backend/pkg/db"
	"github.com/freshfold/freshfold-backend/pkg/logger"
	"github.com/freshfold/freshfold-backend/pkg/redis"
	"github.com/freshfold/freshfold-backend/pkg/storage/gcs"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// Deps carries everything the router wires into handlers. Nil pingers and a
// nil metrics handler disable the corresponding endpoints' checks.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DB     db.Pinger
	Redis  *redis.Client
	GCS    gcs.Pinger
	PubSub pinger

	Orders        orders.Service
	Invoices      invoices.Service
	Subscriptions subscriptions.Service

	MetricsHandler http.Handler
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, redisPinger(deps.Redis), deps.GCS, deps.PubSub))
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore(deps.Redis), logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(deps.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", controllers.GetOrder(deps.Orders, logg))
				r.Patch("/status", controllers.UpdateOrderStatus(deps.Orders, logg))
				r.Route("/invoices", func(r chi.Router) {
					r.Put("/{invoiceType}", controllers.UpsertInvoiceDraft(deps.Invoices, logg))
					r.Post("/acknowledgement/issue", controllers.IssueAcknowledgementInvoice(deps.Invoices, logg))
					r.Post("/final/issue", controllers.IssueFinalInvoice(deps.Invoices, logg))
				})
			})
		})

		r.Get("/subscriptions/{subscriptionId}", controllers.GetSubscription(deps.Subscriptions, logg))
	})

	return r
}

// typed nil guards: a nil *redis.Client must become a nil interface, not a
// non-nil interface wrapping nil.
func redisPinger(client *redis.Client) pinger {
	if client == nil {
		return nil
	}
	return client
}

func idempotencyStore(client *redis.Client) redis.IdempotencyStore {
	if client == nil {
		return nil
	}
	return client
}
