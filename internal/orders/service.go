package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshfold/freshfold-backend/pkg/db/models"
	"github.com/freshfold/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfold/freshfold-backend/pkg/errors"
	"github.com/freshfold/freshfold-backend/pkg/logger"
	"github.com/freshfold/freshfold-backend/pkg/metrics"
	"github.com/freshfold/freshfold-backend/pkg/outbox"
	"github.com/freshfold/freshfold-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// UpdateStatusInput carries one requested status transition.
type UpdateStatusInput struct {
	OrderID            uuid.UUID
	NewStatus          enums.OrderStatus
	CancellationReason *string
}

// ListInput is the paginated listing request.
type ListInput struct {
	Filter ListFilter
	Page   pagination.Params
}

// ListResult carries one page of orders plus the cursor for the next page.
type ListResult struct {
	Orders     []models.Order
	NextCursor string
}

// Service exposes order lifecycle operations.
type Service interface {
	UpdateOrderStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, input ListInput) (*ListResult, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics *metrics.BillingMetrics
	now     func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, outboxSvc outboxPublisher, logg *logger.Logger, billing *metrics.BillingMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:    repo,
		tx:      tx,
		outbox:  outboxSvc,
		logg:    logg,
		metrics: billing,
		now:     time.Now,
	}, nil
}

// StatusChangedEvent is emitted on every applied transition.
type StatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	FromStatus     enums.OrderStatus `json:"from_status"`
	ToStatus       enums.OrderStatus `json:"to_status"`
	SubscriptionID *uuid.UUID        `json:"subscription_id,omitempty"`
}

// CancelledEvent is emitted when an order is cancelled, alongside the
// status-changed event.
type CancelledEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  *string   `json:"reason,omitempty"`
}

// UpdateOrderStatus validates the transition against the state machine and
// persists it. The timestamp for the target status is first-write-wins; a
// cancellation reason is only accepted when moving to cancelled.
func (s *service) UpdateOrderStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.NewStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	if input.CancellationReason != nil && input.NewStatus != enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason only valid when cancelling")
	}

	var updated *models.Order
	var fromStatus enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if !IsAllowedTransition(order.Status, input.NewStatus) {
			return pkgerrors.New(pkgerrors.CodeInvalidStatusTransition,
				fmt.Sprintf("cannot move order from %s to %s", order.Status, input.NewStatus)).
				WithDetails(map[string]any{
					"from": order.Status,
					"to":   input.NewStatus,
				})
		}

		now := s.now()
		if err := repo.UpdateStatus(ctx, order.ID, input.NewStatus, input.CancellationReason, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		fromStatus = order.Status
		order.Status = input.NewStatus
		if ts := order.StatusTimestamp(input.NewStatus); ts != nil && *ts == nil {
			*ts = &now
		}
		if input.CancellationReason != nil {
			order.CancellationReason = input.CancellationReason
		}
		updated = order

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			DedupKey:      string(input.NewStatus),
			Version:       1,
			Data: StatusChangedEvent{
				OrderID:        order.ID,
				FromStatus:     fromStatus,
				ToStatus:       input.NewStatus,
				SubscriptionID: order.SubscriptionID,
			},
		}
		if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
			return err
		}
		if input.NewStatus == enums.OrderStatusCancelled {
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCancelled,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Version:       1,
				Data: CancelledEvent{
					OrderID: order.ID,
					Reason:  input.CancellationReason,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordStatusTransition(fromStatus.String(), input.NewStatus.String())
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, input.OrderID.String())
		s.logg.Info(logCtx, fmt.Sprintf("order moved to %s", input.NewStatus))
	}
	return updated, nil
}

func (s *service) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrder(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, input ListInput) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(input.Page.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(input.Page.Limit)
	rows, err := s.repo.List(ctx, input.Filter, cursor, limit+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	result := &ListResult{Orders: rows}
	if len(rows) > limit {
		result.Orders = rows[:limit]
		last := result.Orders[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return result, nil
}
