package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/freshfold/freshfold-backend/internal/repo"
	"github.com/freshfold/freshfold-backend/pkg/db/models"
	"github.com/freshfold/freshfold-backend/pkg/enums"
	"github.com/freshfold/freshfold-backend/pkg/pagination"
)

// ListFilter narrows the order listing.
type ListFilter struct {
	Status     *enums.OrderStatus
	CustomerID *uuid.UUID
}

// Repository handles order persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus, reason *string, at time.Time) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error
	List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.Order, error)
}

type repository struct {
	base repo.Base
}

// NewRepository returns an order repository backed by the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{base: repo.NewBase(tx)}
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.base.DB(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// statusTimestampColumn maps a status to the column stamping entry into it.
func statusTimestampColumn(status enums.OrderStatus) string {
	switch status {
	case enums.OrderStatusBookingConfirmed:
		return "confirmed_at"
	case enums.OrderStatusPickupScheduled:
		return "pickup_scheduled_at"
	case enums.OrderStatusPickedUp:
		return "picked_up_at"
	case enums.OrderStatusInProcessing:
		return "processing_at"
	case enums.OrderStatusReady:
		return "ready_at"
	case enums.OrderStatusOutForDelivery:
		return "out_for_delivery_at"
	case enums.OrderStatusDelivered:
		return "delivered_at"
	case enums.OrderStatusCancelled:
		return "cancelled_at"
	default:
		return ""
	}
}

// UpdateStatus persists the new status and stamps the matching timestamp
// column with COALESCE so a previously visited status keeps its first
// timestamp.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.OrderStatus, reason *string, at time.Time) error {
	updates := map[string]any{
		"status": status,
	}
	if col := statusTimestampColumn(status); col != "" {
		updates[col] = gorm.Expr("COALESCE("+col+", ?)", at)
	}
	if reason != nil {
		updates["cancellation_reason"] = *reason
	}
	return r.base.DB(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status enums.PaymentStatus) error {
	return r.base.DB(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Update("payment_status", status).Error
}

func (r *repository) List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.Order, error) {
	query := r.base.DB(ctx).Model(&models.Order{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var rows []models.Order
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
