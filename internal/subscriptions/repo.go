package subscriptions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/freshfold/freshfold-backend/pkg/db"
	"github.com/freshfold/freshfold-backend/pkg/db/models"
)

// UsageDelta is applied to the subscription counters in a single atomic
// UPDATE: pickups subtract from remaining_pickups, kg/items add to the used
// counters. Reconciliation passes negative kg/items deltas.
type UsageDelta struct {
	Pickups int
	Kg      decimal.Decimal
	Items   int
}

// Repository handles subscription and plan persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindPlan(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error)
	UpdateUsage(ctx context.Context, id uuid.UUID, delta UsageDelta) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindSubscription(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindPlan(ctx context.Context, id uuid.UUID) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// UpdateUsage applies the delta with arithmetic expressions so concurrent
// deductions on the same subscription cannot lose updates.
func (r *repository) UpdateUsage(ctx context.Context, id uuid.UUID, delta UsageDelta) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"remaining_pickups": gorm.Expr("remaining_pickups - ?", delta.Pickups),
			"used_kg":           gorm.Expr("used_kg + ?", delta.Kg),
			"used_items_count":  gorm.Expr("used_items_count + ?", delta.Items),
		}).Error
}

func (r *repository) Deactivate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("id = ?", id).
		Update("active", false).Error
}

// DeactivateExpired flips every active subscription whose expiry has passed.
// Expiry is also enforced inline at deduction time; this sweep keeps reads
// honest for subscriptions that never see another deduction.
func (r *repository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("active = ? AND expires_at <= ?", true, now).
		Update("active", false)
	return result.RowsAffected, result.Error
}

// UsageRepository is the deduction ledger. Create relies on the partial
// unique indexes over (invoice_id, subscription_id) and (order_id,
// subscription_id) and reports AlreadyExists as a boolean, not an error.
type UsageRepository interface {
	WithTx(tx *gorm.DB) UsageRepository
	FindByInvoiceAndSubscription(ctx context.Context, invoiceID, subscriptionID uuid.UUID) (*models.SubscriptionUsage, error)
	FindByOrderAndSubscription(ctx context.Context, orderID, subscriptionID uuid.UUID) (*models.SubscriptionUsage, error)
	Create(ctx context.Context, usage *models.SubscriptionUsage) (bool, error)
	UpdateDeductedAmounts(ctx context.Context, orderID, subscriptionID uuid.UUID, kg decimal.Decimal, items int) error
}

type usageRepository struct {
	db *gorm.DB
}

// NewUsageRepository returns a ledger repository bound to the provided database.
func NewUsageRepository(db *gorm.DB) UsageRepository {
	return &usageRepository{db: db}
}

func (r *usageRepository) WithTx(tx *gorm.DB) UsageRepository {
	if tx == nil {
		return r
	}
	return &usageRepository{db: tx}
}

func (r *usageRepository) FindByInvoiceAndSubscription(ctx context.Context, invoiceID, subscriptionID uuid.UUID) (*models.SubscriptionUsage, error) {
	var usage models.SubscriptionUsage
	err := r.db.WithContext(ctx).
		Where("invoice_id = ? AND subscription_id = ?", invoiceID, subscriptionID).
		First(&usage).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &usage, nil
}

func (r *usageRepository) FindByOrderAndSubscription(ctx context.Context, orderID, subscriptionID uuid.UUID) (*models.SubscriptionUsage, error) {
	var usage models.SubscriptionUsage
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND subscription_id = ?", orderID, subscriptionID).
		First(&usage).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &usage, nil
}

func (r *usageRepository) Create(ctx context.Context, usage *models.SubscriptionUsage) (bool, error) {
	if err := r.db.WithContext(ctx).Create(usage).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *usageRepository) UpdateDeductedAmounts(ctx context.Context, orderID, subscriptionID uuid.UUID, kg decimal.Decimal, items int) error {
	return r.db.WithContext(ctx).
		Model(&models.SubscriptionUsage{}).
		Where("order_id = ? AND subscription_id = ?", orderID, subscriptionID).
		Updates(map[string]any{
			"deducted_kg":    kg,
			"deducted_items": items,
		}).Error
}
