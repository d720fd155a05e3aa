package subscriptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/freshfold/freshfold-backend/pkg/db/models"
	"github.com/freshfold/freshfold-backend/pkg/enums"
	pkgerrors "github.com/freshfold/freshfold-backend/pkg/errors"
	"github.com/freshfold/freshfold-backend/pkg/logger"
	"github.com/freshfold/freshfold-backend/pkg/metrics"
	"github.com/freshfold/freshfold-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type orderGetter interface {
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// ApplyInput identifies one deduction attempt. InvoiceID, WeightKg and
// ItemsCount are optional; a nil WeightKg/ItemsCount means that dimension is
// not being consumed.
type ApplyInput struct {
	OrderID        uuid.UUID
	SubscriptionID uuid.UUID
	InvoiceID      *uuid.UUID
	WeightKg       *decimal.Decimal
	ItemsCount     *int
}

// ApplyResult reports whether the deduction ran. Applied=false is a success
// meaning the work was already done, never an error.
type ApplyResult struct {
	Applied bool
}

// Overview is the quota view returned to API callers.
type Overview struct {
	Subscription *models.Subscription
	Limits       EffectiveLimits
	Exhausted    bool
}

// Service exposes subscription quota operations.
type Service interface {
	ApplyToOrder(ctx context.Context, input ApplyInput) (ApplyResult, error)
	Reconcile(ctx context.Context, input ReconcileInput) error
	GetOverview(ctx context.Context, id uuid.UUID) (*Overview, error)
}

type service struct {
	repo      Repository
	usageRepo UsageRepository
	orders    orderGetter
	tx        txRunner
	outbox    outboxPublisher
	logg      *logger.Logger
	metrics   *metrics.BillingMetrics
	now       func() time.Time
}

// NewService builds a subscription service with the required dependencies.
func NewService(repo Repository, usageRepo UsageRepository, orders orderGetter, tx txRunner, outbox outboxPublisher, logg *logger.Logger, billing *metrics.BillingMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if usageRepo == nil {
		return nil, fmt.Errorf("usage repository required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order getter required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:      repo,
		usageRepo: usageRepo,
		orders:    orders,
		tx:        tx,
		outbox:    outbox,
		logg:      logg,
		metrics:   billing,
		now:       time.Now,
	}, nil
}

// DeductedEvent is emitted when a deduction is applied.
type DeductedEvent struct {
	SubscriptionID   uuid.UUID        `json:"subscription_id"`
	OrderID          uuid.UUID        `json:"order_id"`
	InvoiceID        *uuid.UUID       `json:"invoice_id,omitempty"`
	DeductedPickups  int              `json:"deducted_pickups"`
	DeductedKg       decimal.Decimal  `json:"deducted_kg"`
	DeductedItems    int              `json:"deducted_items"`
	RemainingPickups int              `json:"remaining_pickups"`
	UsedKg           decimal.Decimal  `json:"used_kg"`
	UsedItemsCount   int              `json:"used_items_count"`
}

// ExhaustedEvent is emitted when a subscription hits a limit and goes inactive.
type ExhaustedEvent struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	OrderID        uuid.UUID `json:"order_id"`
}

// ApplyToOrder performs one idempotent quota deduction against a
// subscription. The ledger lookup runs before anything else so retries stay
// cheap; the unique index on the ledger is the safety net when two requests
// race past that check.
func (s *service) ApplyToOrder(ctx context.Context, input ApplyInput) (ApplyResult, error) {
	if input.OrderID == uuid.Nil {
		return ApplyResult{}, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.SubscriptionID == uuid.Nil {
		return ApplyResult{}, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}

	if input.InvoiceID != nil {
		existing, err := s.usageRepo.FindByInvoiceAndSubscription(ctx, *input.InvoiceID, input.SubscriptionID)
		if err != nil {
			return ApplyResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup usage by invoice")
		}
		if existing != nil {
			s.metrics.RecordDeduction(metrics.DeductionAlreadyApplied, "")
			return ApplyResult{Applied: false}, nil
		}
	} else {
		existing, err := s.usageRepo.FindByOrderAndSubscription(ctx, input.OrderID, input.SubscriptionID)
		if err != nil {
			return ApplyResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup usage by order")
		}
		if existing != nil {
			s.metrics.RecordDeduction(metrics.DeductionAlreadyApplied, "")
			return ApplyResult{Applied: false}, nil
		}
	}

	if _, err := s.orders.FindOrder(ctx, input.OrderID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return ApplyResult{}, pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
		}
		return ApplyResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	sub, err := s.repo.FindSubscription(ctx, input.SubscriptionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ApplyResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return ApplyResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	plan, err := s.repo.FindPlan(ctx, sub.PlanID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return ApplyResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "subscription plan not found")
		}
		return ApplyResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}

	deduction := computeDeduction(sub, input)
	limits := ResolveLimits(sub, plan)
	now := s.now()
	if err := AssertDeductionAllowed(sub, limits, deduction, now); err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			s.metrics.RecordDeduction(metrics.DeductionRejected, string(typed.Code()))
		}
		return ApplyResult{}, err
	}

	applied := false
	exhausted := false
	var updated *models.Subscription
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		usageRepo := s.usageRepo.WithTx(tx)

		created, err := usageRepo.Create(ctx, &models.SubscriptionUsage{
			SubscriptionID:  input.SubscriptionID,
			OrderID:         input.OrderID,
			InvoiceID:       input.InvoiceID,
			DeductedPickups: deduction.Pickups,
			DeductedKg:      deduction.Kg,
			DeductedItems:   deduction.Items,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create usage ledger row")
		}
		if !created {
			return nil
		}
		applied = true

		if err := repo.UpdateUsage(ctx, input.SubscriptionID, UsageDelta{
			Pickups: deduction.Pickups,
			Kg:      deduction.Kg,
			Items:   deduction.Items,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription usage")
		}

		updated, err = repo.FindSubscription(ctx, input.SubscriptionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload subscription")
		}
		if IsExhausted(updated, limits, now) {
			exhausted = true
			if err := repo.Deactivate(ctx, input.SubscriptionID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate subscription")
			}
		}

		dedupKey := input.OrderID.String()
		if input.InvoiceID != nil {
			dedupKey = input.InvoiceID.String()
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventSubscriptionDeducted,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   input.SubscriptionID,
			DedupKey:      dedupKey,
			Version:       1,
			Data: DeductedEvent{
				SubscriptionID:   input.SubscriptionID,
				OrderID:          input.OrderID,
				InvoiceID:        input.InvoiceID,
				DeductedPickups:  deduction.Pickups,
				DeductedKg:       deduction.Kg,
				DeductedItems:    deduction.Items,
				RemainingPickups: updated.RemainingPickups,
				UsedKg:           updated.UsedKg,
				UsedItemsCount:   updated.UsedItemsCount,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
		if exhausted {
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventSubscriptionExhausted,
				AggregateType: enums.AggregateSubscription,
				AggregateID:   input.SubscriptionID,
				Version:       1,
				Data: ExhaustedEvent{
					SubscriptionID: input.SubscriptionID,
					OrderID:        input.OrderID,
				},
			})
		}
		return nil
	})
	if err != nil {
		return ApplyResult{}, err
	}

	if !applied {
		s.metrics.RecordDeduction(metrics.DeductionAlreadyApplied, "")
		return ApplyResult{Applied: false}, nil
	}

	s.metrics.RecordDeduction(metrics.DeductionApplied, "")
	if s.logg != nil {
		logCtx := s.logg.WithSubscriptionID(ctx, input.SubscriptionID.String())
		logCtx = s.logg.WithOrderID(logCtx, input.OrderID.String())
		s.logg.Info(logCtx, "subscription deduction applied")
	}
	return ApplyResult{Applied: true}, nil
}

// computeDeduction derives the consumption tuple. A deduction normally costs
// one pickup; once pickups are exhausted, a kg/items-only closure deduction
// of zero pickups is still permitted so final usage can be recorded.
func computeDeduction(sub *models.Subscription, input ApplyInput) Deduction {
	d := Deduction{Pickups: 1, Kg: decimal.Zero}
	if input.WeightKg != nil {
		d.Kg = *input.WeightKg
	}
	if input.ItemsCount != nil {
		d.Items = *input.ItemsCount
	}
	if sub.RemainingPickups < 1 && (d.Kg.IsPositive() || d.Items > 0) {
		d.Pickups = 0
	}
	return d
}

// ReconcileInput replaces a previously deducted provisional usage with final
// measured amounts.
type ReconcileInput struct {
	OrderID        uuid.UUID
	SubscriptionID uuid.UUID
	FinalKg        decimal.Decimal
	FinalItems     int
}

// ReconciledEvent is emitted when final amounts replace provisional ones.
type ReconciledEvent struct {
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	OrderID        uuid.UUID       `json:"order_id"`
	PreviousKg     decimal.Decimal `json:"previous_kg"`
	PreviousItems  int             `json:"previous_items"`
	FinalKg        decimal.Decimal `json:"final_kg"`
	FinalItems     int             `json:"final_items"`
}

// Reconcile swaps the ledger row's provisional kg/items for the final
// measured values and applies the difference to the subscription counters.
// Pickups were finalized at deduction time and are left untouched; no limit
// assertion runs here, the provisional deduction already cleared that gate.
func (s *service) Reconcile(ctx context.Context, input ReconcileInput) error {
	usage, err := s.usageRepo.FindByOrderAndSubscription(ctx, input.OrderID, input.SubscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup usage ledger row")
	}
	if usage == nil {
		return nil
	}

	kgDelta := input.FinalKg.Sub(usage.DeductedKg)
	itemsDelta := input.FinalItems - usage.DeductedItems
	if kgDelta.IsZero() && itemsDelta == 0 {
		return nil
	}

	previousKg := usage.DeductedKg
	previousItems := usage.DeductedItems
	exhaustedNow := false
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		usageRepo := s.usageRepo.WithTx(tx)

		if err := usageRepo.UpdateDeductedAmounts(ctx, input.OrderID, input.SubscriptionID, input.FinalKg, input.FinalItems); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update ledger amounts")
		}
		if err := repo.UpdateUsage(ctx, input.SubscriptionID, UsageDelta{
			Pickups: 0,
			Kg:      kgDelta,
			Items:   itemsDelta,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply usage correction")
		}

		sub, err := repo.FindSubscription(ctx, input.SubscriptionID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload subscription")
		}
		plan, err := repo.FindPlan(ctx, sub.PlanID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
		}
		limits := ResolveLimits(sub, plan)
		now := s.now()
		if sub.Active && IsExhausted(sub, limits, now) {
			exhaustedNow = true
			if err := repo.Deactivate(ctx, input.SubscriptionID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate subscription")
			}
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventSubscriptionReconciled,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   input.SubscriptionID,
			DedupKey:      input.OrderID.String(),
			Version:       1,
			Data: ReconciledEvent{
				SubscriptionID: input.SubscriptionID,
				OrderID:        input.OrderID,
				PreviousKg:     previousKg,
				PreviousItems:  previousItems,
				FinalKg:        input.FinalKg,
				FinalItems:     input.FinalItems,
			},
		}
		if err := s.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
			return err
		}
		if exhaustedNow {
			return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventSubscriptionExhausted,
				AggregateType: enums.AggregateSubscription,
				AggregateID:   input.SubscriptionID,
				Version:       1,
				Data: ExhaustedEvent{
					SubscriptionID: input.SubscriptionID,
					OrderID:        input.OrderID,
				},
			})
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.logg != nil {
		logCtx := s.logg.WithSubscriptionID(ctx, input.SubscriptionID.String())
		logCtx = s.logg.WithOrderID(logCtx, input.OrderID.String())
		s.logg.Info(logCtx, "subscription usage reconciled")
	}
	return nil
}

func (s *service) GetOverview(ctx context.Context, id uuid.UUID) (*Overview, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id required")
	}
	sub, err := s.repo.FindSubscription(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
	}
	plan, err := s.repo.FindPlan(ctx, sub.PlanID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	limits := ResolveLimits(sub, plan)
	return &Overview{
		Subscription: sub,
		Limits:       limits,
		Exhausted:    IsExhausted(sub, limits, s.now()),
	}, nil
}
