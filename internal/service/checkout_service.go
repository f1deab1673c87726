package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/logging"
	"github.com/fjod/go_shop/internal/metrics"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CheckoutRequest struct {
	Items   []domain.CheckoutItem
	Payment domain.PaymentData
}

// cartInvalidator is satisfied by CartService.
type cartInvalidator interface {
	Invalidate(userID string)
}

type CheckoutService struct {
	users     repository.UserRepository
	payments  repository.PaymentRepository
	checkouts repository.CheckoutRepository
	inventory Inventory
	carts     cartInvalidator
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewCheckoutService(
	users repository.UserRepository,
	payments repository.PaymentRepository,
	checkouts repository.CheckoutRepository,
	inventory Inventory,
	carts cartInvalidator,
	m *metrics.Metrics,
) *CheckoutService {
	return &CheckoutService{
		users:     users,
		payments:  payments,
		checkouts: checkouts,
		inventory: inventory,
		carts:     carts,
		metrics:   m,
		now:       time.Now,
	}
}

func validateCheckout(req CheckoutRequest) error {
	if req.Payment.PaymentID == "" {
		return domain.Validationf("payment id is required")
	}
	if len(req.Items) == 0 {
		return domain.Validationf("cart detail is empty")
	}
	for i, item := range req.Items {
		if err := validateProductID(item.ProductID); err != nil {
			return domain.Validationf("item %d: %v", i, err)
		}
		if item.Quantity < 1 {
			return domain.Validationf("item %d: quantity must be at least 1", i)
		}
		if item.Price < 0 {
			return domain.Validationf("item %d: price must not be negative", i)
		}
	}
	return nil
}

// Checkout records the purchase as history, a payment record and sold counter
// increments, in that order. Each step commits on its own and nothing is
// rolled back. A repeated payment id returns the checkout already recorded.
//
// History or payment failures are returned as *domain.CheckoutError. An
// inventory failure is not: the checkout still succeeds and the result lists
// which increments were applied.
func (s *CheckoutService) Checkout(ctx context.Context, user *domain.User, req CheckoutRequest) (*domain.CheckoutResult, error) {
	if err := validateCheckout(req); err != nil {
		return nil, err
	}
	log := logging.FromContext(ctx).With(
		zap.String("user_id", user.ID),
		zap.String("payment_id", req.Payment.PaymentID),
	)

	existing, err := s.checkouts.FindByPaymentID(ctx, req.Payment.PaymentID)
	if err == nil {
		return s.duplicate(log, user, existing)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.CheckoutError{Step: domain.StepSagaLog, Err: err}
	}

	now := s.now()
	purchases := make([]domain.PurchaseRecord, len(req.Items))
	for i, item := range req.Items {
		purchases[i] = domain.PurchaseRecord{
			ProductID:    item.ProductID,
			Title:        item.Title,
			UnitPrice:    item.Price,
			Quantity:     item.Quantity,
			PurchaseDate: now,
			PaymentID:    req.Payment.PaymentID,
		}
	}

	saga := &domain.CheckoutSaga{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		PaymentID:   req.Payment.PaymentID,
		Status:      domain.CheckoutStatusStarted,
		Buyer:       domain.BuyerOf(user),
		PaymentData: string(req.Payment.Raw),
		Purchases:   purchases,
		CreatedAt:   now,
	}
	if err := s.checkouts.Create(ctx, saga); err != nil {
		if errors.Is(err, repository.ErrDuplicateCheckout) {
			// a concurrent request with the same payment id won
			if existing, errFind := s.checkouts.FindByPaymentID(ctx, req.Payment.PaymentID); errFind == nil {
				return s.duplicate(log, user, existing)
			}
		}
		s.metrics.CheckoutFinished("failed")
		return nil, &domain.CheckoutError{Step: domain.StepSagaLog, Err: err}
	}
	log = log.With(zap.String("checkout_id", saga.ID))

	// history + cart clear
	if err := s.users.AppendHistoryAndClearCart(ctx, user.ID, purchases); err != nil {
		if errAdv := s.checkouts.Advance(ctx, saga, domain.CheckoutStatusFailed, err); errAdv != nil {
			log.Error("failed to mark checkout failed", zap.Error(errAdv))
		}
		s.metrics.CheckoutFinished("failed")
		log.Error("checkout history step failed", zap.Error(err))
		return nil, &domain.CheckoutError{Step: domain.StepHistory, Err: err}
	}
	s.carts.Invalidate(user.ID)

	// From here on the purchase exists. A lost saga log write only defers the
	// remaining steps to the reconciler.
	logged := s.advance(ctx, log, saga, domain.CheckoutStatusHistoryRecorded, nil)

	if err := s.payments.Insert(ctx, saga.PaymentRecord()); err != nil && !errors.Is(err, repository.ErrDuplicatePayment) {
		s.metrics.CheckoutFinished("failed")
		log.Error("checkout payment step failed", zap.Error(err))
		return nil, &domain.CheckoutError{Step: domain.StepPayment, Err: err}
	}
	logged = logged && s.advance(ctx, log, saga, domain.CheckoutStatusPaymentRecorded, nil)

	items := saga.SoldItems()
	result := &domain.CheckoutResult{
		CheckoutID: saga.ID,
		Purchases:  purchases,
	}

	if !logged {
		// inventory progress could not be tracked, leave it to the reconciler
		result.Status = saga.Status
		result.Inventory = skippedOutcomes(items)
		s.metrics.CheckoutFinished("deferred")
		log.Warn("checkout inventory step deferred")
		return result, nil
	}

	outcomes, invErr := s.inventory.Apply(ctx, items)
	saga.InventoryApplied = AppliedCount(outcomes)
	final := domain.CheckoutStatusCompleted
	outcome := "completed"
	if invErr != nil {
		final = domain.CheckoutStatusInventoryPartial
		outcome = "partial"
		log.Warn("checkout inventory step incomplete",
			zap.Int("applied", saga.InventoryApplied),
			zap.Int("items", len(items)),
			zap.Error(invErr))
	}
	s.advance(ctx, log, saga, final, invErr)

	result.Status = saga.Status
	result.Inventory = outcomes
	s.metrics.CheckoutFinished(outcome)
	log.Info("checkout finished", zap.String("status", saga.Status.String()))
	return result, nil
}

func (s *CheckoutService) advance(ctx context.Context, log *zap.Logger, saga *domain.CheckoutSaga, to domain.CheckoutStatus, stepErr error) bool {
	if err := s.checkouts.Advance(ctx, saga, to, stepErr); err != nil {
		log.Error("failed to advance checkout",
			zap.String("from", saga.Status.String()),
			zap.String("to", to.String()),
			zap.Error(err))
		return false
	}
	return true
}

func (s *CheckoutService) duplicate(log *zap.Logger, user *domain.User, saga *domain.CheckoutSaga) (*domain.CheckoutResult, error) {
	if saga.UserID != user.ID {
		return nil, domain.Validationf("payment id already used")
	}
	log.Info("duplicate checkout request", zap.String("checkout_id", saga.ID), zap.String("status", saga.Status.String()))
	s.metrics.CheckoutFinished("duplicate")

	if saga.Status == domain.CheckoutStatusFailed {
		return nil, &domain.CheckoutError{Step: domain.StepHistory, Err: errors.New("checkout previously failed for this payment")}
	}
	return &domain.CheckoutResult{
		CheckoutID: saga.ID,
		Status:     saga.Status,
		Purchases:  saga.Purchases,
		Inventory:  savedOutcomes(saga),
	}, nil
}

func skippedOutcomes(items []domain.SoldItem) []domain.ItemOutcome {
	outcomes := make([]domain.ItemOutcome, len(items))
	for i, item := range items {
		outcomes[i] = domain.ItemOutcome{ProductID: item.ProductID, Quantity: item.Quantity, Status: domain.ItemSkipped}
	}
	return outcomes
}

// savedOutcomes rebuilds item outcomes from the saga's applied count.
func savedOutcomes(saga *domain.CheckoutSaga) []domain.ItemOutcome {
	outcomes := skippedOutcomes(saga.SoldItems())
	if saga.Status == domain.CheckoutStatusCompleted {
		for i := range outcomes {
			outcomes[i].Status = domain.ItemApplied
		}
		return outcomes
	}
	for i := 0; i < saga.InventoryApplied && i < len(outcomes); i++ {
		outcomes[i].Status = domain.ItemApplied
	}
	return outcomes
}
