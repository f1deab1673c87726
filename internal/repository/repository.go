package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/go_shop/internal/domain"
)

var (
	ErrUserNotFound      = fmt.Errorf("user %w", domain.ErrNotFound)
	ErrProductNotFound   = fmt.Errorf("product %w", domain.ErrNotFound)
	ErrCheckoutNotFound  = fmt.Errorf("checkout %w", domain.ErrNotFound)
	ErrPaymentNotFound   = fmt.Errorf("payment %w", domain.ErrNotFound)
	ErrDuplicateEmail    = fmt.Errorf("%w: email already registered", domain.ErrValidation)
	ErrDuplicateCheckout = fmt.Errorf("checkout already recorded for payment")
	ErrDuplicatePayment  = fmt.Errorf("payment record already exists")
	ErrStaleCheckout     = fmt.Errorf("checkout status changed concurrently")
	ErrIllegalTransition = fmt.Errorf("checkout status transition not allowed")
)

// UserRepository stores users together with their embedded cart and history.
// Every method touches a single document.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByToken(ctx context.Context, token string) (*domain.User, error)
	SetToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	AddCartLine(ctx context.Context, userID, productID string, now time.Time) ([]domain.CartLine, error)
	PullCartLine(ctx context.Context, userID, productID string) ([]domain.CartLine, error)
	AppendHistoryAndClearCart(ctx context.Context, userID string, records []domain.PurchaseRecord) error
	HasPayment(ctx context.Context, userID, paymentID string) (bool, error)
	UpdateProfile(ctx context.Context, userID, email, name, image string) (*domain.User, error)
	SetPassword(ctx context.Context, userID, hash string) error
}

type ProductRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
	FindDetails(ctx context.Context, ids []string) ([]domain.ProductDetail, error)
	IncrementSold(ctx context.Context, id string, quantity int) error
}

type PaymentRepository interface {
	// Insert fails with ErrDuplicatePayment when a record with the same id
	// (the saga id) exists.
	Insert(ctx context.Context, payment *domain.PaymentRecord) error
	// FindByID is a read path for inspection and tests. Checkout only
	// writes payments and relies on Insert's duplicate error.
	FindByID(ctx context.Context, id string) (*domain.PaymentRecord, error)
}

// CheckoutRepository persists checkout sagas.
type CheckoutRepository interface {
	Create(ctx context.Context, saga *domain.CheckoutSaga) error
	FindByPaymentID(ctx context.Context, paymentID string) (*domain.CheckoutSaga, error)
	// Advance moves saga from its current status to the given one, appending
	// a step log entry and storing saga.InventoryApplied. It fails with
	// ErrStaleCheckout if the stored status is no longer saga.Status, and
	// ErrIllegalTransition if saga.Status may not move to to.
	Advance(ctx context.Context, saga *domain.CheckoutSaga, to domain.CheckoutStatus, stepErr error) error
	ListStuck(ctx context.Context, updatedBefore time.Time, limit int) ([]*domain.CheckoutSaga, error)
	ListUnpublished(ctx context.Context, limit int) ([]*domain.CheckoutSaga, error)
	MarkPublished(ctx context.Context, id string) error
}
