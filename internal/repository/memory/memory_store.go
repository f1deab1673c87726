// Package memory implements the repository interfaces in process memory.
// Each method holds the store lock for its whole duration, which gives the
// same per-document atomicity the MongoDB implementation relies on.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/google/uuid"
)

type Store struct {
	mu        sync.RWMutex
	users     map[string]*domain.User
	products  map[string]*domain.Product
	payments  map[string]*domain.PaymentRecord
	checkouts map[string]*domain.CheckoutSaga
}

func NewStore() *Store {
	return &Store{
		users:     make(map[string]*domain.User),
		products:  make(map[string]*domain.Product),
		payments:  make(map[string]*domain.PaymentRecord),
		checkouts: make(map[string]*domain.CheckoutSaga),
	}
}

func (s *Store) Users() repository.UserRepository         { return userRepo{s} }
func (s *Store) Products() repository.ProductRepository   { return productRepo{s} }
func (s *Store) Payments() repository.PaymentRepository   { return paymentRepo{s} }
func (s *Store) Checkouts() repository.CheckoutRepository { return checkoutRepo{s} }

// PutProduct inserts or replaces a catalog product.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.products[p.ID] = &cp
}

// Product returns a copy of the stored product.
func (s *Store) Product(id string) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, false
	}
	return *p, true
}

func copyUser(u *domain.User) *domain.User {
	cp := *u
	cp.Cart = append([]domain.CartLine{}, u.Cart...)
	cp.History = append([]domain.PurchaseRecord{}, u.History...)
	return &cp
}

func copySaga(c *domain.CheckoutSaga) *domain.CheckoutSaga {
	cp := *c
	cp.Purchases = append([]domain.PurchaseRecord{}, c.Purchases...)
	cp.Steps = append([]domain.StepLog{}, c.Steps...)
	return &cp
}

type userRepo struct{ s *Store }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Cart == nil {
		user.Cart = []domain.CartLine{}
	}
	if user.History == nil {
		user.History = []domain.PurchaseRecord{}
	}
	r.s.users[user.ID] = copyUser(user)
	return nil
}

func (r userRepo) find(match func(*domain.User) bool) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (r userRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.ID == id })
}

func (r userRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Email == email })
}

func (r userRepo) FindByToken(_ context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, repository.ErrUserNotFound
	}
	return r.find(func(u *domain.User) bool { return u.Token == token })
}

// mutate runs fn on the stored user under the write lock.
func (r userRepo) mutate(userID string, fn func(*domain.User) error) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if err := fn(u); err != nil {
		return nil, err
	}
	return copyUser(u), nil
}

func (r userRepo) SetToken(_ context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.mutate(userID, func(u *domain.User) error {
		u.Token = token
		u.TokenExp = expiresAt
		return nil
	})
	return err
}

func (r userRepo) AddCartLine(_ context.Context, userID, productID string, now time.Time) ([]domain.CartLine, error) {
	u, err := r.mutate(userID, func(u *domain.User) error {
		for i := range u.Cart {
			if u.Cart[i].ProductID == productID {
				u.Cart[i].Quantity++
				return nil
			}
		}
		u.Cart = append(u.Cart, domain.CartLine{ProductID: productID, Quantity: 1, AddedAt: now})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u.Cart, nil
}

func (r userRepo) PullCartLine(_ context.Context, userID, productID string) ([]domain.CartLine, error) {
	u, err := r.mutate(userID, func(u *domain.User) error {
		kept := u.Cart[:0]
		for _, line := range u.Cart {
			if line.ProductID != productID {
				kept = append(kept, line)
			}
		}
		u.Cart = kept
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u.Cart, nil
}

func (r userRepo) AppendHistoryAndClearCart(_ context.Context, userID string, records []domain.PurchaseRecord) error {
	_, err := r.mutate(userID, func(u *domain.User) error {
		u.History = append(u.History, records...)
		u.Cart = []domain.CartLine{}
		return nil
	})
	return err
}

func (r userRepo) HasPayment(_ context.Context, userID, paymentID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[userID]
	if !ok {
		return false, nil
	}
	for _, h := range u.History {
		if h.PaymentID == paymentID {
			return true, nil
		}
	}
	return false, nil
}

func (r userRepo) UpdateProfile(_ context.Context, userID, email, name, image string) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	for _, other := range r.s.users {
		if other.ID != userID && other.Email == email {
			return nil, repository.ErrDuplicateEmail
		}
	}
	u.Email, u.Name, u.Image = email, name, image
	return copyUser(u), nil
}

func (r userRepo) SetPassword(_ context.Context, userID, hash string) error {
	_, err := r.mutate(userID, func(u *domain.User) error {
		u.Password = hash
		return nil
	})
	return err
}

type productRepo struct{ s *Store }

func (r productRepo) Exists(_ context.Context, id string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.products[id]
	return ok, nil
}

func (r productRepo) FindDetails(_ context.Context, ids []string) ([]domain.ProductDetail, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	details := make([]domain.ProductDetail, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		p, ok := r.s.products[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		d := domain.ProductDetail{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Price:       p.Price,
			Images:      p.Images,
			Sold:        p.Sold,
		}
		if w, ok := r.s.users[p.Writer]; ok {
			d.Writer = &domain.Writer{ID: w.ID, Name: w.Name, Lastname: w.Lastname, Email: w.Email}
		}
		details = append(details, d)
	}
	return details, nil
}

func (r productRepo) IncrementSold(_ context.Context, id string, quantity int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.Sold += quantity
	return nil
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) Insert(_ context.Context, payment *domain.PaymentRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[payment.ID]; ok {
		return repository.ErrDuplicatePayment
	}
	cp := *payment
	r.s.payments[payment.ID] = &cp
	return nil
}

func (r paymentRepo) FindByID(_ context.Context, id string) (*domain.PaymentRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

type checkoutRepo struct{ s *Store }

func (r checkoutRepo) Create(_ context.Context, saga *domain.CheckoutSaga) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.checkouts {
		if c.PaymentID == saga.PaymentID {
			return repository.ErrDuplicateCheckout
		}
	}
	now := time.Now()
	if saga.CreatedAt.IsZero() {
		saga.CreatedAt = now
	}
	saga.UpdatedAt = now
	if saga.Steps == nil {
		saga.Steps = []domain.StepLog{{Status: saga.Status, At: now}}
	}
	r.s.checkouts[saga.ID] = copySaga(saga)
	return nil
}

func (r checkoutRepo) FindByPaymentID(_ context.Context, paymentID string) (*domain.CheckoutSaga, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.checkouts {
		if c.PaymentID == paymentID {
			return copySaga(c), nil
		}
	}
	return nil, repository.ErrCheckoutNotFound
}

func (r checkoutRepo) Advance(_ context.Context, saga *domain.CheckoutSaga, to domain.CheckoutStatus, stepErr error) error {
	if !domain.CanTransitionTo(saga.Status, to) {
		return fmt.Errorf("%w: %s to %s", repository.ErrIllegalTransition, saga.Status, to)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.checkouts[saga.ID]
	if !ok || stored.Status != saga.Status {
		return repository.ErrStaleCheckout
	}
	now := time.Now()
	step := domain.StepLog{Status: to, At: now}
	if stepErr != nil {
		step.Error = stepErr.Error()
	}
	stored.Status = to
	stored.InventoryApplied = saga.InventoryApplied
	stored.UpdatedAt = now
	stored.Steps = append(stored.Steps, step)

	saga.Status = to
	saga.UpdatedAt = now
	saga.Steps = append(saga.Steps, step)
	return nil
}

func (r checkoutRepo) list(match func(*domain.CheckoutSaga) bool, limit int) []*domain.CheckoutSaga {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.CheckoutSaga
	for _, c := range r.s.checkouts {
		if match(c) {
			out = append(out, copySaga(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r checkoutRepo) ListStuck(_ context.Context, updatedBefore time.Time, limit int) ([]*domain.CheckoutSaga, error) {
	return r.list(func(c *domain.CheckoutSaga) bool {
		return !c.Status.IsTerminal() && c.UpdatedAt.Before(updatedBefore)
	}, limit), nil
}

func (r checkoutRepo) ListUnpublished(_ context.Context, limit int) ([]*domain.CheckoutSaga, error) {
	return r.list(func(c *domain.CheckoutSaga) bool {
		return c.Status == domain.CheckoutStatusCompleted && !c.Published
	}, limit), nil
}

func (r checkoutRepo) MarkPublished(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.checkouts[id]
	if !ok {
		return repository.ErrCheckoutNotFound
	}
	c.Published = true
	return nil
}
