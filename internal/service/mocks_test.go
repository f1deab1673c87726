package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_shop/internal/cache"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/fjod/go_shop/internal/repository/memory"
)

var errStoreDown = domain.Persistence("write", errors.New("connection reset"))

type mockCache struct {
	m       sync.Mutex
	entries map[string]*domain.CartDetail
	gets    int
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string]*domain.CartDetail{}}
}

func (c *mockCache) Get(_ context.Context, userID string) (*domain.CartDetail, error) {
	c.m.Lock()
	defer c.m.Unlock()
	c.gets++
	if d, ok := c.entries[userID]; ok {
		return d, nil
	}
	return nil, cache.ErrCacheMiss
}

func (c *mockCache) Set(_ context.Context, userID string, detail *domain.CartDetail) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.entries[userID] = detail
	return nil
}

func (c *mockCache) Delete(_ context.Context, userID string) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.deletes++
	delete(c.entries, userID)
	return nil
}

func (c *mockCache) cached(userID string) bool {
	c.m.Lock()
	defer c.m.Unlock()
	_, ok := c.entries[userID]
	return ok
}

// failingProducts fails IncrementSold for the listed product ids.
type failingProducts struct {
	repository.ProductRepository
	failFor map[string]bool
}

func (f failingProducts) IncrementSold(ctx context.Context, id string, quantity int) error {
	if f.failFor[id] {
		return errStoreDown
	}
	return f.ProductRepository.IncrementSold(ctx, id, quantity)
}

type failingHistoryUsers struct {
	repository.UserRepository
}

func (failingHistoryUsers) AppendHistoryAndClearCart(context.Context, string, []domain.PurchaseRecord) error {
	return errStoreDown
}

type failingPayments struct {
	repository.PaymentRepository
}

func (failingPayments) Insert(context.Context, *domain.PaymentRecord) error {
	return errStoreDown
}

// interleavedUsers runs afterRead once, right after the first FindByID has
// read the user and before it returns.
type interleavedUsers struct {
	repository.UserRepository
	once      sync.Once
	afterRead func()
}

func (u *interleavedUsers) FindByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := u.UserRepository.FindByID(ctx, id)
	u.once.Do(u.afterRead)
	return user, err
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(string) {}

// seedStore returns a store with one user and products p1..p3 priced 10, 20, 30.
func seedStore() (*memory.Store, *domain.User) {
	store := memory.NewStore()
	user := &domain.User{Email: "buyer@shop.test", Name: "ari"}
	_ = store.Users().Create(context.Background(), user)
	store.PutProduct(domain.Product{ID: "p1", Title: "mug", Price: 10})
	store.PutProduct(domain.Product{ID: "p2", Title: "cup", Price: 20})
	store.PutProduct(domain.Product{ID: "p3", Title: "pot", Price: 30})
	return store, user
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
