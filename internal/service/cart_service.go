package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/go_shop/internal/cache"
	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/logging"
	"github.com/fjod/go_shop/internal/metrics"
	"github.com/fjod/go_shop/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const maxProductIDLength = 64

type CartService struct {
	users    repository.UserRepository
	products repository.ProductRepository
	cache    cache.CartCache
	metrics  *metrics.Metrics
	sfg      singleflight.Group // Prevents cache stampede
	now      func() time.Time

	// generations counts invalidations per user. A cache fill started before
	// an invalidation must not survive it.
	genMu       sync.Mutex
	generations map[string]uint64
}

// NewCartService wires the cart manager. cartCache may be nil, in which case
// every read goes to the store.
func NewCartService(
	users repository.UserRepository,
	products repository.ProductRepository,
	cartCache cache.CartCache,
	m *metrics.Metrics,
) *CartService {
	return &CartService{
		users:    users,
		products: products,
		cache:    cartCache,
		metrics:  m,
		now:      time.Now,

		generations: make(map[string]uint64),
	}
}

func validateProductID(productID string) error {
	if productID == "" {
		return domain.Validationf("product id is required")
	}
	if len(productID) > maxProductIDLength {
		return domain.Validationf("product id longer than %d characters", maxProductIDLength)
	}
	return nil
}

// AddToCart adds one unit of the product. A product already in the cart has
// its line incremented; the store applies this as one atomic update.
func (s *CartService) AddToCart(ctx context.Context, userID, productID string) ([]domain.CartLine, error) {
	if err := validateProductID(productID); err != nil {
		return nil, err
	}

	exists, err := s.products.Exists(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, repository.ErrProductNotFound
	}

	cart, err := s.users.AddCartLine(ctx, userID, productID, s.now())
	if err != nil {
		logging.FromContext(ctx).Error("repo add cart line error", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	s.metrics.CartMutated("add")
	s.Invalidate(userID)
	return cart, nil
}

// RemoveFromCart drops the product's line and returns the remaining cart with
// product details. Removing an absent product is not an error.
func (s *CartService) RemoveFromCart(ctx context.Context, userID, productID string) (*domain.CartDetail, error) {
	if err := validateProductID(productID); err != nil {
		return nil, err
	}

	cart, err := s.users.PullCartLine(ctx, userID, productID)
	if err != nil {
		logging.FromContext(ctx).Error("repo pull cart line error", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	s.metrics.CartMutated("remove")
	s.Invalidate(userID)
	return s.detail(ctx, cart)
}

func (s *CartService) GetCartDetail(ctx context.Context, userID string) (*domain.CartDetail, error) {
	if s.cache == nil {
		return s.load(ctx, userID)
	}

	v, err, _ := s.sfg.Do(userID, func() (interface{}, error) {
		detail, err := s.cache.Get(ctx, userID)
		if err == nil {
			return detail, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			logging.FromContext(ctx).Warn("cache get error", zap.Error(err)) // log cache error but continue
		}

		gen := s.generation(userID)
		detail, err = s.load(ctx, userID)
		if err != nil {
			return nil, err
		}

		go s.fill(userID, detail, gen)

		return detail, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.CartDetail), nil
}

// fill caches detail unless the user's cart was invalidated after gen was
// read. An invalidation racing the Set bumps the generation before deleting,
// so either the recheck sees it or its Delete lands after the Set.
func (s *CartService) fill(userID string, detail *domain.CartDetail, gen uint64) {
	if s.generation(userID) != gen {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, userID, detail); err != nil {
		zap.L().Warn("cache set error", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if s.generation(userID) != gen {
		if err := s.cache.Delete(ctx, userID); err != nil {
			zap.L().Warn("cache invalidate error", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

func (s *CartService) generation(userID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[userID]
}

// Invalidate drops the cached cart detail of the user.
func (s *CartService) Invalidate(userID string) {
	if s.cache == nil {
		return
	}
	s.genMu.Lock()
	s.generations[userID]++
	s.genMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		zap.L().Warn("cache invalidate error", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *CartService) load(ctx context.Context, userID string) (*domain.CartDetail, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, user.Cart)
}

// detail joins cart lines with product details, keeping cart order. Lines whose
// product no longer exists stay in the cart but have no detail entry.
func (s *CartService) detail(ctx context.Context, cart []domain.CartLine) (*domain.CartDetail, error) {
	if cart == nil {
		cart = []domain.CartLine{}
	}
	result := &domain.CartDetail{Cart: cart, CartDetail: []domain.ProductDetail{}}
	if len(cart) == 0 {
		return result, nil
	}

	ids := make([]string, len(cart))
	for i, line := range cart {
		ids[i] = line.ProductID
	}
	details, err := s.products.FindDetails(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]domain.ProductDetail, len(details))
	for _, d := range details {
		byID[d.ID] = d
	}
	for _, line := range cart {
		d, ok := byID[line.ProductID]
		if !ok {
			continue
		}
		d.Quantity = line.Quantity
		result.CartDetail = append(result.CartDetail, d)
	}
	return result, nil
}
