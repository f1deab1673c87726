package cache

import (
	"context"
	"errors"

	"github.com/fjod/go_shop/internal/domain"
)

// CartCache holds the rendered cart detail of a user.
type CartCache interface {
	Get(ctx context.Context, userID string) (*domain.CartDetail, error)
	Set(ctx context.Context, userID string, detail *domain.CartDetail) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")
