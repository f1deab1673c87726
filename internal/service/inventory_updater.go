package service

import (
	"context"
	"fmt"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/logging"
	"github.com/fjod/go_shop/internal/metrics"
	"github.com/fjod/go_shop/internal/repository"
	"go.uber.org/zap"
)

// Inventory applies sold counter increments.
type Inventory interface {
	IncrementSold(ctx context.Context, productID string, quantity int) error
	Apply(ctx context.Context, items []domain.SoldItem) ([]domain.ItemOutcome, error)
}

type InventoryUpdater struct {
	products repository.ProductRepository
	metrics  *metrics.Metrics
}

func NewInventoryUpdater(products repository.ProductRepository, m *metrics.Metrics) *InventoryUpdater {
	return &InventoryUpdater{products: products, metrics: m}
}

// IncrementSold adds quantity to the product's sold counter. The store error
// is wrapped with the product id and stays matchable with errors.Is.
func (u *InventoryUpdater) IncrementSold(ctx context.Context, productID string, quantity int) error {
	if err := u.products.IncrementSold(ctx, productID, quantity); err != nil {
		return fmt.Errorf("increment sold for product %s: %w", productID, err)
	}
	return nil
}

// Apply increments items strictly one after another and stops at the first
// failure. Every item gets an outcome: applied, failed, or skipped when it was
// never attempted.
func (u *InventoryUpdater) Apply(ctx context.Context, items []domain.SoldItem) ([]domain.ItemOutcome, error) {
	outcomes := make([]domain.ItemOutcome, len(items))
	for i, item := range items {
		outcomes[i] = domain.ItemOutcome{ProductID: item.ProductID, Quantity: item.Quantity, Status: domain.ItemSkipped}
	}

	for i, item := range items {
		if err := u.IncrementSold(ctx, item.ProductID, item.Quantity); err != nil {
			outcomes[i].Status = domain.ItemFailed
			outcomes[i].Error = err.Error()
			u.metrics.InventoryFailed()
			logging.FromContext(ctx).Warn("inventory increment failed",
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
			return outcomes, err
		}
		outcomes[i].Status = domain.ItemApplied
	}
	return outcomes, nil
}

// AppliedCount returns how many leading outcomes were applied.
func AppliedCount(outcomes []domain.ItemOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Status != domain.ItemApplied {
			break
		}
		n++
	}
	return n
}
