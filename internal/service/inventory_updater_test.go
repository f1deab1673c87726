package service

import (
	"context"
	"testing"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryUpdater_ApplyAll(t *testing.T) {
	store, _ := seedStore()
	updater := NewInventoryUpdater(store.Products(), nil)

	outcomes, err := updater.Apply(context.Background(), []domain.SoldItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, AppliedCount(outcomes))

	p1, _ := store.Product("p1")
	p2, _ := store.Product("p2")
	assert.Equal(t, 2, p1.Sold)
	assert.Equal(t, 1, p2.Sold)
}

func TestInventoryUpdater_StopsAtFirstFailure(t *testing.T) {
	store, _ := seedStore()
	products := failingProducts{ProductRepository: store.Products(), failFor: map[string]bool{"p2": true}}
	updater := NewInventoryUpdater(products, nil)

	outcomes, err := updater.Apply(context.Background(), []domain.SoldItem{
		{ProductID: "p1", Quantity: 1},
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p3", Quantity: 1},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Contains(t, err.Error(), "p2")

	require.Len(t, outcomes, 3)
	assert.Equal(t, domain.ItemApplied, outcomes[0].Status)
	assert.Equal(t, domain.ItemFailed, outcomes[1].Status)
	assert.NotEmpty(t, outcomes[1].Error)
	assert.Equal(t, domain.ItemSkipped, outcomes[2].Status)
	assert.Equal(t, 1, AppliedCount(outcomes))

	p3, _ := store.Product("p3")
	assert.Zero(t, p3.Sold)
}

func TestInventoryUpdater_UnknownProduct(t *testing.T) {
	store, _ := seedStore()
	updater := NewInventoryUpdater(store.Products(), nil)

	err := updater.IncrementSold(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
