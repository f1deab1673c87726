package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers_AddCartLine_ConcurrentAddsMerge(t *testing.T) {
	store := NewStore()
	users := store.Users()
	ctx := context.Background()
	user := &domain.User{Email: "a@shop.test"}
	require.NoError(t, users.Create(ctx, user))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := users.AddCartLine(ctx, user.ID, "p1", time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	found, err := users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, found.Cart, 1)
	assert.Equal(t, 50, found.Cart[0].Quantity)
}

func TestUsers_ReturnsCopies(t *testing.T) {
	store := NewStore()
	users := store.Users()
	ctx := context.Background()
	user := &domain.User{Email: "a@shop.test"}
	require.NoError(t, users.Create(ctx, user))
	_, err := users.AddCartLine(ctx, user.ID, "p1", time.Now())
	require.NoError(t, err)

	found, err := users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	found.Cart[0].Quantity = 99

	again, err := users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Cart[0].Quantity)
}

func TestUsers_DuplicateEmail(t *testing.T) {
	users := NewStore().Users()
	ctx := context.Background()
	require.NoError(t, users.Create(ctx, &domain.User{Email: "a@shop.test"}))
	assert.ErrorIs(t, users.Create(ctx, &domain.User{Email: "a@shop.test"}), repository.ErrDuplicateEmail)
}

func TestProducts_FindDetailsAndIncrement(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	writer := &domain.User{Email: "w@shop.test", Name: "lee"}
	require.NoError(t, store.Users().Create(ctx, writer))
	store.PutProduct(domain.Product{ID: "p1", Title: "mug", Price: 10, Writer: writer.ID})

	details, err := store.Products().FindDetails(ctx, []string{"p1", "p1", "missing"})
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "lee", details[0].Writer.Name)

	require.NoError(t, store.Products().IncrementSold(ctx, "p1", 3))
	p, _ := store.Product("p1")
	assert.Equal(t, 3, p.Sold)
	assert.ErrorIs(t, store.Products().IncrementSold(ctx, "missing", 1), repository.ErrProductNotFound)
}

func TestCheckouts_AdvanceIsConditional(t *testing.T) {
	checkouts := NewStore().Checkouts()
	ctx := context.Background()
	saga := &domain.CheckoutSaga{ID: "s1", PaymentID: "pay-1", Status: domain.CheckoutStatusStarted}
	require.NoError(t, checkouts.Create(ctx, saga))
	assert.ErrorIs(t, checkouts.Create(ctx, &domain.CheckoutSaga{ID: "s2", PaymentID: "pay-1"}), repository.ErrDuplicateCheckout)

	require.NoError(t, checkouts.Advance(ctx, saga, domain.CheckoutStatusHistoryRecorded, nil))
	stale := &domain.CheckoutSaga{ID: "s1", Status: domain.CheckoutStatusStarted}
	assert.ErrorIs(t, checkouts.Advance(ctx, stale, domain.CheckoutStatusFailed, nil), repository.ErrStaleCheckout)

	found, err := checkouts.FindByPaymentID(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusHistoryRecorded, found.Status)
	assert.Len(t, found.Steps, 2)
}

func TestCheckouts_AdvanceRejectsIllegalTransition(t *testing.T) {
	checkouts := NewStore().Checkouts()
	ctx := context.Background()
	saga := &domain.CheckoutSaga{ID: "s1", PaymentID: "pay-1", Status: domain.CheckoutStatusStarted}
	require.NoError(t, checkouts.Create(ctx, saga))

	assert.ErrorIs(t, checkouts.Advance(ctx, saga, domain.CheckoutStatusCompleted, nil), repository.ErrIllegalTransition)
	require.NoError(t, checkouts.Advance(ctx, saga, domain.CheckoutStatusFailed, nil))
	assert.ErrorIs(t, checkouts.Advance(ctx, saga, domain.CheckoutStatusCompleted, nil), repository.ErrIllegalTransition)

	found, err := checkouts.FindByPaymentID(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusFailed, found.Status)
	assert.Len(t, found.Steps, 2)
}
