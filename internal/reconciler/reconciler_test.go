package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/fjod/go_shop/internal/repository/memory"
	"github.com/fjod/go_shop/internal/service"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	m        sync.Mutex
	messages []kafka.Message
	err      error
	calls    int
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.m.Lock()
	defer w.m.Unlock()
	w.calls++
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

type failingProducts struct {
	repository.ProductRepository
	failFor string
}

func (f failingProducts) IncrementSold(ctx context.Context, id string, quantity int) error {
	if id == f.failFor {
		return domain.Persistence("inc", errors.New("connection reset"))
	}
	return f.ProductRepository.IncrementSold(ctx, id, quantity)
}

type fixture struct {
	store *memory.Store
	user  *domain.User
	rec   *Reconciler
}

func newFixture(t *testing.T, products repository.ProductRepository, writer MessageWriter) *fixture {
	t.Helper()
	store := memory.NewStore()
	user := &domain.User{Email: "buyer@shop.test"}
	require.NoError(t, store.Users().Create(context.Background(), user))
	store.PutProduct(domain.Product{ID: "p1", Price: 10})
	store.PutProduct(domain.Product{ID: "p2", Price: 20})
	if products == nil {
		products = store.Products()
	}

	rec := New(Config{Interval: time.Millisecond, Grace: time.Minute},
		store.Checkouts(), store.Users(), store.Payments(), service.NewInventoryUpdater(products, nil), writer, nil, nil)
	rec.now = func() time.Time { return time.Now().Add(time.Hour) }
	return &fixture{store: store, user: user, rec: rec}
}

func (f *fixture) saga(t *testing.T, paymentID string, advanceTo ...domain.CheckoutStatus) *domain.CheckoutSaga {
	t.Helper()
	ctx := context.Background()
	saga := &domain.CheckoutSaga{
		ID:        "saga-" + paymentID,
		UserID:    f.user.ID,
		PaymentID: paymentID,
		Status:    domain.CheckoutStatusStarted,
		Buyer:     domain.BuyerOf(f.user),
		Purchases: []domain.PurchaseRecord{
			{ProductID: "p1", UnitPrice: 10, Quantity: 2, PaymentID: paymentID},
			{ProductID: "p2", UnitPrice: 20, Quantity: 1, PaymentID: paymentID},
		},
	}
	require.NoError(t, f.store.Checkouts().Create(ctx, saga))
	for _, to := range advanceTo {
		require.NoError(t, f.store.Checkouts().Advance(ctx, saga, to, nil))
	}
	return saga
}

func (f *fixture) status(t *testing.T, paymentID string) *domain.CheckoutSaga {
	t.Helper()
	saga, err := f.store.Checkouts().FindByPaymentID(context.Background(), paymentID)
	require.NoError(t, err)
	return saga
}

func (f *fixture) sold(id string) int {
	p, _ := f.store.Product(id)
	return p.Sold
}

func TestRecoverStuck_StartedWithoutHistoryFails(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.saga(t, "pay-1")

	f.rec.RecoverStuck(context.Background())

	assert.Equal(t, domain.CheckoutStatusFailed, f.status(t, "pay-1").Status)
	_, err := f.store.Payments().FindByID(context.Background(), "saga-pay-1")
	assert.ErrorIs(t, err, repository.ErrPaymentNotFound)
	assert.Zero(t, f.sold("p1"))
}

func TestRecoverStuck_StartedWithHistoryCompletes(t *testing.T) {
	f := newFixture(t, nil, nil)
	saga := f.saga(t, "pay-1")
	require.NoError(t, f.store.Users().AppendHistoryAndClearCart(context.Background(), f.user.ID, saga.Purchases))

	f.rec.RecoverStuck(context.Background())

	assert.Equal(t, domain.CheckoutStatusCompleted, f.status(t, "pay-1").Status)
	record, err := f.store.Payments().FindByID(context.Background(), "saga-pay-1")
	require.NoError(t, err)
	assert.Len(t, record.Product, 2)
	assert.Equal(t, 2, f.sold("p1"))
	assert.Equal(t, 1, f.sold("p2"))
}

func TestRecoverStuck_PaymentAlreadyInsertedCountsAsDone(t *testing.T) {
	f := newFixture(t, nil, nil)
	saga := f.saga(t, "pay-1", domain.CheckoutStatusHistoryRecorded)
	require.NoError(t, f.store.Payments().Insert(context.Background(), saga.PaymentRecord()))

	f.rec.RecoverStuck(context.Background())

	assert.Equal(t, domain.CheckoutStatusCompleted, f.status(t, "pay-1").Status)
	assert.Equal(t, 2, f.sold("p1"))
}

func TestRecoverStuck_ResumesPartialInventory(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	saga := f.saga(t, "pay-1", domain.CheckoutStatusHistoryRecorded, domain.CheckoutStatusPaymentRecorded)
	require.NoError(t, f.store.Products().IncrementSold(ctx, "p1", 2))
	saga.InventoryApplied = 1
	require.NoError(t, f.store.Checkouts().Advance(ctx, saga, domain.CheckoutStatusInventoryPartial, errors.New("p2 failed")))

	f.rec.RecoverStuck(ctx)

	found := f.status(t, "pay-1")
	assert.Equal(t, domain.CheckoutStatusCompleted, found.Status)
	assert.Equal(t, 2, found.InventoryApplied)
	assert.Equal(t, 2, f.sold("p1"))
	assert.Equal(t, 1, f.sold("p2"))
}

func TestRecoverStuck_InventoryStillFailing(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.rec.inventory = service.NewInventoryUpdater(failingProducts{ProductRepository: f.store.Products(), failFor: "p2"}, nil)
	f.saga(t, "pay-1", domain.CheckoutStatusHistoryRecorded, domain.CheckoutStatusPaymentRecorded)

	f.rec.RecoverStuck(context.Background())

	found := f.status(t, "pay-1")
	assert.Equal(t, domain.CheckoutStatusInventoryPartial, found.Status)
	assert.Equal(t, 1, found.InventoryApplied)
	assert.Equal(t, 2, f.sold("p1"))
	assert.Zero(t, f.sold("p2"))
}

func TestRecoverStuck_IgnoresRecentSagas(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.rec.now = time.Now
	f.saga(t, "pay-1")

	f.rec.RecoverStuck(context.Background())

	assert.Equal(t, domain.CheckoutStatusStarted, f.status(t, "pay-1").Status)
}

func TestPublishCompleted(t *testing.T) {
	writer := &mockWriter{}
	f := newFixture(t, nil, writer)
	f.saga(t, "pay-1", domain.CheckoutStatusHistoryRecorded, domain.CheckoutStatusPaymentRecorded, domain.CheckoutStatusCompleted)
	f.saga(t, "pay-2", domain.CheckoutStatusHistoryRecorded)

	f.rec.PublishCompleted(context.Background())
	f.rec.PublishCompleted(context.Background())

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "saga-pay-1", string(msg.Key))
	assert.Equal(t, eventType, string(msg.Headers[0].Value))

	var event domain.CheckoutEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "pay-1", event.PaymentID)
	assert.Len(t, event.Items, 2)

	assert.True(t, f.status(t, "pay-1").Published)
}

func TestPublishCompleted_WriterFailureLeavesUnpublished(t *testing.T) {
	writer := &mockWriter{err: errors.New("broker down")}
	f := newFixture(t, nil, writer)
	for _, id := range []string{"pay-1", "pay-2", "pay-3", "pay-4", "pay-5"} {
		f.saga(t, id, domain.CheckoutStatusHistoryRecorded, domain.CheckoutStatusPaymentRecorded, domain.CheckoutStatusCompleted)
	}

	f.rec.PublishCompleted(context.Background())

	// the breaker opens after three consecutive failures
	assert.Equal(t, 3, writer.calls)
	unpublished, err := f.store.Checkouts().ListUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, unpublished, 5)
}

func TestPublishCompleted_DisabledWithoutWriter(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.saga(t, "pay-1", domain.CheckoutStatusHistoryRecorded, domain.CheckoutStatusPaymentRecorded, domain.CheckoutStatusCompleted)

	f.rec.PublishCompleted(context.Background())

	assert.False(t, f.status(t, "pay-1").Published)
}

func TestRun_StopsOnCancel(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.saga(t, "pay-1")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.rec.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		saga, err := f.store.Checkouts().FindByPaymentID(context.Background(), "pay-1")
		return err == nil && saga.Status == domain.CheckoutStatusFailed
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
