package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"github.com/fjod/go_shop/internal/metrics"
	"github.com/fjod/go_shop/internal/repository"
	"github.com/fjod/go_shop/internal/service"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	batchSize = 100
	eventType = "checkout.completed"
)

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Config struct {
	Interval time.Duration
	// Grace is how long a saga must be idle before it is treated as stuck.
	Grace time.Duration
}

// Reconciler finishes checkouts whose request died between steps and
// publishes completed checkouts.
type Reconciler struct {
	cfg       Config
	checkouts repository.CheckoutRepository
	users     repository.UserRepository
	payments  repository.PaymentRepository
	inventory service.Inventory
	writer    MessageWriter
	breaker   *gobreaker.CircuitBreaker[struct{}]
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// New builds a reconciler. writer may be nil, which disables publishing.
func New(
	cfg Config,
	checkouts repository.CheckoutRepository,
	users repository.UserRepository,
	payments repository.PaymentRepository,
	inventory service.Inventory,
	writer MessageWriter,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		cfg:       cfg,
		checkouts: checkouts,
		users:     users,
		payments:  payments,
		inventory: inventory,
		writer:    writer,
		breaker:   newBreaker(logger),
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

func newBreaker(logger *zap.Logger) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "checkout-publisher",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// NewKafkaWriter returns a writer for the checkout event topic.
func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.RecoverStuck(ctx)
			r.PublishCompleted(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RecoverStuck drives every idle, unfinished saga as far forward as it goes.
func (r *Reconciler) RecoverStuck(ctx context.Context) {
	sagas, err := r.checkouts.ListStuck(ctx, r.now().Add(-r.cfg.Grace), batchSize)
	if err != nil {
		r.logger.Error("failed to list stuck checkouts", zap.Error(err))
		return
	}

	for _, saga := range sagas {
		log := r.logger.With(zap.String("checkout_id", saga.ID), zap.String("status", saga.Status.String()))
		log.Info("recovering stuck checkout")
		if err := r.recover(ctx, saga); err != nil {
			log.Warn("checkout recovery incomplete", zap.String("reached", saga.Status.String()), zap.Error(err))
			continue
		}
		log.Info("checkout recovered", zap.String("reached", saga.Status.String()))
	}
}

func (r *Reconciler) recover(ctx context.Context, saga *domain.CheckoutSaga) error {
	for !saga.Status.IsTerminal() {
		switch saga.Status {
		case domain.CheckoutStatusStarted:
			has, err := r.users.HasPayment(ctx, saga.UserID, saga.PaymentID)
			if err != nil {
				return err
			}
			if !has {
				// the history write never happened, so nothing else did either
				r.metrics.Reconciled("failed")
				return r.checkouts.Advance(ctx, saga, domain.CheckoutStatusFailed, errors.New("abandoned before history was recorded"))
			}
			if err := r.checkouts.Advance(ctx, saga, domain.CheckoutStatusHistoryRecorded, nil); err != nil {
				return err
			}
			r.metrics.Reconciled("history")

		case domain.CheckoutStatusHistoryRecorded:
			err := r.payments.Insert(ctx, saga.PaymentRecord())
			if err != nil && !errors.Is(err, repository.ErrDuplicatePayment) {
				return err
			}
			if err := r.checkouts.Advance(ctx, saga, domain.CheckoutStatusPaymentRecorded, nil); err != nil {
				return err
			}
			r.metrics.Reconciled("payment")

		case domain.CheckoutStatusPaymentRecorded, domain.CheckoutStatusInventoryPartial:
			return r.resumeInventory(ctx, saga)

		default:
			return fmt.Errorf("unexpected checkout status %s", saga.Status)
		}
	}
	return nil
}

// resumeInventory applies the increments not yet recorded as applied.
func (r *Reconciler) resumeInventory(ctx context.Context, saga *domain.CheckoutSaga) error {
	items := saga.SoldItems()
	if saga.InventoryApplied < len(items) {
		items = items[saga.InventoryApplied:]
	} else {
		items = nil
	}

	outcomes, invErr := r.inventory.Apply(ctx, items)
	saga.InventoryApplied += service.AppliedCount(outcomes)

	to := domain.CheckoutStatusCompleted
	if invErr != nil {
		to = domain.CheckoutStatusInventoryPartial
	}
	if err := r.checkouts.Advance(ctx, saga, to, invErr); err != nil {
		return err
	}
	if invErr != nil {
		return invErr
	}
	r.metrics.Reconciled("inventory")
	return nil
}

// PublishCompleted sends one event per completed, unpublished checkout.
func (r *Reconciler) PublishCompleted(ctx context.Context) {
	if r.writer == nil {
		return
	}

	sagas, err := r.checkouts.ListUnpublished(ctx, batchSize)
	if err != nil {
		r.logger.Error("failed to fetch completed checkouts", zap.Error(err))
		return
	}

	for _, saga := range sagas {
		if err := r.publish(ctx, saga); err != nil {
			r.logger.Warn("failed to publish checkout", zap.String("checkout_id", saga.ID), zap.Error(err))
			if errors.Is(err, gobreaker.ErrOpenState) {
				return
			}
			continue
		}

		if err := r.checkouts.MarkPublished(ctx, saga.ID); err != nil {
			r.logger.Error("failed to mark checkout published", zap.String("checkout_id", saga.ID), zap.Error(err))
			continue
		}
		r.metrics.Reconciled("published")
	}
}

func (r *Reconciler) publish(ctx context.Context, saga *domain.CheckoutSaga) error {
	payload, err := json.Marshal(domain.CheckoutEvent{
		CheckoutID:  saga.ID,
		UserID:      saga.UserID,
		PaymentID:   saga.PaymentID,
		Items:       saga.SoldItems(),
		Purchases:   saga.Purchases,
		CompletedAt: saga.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal checkout event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(saga.ID), // checkout id for ordering
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	_, err = r.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, r.writer.WriteMessages(ctx, msg)
	})
	return err
}
