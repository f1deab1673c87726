package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoCheckoutRepository struct {
	collection *mongo.Collection
}

func NewCheckoutRepository(db *mongo.Database) CheckoutRepository {
	return &mongoCheckoutRepository{
		collection: db.Collection(checkoutsCollection),
	}
}

func (m *mongoCheckoutRepository) Create(ctx context.Context, saga *domain.CheckoutSaga) error {
	now := time.Now()
	if saga.CreatedAt.IsZero() {
		saga.CreatedAt = now
	}
	saga.UpdatedAt = now
	if saga.Steps == nil {
		saga.Steps = []domain.StepLog{{Status: saga.Status, At: now}}
	}

	_, err := m.collection.InsertOne(ctx, saga)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateCheckout
		}
		return domain.Persistence("failed to create checkout", err)
	}
	return nil
}

func (m *mongoCheckoutRepository) FindByPaymentID(ctx context.Context, paymentID string) (*domain.CheckoutSaga, error) {
	var saga domain.CheckoutSaga
	err := m.collection.FindOne(ctx, bson.M{"payment_id": paymentID}).Decode(&saga)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCheckoutNotFound
		}
		return nil, domain.Persistence("failed to get checkout", err)
	}
	return &saga, nil
}

func (m *mongoCheckoutRepository) Advance(ctx context.Context, saga *domain.CheckoutSaga, to domain.CheckoutStatus, stepErr error) error {
	if !domain.CanTransitionTo(saga.Status, to) {
		return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, saga.Status, to)
	}
	now := time.Now()
	step := domain.StepLog{Status: to, At: now}
	if stepErr != nil {
		step.Error = stepErr.Error()
	}

	filter := bson.M{"_id": saga.ID, "status": saga.Status}
	update := bson.M{
		"$set": bson.M{
			"status":            to,
			"inventory_applied": saga.InventoryApplied,
			"updated_at":        now,
		},
		"$push": bson.M{"steps": step},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return domain.Persistence("failed to advance checkout", err)
	}
	if result.MatchedCount == 0 {
		return ErrStaleCheckout
	}

	saga.Status = to
	saga.UpdatedAt = now
	saga.Steps = append(saga.Steps, step)
	return nil
}

// ListStuck returns non-terminal sagas that have not moved since updatedBefore.
func (m *mongoCheckoutRepository) ListStuck(ctx context.Context, updatedBefore time.Time, limit int) ([]*domain.CheckoutSaga, error) {
	filter := bson.M{
		"status":     bson.M{"$nin": bson.A{domain.CheckoutStatusCompleted, domain.CheckoutStatusFailed}},
		"updated_at": bson.M{"$lt": updatedBefore},
	}
	return m.find(ctx, filter, limit)
}

func (m *mongoCheckoutRepository) ListUnpublished(ctx context.Context, limit int) ([]*domain.CheckoutSaga, error) {
	filter := bson.M{"status": domain.CheckoutStatusCompleted, "published": false}
	return m.find(ctx, filter, limit)
}

func (m *mongoCheckoutRepository) find(ctx context.Context, filter bson.M, limit int) ([]*domain.CheckoutSaga, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, domain.Persistence("failed to query checkouts", err)
	}
	defer cursor.Close(ctx)

	var sagas []*domain.CheckoutSaga
	if err := cursor.All(ctx, &sagas); err != nil {
		return nil, domain.Persistence("failed to decode checkouts", err)
	}
	return sagas, nil
}

func (m *mongoCheckoutRepository) MarkPublished(ctx context.Context, id string) error {
	result, err := m.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"published": true}})
	if err != nil {
		return domain.Persistence("failed to mark checkout published", err)
	}
	if result.MatchedCount == 0 {
		return ErrCheckoutNotFound
	}
	return nil
}
