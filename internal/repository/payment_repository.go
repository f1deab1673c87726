package repository

import (
	"context"
	"errors"

	"github.com/fjod/go_shop/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type mongoPaymentRepository struct {
	collection *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) PaymentRepository {
	return &mongoPaymentRepository{
		collection: db.Collection(paymentsCollection),
	}
}

func (m *mongoPaymentRepository) Insert(ctx context.Context, payment *domain.PaymentRecord) error {
	_, err := m.collection.InsertOne(ctx, payment)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicatePayment
		}
		return domain.Persistence("failed to insert payment", err)
	}
	return nil
}

func (m *mongoPaymentRepository) FindByID(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	var payment domain.PaymentRecord
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&payment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPaymentNotFound
		}
		return nil, domain.Persistence("failed to get payment", err)
	}
	return &payment, nil
}
