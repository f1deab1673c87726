package repository

import (
	"context"

	"github.com/fjod/go_shop/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoProductRepository struct {
	collection *mongo.Collection
}

func NewProductRepository(db *mongo.Database) ProductRepository {
	return &mongoProductRepository{
		collection: db.Collection(productsCollection),
	}
}

func (m *mongoProductRepository) Exists(ctx context.Context, id string) (bool, error) {
	n, err := m.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, domain.Persistence("failed to look up product", err)
	}
	return n > 0, nil
}

// FindDetails loads the products with the given ids and resolves each
// product's writer from the users collection. Unknown ids are skipped.
func (m *mongoProductRepository) FindDetails(ctx context.Context, ids []string) ([]domain.ProductDetail, error) {
	if len(ids) == 0 {
		return []domain.ProductDetail{}, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": bson.M{"$in": ids}}}},
		{{Key: "$lookup", Value: bson.M{
			"from":         usersCollection,
			"localField":   "writer",
			"foreignField": "_id",
			"as":           "writer",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$writer", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$project", Value: bson.M{
			"title":           1,
			"description":     1,
			"price":           1,
			"images":          1,
			"sold":            1,
			"writer._id":      1,
			"writer.name":     1,
			"writer.lastname": 1,
			"writer.email":    1,
		}}},
	}

	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, domain.Persistence("failed to query products", err)
	}
	defer cursor.Close(ctx)

	details := make([]domain.ProductDetail, 0, len(ids))
	if err := cursor.All(ctx, &details); err != nil {
		return nil, domain.Persistence("failed to decode products", err)
	}
	return details, nil
}

// IncrementSold adds quantity to the product's sold counter.
func (m *mongoProductRepository) IncrementSold(ctx context.Context, id string, quantity int) error {
	result, err := m.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"sold": quantity}})
	if err != nil {
		return domain.Persistence("failed to increment sold", err)
	}
	if result.MatchedCount == 0 {
		return ErrProductNotFound
	}
	return nil
}
