package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoUserRepository struct {
	collection *mongo.Collection
}

func NewUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{
		collection: db.Collection(usersCollection),
	}
}

func (m *mongoUserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = primitive.NewObjectID().Hex()
	}
	if user.Cart == nil {
		user.Cart = []domain.CartLine{}
	}
	if user.History == nil {
		user.History = []domain.PurchaseRecord{}
	}

	_, err := m.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return domain.Persistence("failed to create user", err)
	}
	return nil
}

func (m *mongoUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *mongoUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.findOne(ctx, bson.M{"email": email})
}

func (m *mongoUserRepository) FindByToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrUserNotFound
	}
	return m.findOne(ctx, bson.M{"token": token})
}

func (m *mongoUserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	err := m.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, domain.Persistence("failed to get user", err)
	}
	return &user, nil
}

func (m *mongoUserRepository) SetToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	update := bson.M{"$set": bson.M{"token": token, "token_exp": expiresAt}}
	return m.updateOne(ctx, userID, update, "failed to set token")
}

// AddCartLine increments the quantity of the line for productID, or appends a
// new line with quantity 1 when there is none. The check and the write happen
// in one pipeline update, so concurrent adds cannot produce duplicate lines.
func (m *mongoUserRepository) AddCartLine(ctx context.Context, userID, productID string, now time.Time) ([]domain.CartLine, error) {
	pid := bson.D{{Key: "$literal", Value: productID}}
	cart := bson.D{{Key: "$ifNull", Value: bson.A{"$cart", bson.A{}}}}
	present := bson.D{{Key: "$in", Value: bson.A{pid, bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: cart},
		{Key: "as", Value: "line"},
		{Key: "in", Value: "$$line.product_id"},
	}}}}}}
	increment := bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: cart},
		{Key: "as", Value: "line"},
		{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{"$$line.product_id", pid}}},
			bson.D{{Key: "$mergeObjects", Value: bson.A{
				"$$line",
				bson.D{{Key: "quantity", Value: bson.D{{Key: "$add", Value: bson.A{"$$line.quantity", 1}}}}},
			}}},
			"$$line",
		}}}},
	}}}
	appendLine := bson.D{{Key: "$concatArrays", Value: bson.A{
		cart,
		bson.A{bson.D{
			{Key: "product_id", Value: pid},
			{Key: "quantity", Value: 1},
			{Key: "added_at", Value: now},
		}},
	}}}

	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "cart", Value: bson.D{{Key: "$cond", Value: bson.A{present, increment, appendLine}}}}}}},
	}

	return m.updateCart(ctx, userID, pipeline, "failed to add cart line")
}

func (m *mongoUserRepository) PullCartLine(ctx context.Context, userID, productID string) ([]domain.CartLine, error) {
	update := bson.M{
		"$pull": bson.M{
			"cart": bson.M{"product_id": productID},
		},
	}
	return m.updateCart(ctx, userID, update, "failed to remove cart line")
}

func (m *mongoUserRepository) updateCart(ctx context.Context, userID string, update interface{}, op string) ([]domain.CartLine, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"cart": 1})

	var user domain.User
	err := m.collection.FindOneAndUpdate(ctx, bson.M{"_id": userID}, update, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, domain.Persistence(op, err)
	}
	if user.Cart == nil {
		user.Cart = []domain.CartLine{}
	}
	return user.Cart, nil
}

// AppendHistoryAndClearCart records purchases and empties the cart in a
// single document update.
func (m *mongoUserRepository) AppendHistoryAndClearCart(ctx context.Context, userID string, records []domain.PurchaseRecord) error {
	update := bson.M{
		"$push": bson.M{"history": bson.M{"$each": records}},
		"$set":  bson.M{"cart": bson.A{}},
	}
	return m.updateOne(ctx, userID, update, "failed to record history")
}

func (m *mongoUserRepository) HasPayment(ctx context.Context, userID, paymentID string) (bool, error) {
	n, err := m.collection.CountDocuments(ctx, bson.M{"_id": userID, "history.payment_id": paymentID})
	if err != nil {
		return false, domain.Persistence("failed to look up history", err)
	}
	return n > 0, nil
}

func (m *mongoUserRepository) UpdateProfile(ctx context.Context, userID, email, name, image string) (*domain.User, error) {
	update := bson.M{"$set": bson.M{"email": email, "name": name, "image": image}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user domain.User
	err := m.collection.FindOneAndUpdate(ctx, bson.M{"_id": userID}, update, opts).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, domain.Persistence("failed to update profile", err)
	}
	return &user, nil
}

func (m *mongoUserRepository) SetPassword(ctx context.Context, userID, hash string) error {
	return m.updateOne(ctx, userID, bson.M{"$set": bson.M{"password": hash}}, "failed to set password")
}

func (m *mongoUserRepository) updateOne(ctx context.Context, userID string, update bson.M, op string) error {
	result, err := m.collection.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return domain.Persistence(op, err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}
