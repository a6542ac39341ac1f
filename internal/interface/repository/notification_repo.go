// internal/interface/repository/notification_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sustainflow-service/internal/domain/entity"
	"sustainflow-service/internal/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoNotificationRepository implements the NotificationRepository interface
type MongoNotificationRepository struct {
	collection *mongo.Collection
}

// NewMongoNotificationRepository creates a new MongoDB notification log repository
func NewMongoNotificationRepository(db *mongo.Database) repository.NotificationRepository {
	collection := db.Collection("notificationLogs")

	// Create indexes for better performance
	ctx := context.Background()

	pickupIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "pickupId", Value: 1},
			{Key: "createdAt", Value: -1},
		},
	}

	// Index on processStatus for finding failed deliveries
	processStatusIndex := mongo.IndexModel{
		Keys: bson.M{"processStatus": 1},
	}

	collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		pickupIndex,
		processStatusIndex,
	})

	return &MongoNotificationRepository{
		collection: collection,
	}
}

// Save saves a notification to MongoDB
func (r *MongoNotificationRepository) Save(ctx context.Context, n *entity.Notification) error {
	if n.ID == "" {
		n.ID = primitive.NewObjectID().Hex()
	}

	if n.ProcessStatus == "" {
		n.ProcessStatus = entity.StatusPending
	}

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	_, err := r.collection.InsertOne(ctx, n)
	return err
}

// MarkAsProcessed records the delivery outcome
func (r *MongoNotificationRepository) MarkAsProcessed(ctx context.Context, id, status, errorDetail string) error {
	update := bson.M{
		"$set": bson.M{
			"processedAt":   time.Now().UTC(),
			"processStatus": status,
		},
	}

	if errorDetail != "" {
		update["$set"].(bson.M)["errorDetail"] = errorDetail
	}

	result, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": id},
		update,
	)

	if err != nil {
		return fmt.Errorf("failed to mark as processed: %w", err)
	}

	if result.MatchedCount == 0 {
		return fmt.Errorf("no document found with id: %s", id)
	}

	return nil
}

// FindByPickup finds notifications sent for a pickup, most recent first
func (r *MongoNotificationRepository) FindByPickup(ctx context.Context, pickupID string, limit int) ([]*entity.Notification, error) {
	filter := bson.M{"pickupId": pickupID}

	limit64 := int64(limit)
	cursor, err := r.collection.Find(ctx, filter, &options.FindOptions{
		Limit: &limit64,
		Sort:  bson.D{{Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var notifications []*entity.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, err
	}

	return notifications, nil
}

// MongoUserRepository reads user contact details
type MongoUserRepository struct {
	collection *mongo.Collection
}

// NewMongoUserRepository creates a read-only user repository
func NewMongoUserRepository(db *mongo.Database) repository.UserRepository {
	return &MongoUserRepository{
		collection: db.Collection("users"),
	}
}

// FindByID finds a user by id. Accounts created by other services may use ObjectID keys.
func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	ids := []interface{}{id}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		ids = append(ids, oid)
	}

	var raw struct {
		ID    interface{} `bson:"_id"`
		Name  string      `bson:"name"`
		Email string      `bson:"email"`
		Phone string      `bson:"phone"`
		Role  entity.Role `bson:"role"`
	}
	err := r.collection.FindOne(ctx, bson.M{"_id": bson.M{"$in": ids}}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("user %s: %w", id, entity.ErrNotFound)
		}
		return nil, err
	}

	return &entity.User{
		ID:    id,
		Name:  raw.Name,
		Email: raw.Email,
		Phone: raw.Phone,
		Role:  raw.Role,
	}, nil
}
