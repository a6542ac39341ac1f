// internal/interface/repository/pickup_repo.go
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

// MongoPickupRepository implements PickupRepository
type MongoPickupRepository struct {
	collection *mongo.Collection
}

// NewMongoPickupRepository creates a new pickup repository
func NewMongoPickupRepository(db *mongo.Database) repository.PickupRepository {
	collection := db.Collection("pickups")

	ctx := context.Background()

	donorIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "donorId", Value: 1},
			{Key: "createdAt", Value: -1},
		},
	}

	receiverIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "receiverId", Value: 1},
			{Key: "createdAt", Value: -1},
		},
	}

	statusIndex := mongo.IndexModel{
		Keys: bson.M{"status": 1},
	}

	collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		donorIndex,
		receiverIndex,
		statusIndex,
	})

	return &MongoPickupRepository{
		collection: collection,
	}
}

// Create inserts a new pickup
func (r *MongoPickupRepository) Create(ctx context.Context, pickup *entity.Pickup) error {
	if pickup.ID == "" {
		pickup.ID = primitive.NewObjectID().Hex()
	}
	if pickup.Status == "" {
		pickup.Status = entity.PickupPending
	}

	_, err := r.collection.InsertOne(ctx, pickup)
	if err != nil {
		return fmt.Errorf("failed to insert pickup: %w", err)
	}
	return nil
}

// FindByID finds a pickup by ID
func (r *MongoPickupRepository) FindByID(ctx context.Context, id string) (*entity.Pickup, error) {
	var pickup entity.Pickup
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&pickup)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("pickup %s: %w", id, entity.ErrNotFound)
		}
		return nil, err
	}
	return &pickup, nil
}

// Transition applies the patch with a compare-and-set on the current status
func (r *MongoPickupRepository) Transition(ctx context.Context, id string, from []entity.PickupStatus, patch entity.PickupPatch) (*entity.Pickup, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": from},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var pickup entity.Pickup
	err := r.collection.FindOneAndUpdate(ctx, filter, buildPatchUpdate(patch), opts).Decode(&pickup)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, r.missOrConflict(ctx, id)
		}
		return nil, fmt.Errorf("failed to transition pickup: %w", err)
	}

	return &pickup, nil
}

// buildPatchUpdate mirrors entity.PickupPatch.Apply as a single update document
func buildPatchUpdate(patch entity.PickupPatch) bson.M {
	set := bson.M{
		"status":    patch.Status,
		"updatedAt": patch.UpdatedAt,
	}
	unset := bson.M{}

	if patch.Status == entity.PickupDatesProposed {
		set["proposedDates"] = patch.ProposedDates
	} else {
		unset["proposedDates"] = ""
	}

	if !patch.Status.HasConfirmedDate() {
		unset["confirmedDate"] = ""
	} else if patch.ConfirmedDate != nil {
		set["confirmedDate"] = patch.ConfirmedDate
	}

	if patch.Status == entity.PickupQRRequested {
		set["qrRequestedBy"] = patch.QRRequestedBy
	} else {
		unset["qrRequestedBy"] = ""
	}

	if patch.Status == entity.PickupCompleted {
		set["completion"] = patch.Completion
	} else {
		unset["completion"] = ""
	}

	if patch.Status == entity.PickupCancelled {
		set["cancellation"] = patch.Cancellation
	} else {
		unset["cancellation"] = ""
	}

	return bson.M{
		"$set":   set,
		"$unset": unset,
	}
}

func (r *MongoPickupRepository) missOrConflict(ctx context.Context, id string) error {
	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to count pickups: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("pickup %s: %w", id, entity.ErrNotFound)
	}
	return fmt.Errorf("pickup %s changed concurrently: %w", id, entity.ErrInvalidState)
}

// List finds pickups matching the filter, most recent first
func (r *MongoPickupRepository) List(ctx context.Context, filter entity.PickupFilter) ([]*entity.Pickup, error) {
	query := bson.M{}
	if filter.DonorID != "" {
		query["donorId"] = filter.DonorID
	}
	if filter.ReceiverID != "" {
		query["receiverId"] = filter.ReceiverID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	limit := int64(filter.Limit)
	if limit <= 0 {
		limit = 100
	}

	cursor, err := r.collection.Find(ctx, query, &options.FindOptions{
		Limit: &limit,
		Sort:  bson.D{{Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var pickups []*entity.Pickup
	if err := cursor.All(ctx, &pickups); err != nil {
		return nil, err
	}

	return pickups, nil
}

// DeleteCompleted deletes a pickup only while it is completed
func (r *MongoPickupRepository) DeleteCompleted(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{
		"_id":    id,
		"status": entity.PickupCompleted,
	})
	if err != nil {
		return fmt.Errorf("failed to delete pickup: %w", err)
	}

	if result.DeletedCount == 0 {
		return r.missOrConflict(ctx, id)
	}

	return nil
}

// Analytics aggregates pickup counts per status
func (r *MongoPickupRepository) Analytics(ctx context.Context) (*entity.PickupAnalytics, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "kg", Value: bson.D{{Key: "$sum", Value: "$quantityKg"}}},
			{Key: "points", Value: bson.D{{Key: "$sum", Value: "$completion.bonusPoints"}}},
		}}},
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate pickups: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status string  `bson:"_id"`
		Count  int64   `bson:"count"`
		Kg     float64 `bson:"kg"`
		Points int64   `bson:"points"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	analytics := &entity.PickupAnalytics{
		ByStatus: make(map[entity.PickupStatus]int64, len(entity.AllPickupStatuses)),
	}
	for _, status := range entity.AllPickupStatuses {
		analytics.ByStatus[status] = 0
	}

	for _, row := range rows {
		status := entity.PickupStatus(row.Status)
		analytics.ByStatus[status] = row.Count
		analytics.Total += row.Count
		if status == entity.PickupCompleted {
			analytics.CompletedKg = row.Kg
			analytics.BonusPointsTotal = row.Points
		}
	}

	return analytics, nil
}
