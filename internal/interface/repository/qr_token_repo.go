package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sustainflow-service/internal/domain/entity"
	"sustainflow-service/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// issueAttempts bounds retries when a concurrent Issue wins the active slot
const issueAttempts = 3

// MongoQRTokenRepository implements QRTokenRepository
type MongoQRTokenRepository struct {
	collection *mongo.Collection
	clock      clock.Clock
	ttl        time.Duration
}

// qrTokenIndexes lists the indexes the token store relies on.
// one_active_per_pickup is what keeps concurrent Issue calls to a single
// active token.
func qrTokenIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.M{"code": 1},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.M{"pickupId": 1},
			Options: options.Index().
				SetName("one_active_per_pickup").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": entity.QRTokenActive}),
		},
		{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "expiresAt", Value: 1},
			},
		},
	}
}

// NewMongoQRTokenRepository creates a new QR token repository. It fails when
// the indexes cannot be built.
func NewMongoQRTokenRepository(ctx context.Context, db *mongo.Database, clk clock.Clock, ttl time.Duration) (repository.QRTokenRepository, error) {
	collection := db.Collection("qrTokens")

	if ttl <= 0 {
		ttl = entity.DefaultQRTokenTTL
	}

	if _, err := collection.Indexes().CreateMany(ctx, qrTokenIndexes()); err != nil {
		return nil, fmt.Errorf("failed to create qr token indexes: %w", err)
	}

	return &MongoQRTokenRepository{
		collection: collection,
		clock:      clk,
		ttl:        ttl,
	}, nil
}

// Issue expires any active token of the pickup and inserts a fresh one
func (r *MongoQRTokenRepository) Issue(ctx context.Context, pickupID string) (*entity.QRToken, error) {
	var lastErr error
	for attempt := 0; attempt < issueAttempts; attempt++ {
		if _, err := r.ExpireActive(ctx, pickupID); err != nil {
			return nil, err
		}

		now := r.clock.Now().UTC()
		token := &entity.QRToken{
			ID:          primitive.NewObjectID().Hex(),
			PickupID:    pickupID,
			Code:        uuid.NewString(),
			GeneratedAt: now,
			ExpiresAt:   now.Add(r.ttl),
			Status:      entity.QRTokenActive,
		}

		_, err := r.collection.InsertOne(ctx, token)
		if err == nil {
			return token, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("failed to insert qr token: %w", err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed to issue qr token for pickup %s: %w", pickupID, lastErr)
}

// Validate checks a scanned code
func (r *MongoQRTokenRepository) Validate(ctx context.Context, code string) (*entity.QRToken, error) {
	var token entity.QRToken
	err := r.collection.FindOne(ctx, bson.M{"code": code}).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entity.ErrInvalidToken
		}
		return nil, err
	}

	switch token.Status {
	case entity.QRTokenUsed:
		return &token, entity.ErrTokenAlreadyUsed
	case entity.QRTokenExpired:
		return &token, entity.ErrTokenExpired
	}

	if token.ExpiredAt(r.clock.Now()) {
		_, err := r.collection.UpdateOne(ctx,
			bson.M{"_id": token.ID, "status": entity.QRTokenActive},
			bson.M{"$set": bson.M{"status": entity.QRTokenExpired}},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to expire qr token: %w", err)
		}
		token.Status = entity.QRTokenExpired
		return &token, entity.ErrTokenExpired
	}

	return &token, nil
}

// MarkUsed moves an active token to used
func (r *MongoQRTokenRepository) MarkUsed(ctx context.Context, tokenID, scannerID string) (*entity.QRToken, error) {
	now := r.clock.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var token entity.QRToken
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": tokenID, "status": entity.QRTokenActive},
		bson.M{"$set": bson.M{
			"status":    entity.QRTokenUsed,
			"scannedAt": now,
			"scannedBy": scannerID,
		}},
		opts,
	).Decode(&token)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("qr token %s is not active: %w", tokenID, entity.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("failed to mark qr token used: %w", err)
	}

	return &token, nil
}

// ExpireActive supersedes the active token of a pickup, if any
func (r *MongoQRTokenRepository) ExpireActive(ctx context.Context, pickupID string) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{"pickupId": pickupID, "status": entity.QRTokenActive},
		bson.M{"$set": bson.M{"status": entity.QRTokenExpired}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire active qr tokens: %w", err)
	}
	return result.ModifiedCount, nil
}

// ExpireStale marks every active token past its expiry as expired
func (r *MongoQRTokenRepository) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{
			"status":    entity.QRTokenActive,
			"expiresAt": bson.M{"$lt": now},
		},
		bson.M{"$set": bson.M{"status": entity.QRTokenExpired}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep qr tokens: %w", err)
	}
	return result.ModifiedCount, nil
}

// FindByPickup lists the tokens of a pickup, newest first
func (r *MongoQRTokenRepository) FindByPickup(ctx context.Context, pickupID string) ([]*entity.QRToken, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"pickupId": pickupID}, &options.FindOptions{
		Sort: bson.D{{Key: "generatedAt", Value: -1}},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tokens []*entity.QRToken
	if err := cursor.All(ctx, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// DeleteByPickup removes all tokens of a pickup
func (r *MongoQRTokenRepository) DeleteByPickup(ctx context.Context, pickupID string) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"pickupId": pickupID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete qr tokens: %w", err)
	}
	return result.DeletedCount, nil
}
