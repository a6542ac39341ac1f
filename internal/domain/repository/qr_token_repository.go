package repository

import (
	"context"
	"time"

	"sustainflow-service/internal/domain/entity"
)

// QRTokenRepository defines the interface for QR token storage operations
type QRTokenRepository interface {
	// Issue supersedes any active token of the pickup and stores a new active one
	Issue(ctx context.Context, pickupID string) (*entity.QRToken, error)
	// Validate returns the token for code if it is active and unexpired.
	// An expired active token is marked expired before entity.ErrTokenExpired is returned.
	Validate(ctx context.Context, code string) (*entity.QRToken, error)
	MarkUsed(ctx context.Context, tokenID, scannerID string) (*entity.QRToken, error)
	ExpireActive(ctx context.Context, pickupID string) (int64, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
	FindByPickup(ctx context.Context, pickupID string) ([]*entity.QRToken, error)
	DeleteByPickup(ctx context.Context, pickupID string) (int64, error)
}
