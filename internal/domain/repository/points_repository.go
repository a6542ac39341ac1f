package repository

import (
	"context"

	"sustainflow-service/internal/domain/entity"
)

// PointsRepository defines the interface for the points ledger
type PointsRepository interface {
	Credit(ctx context.Context, userID string, points int, reason, referenceID string) error
	// Redeem returns entity.ErrInsufficientPoints when the balance is too low
	Redeem(ctx context.Context, userID string, points int, referenceID string) (int, error)
	Balance(ctx context.Context, userID string) (int, error)
	History(ctx context.Context, userID string, limit int) ([]*entity.PointLedgerEntry, error)
}
