package usecase

import (
	"context"
	"fmt"

	"sustainflow-service/internal/domain/entity"
	"sustainflow-service/internal/domain/repository"
	"sustainflow-service/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PointsSummary is a user's balance with their latest ledger entries
type PointsSummary struct {
	UserID  string                     `json:"userId"`
	Balance int                        `json:"balance"`
	History []*entity.PointLedgerEntry `json:"history"`
}

// PointsService exposes the donor rewards ledger
type PointsService struct {
	points repository.PointsRepository
	logger logger.Logger
}

func NewPointsService(points repository.PointsRepository, logger logger.Logger) *PointsService {
	return &PointsService{
		points: points,
		logger: logger,
	}
}

// Summary returns the caller's balance and recent history
func (s *PointsService) Summary(ctx context.Context, actor entity.Actor, limit int) (*PointsSummary, error) {
	if actor.ID == "" {
		return nil, entity.ErrNotAuthorized
	}

	balance, err := s.points.Balance(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}

	history, err := s.points.History(ctx, actor.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	return &PointsSummary{
		UserID:  actor.ID,
		Balance: balance,
		History: history,
	}, nil
}

// Redeem spends points from the caller's balance and returns what is left
func (s *PointsService) Redeem(ctx context.Context, actor entity.Actor, points int) (int, error) {
	if actor.Role != entity.RoleDonor {
		return 0, fmt.Errorf("only donors hold points: %w", entity.ErrNotAuthorized)
	}
	if points <= 0 {
		return 0, fmt.Errorf("points must be positive: %w", entity.ErrValidation)
	}

	reference := primitive.NewObjectID().Hex()
	balance, err := s.points.Redeem(ctx, actor.ID, points, reference)
	if err != nil {
		return 0, err
	}

	s.logger.Info("Points redeemed",
		"userID", actor.ID,
		"points", points,
		"balance", balance,
		"reference", reference)

	return balance, nil
}
