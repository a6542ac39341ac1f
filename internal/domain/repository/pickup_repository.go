package repository

import (
	"context"

	"sustainflow-service/internal/domain/entity"
)

// PickupRepository defines the interface for pickup storage operations
type PickupRepository interface {
	Create(ctx context.Context, pickup *entity.Pickup) error
	// FindByID returns entity.ErrNotFound when no pickup has the id
	FindByID(ctx context.Context, id string) (*entity.Pickup, error)
	// Transition applies patch only if the stored status is one of from.
	// Returns entity.ErrInvalidState when the status no longer matches and
	// entity.ErrNotFound when the pickup does not exist.
	Transition(ctx context.Context, id string, from []entity.PickupStatus, patch entity.PickupPatch) (*entity.Pickup, error)
	List(ctx context.Context, filter entity.PickupFilter) ([]*entity.Pickup, error)
	// DeleteCompleted removes a pickup only if it is completed
	DeleteCompleted(ctx context.Context, id string) error
	Analytics(ctx context.Context) (*entity.PickupAnalytics, error)
}
