package repository

import (
	"context"

	"sustainflow-service/internal/domain/entity"
)

// NotificationRepository defines the interface for notification log storage operations
type NotificationRepository interface {
	Save(ctx context.Context, n *entity.Notification) error
	MarkAsProcessed(ctx context.Context, id, status, errorDetail string) error
	FindByPickup(ctx context.Context, pickupID string, limit int) ([]*entity.Notification, error)
}

// UserRepository resolves contact details of platform users
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*entity.User, error)
}

// Channel delivers a rendered message to a user
type Channel interface {
	Name() string
	Send(ctx context.Context, user *entity.User, msg *entity.Message) error
}
