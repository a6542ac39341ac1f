package usecase

import (
	"context"

	"sustainflow-service/internal/domain/entity"
	"sustainflow-service/templates"
)

// NotificationDispatcher receives lifecycle events. Delivery is best effort:
// callers log a returned error and carry on.
type NotificationDispatcher interface {
	Notify(ctx context.Context, event entity.EventType, pickupID, recipientID string, payload map[string]interface{}) error
}

// MessageRenderer turns an event into a message
type MessageRenderer interface {
	Render(event entity.EventType, data templates.NotificationData) (*entity.Message, error)
}

// TemplateRenderer renders with the built-in templates
type TemplateRenderer struct{}

func (TemplateRenderer) Render(event entity.EventType, data templates.NotificationData) (*entity.Message, error) {
	return templates.Render(event, data)
}
