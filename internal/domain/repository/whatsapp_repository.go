package repository

import (
	"context"

	"sustainflow-service/internal/domain/entity"
)

// WhatsappRepository defines the interface for WhatsApp operations
type WhatsappRepository interface {
	SendText(ctx context.Context, msg *entity.SendMailcastMessage) (string, error)
}
