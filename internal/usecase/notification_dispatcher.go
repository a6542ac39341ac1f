package usecase

import (
	"context"
	"errors"
	"fmt"

	"sustainflow-service/internal/domain/entity"
	"sustainflow-service/internal/domain/repository"
	"sustainflow-service/pkg/logger"
	"sustainflow-service/pkg/metrics"
	"sustainflow-service/templates"
)

// Dispatcher renders lifecycle events and fans them out to every channel
type Dispatcher struct {
	users         repository.UserRepository
	notifications repository.NotificationRepository
	channels      []repository.Channel
	renderer      MessageRenderer
	metrics       *metrics.Metrics
	logger        logger.Logger
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(
	users repository.UserRepository,
	notifications repository.NotificationRepository,
	channels []repository.Channel,
	renderer MessageRenderer,
	metrics *metrics.Metrics,
	logger logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		users:         users,
		notifications: notifications,
		channels:      channels,
		renderer:      renderer,
		metrics:       metrics,
		logger:        logger,
	}
}

// Notify delivers one event to one recipient on every channel.
// A failing channel does not stop the others; all failures are joined.
func (d *Dispatcher) Notify(ctx context.Context, event entity.EventType, pickupID, recipientID string, payload map[string]interface{}) error {
	user, err := d.users.FindByID(ctx, recipientID)
	if err != nil {
		d.metrics.Notifications.WithLabelValues(string(event), "none", "no_recipient").Inc()
		return fmt.Errorf("failed to resolve recipient %s: %w", recipientID, err)
	}

	msg, err := d.renderer.Render(event, templates.NotificationData{
		RecipientName: user.Name,
		PickupID:      pickupID,
		WasteType:     stringValue(payload, "wasteType"),
		ItemType:      stringValue(payload, "itemType"),
		QuantityKg:    floatValue(payload, "quantityKg"),
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", event, err)
	}

	var errs []error
	for _, channel := range d.channels {
		if err := d.deliver(ctx, channel, event, pickupID, user, msg, payload); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (d *Dispatcher) deliver(
	ctx context.Context,
	channel repository.Channel,
	event entity.EventType,
	pickupID string,
	user *entity.User,
	msg *entity.Message,
	payload map[string]interface{},
) error {
	n := &entity.Notification{
		Event:         event,
		PickupID:      pickupID,
		RecipientID:   user.ID,
		Channel:       channel.Name(),
		Subject:       msg.Subject,
		Payload:       payload,
		ProcessStatus: entity.StatusProcessing,
	}
	if err := d.notifications.Save(ctx, n); err != nil {
		d.logger.Error("Failed to save notification log",
			"pickupID", pickupID,
			"channel", channel.Name(),
			"error", err)
	}

	status, detail := entity.StatusSent, ""
	sendErr := channel.Send(ctx, user, msg)
	switch {
	case errors.Is(sendErr, entity.ErrValidation):
		// recipient has no address on this channel
		status, detail = entity.StatusSkipped, sendErr.Error()
		sendErr = nil
	case sendErr != nil:
		status, detail = entity.StatusFailed, sendErr.Error()
	}

	d.metrics.Notifications.WithLabelValues(string(event), channel.Name(), status).Inc()

	if n.ID != "" {
		if err := d.notifications.MarkAsProcessed(ctx, n.ID, status, detail); err != nil {
			d.logger.Error("Failed to mark notification as processed",
				"notificationID", n.ID,
				"error", err)
		}
	}

	if sendErr != nil {
		return fmt.Errorf("%s channel: %w", channel.Name(), sendErr)
	}

	d.logger.Debug("Notification processed",
		"event", event,
		"pickupID", pickupID,
		"channel", channel.Name(),
		"status", status)
	return nil
}

func stringValue(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func floatValue(payload map[string]interface{}, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
