package entity

import (
	"time"
)

// Notification Process Status
const (
	StatusPending    = "PENDING"
	StatusProcessing = "PROCESSING"
	StatusSent       = "SENT"
	StatusFailed     = "FAILED"
	StatusSkipped    = "SKIPPED"
)

// EventType names a lifecycle event that produces a notification
type EventType string

const (
	EventPickupCreated   EventType = "pickup_created"
	EventDatesProposed   EventType = "dates_proposed"
	EventDateConfirmed   EventType = "date_confirmed"
	EventQRRequested     EventType = "qr_requested"
	EventQRAccepted      EventType = "qr_accepted"
	EventPickupCompleted EventType = "pickup_completed"
	EventPickupCancelled EventType = "pickup_cancelled"
)

// Notification records one dispatch attempt to one recipient
type Notification struct {
	ID            string                 `bson:"_id,omitempty"`
	Event         EventType              `bson:"event"`
	PickupID      string                 `bson:"pickupId"`
	RecipientID   string                 `bson:"recipientId"`
	Channel       string                 `bson:"channel"`
	Subject       string                 `bson:"subject"`
	Payload       map[string]interface{} `bson:"payload,omitempty"`
	ProcessStatus string                 `bson:"processStatus"`
	ErrorDetail   string                 `bson:"errorDetail,omitempty"`
	CreatedAt     time.Time              `bson:"createdAt"`
	ProcessedAt   time.Time              `bson:"processedAt,omitempty"`
}

// Message is a rendered notification ready for a channel
type Message struct {
	To       string
	Subject  string
	Text     string
	HTMLBody string
}

// User holds the contact details of a platform account
type User struct {
	ID    string `bson:"_id"`
	Name  string `bson:"name"`
	Email string `bson:"email"`
	Phone string `bson:"phone,omitempty"`
	Role  Role   `bson:"role"`
}
