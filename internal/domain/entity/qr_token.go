package entity

import (
	"time"
)

// QRTokenStatus is the state of a QR token
type QRTokenStatus string

const (
	QRTokenActive  QRTokenStatus = "active"
	QRTokenUsed    QRTokenStatus = "used"
	QRTokenExpired QRTokenStatus = "expired"
)

// DefaultQRTokenTTL is how long a generated code can be scanned
const DefaultQRTokenTTL = 2 * time.Minute

// QRToken is a short-lived credential proving presence at pickup completion
type QRToken struct {
	ID          string        `json:"id" bson:"_id,omitempty"`
	PickupID    string        `json:"pickupId" bson:"pickupId"`
	Code        string        `json:"code" bson:"code"`
	GeneratedAt time.Time     `json:"generatedAt" bson:"generatedAt"`
	ExpiresAt   time.Time     `json:"expiresAt" bson:"expiresAt"`
	Status      QRTokenStatus `json:"status" bson:"status"`
	ScannedAt   *time.Time    `json:"scannedAt,omitempty" bson:"scannedAt,omitempty"`
	ScannedBy   string        `json:"scannedBy,omitempty" bson:"scannedBy,omitempty"`
}

// ExpiredAt reports whether the validity window has passed at now
func (t *QRToken) ExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// QRPayload is what the donor receives after generating a code.
// Clients must treat Code as opaque.
type QRPayload struct {
	Code        string    `json:"code"`
	PickupID    string    `json:"pickupId"`
	GeneratedAt time.Time `json:"generatedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (t *QRToken) Payload() QRPayload {
	return QRPayload{
		Code:        t.Code,
		PickupID:    t.PickupID,
		GeneratedAt: t.GeneratedAt,
		ExpiresAt:   t.ExpiresAt,
	}
}
