// internal/domain/entity/pickup.go
package entity

import (
	"time"
)

// PickupStatus is the lifecycle state of a pickup
type PickupStatus string

const (
	PickupPending       PickupStatus = "pending"
	PickupDatesProposed PickupStatus = "dates_proposed"
	PickupScheduled     PickupStatus = "scheduled"
	PickupQRRequested   PickupStatus = "qr_requested"
	PickupQRAccepted    PickupStatus = "qr_accepted"
	PickupCompleted     PickupStatus = "completed"
	PickupCancelled     PickupStatus = "cancelled"
)

// AllPickupStatuses lists every status in lifecycle order
var AllPickupStatuses = []PickupStatus{
	PickupPending,
	PickupDatesProposed,
	PickupScheduled,
	PickupQRRequested,
	PickupQRAccepted,
	PickupCompleted,
	PickupCancelled,
}

// Valid reports whether s is one of the known statuses
func (s PickupStatus) Valid() bool {
	for _, status := range AllPickupStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible
func (s PickupStatus) Terminal() bool {
	return s == PickupCompleted || s == PickupCancelled
}

// HasConfirmedDate reports whether a pickup in this status carries a confirmed date
func (s PickupStatus) HasConfirmedDate() bool {
	switch s {
	case PickupScheduled, PickupQRRequested, PickupQRAccepted, PickupCompleted:
		return true
	}
	return false
}

type PickupDate struct {
	ID       string    `json:"id" bson:"id"`
	Date     time.Time `json:"date" bson:"date"`
	TimeSlot string    `json:"timeSlot" bson:"timeSlot"`
}

type Completion struct {
	CompletedAt time.Time `json:"completedAt" bson:"completedAt"`
	CompletedBy string    `json:"completedBy" bson:"completedBy"`
	Notes       string    `json:"notes,omitempty" bson:"notes,omitempty"`
	BonusPoints int       `json:"bonusPoints" bson:"bonusPoints"`
}

type Cancellation struct {
	CancelledAt time.Time `json:"cancelledAt" bson:"cancelledAt"`
	CancelledBy string    `json:"cancelledBy" bson:"cancelledBy"`
}

// Pickup is a single donation transfer between a donor and a receiver
type Pickup struct {
	ID            string        `json:"id" bson:"_id,omitempty"`
	DonorID       string        `json:"donorId" bson:"donorId"`
	ReceiverID    string        `json:"receiverId" bson:"receiverId"`
	ReceiverRole  Role          `json:"receiverRole" bson:"receiverRole"`
	WasteType     string        `json:"wasteType" bson:"wasteType"`
	ItemType      string        `json:"itemType" bson:"itemType"`
	QuantityKg    float64       `json:"quantityKg" bson:"quantityKg"`
	Address       string        `json:"address,omitempty" bson:"address,omitempty"`
	Description   string        `json:"description,omitempty" bson:"description,omitempty"`
	Status        PickupStatus  `json:"status" bson:"status"`
	ProposedDates []PickupDate  `json:"proposedDates,omitempty" bson:"proposedDates,omitempty"`
	ConfirmedDate *PickupDate   `json:"confirmedDate,omitempty" bson:"confirmedDate,omitempty"`
	QRRequestedBy string        `json:"qrRequestedBy,omitempty" bson:"qrRequestedBy,omitempty"`
	Completion    *Completion   `json:"completion,omitempty" bson:"completion,omitempty"`
	Cancellation  *Cancellation `json:"cancellation,omitempty" bson:"cancellation,omitempty"`
	CreatedAt     time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// IsParty reports whether userID is the donor or the receiver
func (p *Pickup) IsParty(userID string) bool {
	return userID != "" && (userID == p.DonorID || userID == p.ReceiverID)
}

// Counterpart returns the other party of the pickup
func (p *Pickup) Counterpart(userID string) string {
	if userID == p.DonorID {
		return p.ReceiverID
	}
	return p.DonorID
}

// FindProposedDate returns the proposed date with the given id
func (p *Pickup) FindProposedDate(id string) (PickupDate, bool) {
	for _, d := range p.ProposedDates {
		if d.ID == id {
			return d, true
		}
	}
	return PickupDate{}, false
}

// PickupPatch describes the fields a transition writes. Nil/empty fields are cleared
// according to the target status so that the record invariants hold after the update.
type PickupPatch struct {
	Status        PickupStatus
	ProposedDates []PickupDate
	ConfirmedDate *PickupDate
	QRRequestedBy string
	Completion    *Completion
	Cancellation  *Cancellation
	UpdatedAt     time.Time
}

// PickupFilter narrows pickup listings
type PickupFilter struct {
	DonorID    string
	ReceiverID string
	Status     PickupStatus
	Limit      int
}

// PickupAnalytics is the admin summary of pickups
type PickupAnalytics struct {
	ByStatus         map[PickupStatus]int64 `json:"byStatus"`
	Total            int64                  `json:"total"`
	CompletedKg      float64                `json:"completedKg"`
	BonusPointsTotal int64                  `json:"bonusPointsTotal"`
}

// Apply writes the patch onto p, clearing every field the target status must not carry
func (patch PickupPatch) Apply(p *Pickup) {
	p.Status = patch.Status
	p.UpdatedAt = patch.UpdatedAt

	if patch.Status == PickupDatesProposed {
		p.ProposedDates = patch.ProposedDates
	} else {
		p.ProposedDates = nil
	}

	if patch.ConfirmedDate != nil {
		p.ConfirmedDate = patch.ConfirmedDate
	}
	if !patch.Status.HasConfirmedDate() {
		p.ConfirmedDate = nil
	}

	if patch.Status == PickupQRRequested {
		p.QRRequestedBy = patch.QRRequestedBy
	} else {
		p.QRRequestedBy = ""
	}

	if patch.Status == PickupCompleted {
		p.Completion = patch.Completion
	} else {
		p.Completion = nil
	}

	if patch.Status == PickupCancelled {
		p.Cancellation = patch.Cancellation
	} else {
		p.Cancellation = nil
	}
}
