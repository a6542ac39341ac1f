package entity

import (
	"time"
)

// PointLedgerEntry is one credit (positive delta) or redemption (negative delta)
type PointLedgerEntry struct {
	ID          uint
	UserID      string
	Delta       int
	Reason      string
	ReferenceID string
	CreatedAt   time.Time
}

const (
	PointsReasonPickupBonus = "pickup_bonus"
	PointsReasonRedeem      = "redeem"
)
