package entity

// Role of an authenticated user
type Role string

const (
	RoleDonor         Role = "donor"
	RoleNGO           Role = "ngo"
	RoleCompostAgency Role = "compostAgency"
	RoleAdmin         Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleDonor, RoleNGO, RoleCompostAgency, RoleAdmin:
		return true
	}
	return false
}

// IsReceiver reports whether the role can receive pickups
func (r Role) IsReceiver() bool {
	return r == RoleNGO || r == RoleCompostAgency
}

// Actor is the caller of a lifecycle operation
type Actor struct {
	ID   string
	Role Role
}

// Capability is what an operation requires of its caller relative to a pickup
type Capability int

const (
	CapDonor Capability = iota
	CapReceiver
	CapEitherParty
	CapPartyOrAdmin
	CapAdmin
)

func (c Capability) String() string {
	switch c {
	case CapDonor:
		return "donor"
	case CapReceiver:
		return "receiver"
	case CapEitherParty:
		return "either party"
	case CapPartyOrAdmin:
		return "party or admin"
	case CapAdmin:
		return "admin"
	}
	return "unknown"
}

// Allows reports whether actor holds capability c on pickup p.
// p may be nil for CapAdmin.
func (c Capability) Allows(actor Actor, p *Pickup) bool {
	switch c {
	case CapAdmin:
		return actor.Role == RoleAdmin
	case CapDonor:
		return p != nil && actor.ID != "" && actor.ID == p.DonorID
	case CapReceiver:
		return p != nil && actor.ID != "" && actor.ID == p.ReceiverID
	case CapEitherParty:
		return p != nil && p.IsParty(actor.ID)
	case CapPartyOrAdmin:
		return actor.Role == RoleAdmin || (p != nil && p.IsParty(actor.ID))
	}
	return false
}
