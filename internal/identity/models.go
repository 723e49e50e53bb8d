package identity

import "time"

// RoutingIdentity is an opaque, per-session delivery address. It is minted
// fresh on every resolution, expires with its session, and cannot be
// derived from the public slug or contact id without a server-side lookup.
//
// TargetPhone never serializes: the scanner-facing API must not be able to
// reach it through any response field.
type RoutingIdentity struct {
	ID   string       `json:"routing_id"`
	Kind IdentityKind `json:"kind"`

	// OwnerID is the registered user this identity ultimately belongs to.
	OwnerID string `json:"-"`

	TargetPhone string `json:"-"`

	ExpiresAt time.Time `json:"expires_at"`
}

type IdentityKind string

const (
	KindOwner   IdentityKind = "owner"
	KindContact IdentityKind = "contact"
	KindGuest   IdentityKind = "guest"
)

// QRSlug is one printed sticker.
type QRSlug struct {
	ID        string
	Slug      string
	Claimed   bool
	ClaimedBy string
}

// Owner is a registered user reachable through a sticker.
type Owner struct {
	ID    string
	Name  string
	Phone string
}

// Contact is an emergency contact registered by an owner. Phone stays
// server-side; only id, name and relationship are scanner-visible.
type Contact struct {
	ID           string
	OwnerID      string
	Name         string
	Relationship string
	Phone        string
	Verified     bool
	DisplayOrder int
}

// ScanResult is the scanner-visible view of a sticker. Contacts carry no
// phone numbers by construction.
type ScanResult struct {
	Status      ScanStatus    `json:"status"`
	SlugID      string        `json:"slugId,omitempty"`
	OwnerID     string        `json:"ownerId,omitempty"`
	OwnerName   string        `json:"ownerName,omitempty"`
	OwnerOnline bool          `json:"ownerOnline"`
	Contacts    []ContactView `json:"contacts,omitempty"`
}

type ScanStatus string

const (
	ScanStatusInvalid   ScanStatus = "invalid"
	ScanStatusUnclaimed ScanStatus = "unclaimed"
	ScanStatusClaimed   ScanStatus = "claimed"
)

type ContactView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
}
