package audit

import "time"

// Event is an immutable, append-only record of one platform action.
//
// Invariants:
// - Events are never updated or deleted.
// - No field may carry a phone number, including metadata. Events cross
//   into reporting and ops tooling that must not see them.
// - Capture is best-effort; call flows never block on audit failures.
//
// Storage recommendation (Postgres):
// - Table call_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the record.
	Type EventType `json:"type" db:"type"`

	// RoutingID is the opaque session-scoped identity involved, if any.
	RoutingID string `json:"routing_id,omitempty" db:"routing_id"`

	// OwnerID is the registered user reached through the sticker, if known.
	OwnerID string `json:"owner_id,omitempty" db:"owner_id"`

	// SlugID identifies the scanned sticker for scan events.
	SlugID string `json:"slug_id,omitempty" db:"slug_id"`

	// Mode distinguishes realtime and bridged attempts.
	Mode string `json:"mode,omitempty" db:"mode"`

	// ProviderLegID ties leg-status events back to the telephony provider.
	ProviderLegID string `json:"provider_leg_id,omitempty" db:"provider_leg_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeQRScan        EventType = "qr_scan"
	EventTypeCallInitiated EventType = "call_initiated"
	EventTypeLegStatus     EventType = "leg_status"
	EventTypeCallBridged   EventType = "call_bridged"
	EventTypeCallFailed    EventType = "call_failed"
	EventTypeCallEnded     EventType = "call_ended"
)
