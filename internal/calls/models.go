package calls

import "time"

// Session identifies one anonymized call attempt between a scanner and a
// registered party. Participants are routing identities, never phone numbers.
//
// Ownership: the signaling hub owns realtime sessions, the bridge
// orchestrator owns bridged ones. A session is destroyed on a terminal
// state after a grace period so late messages have somewhere to die.
type Session struct {
	ID   string   `json:"session_id"`
	Mode CallMode `json:"mode"`

	// Caller and Callee are fixed at creation. Caller always sends the
	// first offer; there is never a second caller within a session.
	Caller string `json:"caller"`
	Callee string `json:"callee"`

	State CallStatus `json:"state"`

	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// Counterpart returns the other participant of the session, or "" if id is
// not a participant.
func (s Session) Counterpart(id string) string {
	switch id {
	case s.Caller:
		return s.Callee
	case s.Callee:
		return s.Caller
	default:
		return ""
	}
}

// Has reports whether id is one of the session's two participants.
func (s Session) Has(id string) bool {
	return id != "" && (id == s.Caller || id == s.Callee)
}

// Terminal reports whether the session can no longer change state.
func (s Session) Terminal() bool {
	return s.State == StatusEnded || s.State == StatusFailed
}

type CallMode string

const (
	ModeRealtime CallMode = "realtime"
	ModeBridged  CallMode = "bridged"
)

// CallStatus is the coarse, client-visible call state. Bridged calls track
// leg-level detail internally but only ever expose these.
type CallStatus string

const (
	StatusIdle        CallStatus = "idle"
	StatusNegotiating CallStatus = "negotiating"
	StatusConnected   CallStatus = "connected"
	StatusEnded       CallStatus = "ended"
	StatusFailed      CallStatus = "failed"
)

type NegotiationRole string

const (
	RoleCaller NegotiationRole = "caller"
	RoleCallee NegotiationRole = "callee"
)

// CallInitiation is the tagged variant a client submits to start a call.
// Downstream logic dispatches on Mode; per-mode fields are only read for
// the matching tag.
type CallInitiation struct {
	Mode CallMode `json:"mode"`

	// Realtime: the resolved routing identity of the party to ring.
	PeerRoutingID string `json:"peer_routing_id,omitempty"`

	// Bridged: the scanner's own phone number, dialed first.
	ScannerPhone string `json:"scanner_phone,omitempty"`
}
