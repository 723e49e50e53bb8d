package signal

import "github.com/pion/webrtc/v4"

// Signaling message types. The offer/answer/candidate envelope is the wire
// contract with browser clients; the remaining types are relay-originated.
const (
	TypeOffer      = "offer"
	TypeAnswer     = "answer"
	TypeCandidate  = "candidate"
	TypeHangup     = "hangup"
	TypePeerClosed = "peer-closed"
	TypeError      = "error"
)

// Envelope is one signaling message. "from" is always set by the relay
// from the authenticated connection identity; any client-supplied value is
// discarded before delivery.
type Envelope struct {
	Type string `json:"type"`
	To   string `json:"to,omitempty"`
	From string `json:"from,omitempty"`

	// SDP carries the session description for offer/answer. The type field
	// doubles as the SDP type, mirroring how browsers spread an
	// RTCSessionDescription into the message body.
	SDP string `json:"sdp,omitempty"`

	// Candidate carries one trickled ICE candidate.
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`

	// Error details, only on TypeError envelopes.
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Description converts an offer/answer envelope into a pion session
// description.
func (e Envelope) Description() (webrtc.SessionDescription, bool) {
	switch e.Type {
	case TypeOffer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: e.SDP}, true
	case TypeAnswer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: e.SDP}, true
	default:
		return webrtc.SessionDescription{}, false
	}
}

// IsNegotiation reports whether the envelope must reach a live peer to be
// useful. Candidates are best-effort and may race teardown; these may not.
func (e Envelope) IsNegotiation() bool {
	return e.Type == TypeOffer || e.Type == TypeAnswer
}
