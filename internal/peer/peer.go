package peer

import "github.com/pion/webrtc/v4"

// PeerConnection is the slice of the pion API the negotiation machine
// needs. The production adapter lives in pion.go; tests plug in fakes so
// negotiation logic is exercised without a media stack.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) error
	OnICECandidate(func(webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	Close() error
}

// State is the negotiation lifecycle of one call attempt.
//
//	idle -> gathering_media -> connecting -> negotiating -> connected -> closed
//
// failed is reachable from gathering_media, connecting and negotiating;
// closed is reachable from any non-terminal state by explicit hangup.
type State string

const (
	StateIdle           State = "idle"
	StateGatheringMedia State = "gathering_media"
	StateConnecting     State = "connecting"
	StateNegotiating    State = "negotiating"
	StateConnected      State = "connected"
	StateClosed         State = "closed"
	StateFailed         State = "failed"
)

// Terminal reports whether the attempt is over.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}
