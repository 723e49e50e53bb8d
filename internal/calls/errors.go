package calls

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable failure taxonomy for a call attempt.
// Every component maps its internal failures to one of these at its
// boundary; raw transport or provider errors never cross it.
type ErrorKind string

const (
	KindMediaAccessDenied    ErrorKind = "media_access_denied"
	KindSignalingUnavailable ErrorKind = "signaling_unavailable"
	KindNegotiationTimeout   ErrorKind = "negotiation_timeout"
	KindPeerConnectionFailed ErrorKind = "peer_connection_failed"
	KindBridgeProviderError  ErrorKind = "bridge_provider_error"
	KindInvalidSession       ErrorKind = "invalid_session"
)

// userMessages is the single user-visible message per kind.
var userMessages = map[ErrorKind]string{
	KindMediaAccessDenied:    "Microphone access denied. Please allow microphone to make emergency calls.",
	KindSignalingUnavailable: "Could not reach the call service. Please try again.",
	KindNegotiationTimeout:   "The call could not be established in time. Please try again.",
	KindPeerConnectionFailed: "The call connection failed.",
	KindBridgeProviderError:  "Failed to initiate call. Please try again.",
	KindInvalidSession:       "This call reference is no longer valid.",
}

// CallError is the only error type surfaced across component boundaries.
// The wrapped cause is kept for logs; Message is what a user sees.
type CallError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func NewError(kind ErrorKind, cause error) *CallError {
	msg, ok := userMessages[kind]
	if !ok {
		msg = "Call failed."
	}
	return &CallError{Kind: kind, Message: msg, cause: cause}
}

func (e *CallError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	}
	return string(e.Kind)
}

func (e *CallError) Unwrap() error { return e.cause }

// KindOf extracts the ErrorKind from err, or "" if err carries none.
func KindOf(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// Retryable reports whether the design permits an automatic retry for this
// kind. Only signaling outages get one; everything else is terminal for
// the attempt (a user may still start a brand-new session manually).
func (k ErrorKind) Retryable() bool {
	return k == KindSignalingUnavailable
}
