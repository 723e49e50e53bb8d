package bridge

import (
	"context"
	"time"
)

// BridgeProvider defines the provider-agnostic interface the orchestrator
// dials through.
//
// Rules:
// - No provider SDK or HTTP calls outside provider adapters.
// - Keep request/response types provider-agnostic; store provider raw
//   payloads in LegEvent.Raw if needed.
type BridgeProvider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// DialLeg places one outbound call. Pickup, failure and completion
	// arrive later as LegEvents through the status webhook.
	DialLeg(ctx context.Context, req DialLegRequest) (DialLegResult, error)

	// HangupLeg tears down a live leg so a failed bridge leaves no
	// half-connected call behind.
	HangupLeg(ctx context.Context, providerLegID string) error
}

type DialLegRequest struct {
	// RequestID is the orchestrator's id for the whole bridge attempt.
	RequestID string `json:"request_id"`

	// Phone is the E.164 number to ring.
	Phone string `json:"phone"`

	// CallerID is the rented number shown to the ringing party. Both legs
	// see this instead of each other's number.
	CallerID string `json:"caller_id"`

	RingTimeout time.Duration `json:"ring_timeout"`
	MaxDuration time.Duration `json:"max_duration"`

	// StatusCallbackURL receives leg progress events.
	StatusCallbackURL string `json:"status_callback_url,omitempty"`
}

type DialLegResult struct {
	// ProviderLegID is the provider's unique identifier for this leg.
	ProviderLegID string `json:"provider_leg_id"`
}

// LegStatus is the provider-agnostic progress of one outbound leg.
type LegStatus string

const (
	LegQueued    LegStatus = "queued"
	LegRinging   LegStatus = "ringing"
	LegAnswered  LegStatus = "answered"
	LegCompleted LegStatus = "completed"
	LegFailed    LegStatus = "failed"
	LegBusy      LegStatus = "busy"
	LegNoAnswer  LegStatus = "no_answer"
)

// Final reports whether the leg can make no further progress.
func (s LegStatus) Final() bool {
	switch s {
	case LegCompleted, LegFailed, LegBusy, LegNoAnswer:
		return true
	default:
		return false
	}
}

// LegEvent is one provider progress notification, normalized by the
// webhook adapter.
type LegEvent struct {
	ProviderLegID string    `json:"provider_leg_id"`
	Status        LegStatus `json:"status"`
	OccurredAt    time.Time `json:"occurred_at"`

	// Raw is optional for debugging/audit; store as JSON string.
	Raw string `json:"raw,omitempty"`
}
