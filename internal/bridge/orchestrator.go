package bridge

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"safescan-platform/internal/audit"
	"safescan-platform/internal/calls"
	"safescan-platform/internal/identity"

	"github.com/google/uuid"
)

// BridgeState is the internal leg-level lifecycle of one bridge attempt.
// Clients only ever see the coarse ClientStatus.
type BridgeState string

const (
	StateIdle          BridgeState = "idle"
	StateRequested     BridgeState = "requested"
	StateDialingScan   BridgeState = "dialing_scanner"
	StateDialingTarget BridgeState = "dialing_target"
	StateBridged       BridgeState = "bridged"
	StateFailed        BridgeState = "failed"
	StateEnded         BridgeState = "ended"
)

// ClientStatus is what polling clients are allowed to know.
type ClientStatus string

const (
	ClientCalling ClientStatus = "calling"
	ClientCalled  ClientStatus = "called"
	ClientError   ClientStatus = "error"
)

// ErrInvalidPhone rejects scanner numbers that are missing or too short
// after normalization.
var ErrInvalidPhone = errors.New("bridge: scannerPhone must have at least 10 digits")

// TargetResolver looks up and retires routing identities. Implemented by
// identity.Resolver.
type TargetResolver interface {
	Target(ctx context.Context, routingID string) (identity.RoutingIdentity, error)
	Retire(ctx context.Context, routingID string) error
}

// request tracks one bridge attempt. Phones stay unexported; nothing here
// is ever serialized toward a client except through Snapshot.
type request struct {
	id        string
	routingID string

	scannerPhone string
	targetPhone  string

	state BridgeState

	scannerLegID string
	targetLegID  string

	timer *time.Timer

	createdAt time.Time
	closedAt  *time.Time
}

// Snapshot is the client-visible view of a request.
type Snapshot struct {
	RequestID string       `json:"request_id"`
	Status    ClientStatus `json:"status"`
}

// Orchestrator drives bridged calls: scanner leg first, target leg only on
// pickup, join, and clean up every path that does not end bridged.
type Orchestrator struct {
	provider BridgeProvider
	guard    InFlightGuard
	resolver TargetResolver
	log      *slog.Logger
	audit    *audit.Service

	ringTimeout time.Duration
	maxDuration time.Duration
	callbackURL string

	mu        sync.Mutex
	byRouting map[string]*request
	byLeg     map[string]*request

	// pending holds status events whose leg is not registered yet: a
	// provider callback can outrun the dial response that names the leg.
	// Replayed on registration, evicted after pendingEventTTL otherwise.
	pending map[string][]LegEvent

	afterFunc func(time.Duration, func()) *time.Timer
}

const pendingEventTTL = 30 * time.Second

type Options struct {
	RingTimeout time.Duration
	MaxDuration time.Duration

	// CallbackURL is the public URL of the provider status webhook.
	CallbackURL string

	// Audit receives terminal bridge outcomes, best effort. Nil disables
	// recording.
	Audit *audit.Service
}

func NewOrchestrator(provider BridgeProvider, guard InFlightGuard, resolver TargetResolver, log *slog.Logger, opts Options) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if opts.RingTimeout <= 0 {
		opts.RingTimeout = 30 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 10 * time.Minute
	}
	return &Orchestrator{
		provider:    provider,
		guard:       guard,
		resolver:    resolver,
		log:         log,
		audit:       opts.Audit,
		ringTimeout: opts.RingTimeout,
		maxDuration: opts.MaxDuration,
		callbackURL: opts.CallbackURL,
		byRouting:   make(map[string]*request),
		byLeg:       make(map[string]*request),
		pending:     make(map[string][]LegEvent),
		afterFunc:   time.AfterFunc,
	}
}

// Initiate validates and starts a bridge attempt: ring the scanner first,
// the target only after pickup. Returns ErrBridgeInFlight when a prior
// attempt for the same routing identity is still dialing.
func (o *Orchestrator) Initiate(ctx context.Context, routingID, scannerPhone string) (Snapshot, error) {
	phone, err := NormalizePhone(scannerPhone)
	if err != nil {
		return Snapshot{}, err
	}

	target, err := o.resolver.Target(ctx, routingID)
	if err != nil {
		return Snapshot{}, err
	}
	targetPhone, err := NormalizePhone(target.TargetPhone)
	if err != nil {
		// A registered party with an unusable number is a bad routing
		// reference, not a validation problem of the scanner's input.
		return Snapshot{}, calls.NewError(calls.KindInvalidSession, err)
	}

	// Guard TTL outlives both ring windows so a crashed process cannot
	// wedge the routing identity forever.
	guardTTL := 2*o.ringTimeout + time.Minute
	if err := o.guard.Acquire(ctx, routingID, guardTTL); err != nil {
		return Snapshot{}, err
	}

	req := &request{
		id:           uuid.NewString(),
		routingID:    routingID,
		scannerPhone: phone,
		targetPhone:  targetPhone,
		state:        StateRequested,
		createdAt:    time.Now(),
	}

	res, err := o.provider.DialLeg(ctx, DialLegRequest{
		RequestID:         req.id,
		Phone:             req.scannerPhone,
		RingTimeout:       o.ringTimeout,
		MaxDuration:       o.maxDuration,
		StatusCallbackURL: o.callbackURL,
	})
	if err != nil {
		_ = o.guard.Release(ctx, routingID)
		o.log.Error("scanner leg dial failed", "request_id", req.id, "err", err)
		return Snapshot{}, calls.NewError(calls.KindBridgeProviderError, err)
	}

	o.mu.Lock()
	req.state = StateDialingScan
	req.scannerLegID = res.ProviderLegID
	o.byRouting[routingID] = req
	early := o.registerLegLocked(res.ProviderLegID, req)
	o.armTimerLocked(req)
	o.mu.Unlock()

	for _, stashed := range early {
		o.HandleLegEvent(stashed)
	}

	o.log.Info("bridge requested", "request_id", req.id, "routing_id", routingID)
	return Snapshot{RequestID: req.id, Status: ClientCalling}, nil
}

// HandleLegEvent applies one provider progress notification.
func (o *Orchestrator) HandleLegEvent(ev LegEvent) {
	o.mu.Lock()
	req, ok := o.byLeg[ev.ProviderLegID]
	if !ok {
		o.stashLocked(ev)
		o.mu.Unlock()
		return
	}

	switch {
	case req.state == StateDialingScan && ev.Status == LegAnswered:
		o.mu.Unlock()
		o.dialTarget(req)

	case req.state == StateDialingScan && ev.Status.Final():
		o.failLocked(req, "scanner leg "+string(ev.Status))
		o.mu.Unlock()

	case req.state == StateDialingTarget && ev.ProviderLegID == req.targetLegID && ev.Status == LegAnswered:
		req.state = StateBridged
		o.stopTimerLocked(req)
		o.mu.Unlock()
		o.settle(req)
		go o.record(audit.EventTypeCallBridged, req, "")
		o.log.Info("bridge established", "request_id", req.id)

	case req.state == StateDialingTarget && ev.ProviderLegID == req.targetLegID && ev.Status.Final():
		o.failLocked(req, "target leg "+string(ev.Status))
		o.mu.Unlock()

	case req.state == StateDialingTarget && ev.ProviderLegID == req.scannerLegID && ev.Status.Final():
		// Scanner hung up while the target was still ringing.
		o.failLocked(req, "scanner leg dropped")
		o.mu.Unlock()

	case req.state == StateBridged && ev.Status == LegCompleted:
		now := time.Now()
		req.state = StateEnded
		req.closedAt = &now
		o.removeLocked(req)
		o.mu.Unlock()
		go o.record(audit.EventTypeCallEnded, req, "")
		o.log.Info("bridge ended", "request_id", req.id)

	default:
		o.mu.Unlock()
	}
}

// dialTarget places the second leg after scanner pickup.
func (o *Orchestrator) dialTarget(req *request) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res, err := o.provider.DialLeg(ctx, DialLegRequest{
		RequestID:         req.id,
		Phone:             req.targetPhone,
		RingTimeout:       o.ringTimeout,
		MaxDuration:       o.maxDuration,
		StatusCallbackURL: o.callbackURL,
	})

	o.mu.Lock()
	if req.state != StateDialingScan {
		// Raced a timeout or hangup; leave the terminal state alone but
		// never leak a freshly dialed leg.
		if err == nil {
			go o.hangup(res.ProviderLegID)
		}
		o.mu.Unlock()
		return
	}
	if err != nil {
		o.failLocked(req, "target leg dial failed")
		o.mu.Unlock()
		return
	}
	req.state = StateDialingTarget
	req.targetLegID = res.ProviderLegID
	early := o.registerLegLocked(res.ProviderLegID, req)
	o.armTimerLocked(req)
	o.mu.Unlock()

	for _, stashed := range early {
		o.HandleLegEvent(stashed)
	}
}

// Status reports the coarse client-visible status for a routing identity.
func (o *Orchestrator) Status(routingID string) (Snapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	req, ok := o.byRouting[routingID]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{RequestID: req.id, Status: clientStatus(req.state)}, true
}

func clientStatus(s BridgeState) ClientStatus {
	switch s {
	case StateBridged, StateEnded:
		return ClientCalled
	case StateFailed:
		return ClientError
	default:
		return ClientCalling
	}
}

/* ===================== INTERNAL ===================== */

// armTimerLocked bounds the current dialing phase. Caller holds o.mu.
func (o *Orchestrator) armTimerLocked(req *request) {
	o.stopTimerLocked(req)
	state := req.state
	req.timer = o.afterFunc(o.ringTimeout+5*time.Second, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if req.state == state {
			o.failLocked(req, "leg timeout in "+string(state))
		}
	})
}

func (o *Orchestrator) stopTimerLocked(req *request) {
	if req.timer != nil {
		req.timer.Stop()
		req.timer = nil
	}
}

// failLocked moves a request to failed and cleans up every side effect:
// live legs are hung up, the guard is released, the routing identity is
// retired. Caller holds o.mu.
func (o *Orchestrator) failLocked(req *request, reason string) {
	if req.state == StateFailed || req.state == StateEnded {
		return
	}
	now := time.Now()
	req.state = StateFailed
	req.closedAt = &now
	o.stopTimerLocked(req)

	for _, leg := range []string{req.scannerLegID, req.targetLegID} {
		if leg != "" {
			go o.hangup(leg)
		}
	}
	go o.settleAsync(req)
	go o.record(audit.EventTypeCallFailed, req, reason)
	o.log.Warn("bridge failed", "request_id", req.id, "reason", reason)

	// Keep the failed request around briefly so status polls see the
	// error, then forget it.
	o.afterFunc(time.Minute, func() {
		o.mu.Lock()
		if req.state == StateFailed {
			o.removeLocked(req)
		}
		o.mu.Unlock()
	})
}

// settle releases the guard and retires the routing identity once the
// attempt can no longer be duplicated.
func (o *Orchestrator) settle(req *request) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.guard.Release(ctx, req.routingID); err != nil {
		o.log.Warn("guard release failed", "request_id", req.id, "err", err)
	}
	if err := o.resolver.Retire(ctx, req.routingID); err != nil {
		o.log.Warn("identity retire failed", "request_id", req.id, "err", err)
	}
}

func (o *Orchestrator) settleAsync(req *request) { o.settle(req) }

// record appends a terminal outcome to the call-event trail, best effort.
func (o *Orchestrator) record(typ audit.EventType, req *request, msg string) {
	if o.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := o.audit.Append(ctx, audit.Event{
		Type:      typ,
		RoutingID: req.routingID,
		Mode:      "bridged",
		Message:   msg,
	})
	if err != nil {
		o.log.Warn("audit append failed", "request_id", req.id, "err", err)
	}
}

// registerLegLocked maps a dialed leg to its request and returns the
// status events that beat the dial response. Caller holds o.mu and must
// replay the returned events after unlocking.
func (o *Orchestrator) registerLegLocked(legID string, req *request) []LegEvent {
	o.byLeg[legID] = req
	early := o.pending[legID]
	delete(o.pending, legID)
	return early
}

// stashLocked parks an event for a leg nobody has registered yet. Caller
// holds o.mu.
func (o *Orchestrator) stashLocked(ev LegEvent) {
	legID := ev.ProviderLegID
	first := len(o.pending[legID]) == 0
	o.pending[legID] = append(o.pending[legID], ev)
	o.log.Warn("leg event before registration, holding", "leg_id", legID, "status", ev.Status)
	if first {
		o.afterFunc(pendingEventTTL, func() {
			o.mu.Lock()
			delete(o.pending, legID)
			o.mu.Unlock()
		})
	}
}

func (o *Orchestrator) hangup(legID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.provider.HangupLeg(ctx, legID); err != nil {
		o.log.Warn("leg hangup failed", "leg_id", legID, "err", err)
	}
}

// removeLocked forgets a finished request. Settlement (guard release,
// identity retirement) happens at the terminal transition, not here.
// Caller holds o.mu.
func (o *Orchestrator) removeLocked(req *request) {
	if cur, ok := o.byRouting[req.routingID]; ok && cur == req {
		delete(o.byRouting, req.routingID)
	}
	if req.scannerLegID != "" {
		delete(o.byLeg, req.scannerLegID)
	}
	if req.targetLegID != "" {
		delete(o.byLeg, req.targetLegID)
	}
}

// NormalizePhone strips separators and applies the default country prefix
// for bare national numbers. At least 10 digits must remain.
func NormalizePhone(s string) (string, error) {
	s = strings.TrimSpace(s)
	hasPlus := strings.HasPrefix(s, "+")

	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() < 10 {
		return "", ErrInvalidPhone
	}
	if hasPlus {
		return "+" + digits.String(), nil
	}
	return "+91" + digits.String(), nil
}
