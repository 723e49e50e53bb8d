package peer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"safescan-platform/internal/calls"
	"safescan-platform/internal/signal"

	"github.com/pion/webrtc/v4"
)

// DefaultNegotiationTimeout bounds the window between entering connecting
// and reaching connected. The timer is not rearmed by intermediate
// progress; a stalled exchange fails as a whole.
const DefaultNegotiationTimeout = 30 * time.Second

// Config wires one call attempt. Conn, Signal and Media are required;
// tests plug in fakes for all three.
type Config struct {
	Role   calls.NegotiationRole
	PeerID string

	Conn   PeerConnection
	Signal Signaler
	Media  MediaSource

	NegotiationTimeout time.Duration
	Logger             *slog.Logger
	OnState            func(State)
}

// Call drives one negotiation attempt from media acquisition to a
// connected peer, and guarantees teardown of everything it acquired on
// every exit path.
type Call struct {
	role   calls.NegotiationRole
	peerID string

	pc    PeerConnection
	sig   Signaler
	media MediaSource
	log   *slog.Logger

	negotiationTimeout time.Duration
	afterFunc          func(time.Duration, func()) *time.Timer
	onState            func(State)

	mu        sync.Mutex
	state     State
	track     MediaTrack
	pending   []webrtc.ICECandidateInit
	remoteSet bool
	released  bool
	failure   *calls.CallError
	timer     *time.Timer

	done     chan struct{}
	doneOnce sync.Once
}

func NewCall(cfg Config) *Call {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.NegotiationTimeout
	if timeout <= 0 {
		timeout = DefaultNegotiationTimeout
	}
	return &Call{
		role:               cfg.Role,
		peerID:             cfg.PeerID,
		pc:                 cfg.Conn,
		sig:                cfg.Signal,
		media:              cfg.Media,
		log:                log,
		negotiationTimeout: timeout,
		afterFunc:          time.AfterFunc,
		onState:            cfg.OnState,
		state:              StateIdle,
		done:               make(chan struct{}),
	}
}

// Start runs the attempt up to the point where progress depends on the
// remote peer; negotiation then continues on the signaler's read loop. A
// non-nil return is always a *calls.CallError and the attempt is already
// torn down.
func (c *Call) Start(ctx context.Context) error {
	c.setState(StateGatheringMedia)

	track, err := c.media.Capture(ctx)
	if err != nil {
		// Media is acquired before the relay is contacted, so a refused
		// microphone never opens a signaling connection.
		return c.fail(calls.KindMediaAccessDenied, err)
	}

	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		// Grant arrived after the attempt was already torn down.
		track.Stop()
		return nil
	}
	c.track = track
	c.mu.Unlock()

	if err := c.pc.AddTrack(track.Local()); err != nil {
		return c.fail(calls.KindPeerConnectionFailed, err)
	}

	c.pc.OnICECandidate(func(cand webrtc.ICECandidateInit) {
		peer := c.peer()
		env := signal.Envelope{Type: signal.TypeCandidate, To: peer, Candidate: &cand}
		if err := c.sig.Send(env); err != nil {
			c.log.Warn("candidate send failed", "peer", peer, "err", err)
		}
	})
	c.pc.OnConnectionStateChange(c.onConnectionState)

	c.setState(StateConnecting)

	// The caller's negotiation window opens now. A callee may wait
	// arbitrarily long for an inbound offer; its window opens when the
	// offer arrives.
	if c.role == calls.RoleCaller {
		c.armTimer()
	}

	if err := c.sig.Connect(ctx); err != nil {
		return c.fail(calls.KindSignalingUnavailable, err)
	}

	if c.role == calls.RoleCaller {
		if err := c.sendOffer(); err != nil {
			return err
		}
	}

	go c.readLoop()
	return nil
}

func (c *Call) sendOffer() error {
	offer, err := c.pc.CreateOffer()
	if err != nil {
		return c.fail(calls.KindPeerConnectionFailed, err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return c.fail(calls.KindPeerConnectionFailed, err)
	}
	env := signal.Envelope{Type: signal.TypeOffer, To: c.peerID, SDP: offer.SDP}
	if err := c.sig.Send(env); err != nil {
		return c.fail(calls.KindSignalingUnavailable, err)
	}
	c.setState(StateNegotiating)
	return nil
}

func (c *Call) readLoop() {
	for env := range c.sig.Recv() {
		c.handleSignal(env)
	}

	// The relay dropped. A connected call keeps its media path and does
	// not care; anything mid-negotiation cannot finish.
	c.mu.Lock()
	live := c.state != StateConnected && !c.state.Terminal()
	c.mu.Unlock()
	if live {
		c.fail(calls.KindSignalingUnavailable, errors.New("relay connection lost"))
	}
}

func (c *Call) handleSignal(env signal.Envelope) {
	switch env.Type {
	case signal.TypeOffer:
		if c.role != calls.RoleCallee {
			return
		}
		c.acceptOffer(env)

	case signal.TypeAnswer:
		if c.role != calls.RoleCaller {
			return
		}
		desc, ok := env.Description()
		if !ok {
			return
		}
		if err := c.applyRemote(desc); err != nil {
			c.fail(calls.KindPeerConnectionFailed, err)
		}

	case signal.TypeCandidate:
		if env.Candidate != nil {
			c.addCandidate(*env.Candidate)
		}

	case signal.TypeError:
		kind := calls.ErrorKind(env.Kind)
		if kind == "" {
			kind = calls.KindSignalingUnavailable
		}
		c.fail(kind, errors.New(env.Message))

	case signal.TypeHangup, signal.TypePeerClosed:
		c.Close()
	}
}

func (c *Call) armTimer() {
	c.mu.Lock()
	if c.timer == nil && !c.state.Terminal() {
		c.timer = c.afterFunc(c.negotiationTimeout, c.timeout)
	}
	c.mu.Unlock()
}

func (c *Call) acceptOffer(env signal.Envelope) {
	desc, ok := env.Description()
	if !ok {
		return
	}
	// A waiting callee learns its peer here: the relay stamps From with
	// the authenticated sender, and every later envelope (candidates,
	// hangup) must be addressed to it.
	c.mu.Lock()
	c.peerID = env.From
	c.mu.Unlock()
	c.armTimer()
	if err := c.applyRemote(desc); err != nil {
		c.fail(calls.KindPeerConnectionFailed, err)
		return
	}
	answer, err := c.pc.CreateAnswer()
	if err != nil {
		c.fail(calls.KindPeerConnectionFailed, err)
		return
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		c.fail(calls.KindPeerConnectionFailed, err)
		return
	}
	out := signal.Envelope{Type: signal.TypeAnswer, To: env.From, SDP: answer.SDP}
	if err := c.sig.Send(out); err != nil {
		c.fail(calls.KindSignalingUnavailable, err)
		return
	}
	c.setState(StateNegotiating)
}

// applyRemote installs the remote description, then replays candidates
// that arrived before it in arrival order.
func (c *Call) applyRemote(desc webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return err
	}
	c.mu.Lock()
	c.remoteSet = true
	buffered := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, cand := range buffered {
		if err := c.pc.AddICECandidate(cand); err != nil {
			c.log.Warn("buffered candidate rejected", "err", err)
		}
	}
	return nil
}

func (c *Call) addCandidate(cand webrtc.ICECandidateInit) {
	c.mu.Lock()
	if !c.remoteSet {
		c.pending = append(c.pending, cand)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.pc.AddICECandidate(cand); err != nil {
		c.log.Warn("candidate rejected", "err", err)
	}
}

func (c *Call) onConnectionState(s webrtc.PeerConnectionState) {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		c.mu.Lock()
		if c.state.Terminal() {
			c.mu.Unlock()
			return
		}
		c.state = StateConnected
		if c.timer != nil {
			c.timer.Stop()
		}
		notify := c.onState
		c.mu.Unlock()
		if notify != nil {
			notify(StateConnected)
		}
	case webrtc.PeerConnectionStateFailed:
		c.fail(calls.KindPeerConnectionFailed, errors.New("peer connection failed"))
	}
}

func (c *Call) timeout() {
	c.mu.Lock()
	s := c.state
	c.mu.Unlock()
	if s == StateConnected || s.Terminal() {
		return
	}
	c.fail(calls.KindNegotiationTimeout, nil)
}

// Hangup ends the attempt and tells the peer, best effort.
func (c *Call) Hangup() {
	c.mu.Lock()
	terminal := c.state.Terminal()
	c.mu.Unlock()
	if terminal {
		return
	}
	_ = c.sig.Send(signal.Envelope{Type: signal.TypeHangup, To: c.peer()})
	c.Close()
}

// Close tears down without notifying the peer. Used for relay-announced
// peer departure, where there is nobody left to notify.
func (c *Call) Close() {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	if c.timer != nil {
		c.timer.Stop()
	}
	notify := c.onState
	c.mu.Unlock()

	if notify != nil {
		notify(StateClosed)
	}
	c.release()
}

func (c *Call) fail(kind calls.ErrorKind, cause error) error {
	err := calls.NewError(kind, cause)
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return err
	}
	c.state = StateFailed
	c.failure = err
	if c.timer != nil {
		c.timer.Stop()
	}
	notify := c.onState
	c.mu.Unlock()

	c.log.Warn("call attempt failed", "peer", c.peer(), "kind", string(kind), "err", cause)
	if notify != nil {
		notify(StateFailed)
	}
	c.release()
	return err
}

// release frees everything the attempt acquired, exactly once. It runs on
// every exit path: hangup, peer departure, failure and timeout.
func (c *Call) release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	track := c.track
	c.mu.Unlock()

	if track != nil {
		track.Stop()
	}
	_ = c.sig.Close()
	_ = c.pc.Close()
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Call) setState(s State) {
	c.mu.Lock()
	if c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	c.state = s
	notify := c.onState
	c.mu.Unlock()
	if notify != nil {
		notify(s)
	}
}

func (c *Call) peer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

// State returns the current lifecycle state.
func (c *Call) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Failure returns the terminal error, or nil while the attempt is live or
// after a clean close.
func (c *Call) Failure() *calls.CallError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failure
}

// Done closes when teardown has completed.
func (c *Call) Done() <-chan struct{} { return c.done }
