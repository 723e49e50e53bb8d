package signal

import (
	"sync"
	"testing"
	"time"

	"safescan-platform/internal/calls"

	"github.com/pion/webrtc/v4"
)

type fakePeer struct {
	mu     sync.Mutex
	got    []Envelope
	closed bool
}

func (f *fakePeer) Send(e Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, e)
	return nil
}

func (f *fakePeer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePeer) envelopes() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Envelope, len(f.got))
	copy(out, f.got)
	return out
}

func newTestHub() *Hub {
	h := NewHub(nil)
	// Grace timers fire immediately in tests.
	h.afterFunc = func(_ time.Duration, fn func()) *time.Timer {
		fn()
		return time.NewTimer(0)
	}
	return h
}

func cand(c string) *webrtc.ICECandidateInit {
	return &webrtc.ICECandidateInit{Candidate: c}
}

func TestRoute_InjectsAuthenticatedFrom(t *testing.T) {
	h := newTestHub()
	a, b := &fakePeer{}, &fakePeer{}
	h.Register("alice", a)
	h.Register("bob", b)

	h.Route("alice", Envelope{Type: TypeOffer, To: "bob", From: "spoofed", SDP: "v=0 offer"})

	got := b.envelopes()
	if len(got) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(got))
	}
	if got[0].From != "alice" {
		t.Fatalf("relay must overwrite from, got %q", got[0].From)
	}
	if got[0].SDP != "v=0 offer" {
		t.Fatalf("payload must be forwarded verbatim, got %q", got[0].SDP)
	}
}

func TestRoute_SingleCallerPerSession(t *testing.T) {
	h := newTestHub()
	a, b := &fakePeer{}, &fakePeer{}
	h.Register("alice", a)
	h.Register("bob", b)

	h.Route("alice", Envelope{Type: TypeOffer, To: "bob", SDP: "offer-1"})
	// Bob tries to be caller too before answering; the relay must not
	// deliver a second offer from a different sender.
	h.Route("bob", Envelope{Type: TypeOffer, To: "alice", SDP: "offer-2"})

	for _, e := range a.envelopes() {
		if e.Type == TypeOffer {
			t.Fatalf("competing offer reached the caller: %+v", e)
		}
	}
	gotErr := false
	for _, e := range b.envelopes() {
		if e.Type == TypeError {
			gotErr = true
		}
	}
	if !gotErr {
		t.Fatalf("expected rejection envelope for bob's competing offer")
	}

	sess, ok := h.Session("alice")
	if !ok || sess.Caller != "alice" || sess.Callee != "bob" {
		t.Fatalf("roles must stay fixed at session creation: %+v", sess)
	}
}

func TestRoute_OfferToDeadPeerReturnsSignalingUnavailable(t *testing.T) {
	h := newTestHub()
	a := &fakePeer{}
	h.Register("alice", a)

	h.Route("alice", Envelope{Type: TypeOffer, To: "ghost", SDP: "offer"})

	got := a.envelopes()
	if len(got) != 1 || got[0].Type != TypeError {
		t.Fatalf("expected one error envelope, got %+v", got)
	}
	if got[0].Kind != string(calls.KindSignalingUnavailable) {
		t.Fatalf("expected signaling_unavailable, got %q", got[0].Kind)
	}
	if got[0].Message == "" {
		t.Fatalf("error envelope must carry the user-visible message")
	}
}

func TestRoute_CandidateToDeadPeerDropsSilently(t *testing.T) {
	h := newTestHub()
	a := &fakePeer{}
	h.Register("alice", a)

	h.Route("alice", Envelope{Type: TypeCandidate, To: "ghost", Candidate: cand("candidate:1")})

	if got := a.envelopes(); len(got) != 0 {
		t.Fatalf("candidate to dead peer must not raise an error, got %+v", got)
	}
}

func TestRoute_NeverFansOutBeyondCounterpart(t *testing.T) {
	h := newTestHub()
	a, b, c := &fakePeer{}, &fakePeer{}, &fakePeer{}
	h.Register("alice", a)
	h.Register("bob", b)
	h.Register("carol", c)

	h.Route("alice", Envelope{Type: TypeOffer, To: "bob", SDP: "offer"})
	h.Route("bob", Envelope{Type: TypeAnswer, To: "alice", SDP: "answer"})
	// Alice is bound to bob now; carol is not a legal destination.
	h.Route("alice", Envelope{Type: TypeAnswer, To: "carol", SDP: "stray"})

	if got := c.envelopes(); len(got) != 0 {
		t.Fatalf("message leaked outside the session: %+v", got)
	}
}

func TestRoute_FullExchangeStaysOrdered(t *testing.T) {
	h := newTestHub()
	a, b := &fakePeer{}, &fakePeer{}
	h.Register("alice", a)
	h.Register("bob", b)

	h.Route("alice", Envelope{Type: TypeOffer, To: "bob", SDP: "offer"})
	h.Route("bob", Envelope{Type: TypeAnswer, To: "alice", SDP: "answer"})
	h.Route("alice", Envelope{Type: TypeCandidate, To: "bob", Candidate: cand("a-1")})
	h.Route("bob", Envelope{Type: TypeCandidate, To: "alice", Candidate: cand("b-1")})
	h.Route("alice", Envelope{Type: TypeCandidate, To: "bob", Candidate: cand("a-2")})
	h.Route("bob", Envelope{Type: TypeCandidate, To: "alice", Candidate: cand("b-2")})

	bGot := b.envelopes()
	if len(bGot) != 3 || bGot[0].Type != TypeOffer || bGot[1].Candidate.Candidate != "a-1" || bGot[2].Candidate.Candidate != "a-2" {
		t.Fatalf("callee stream out of order: %+v", bGot)
	}
	aGot := a.envelopes()
	if len(aGot) != 3 || aGot[0].Type != TypeAnswer || aGot[1].Candidate.Candidate != "b-1" || aGot[2].Candidate.Candidate != "b-2" {
		t.Fatalf("caller stream out of order: %+v", aGot)
	}
}

func TestUnregister_EndsSessionAndNotifiesSurvivor(t *testing.T) {
	h := newTestHub()
	a, b := &fakePeer{}, &fakePeer{}
	h.Register("alice", a)
	h.Register("bob", b)

	h.Route("alice", Envelope{Type: TypeOffer, To: "bob", SDP: "offer"})
	h.Unregister("alice")

	var closedEnv *Envelope
	for _, e := range b.envelopes() {
		if e.Type == TypePeerClosed {
			ev := e
			closedEnv = &ev
		}
	}
	if closedEnv == nil {
		t.Fatalf("survivor must be told the peer is gone")
	}
	if closedEnv.From != "alice" {
		t.Fatalf("expected closed notice from alice, got %q", closedEnv.From)
	}

	// Grace timer fired synchronously in tests, so the session is gone.
	if _, ok := h.Session("bob"); ok {
		t.Fatalf("ended session should be retired after the grace period")
	}
	if !h.IsOnline("bob") || h.IsOnline("alice") {
		t.Fatalf("presence out of sync after unregister")
	}
}

func TestRegister_ReplacesStaleConnection(t *testing.T) {
	h := newTestHub()
	old, fresh := &fakePeer{}, &fakePeer{}
	h.Register("alice", old)
	h.Register("alice", fresh)

	old.mu.Lock()
	wasClosed := old.closed
	old.mu.Unlock()
	if !wasClosed {
		t.Fatalf("stale connection must be closed on reconnect")
	}
	if !h.IsOnline("alice") {
		t.Fatalf("identity should stay online through reconnect")
	}
}
