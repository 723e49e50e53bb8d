package signal

import (
	"log/slog"
	"sync"
	"time"

	"safescan-platform/internal/calls"

	"github.com/google/uuid"
)

// sessionGrace is how long an ended session lingers to absorb late
// messages before the hub forgets it existed.
const sessionGrace = 30 * time.Second

// Peer is the transport side of one live signaling connection. The
// websocket implementation lives in conn.go; tests plug in recorders.
type Peer interface {
	Send(Envelope) error
	Close() error
}

// Hub routes signaling messages between exactly the two participants of a
// session. It is the single writer of session state and of the "from"
// field on every delivered envelope.
type Hub struct {
	log *slog.Logger

	mu       sync.Mutex
	conns    map[string]Peer           // routing identity -> live connection
	sessions map[string]*calls.Session // session id -> session
	bySender map[string]string         // participant routing identity -> session id
	grace    time.Duration

	// afterFunc is swappable so tests control the grace timer.
	afterFunc func(time.Duration, func()) *time.Timer
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:       log,
		conns:     make(map[string]Peer),
		sessions:  make(map[string]*calls.Session),
		bySender:  make(map[string]string),
		grace:     sessionGrace,
		afterFunc: time.AfterFunc,
	}
}

// Register binds a routing identity to a live connection. A reconnect for
// the same identity replaces the previous socket.
func (h *Hub) Register(id string, p Peer) {
	h.mu.Lock()
	if old, ok := h.conns[id]; ok && old != p {
		_ = old.Close()
	}
	h.conns[id] = p
	h.mu.Unlock()
	h.log.Info("signal peer connected", "routing_id", id)
}

// Unregister drops the connection for id, ends any session it
// participates in and notifies the surviving peer.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	delete(h.conns, id)

	var notify Peer
	var notifyEnv Envelope
	var endedSID string
	if sid, ok := h.bySender[id]; ok {
		if sess := h.sessions[sid]; sess != nil && !sess.Terminal() {
			now := time.Now()
			sess.State = calls.StatusEnded
			sess.ClosedAt = &now
			endedSID = sid

			other := sess.Counterpart(id)
			if p, live := h.conns[other]; live {
				notify = p
				notifyEnv = Envelope{Type: TypePeerClosed, To: other, From: id}
			}
		}
	}
	h.mu.Unlock()

	if endedSID != "" {
		h.scheduleRemove(endedSID)
	}

	if notify != nil {
		if err := notify.Send(notifyEnv); err != nil {
			h.log.Warn("peer-closed notify failed", "routing_id", id, "err", err)
		}
	}
	h.log.Info("signal peer disconnected", "routing_id", id)
}

// IsOnline reports whether a registered user currently holds a live
// connection. Guests are connections too, but presence is only asked about
// owners.
func (h *Hub) IsOnline(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.conns[id]
	return ok
}

// Route delivers one envelope on behalf of the authenticated sender.
//
// The first offer between a pair creates the session and fixes roles:
// the offer sender is caller for the session's whole life. After that,
// only the registered counterpart is a legal destination, only the caller
// may send offers and only the callee answers. Everything else is
// rejected back to the sender; candidates are best-effort and failures
// are swallowed.
func (h *Hub) Route(fromID string, env Envelope) {
	if env.To == "" {
		return
	}
	env.From = fromID // never trust the client-supplied value

	h.mu.Lock()
	sess := h.sessionFor(fromID, env)
	if sess == nil {
		// No session could be attached: offer to a dead or busy peer, or a
		// stray message outside any session.
		_, live := h.conns[env.To]
		h.mu.Unlock()
		switch {
		case env.Type == TypeCandidate || env.Type == TypeHangup:
			// silent drop, may race teardown
		case env.Type == TypeOffer && !live:
			h.reject(fromID, calls.KindSignalingUnavailable)
		default:
			h.reject(fromID, calls.KindInvalidSession)
		}
		return
	}

	if !sess.Has(fromID) || sess.Counterpart(fromID) != env.To {
		h.mu.Unlock()
		h.reject(fromID, calls.KindInvalidSession)
		return
	}
	if env.Type == TypeOffer && fromID != sess.Caller {
		// One caller per session; a competing offer never reaches the peer.
		h.mu.Unlock()
		h.reject(fromID, calls.KindInvalidSession)
		return
	}

	dest, live := h.conns[env.To]
	h.mu.Unlock()

	if !live {
		if env.IsNegotiation() {
			h.reject(fromID, calls.KindSignalingUnavailable)
		}
		return
	}
	if err := dest.Send(env); err != nil {
		h.log.Warn("signal delivery failed", "type", env.Type, "to", env.To, "err", err)
		if env.IsNegotiation() {
			h.reject(fromID, calls.KindSignalingUnavailable)
		}
	}
}

// sessionFor finds the live session for the sender, creating one if this
// is a session-opening offer to a live destination. Caller holds h.mu.
func (h *Hub) sessionFor(fromID string, env Envelope) *calls.Session {
	if sid, ok := h.bySender[fromID]; ok {
		if sess := h.sessions[sid]; sess != nil && !sess.Terminal() {
			return sess
		}
	}
	if env.Type != TypeOffer {
		return nil
	}
	if _, live := h.conns[env.To]; !live {
		return nil
	}
	if sid, busy := h.bySender[env.To]; busy {
		if sess := h.sessions[sid]; sess != nil && !sess.Terminal() {
			// Destination is already in a call; no second session.
			return nil
		}
	}

	sess := &calls.Session{
		ID:        uuid.NewString(),
		Mode:      calls.ModeRealtime,
		Caller:    fromID,
		Callee:    env.To,
		State:     calls.StatusNegotiating,
		CreatedAt: time.Now(),
	}
	h.sessions[sess.ID] = sess
	h.bySender[fromID] = sess.ID
	h.bySender[env.To] = sess.ID
	h.log.Info("signal session opened", "session_id", sess.ID, "caller", fromID, "callee", env.To)
	return sess
}

// reject returns an error envelope to the sender, if still connected.
func (h *Hub) reject(toID string, kind calls.ErrorKind) {
	h.mu.Lock()
	p, ok := h.conns[toID]
	h.mu.Unlock()
	if !ok {
		return
	}
	err := calls.NewError(kind, nil)
	_ = p.Send(Envelope{Type: TypeError, To: toID, Kind: string(kind), Message: err.Message})
}

// scheduleRemove retires an ended session after the grace period. Must be
// called without h.mu held.
func (h *Hub) scheduleRemove(sid string) {
	h.afterFunc(h.grace, func() {
		h.mu.Lock()
		if cur, ok := h.sessions[sid]; ok && cur.Terminal() {
			delete(h.sessions, sid)
			if h.bySender[cur.Caller] == sid {
				delete(h.bySender, cur.Caller)
			}
			if h.bySender[cur.Callee] == sid {
				delete(h.bySender, cur.Callee)
			}
		}
		h.mu.Unlock()
	})
}

// Session returns a copy of the live session for a participant, for
// status endpoints and tests.
func (h *Hub) Session(participantID string) (calls.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sid, ok := h.bySender[participantID]
	if !ok {
		return calls.Session{}, false
	}
	sess := h.sessions[sid]
	if sess == nil {
		return calls.Session{}, false
	}
	return *sess, true
}
