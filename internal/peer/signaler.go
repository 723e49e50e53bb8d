package peer

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"safescan-platform/internal/signal"

	"github.com/gorilla/websocket"
)

// Signaler is the machine's view of the relay connection.
type Signaler interface {
	// Connect dials the relay. It is called exactly once per attempt and
	// owns the single automatic retry the design allows.
	Connect(ctx context.Context) error

	Send(env signal.Envelope) error

	// Recv yields relay envelopes until the connection closes, then the
	// channel is closed.
	Recv() <-chan signal.Envelope

	Close() error
}

// WSSignaler talks to the relay over a gorilla websocket.
type WSSignaler struct {
	serverURL string
	token     string
	log       *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	recv   chan signal.Envelope
	closed bool
}

// NewWSSignaler builds a signaler for ws(s)://host/ws/signal. An empty
// token connects as a guest.
func NewWSSignaler(serverURL, token string, log *slog.Logger) *WSSignaler {
	if log == nil {
		log = slog.Default()
	}
	if token == "" {
		token = "guest"
	}
	return &WSSignaler{
		serverURL: serverURL,
		token:     token,
		log:       log,
		recv:      make(chan signal.Envelope, 16),
	}
}

func (s *WSSignaler) endpoint() (string, error) {
	u, err := url.Parse(s.serverURL)
	if err != nil {
		return "", err
	}
	u.Path = "/ws/signal"
	q := u.Query()
	q.Set("token", s.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect dials the relay, retrying once before giving up.
func (s *WSSignaler) Connect(ctx context.Context) error {
	endpoint, err := s.endpoint()
	if err != nil {
		return err
	}

	var conn *websocket.Conn
	for attempt := 0; attempt < 2; attempt++ {
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
		if err == nil {
			break
		}
		s.log.Warn("relay dial failed", "attempt", attempt+1, "err", err)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return websocket.ErrCloseSent
	}
	s.conn = conn
	s.mu.Unlock()

	go s.readLoop(conn)
	return nil
}

func (s *WSSignaler) readLoop(conn *websocket.Conn) {
	defer close(s.recv)
	for {
		var env signal.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		s.recv <- env
	}
}

func (s *WSSignaler) Send(env signal.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.closed {
		return websocket.ErrCloseSent
	}
	return s.conn.WriteJSON(env)
}

func (s *WSSignaler) Recv() <-chan signal.Envelope { return s.recv }

func (s *WSSignaler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
