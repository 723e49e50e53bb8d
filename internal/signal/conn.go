package signal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

// wsPeer wraps one gorilla connection. All writes go through a single
// buffered channel drained by writePump, which keeps delivery FIFO per
// connection and keeps concurrent hub routing off the socket.
type wsPeer struct {
	conn *websocket.Conn
	send chan Envelope

	closeOnce sync.Once
	done      chan struct{}
}

func newWSPeer(conn *websocket.Conn) *wsPeer {
	return &wsPeer{
		conn: conn,
		send: make(chan Envelope, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (p *wsPeer) Send(env Envelope) error {
	select {
	case p.send <- env:
		return nil
	case <-p.done:
		return websocket.ErrCloseSent
	default:
		// Slow consumer: drop the connection rather than block the hub.
		_ = p.Close()
		return websocket.ErrCloseSent
	}
}

func (p *wsPeer) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
		_ = p.conn.Close()
	})
	return nil
}

func (p *wsPeer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = p.Close()
	}()

	for {
		select {
		case env := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.done:
			return
		}
	}
}

func (p *wsPeer) readPump(hub *Hub, id string, log *slog.Logger) {
	defer func() {
		hub.Unregister(id)
		_ = p.Close()
	}()

	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("signal read failed", "routing_id", id, "err", err)
			}
			return
		}
		hub.Route(id, env)
	}
}
