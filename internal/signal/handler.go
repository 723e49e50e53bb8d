package signal

import (
	"net/http"
	"time"

	"safescan-platform/internal/auth"
	"safescan-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The emergency page is served from a different origin than the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades GET /ws/signal?token=... into a hub connection.
//
// A valid access token binds the socket to the owner's identity so pushes
// reach them by user id. Anything else (missing, "guest", expired) still
// connects, but under an ephemeral guest identity: scanners are
// unauthenticated by design and a stale owner token must not block an
// emergency call.
func Handler(hub *Hub, authm *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)

		id := "guest:" + uuid.NewString()
		if tok := c.Query("token"); tok != "" && tok != "guest" {
			claims, err := authm.Verify(tok, auth.TokenTypeAccess, time.Now())
			if err == nil {
				id = claims.UserID
			} else {
				log.Warn("signal token rejected, connecting as guest", "err", err)
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			log.Warn("signal upgrade failed", "err", err)
			return
		}

		p := newWSPeer(conn)
		hub.Register(id, p)
		go p.writePump()
		go p.readPump(hub, id, log)
	}
}
