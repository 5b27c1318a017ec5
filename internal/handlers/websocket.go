package handlers

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/p2pchat-signaling/config"
	"github.com/mossy-p/p2pchat-signaling/internal/lib/logger/sl"
	"github.com/mossy-p/p2pchat-signaling/internal/signaling"
)

// client pumps frames between one websocket and its hub peer.
type client struct {
	conn *websocket.Conn
	peer *signaling.Peer
	hub  *signaling.Hub
	cfg  config.SignalingConfig
	log  *slog.Logger
}

// HandleSignaling upgrades the request to a websocket and attaches it to hub.
// Rooms are chosen later with join-room, so the URL carries no room.
func HandleSignaling(hub *signaling.Hub, cfg config.SignalingConfig, allowedOrigins []string, log *slog.Logger) gin.HandlerFunc {
	log = log.With(slog.String("component", "handlers.websocket"))
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(allowedOrigins, r.Header.Get("Origin"))
		},
	}

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// The upgrader has already written the error response.
			log.Warn("failed to upgrade connection", slog.String("remote_addr", c.ClientIP()), sl.Err(err))
			return
		}

		peer := signaling.NewPeer(c.ClientIP(), cfg.SendBuffer)
		if !hub.Connect(peer) {
			deadline := time.Now().Add(cfg.WriteWait)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"), deadline)
			_ = conn.Close()
			return
		}

		cl := &client{
			conn: conn,
			peer: peer,
			hub:  hub,
			cfg:  cfg,
			log:  log,
		}

		go cl.writePump()
		go cl.readPump()
	}
}

// readPump feeds inbound frames to the hub in arrival order. Whatever ends
// the read loop ends the session.
func (c *client) readPump() {
	defer func() {
		c.hub.Disconnect(c.peer)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", slog.String("remote_addr", c.peer.RemoteAddr()), sl.Err(err))
			}
			return
		}

		if !c.hub.Deliver(c.peer, message) {
			return
		}
	}
}

// writePump drains the peer queue. The hub closes the queue when the peer is
// removed, which ends the session with a close frame.
func (c *client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	send := c.peer.Send()
	for {
		select {
		case message, ok := <-send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("websocket write failed", sl.Err(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// originAllowed admits requests without an Origin header, which only
// non-browser clients send. "*" in the allow list admits any origin.
func originAllowed(allowedOrigins []string, origin string) bool {
	if origin == "" {
		return true
	}
	return slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
}
