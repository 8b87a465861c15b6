package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"watchparty/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4 << 10
)

type client struct {
	hub  *Hub
	conn *websocket.Conn
	peer *Peer
}

func newUpgrader(allowedOrigin string) websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowedOrigin == "" || allowedOrigin == "*" || origin == "" {
				return true
			}
			return strings.EqualFold(origin, allowedOrigin)
		},
	}
}

// Serve 升级为 WebSocket 连接。携带的 access token（cookie、Bearer 或 token 参数）
// 会被校验并绑定到连接上；未携带 token 的匿名连接同样允许。
func Serve(h *Hub, gate *auth.Gate, allowedOrigin string) gin.HandlerFunc {
	upgrader := newUpgrader(allowedOrigin)
	return func(c *gin.Context) {
		token := auth.AccessTokenFromRequest(c.Request)
		if token == "" {
			token = c.Query("token")
		}
		var userID string
		if token != "" {
			user, err := gate.Authenticate(c.Request.Context(), token)
			if err != nil {
				status := http.StatusUnauthorized
				msg := "Invalid Access Token"
				if !errors.Is(err, auth.ErrInvalidCredential) && !errors.Is(err, auth.ErrMissingCredential) {
					log.Error().Err(err).Msg("ws authenticate")
					status, msg = http.StatusInternalServerError, "internal error"
				}
				c.JSON(status, gin.H{"statusCode": status, "message": msg, "success": false})
				return
			}
			userID = user.ID
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Debug().Err(err).Msg("ws upgrade")
			return
		}
		cl := &client{hub: h, conn: conn, peer: NewPeer(userID)}
		h.Register(cl.peer)
		log.Debug().Str("peer_id", cl.peer.ID).Str("user_id", userID).Msg("ws connected")

		go cl.writePump()
		cl.readPump()
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.Disconnect(c.peer)
		_ = c.conn.Close()
		log.Debug().Str("peer_id", c.peer.ID).Msg("ws disconnected")
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("peer_id", c.peer.ID).Msg("ws read")
			}
			return
		}
		var in Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.hub.reply(c.peer, errorFrame("", "malformed message"))
			continue
		}
		c.handle(in)
	}
}

func (c *client) handle(in Inbound) {
	roomID := strings.TrimSpace(in.RoomID)
	if roomID == "" {
		c.hub.reply(c.peer, errorFrame("", "roomId is required"))
		return
	}
	switch in.Event {
	case EventJoinRoom:
		c.hub.Join(roomID, c.peer)
	case EventLeaveRoom:
		c.hub.Leave(roomID, c.peer)
	case EventPlay:
		c.hub.RelayPlay(roomID, c.peer)
	case EventPause:
		c.hub.RelayPause(roomID, c.peer)
	case EventSeek:
		if in.Time == nil {
			c.hub.reply(c.peer, errorFrame(roomID, "time is required"))
			return
		}
		c.hub.RelaySeek(roomID, c.peer, *in.Time)
	default:
		c.hub.reply(c.peer, errorFrame(roomID, "unknown event"))
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.peer.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
