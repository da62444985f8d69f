// Live connection HTTP handler.
//
// This file exposes the websocket endpoint providers keep open for push
// notifications:
//   - GET /ws/{userId}
//
// The upgraded connection is registered with the hub, which immediately
// pushes the current unread count. The read loop only exists to observe the
// close; providers never send application frames upstream.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/uslugibg/chat-backend/internal/http/middleware"
	"github.com/uslugibg/chat-backend/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades provider connections and binds them to the hub.
type WSHandler struct {
	hub *notify.Hub
}

// NewWSHandler returns a WSHandler over the given hub.
func NewWSHandler(hub *notify.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Serve godoc
// @ID          serveWS
// @Summary     Open a live notification connection
// @Description Upgrades to a websocket and registers it as the user's live
// @Description push connection. A later connection for the same user
// @Description displaces this one.
// @Tags        Notifications
//
// @Param       userId  path  string  true  "User ID"  example(user123)
//
// @Success     101  {string} string "Switching Protocols"
// @Failure     400  {object} handlers.ErrorResponse "Upgrade failed"
// @Router      /ws/{userId} [get]
func (h *WSHandler) Serve(c *gin.Context) {
	userID := c.Param("userId")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error; just log.
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(err).Str("user_id", userID).Msg("websocket upgrade failed")
		return
	}

	h.hub.Register(c.Request.Context(), userID, conn)

	// Drain until the peer closes, then release the registration.
	go func() {
		defer h.hub.Unregister(userID, conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
