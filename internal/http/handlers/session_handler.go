// Session HTTP handlers.
//
// This file exposes the session re-validation endpoint:
//   - GET /sessions/{sessionId}
//
// A chat client presents its session id on every reconnect; the handler
// refreshes the access stamp and returns the binding the redemption created.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/uslugibg/chat-backend/internal/services"
)

// SessionResponse is the success payload for session validation.
type SessionResponse struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	Identifier     string    `json:"identifier"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// GetSession godoc
// @ID          getSession
// @Summary     Validate a chat session
// @Description Looks up the session, stamps last access, and returns the
// @Description bound provider, conversation, and identifier.
// @Tags        Sessions
// @Produce     json
//
// @Param       sessionId  path  string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.SessionResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sessions/{sessionId} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	sess, err := h.tokens.ValidateSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeSessionNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, SessionResponse{
		SessionID:      sess.SessionID,
		UserID:         sess.ProviderID,
		ConversationID: sess.ConversationID,
		Identifier:     sess.Identifier,
		CreatedAt:      sess.CreatedAt,
		LastAccessedAt: sess.LastAccessedAt,
	})
}
