// Pairing token HTTP handlers.
//
// This file exposes REST endpoints for the pairing flow:
//   - POST   /tokens/initialize          (ensure identifier + active token)
//   - GET    /tokens/current/{userId}    (read the active pairing link)
//   - POST   /tokens/validate            (redeem a token, open a conversation)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. The pairing failure modes map to
// distinguishable status codes and error codes so SMS/chat clients can react
// differently to a consumed link versus an expired one.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/uslugibg/chat-backend/internal/analysis"
	"github.com/uslugibg/chat-backend/internal/dispatch"
	"github.com/uslugibg/chat-backend/internal/domain"
	"github.com/uslugibg/chat-backend/internal/http/middleware"
	"github.com/uslugibg/chat-backend/internal/repo"
	"github.com/uslugibg/chat-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// TokenService defines the pairing lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type TokenService interface {
	// InitializeForUser ensures an identifier and an active token exist for
	// the provider. Idempotent between redemptions.
	InitializeForUser(ctx context.Context, userID string) (*services.PairingLink, error)
	// ValidateAndUse atomically redeems (identifier, token) and opens the
	// conversation and session.
	ValidateAndUse(ctx context.Context, identifier, token string, customer services.CustomerInfo) (*services.Redemption, error)
	// ValidateSession re-validates a chat session and stamps access time.
	ValidateSession(ctx context.Context, sessionID string) (*domain.ChatSession, error)
}

// Notifier defines the notification operations consumed by HTTP handlers.
//
// Implementations must persist before pushing; push failures stay internal.
type Notifier interface {
	// NotifyNewConversation tells the provider a customer opened a chat.
	NotifyNewConversation(ctx context.Context, providerID, customerName, conversationID string) (*domain.Notification, error)
	// ListNotifications returns one page of notifications plus the total.
	ListNotifications(ctx context.Context, userID string, offset, limit int) ([]domain.Notification, int64, error)
	// MarkRead marks one notification read for its owning user.
	MarkRead(ctx context.Context, id, userID string) error
	// MarkAllRead marks every unread notification read, returns the count.
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for tokens, sessions, notifications, and
// platform webhooks. It depends on abstract service interfaces to keep
// transport concerns separate from business logic; the dispatcher and
// classifier are concrete because webhooks are inherently adapter-bound.
type Handlers struct {
	tokens     TokenService
	notifier   Notifier
	dispatcher *dispatch.Dispatcher
	classifier *analysis.Classifier

	// DB supports the ETag fast path and idempotency records.
	DB *gorm.DB
	// BaseURL is the public origin used to render pairing links.
	BaseURL string
	// IdemTTL is the validity window for Idempotency-Key records.
	IdemTTL time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(tokens TokenService, notifier Notifier, d *dispatch.Dispatcher, cl *analysis.Classifier, db *gorm.DB, baseURL string, idemTTL time.Duration) *Handlers {
	return &Handlers{
		tokens:     tokens,
		notifier:   notifier,
		dispatcher: d,
		classifier: cl,
		DB:         db,
		BaseURL:    baseURL,
		IdemTTL:    idemTTL,
	}
}

//
// DTOs
//

// InitializeTokenRequest is the JSON payload for initializing a pairing link.
type InitializeTokenRequest struct {
	// UserID is the provider receiving the pairing link.
	UserID string `json:"user_id" binding:"required" example:"user123"`
	// Phone optionally triggers delivery of the link to this number.
	Phone string `json:"phone" example:"+359881234567"`
	// Platform selects the delivery adapter when Phone is set.
	Platform string `json:"platform" example:"viber"`
}

// PairingLinkResponse is the success payload for initialize/current calls.
type PairingLinkResponse struct {
	Identifier string                 `json:"identifier" example:"a7K"`
	Token      string                 `json:"token" example:"X4J9Q2MT"`
	ExpiresAt  time.Time              `json:"expires_at"`
	PairingURL string                 `json:"pairing_url" example:"https://uslugi.bg/u/a7K/c/X4J9Q2MT"`
	Delivery   *dispatch.SendResponse `json:"delivery,omitempty"`
}

// ValidateTokenRequest is the JSON payload for redeeming a pairing token.
type ValidateTokenRequest struct {
	Identifier      string `json:"identifier" binding:"required" example:"a7K"`
	Token           string `json:"token" binding:"required" example:"X4J9Q2MT"`
	CustomerName    string `json:"customer_name" example:"Мария Иванова"`
	CustomerContact string `json:"customer_contact" example:"+359888123456"`
	Platform        string `json:"platform" example:"whatsapp"`
}

// RedemptionResponse is the success payload for a redeemed token.
type RedemptionResponse struct {
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Identifier     string    `json:"identifier"`
	NewToken       string    `json:"new_token"`
	NewExpiresAt   time.Time `json:"new_expires_at"`
}

//
// Handlers
//

// InitializeToken godoc
// @ID          initializeToken
// @Summary     Initialize a pairing link
// @Description Ensures the provider has an identifier and an active single-use token,
// @Description issuing either lazily. Safe to call on every missed call. When a phone
// @Description and platform are supplied, the link is delivered through that adapter.
// @Tags        Tokens
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Safe-retry key"
// @Param       body  body  handlers.InitializeTokenRequest  true  "Initialize payload"
//
// @Success     200  {object}  handlers.PairingLinkResponse  "Replayed result"
// @Success     201  {object}  handlers.PairingLinkResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tokens/initialize [post]
func (h *Handlers) InitializeToken(c *gin.Context) {
	var req InitializeTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id required")
		return
	}
	ctx := c.Request.Context()
	uid := strings.TrimSpace(req.UserID)

	link, err := h.tokens.InitializeForUser(ctx, uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInitializeFailed, err.Error())
		return
	}

	// Idempotency bookkeeping: initialization is naturally idempotent between
	// redemptions, so a replay only changes the status code, never the body.
	status := http.StatusCreated
	if key, has := middleware.GetIdempotencyKey(c); has {
		if _, err := repo.GetIdempotency(ctx, h.DB, uid, key, time.Now().UTC()); err == nil {
			status = http.StatusOK
		} else if _, err := repo.CreateIdempotency(ctx, h.DB, uid, key, link.Token, http.StatusCreated, h.IdemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Msg("idempotency record not stored")
		}
	}

	resp := PairingLinkResponse{
		Identifier: link.Identifier,
		Token:      link.Token,
		ExpiresAt:  link.ExpiresAt,
		PairingURL: services.PairingURL(h.BaseURL, link.Identifier, link.Token),
	}

	// Optional delivery of the link to the caller's phone. Delivery failure
	// does not fail initialization; the outcome travels in the response.
	if req.Phone != "" && req.Platform != "" && status == http.StatusCreated {
		send := h.dispatcher.Send(ctx, req.Platform, dispatch.SendRequest{
			To:   req.Phone,
			Text: "Вашата връзка за чат: " + resp.PairingURL,
		})
		resp.Delivery = &send
	}

	ok(c, status, resp)
}

// CurrentToken godoc
// @ID          currentToken
// @Summary     Read the active pairing link
// @Description Returns the provider's identifier and currently active token,
// @Description initializing both lazily when absent.
// @Tags        Tokens
// @Produce     json
//
// @Param       userId  path  string  true  "Provider user ID"  example(user123)
//
// @Success     200  {object}  handlers.PairingLinkResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tokens/current/{userId} [get]
func (h *Handlers) CurrentToken(c *gin.Context) {
	uid := c.Param("userId")
	link, err := h.tokens.InitializeForUser(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInitializeFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, PairingLinkResponse{
		Identifier: link.Identifier,
		Token:      link.Token,
		ExpiresAt:  link.ExpiresAt,
		PairingURL: services.PairingURL(h.BaseURL, link.Identifier, link.Token),
	})
}

// ValidateToken godoc
// @ID          validateToken
// @Summary     Redeem a pairing token
// @Description Atomically consumes the token, opens the conversation and chat
// @Description session, and issues a replacement token for the same identifier.
// @Description A consumed token answers 409 token_used; an expired one 410 token_expired.
// @Tags        Tokens
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.ValidateTokenRequest  true  "Redeem payload"
//
// @Success     201  {object}  handlers.RedemptionResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown identifier or token"
// @Failure     409  {object}  handlers.ErrorResponse  "Token already used"
// @Failure     410  {object}  handlers.ErrorResponse  "Token expired"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tokens/validate [post]
func (h *Handlers) ValidateToken(c *gin.Context) {
	var req ValidateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "identifier and token required")
		return
	}
	ctx := c.Request.Context()

	customer := services.CustomerInfo{
		Name:     strings.TrimSpace(req.CustomerName),
		Contact:  strings.TrimSpace(req.CustomerContact),
		Platform: strings.TrimSpace(req.Platform),
	}
	red, err := h.tokens.ValidateAndUse(ctx, req.Identifier, req.Token, customer)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTokenNotFound):
			fail(c, http.StatusNotFound, ErrCodeTokenNotFound, "pairing token not found")
		case errors.Is(err, services.ErrTokenAlreadyUsed):
			fail(c, http.StatusConflict, ErrCodeTokenUsed, "pairing token already used")
		case errors.Is(err, services.ErrTokenExpired):
			fail(c, http.StatusGone, ErrCodeTokenExpired, "pairing token expired")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	// Best effort: the provider learns about the conversation through the
	// hub; a failed push never rolls the redemption back.
	if _, nerr := h.notifier.NotifyNewConversation(ctx, red.Conversation.ProviderID, red.Conversation.CustomerName, red.Conversation.ID); nerr != nil {
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(nerr).Str("conversation_id", red.Conversation.ID).Msg("new conversation notification failed")
	}

	ok(c, http.StatusCreated, RedemptionResponse{
		SessionID:      red.Session.SessionID,
		ConversationID: red.Conversation.ID,
		UserID:         red.Conversation.ProviderID,
		Identifier:     red.Session.Identifier,
		NewToken:       red.NewToken.Token,
		NewExpiresAt:   red.NewToken.ExpiresAt,
	})
}
