// Platform webhook HTTP handlers.
//
// This file exposes the ingestion endpoints the chat platforms call back on:
//   - POST /webhooks/{platform}           (inbound customer messages)
//   - POST /webhooks/{platform}/delivery  (delivery/read receipts)
//
// Payloads are opaque JSON; the platform adapter is the only consumer of
// their shape. Signature validation happens before any parsing. An inbound
// customer message advances the conversation's automated exchange and sends
// the templated reply for the state it lands in.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/uslugibg/chat-backend/internal/convo"
	"github.com/uslugibg/chat-backend/internal/dispatch"
	"github.com/uslugibg/chat-backend/internal/http/middleware"
	"github.com/uslugibg/chat-backend/internal/repo"
)

// signatureHeaders maps each platform tag to the header its webhook
// signature travels in.
var signatureHeaders = map[string]string{
	dispatch.PlatformWhatsApp: "X-Hub-Signature-256",
	dispatch.PlatformViber:    "X-Viber-Content-Signature",
	dispatch.PlatformTelegram: "X-Telegram-Bot-Api-Secret-Token",
}

// autoCriteria is the completion policy applied to automated exchanges.
var autoCriteria = convo.CompletionCriteria{
	RequiredFields:      []string{"description", "address", "timing"},
	RequireConfirmation: true,
	MinConfidence:       0.05,
}

// HandleWebhook godoc
// @ID          handleWebhook
// @Summary     Ingest a platform webhook
// @Description Validates the adapter-specific signature, decodes the inbound
// @Description customer message if the payload carries one, and advances the
// @Description bound conversation's automated exchange.
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       platform  path  string  true  "Platform tag"  Enums(whatsapp, viber, telegram)
//
// @Success     200  {object}  map[string]string
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid signature"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown platform"
// @Router      /webhooks/{platform} [post]
func (h *Handlers) HandleWebhook(c *gin.Context) {
	platform := c.Param("platform")
	a := h.dispatcher.Adapter(platform)
	if a == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown platform")
		return
	}

	payload, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable payload")
		return
	}
	if !a.ValidateWebhook(payload, c.GetHeader(signatureHeaders[platform])) {
		fail(c, http.StatusUnauthorized, ErrCodeInvalidSignature, "webhook signature mismatch")
		return
	}

	msg, err := a.HandleIncoming(payload)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "undecodable payload")
		return
	}
	if msg == nil {
		// Not a customer message (status ping, unsupported type).
		ok(c, http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := h.advanceConversation(c, msg); err != nil {
		lg := middleware.LoggerFrom(c)
		lg.Warn().Err(err).Str("platform", platform).Msg("inbound message not processed")
	}
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}

// HandleDeliveryWebhook godoc
// @ID          handleDeliveryWebhook
// @Summary     Ingest a delivery receipt webhook
// @Description Validates the signature and reconciles the delivery report
// @Description into the dispatcher's tracked statuses (forward-only).
// @Tags        Webhooks
// @Accept      json
// @Produce     json
//
// @Param       platform  path  string  true  "Platform tag"  Enums(whatsapp, viber, telegram)
//
// @Success     200  {object}  map[string]string
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid signature"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown platform"
// @Router      /webhooks/{platform}/delivery [post]
func (h *Handlers) HandleDeliveryWebhook(c *gin.Context) {
	platform := c.Param("platform")
	a := h.dispatcher.Adapter(platform)
	if a == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown platform")
		return
	}

	payload, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unreadable payload")
		return
	}
	if !a.ValidateWebhook(payload, c.GetHeader(signatureHeaders[platform])) {
		fail(c, http.StatusUnauthorized, ErrCodeInvalidSignature, "webhook signature mismatch")
		return
	}

	report, err := a.ParseDeliveryReport(payload)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "undecodable payload")
		return
	}
	if report == nil {
		ok(c, http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	h.dispatcher.RecordDelivery(report)
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}

// advanceConversation routes an inbound customer message to its active
// conversation, steps the state machine, persists the new state tag, and
// sends the templated reply for the state the exchange landed in.
func (h *Handlers) advanceConversation(c *gin.Context, msg *dispatch.InboundMessage) error {
	ctx := c.Request.Context()

	conv, err := repo.FindActiveConversationByContact(ctx, h.DB, msg.Platform, msg.From)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No conversation bound to this sender yet; nothing to advance.
			return nil
		}
		return err
	}

	state := convo.State(conv.State)
	if !state.Valid() {
		state = convo.StateInitialResponse
	}
	m, err := convo.Restore(state, autoCriteria)
	if err != nil {
		return err
	}

	var next convo.State
	switch {
	case state == convo.StateSchedulingVisit && isConfirmation(msg.Text):
		next, err = m.OnScheduleConfirmed()
	default:
		next, err = m.OnCustomerMessage()
		if err == nil && next == convo.StateAnalyzingProblem {
			next, err = m.OnAnalysis(h.classifier.Analyze(msg.Text))
		}
	}
	if err != nil {
		if errors.Is(err, convo.ErrTerminalState) {
			return nil
		}
		return err
	}

	if next != state {
		if err := repo.UpdateConversationState(ctx, h.DB, conv.ID, string(next)); err != nil {
			return err
		}
	}

	if reply := convo.Reply(next); reply != "" {
		resp := h.dispatcher.Send(ctx, msg.Platform, dispatch.SendRequest{To: msg.From, Text: reply})
		if resp.Status == dispatch.StatusFailed {
			lg := middleware.LoggerFrom(c)
			lg.Warn().
				Str("platform", msg.Platform).
				Str("conversation_id", conv.ID).
				Str("error", resp.Error).
				Msg("automated reply not delivered")
		}
	}
	return nil
}

// isConfirmation reports whether a customer message reads as a scheduling
// confirmation.
func isConfirmation(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "да", "да.", "добре", "потвърждавам", "съгласен", "съгласна", "ок", "ok", "yes", "да, благодаря":
		return true
	}
	return false
}
