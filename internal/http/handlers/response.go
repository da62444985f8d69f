// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the shared response helpers. Every endpoint, webhook
// receivers included, answers failures with the same ErrorResponse envelope
// so platform callbacks and first-party clients parse errors the same way.
//
// A redeemed-too-late pairing token, for example:
//
//	HTTP/1.1 410 Gone
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "token_expired",
//	  "message": "pairing token expired"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uslugibg/chat-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope every endpoint returns. Code is a
// stable machine-readable string from errors.go; Message is safe to show
// to end users; RequestID echoes X-Request-ID so a client report can be
// matched to server logs.
type ErrorResponse struct {
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"token_expired"`
	Message   string `json:"message" example:"pairing token expired"`
}

// fail aborts the request with a structured error. Server-side failures
// (>=500) also go to the request-scoped logger; 4xx responses are the
// caller's problem and stay out of the error log.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail exposes fail to the router for its NoRoute and NoMethod handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes body as JSON with the given status.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent answers 204 for operations with nothing to return, such as
// marking a notification read.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
