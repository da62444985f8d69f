// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package). These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, not_found, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., token_expired, token_used) distinguish the
//     pairing failure modes that share an HTTP status family but require
//     different client reactions (re-request a link vs. retry later).
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "token_used",
//	  "message": "pairing token already used"
//	}
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeTokenNotFound    = "token_not_found"
	ErrCodeTokenUsed        = "token_used"
	ErrCodeTokenExpired     = "token_expired"
	ErrCodeSessionNotFound  = "session_not_found"
	ErrCodeInitializeFailed = "initialize_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeInvalidSignature = "invalid_signature"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
