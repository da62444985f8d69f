// Package services defines the business logic for pairing identifiers,
// tokens, and chat sessions. This file centralizes common service-level
// error values so that they can be consistently returned by service methods
// and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

// Pairing-related errors.
var (
	// ErrTokenNotFound indicates that no token exists for the given
	// (identifier, token) pair.
	ErrTokenNotFound = errors.New("pairing token not found")

	// ErrTokenAlreadyUsed is returned when a redemption targets a token that
	// has already been consumed. Distinguishable from ErrTokenExpired so the
	// UI can offer "request a new link" with an accurate reason.
	ErrTokenAlreadyUsed = errors.New("pairing token already used")

	// ErrTokenExpired is returned when a token is past its expiry. The token
	// row is left untouched; expiry never mutates is_used.
	ErrTokenExpired = errors.New("pairing token expired")

	// ErrSessionNotFound indicates that the requested chat session does not
	// exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrIdentifierNotFound indicates that the public identifier does not
	// map to any provider.
	ErrIdentifierNotFound = errors.New("provider identifier not found")

	// ErrIdentifierGenerationFailed is returned when identifier generation
	// exhausted its bounded collision retries. Treated as an operational
	// alarm, not a user-facing retry.
	ErrIdentifierGenerationFailed = errors.New("identifier generation failed after retries")

	// ErrNotificationNotFound indicates that the notification does not exist
	// or is not owned by the acting user.
	ErrNotificationNotFound = errors.New("notification not found")
)
