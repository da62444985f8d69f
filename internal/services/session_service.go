// Package services : SessionManager
//
// This file implements the SessionManager, the thin binder that converts a
// successful token redemption into durable Conversation and ChatSession
// rows. Bind is invoked only from within the TokenLedger's redemption
// transaction, so it carries no concurrency concerns of its own; GetSession
// and Touch serve session re-validation on each chat access.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/uslugibg/chat-backend/internal/domain"
	"github.com/uslugibg/chat-backend/internal/repo"
)

// CustomerInfo carries the customer-side details captured when a pairing
// link is opened. Contact is the normalized phone number or platform handle;
// Platform is the chat platform tag the conversation will be bound to.
type CustomerInfo struct {
	Name     string
	Contact  string
	Platform string
}

// SessionManager persists and re-validates the redemption bindings.
type SessionManager struct {
	// DB is the GORM handle used for session lookups outside the
	// redemption transaction.
	DB *gorm.DB
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(db *gorm.DB) *SessionManager {
	return &SessionManager{DB: db}
}

// Bind persists the Conversation and ChatSession rows for a redemption,
// in that order, on the supplied (transaction-bound) handle.
func (s *SessionManager) Bind(ctx context.Context, tx *gorm.DB, conversationID, providerID, identifier string, customer CustomerInfo) (*domain.Conversation, *domain.ChatSession, error) {
	conv, err := repo.CreateConversation(ctx, tx, conversationID, providerID, customer.Name, customer.Contact, customer.Platform)
	if err != nil {
		return nil, nil, err
	}
	sess, err := repo.CreateSession(ctx, tx, conversationID, providerID, identifier)
	if err != nil {
		return nil, nil, err
	}
	return conv, sess, nil
}

// GetSession fetches a session by id. Fails with ErrSessionNotFound when the
// session does not exist.
func (s *SessionManager) GetSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// Touch stamps last_accessed_at on a session.
func (s *SessionManager) Touch(ctx context.Context, sessionID string, at time.Time) error {
	err := repo.TouchSession(ctx, s.DB, sessionID, at)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	return err
}
