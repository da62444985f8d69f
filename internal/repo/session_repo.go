// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ChatSession
// and Conversation models, both created inside the redemption transaction.
//
// Error semantics:
//   - When a session or conversation is not found, functions return
//     gorm.ErrRecordNotFound (exported as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/uslugibg/chat-backend/internal/domain"
)

// CreateConversation inserts a new active Conversation row for providerID.
// The caller supplies the pre-generated conversation id so that the token
// row, the conversation, and the session can share it within one transaction.
func CreateConversation(ctx context.Context, db *gorm.DB, id, providerID, customerName, customerContact, platform string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID:              id,
		ProviderID:      providerID,
		CustomerName:    customerName,
		CustomerContact: customerContact,
		Platform:        platform,
		Status:          domain.ConversationActive,
		CreatedAt:       now,
		LastMessageAt:   now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// GetConversation fetches a conversation by id, or ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindActiveConversationByContact fetches the most recent active conversation
// bound to (platform, customerContact), or ErrNotFound. Webhook ingestion
// uses it to route inbound messages to their conversation.
func FindActiveConversationByContact(ctx context.Context, db *gorm.DB, platform, customerContact string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("platform = ? AND customer_contact = ? AND status = ?", platform, customerContact, domain.ConversationActive).
		Order("created_at desc").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateConversationState stores the automated-exchange state tag and bumps
// last_message_at. Returns ErrNotFound when the conversation is missing.
func UpdateConversationState(ctx context.Context, db *gorm.DB, id, state string) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":           state,
			"last_message_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CreateSession inserts the ChatSession row binding a redemption to its
// conversation. The session id is a fresh UUID.
func CreateSession(ctx context.Context, db *gorm.DB, conversationID, providerID, identifier string) (*domain.ChatSession, error) {
	now := time.Now().UTC()
	s := &domain.ChatSession{
		SessionID:      uuid.NewString(),
		ConversationID: conversationID,
		ProviderID:     providerID,
		Identifier:     identifier,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches a session by id, or ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, sessionID string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	if err := db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// TouchSession stamps last_accessed_at on an existing session.
// Returns ErrNotFound when the session is missing.
func TouchSession(ctx context.Context, db *gorm.DB, sessionID string, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("session_id = ?", sessionID).
		Update("last_accessed_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
