package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/uslugibg/chat-backend/internal/domain"
)

func TestCreateConversation_SetsDefaults(t *testing.T) {
	db := newTestDB(t, &domain.Conversation{})

	id := uuid.NewString()
	c, err := CreateConversation(context.Background(), db, id, "prov-1", "Мария Иванова", "+359888123456", "viber")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if c.ID != id || c.ProviderID != "prov-1" || c.Platform != "viber" {
		t.Fatalf("unexpected fields: %+v", c)
	}
	if c.Status != domain.ConversationActive {
		t.Fatalf("status = %q, want %q", c.Status, domain.ConversationActive)
	}
	if c.State != "" {
		t.Fatalf("state = %q, want empty on creation", c.State)
	}
	if c.CreatedAt.IsZero() || !c.LastMessageAt.Equal(c.CreatedAt) {
		t.Fatalf("timestamps not initialized together: %+v", c)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	db := newTestDB(t, &domain.Conversation{})
	if _, err := GetConversation(context.Background(), db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFindActiveConversationByContact(t *testing.T) {
	db := newTestDB(t, &domain.Conversation{})
	ctx := context.Background()

	older, err := CreateConversation(ctx, db, uuid.NewString(), "prov-1", "A", "+359888123456", "viber")
	if err != nil {
		t.Fatalf("seed older: %v", err)
	}
	newer, err := CreateConversation(ctx, db, uuid.NewString(), "prov-2", "B", "+359888123456", "viber")
	if err != nil {
		t.Fatalf("seed newer: %v", err)
	}
	// Force distinct created_at so "most recent" is deterministic.
	if err := db.Model(&domain.Conversation{}).Where("id = ?", older.ID).
		UpdateColumn("created_at", time.Now().UTC().Add(-time.Hour)).Error; err != nil {
		t.Fatalf("backdate older: %v", err)
	}

	got, err := FindActiveConversationByContact(ctx, db, "viber", "+359888123456")
	if err != nil {
		t.Fatalf("FindActiveConversationByContact: %v", err)
	}
	if got.ID != newer.ID {
		t.Fatalf("got %q, want most recent %q", got.ID, newer.ID)
	}

	// Wrong platform does not match.
	if _, err := FindActiveConversationByContact(ctx, db, "whatsapp", "+359888123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("platform mismatch err = %v, want ErrNotFound", err)
	}

	// Closed conversations are skipped.
	if err := db.Model(&domain.Conversation{}).Where("customer_contact = ?", "+359888123456").
		UpdateColumn("status", domain.ConversationClosed).Error; err != nil {
		t.Fatalf("close conversations: %v", err)
	}
	if _, err := FindActiveConversationByContact(ctx, db, "viber", "+359888123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("closed err = %v, want ErrNotFound", err)
	}
}

func TestUpdateConversationState(t *testing.T) {
	db := newTestDB(t, &domain.Conversation{})
	ctx := context.Background()

	c, err := CreateConversation(ctx, db, uuid.NewString(), "prov-1", "A", "+359888123456", "viber")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	before := c.LastMessageAt

	time.Sleep(5 * time.Millisecond)
	if err := UpdateConversationState(ctx, db, c.ID, "AWAITING_DESCRIPTION"); err != nil {
		t.Fatalf("UpdateConversationState: %v", err)
	}

	got, err := GetConversation(ctx, db, c.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.State != "AWAITING_DESCRIPTION" {
		t.Fatalf("state = %q, want AWAITING_DESCRIPTION", got.State)
	}
	if !got.LastMessageAt.After(before) {
		t.Fatalf("last_message_at not bumped: %v -> %v", before, got.LastMessageAt)
	}

	if err := UpdateConversationState(ctx, db, "nope", "X"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("missing row err = %v, want ErrRecordNotFound", err)
	}
}

func TestCreateSession_AndGetSession(t *testing.T) {
	db := newTestDB(t, &domain.ChatSession{})
	ctx := context.Background()

	s, err := CreateSession(ctx, db, "conv-1", "prov-1", "a7K_")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.SessionID == "" || s.ConversationID != "conv-1" || s.Identifier != "a7K_" {
		t.Fatalf("unexpected fields: %+v", s)
	}
	if !s.LastAccessedAt.Equal(s.CreatedAt) {
		t.Fatalf("fresh session timestamps differ: %+v", s)
	}

	got, err := GetSession(ctx, db, s.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.ProviderID != "prov-1" {
		t.Fatalf("provider = %q, want prov-1", got.ProviderID)
	}

	if _, err := GetSession(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestTouchSession(t *testing.T) {
	db := newTestDB(t, &domain.ChatSession{})
	ctx := context.Background()

	s, err := CreateSession(ctx, db, "conv-1", "prov-1", "a7K_")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := TouchSession(ctx, db, s.SessionID, at); err != nil {
		t.Fatalf("TouchSession: %v", err)
	}
	got, err := GetSession(ctx, db, s.SessionID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.LastAccessedAt.Equal(at) {
		t.Fatalf("last_accessed_at = %v, want %v", got.LastAccessedAt, at)
	}

	if err := TouchSession(ctx, db, "nope", at); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("missing row err = %v, want ErrRecordNotFound", err)
	}
}
