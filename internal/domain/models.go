// Package domain defines the persistence models for the channel-pairing and
// messaging core: provider identifiers, single-use pairing tokens, chat
// sessions, conversations, and notifications. These types are mapped with
// GORM and form the core data layer of the application.
package domain

import (
	"time"
)

// Conversation status values.
const (
	ConversationActive = "active"
	ConversationClosed = "closed"
)

// ProviderIdentifier maps a provider to a short public identifier used in
// shareable chat links (e.g. "Xy3_"). The mapping is created lazily on the
// first pairing-link request and is immutable afterwards.
//
// Fields:
//   - Identifier: 3-char alphanumeric token plus a trailing separator; PK.
//   - ProviderID: identifier of the owning provider; unique (one per provider).
//   - CreatedAt: timestamp managed by GORM.
type ProviderIdentifier struct {
	Identifier string    `json:"identifier"  gorm:"type:varchar(8);primaryKey"`
	ProviderID string    `json:"provider_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_identifier_provider"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName returns the database table name for ProviderIdentifier.
func (ProviderIdentifier) TableName() string { return "provider_identifiers" }

// PairingToken is a single-use secret scoped to a provider identifier. At
// most one unused, unexpired token exists per identifier at any time; that
// invariant is enforced by the service layer, not by the schema.
//
// Fields:
//   - Token: 8-char alphanumeric secret, unique together with Identifier.
//   - Identifier: owning provider identifier (FK to provider_identifiers).
//   - IssuedAt / ExpiresAt: issuance time and issuance+7d.
//   - IsUsed / UsedAt: redemption flag and timestamp; written exactly once.
//   - ConversationID: set at redemption to the conversation it opened.
type PairingToken struct {
	ID             string     `json:"id"              gorm:"type:char(36);primaryKey"`
	Token          string     `json:"token"           gorm:"type:varchar(16);not null;uniqueIndex:ux_identifier_token,priority:2"`
	Identifier     string     `json:"identifier"      gorm:"type:varchar(8);not null;uniqueIndex:ux_identifier_token,priority:1;index"`
	IssuedAt       time.Time  `json:"issued_at"       gorm:"not null"`
	ExpiresAt      time.Time  `json:"expires_at"      gorm:"not null;index"`
	IsUsed         bool       `json:"is_used"         gorm:"not null;default:false"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
	ConversationID *string    `json:"conversation_id,omitempty" gorm:"type:char(36)"`
}

// TableName returns the database table name for PairingToken.
func (PairingToken) TableName() string { return "pairing_tokens" }

// ChatSession is the binding created at redemption time and re-validated on
// each chat access. Its identity is immutable; only LastAccessedAt moves.
type ChatSession struct {
	SessionID      string    `json:"session_id"       gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id"  gorm:"type:char(36);not null;index"`
	ProviderID     string    `json:"provider_id"      gorm:"type:varchar(64);not null;index"`
	Identifier     string    `json:"identifier"       gorm:"type:varchar(8);not null"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// Conversation is a customer-provider message thread opened by a successful
// token redemption. Status transitions to "closed" only via explicit
// provider action.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ProviderID: owning provider; indexed for dashboard listings.
//   - CustomerName / CustomerContact: as supplied by the pairing flow; the
//     contact is the normalized phone number or platform handle.
//   - Platform: chat platform tag the thread is bound to ("whatsapp",
//     "viber", "telegram"); drives dispatcher selection.
//   - State: automated-exchange lifecycle state (see internal/convo).
//   - Status: "active" or "closed".
//   - LastMessageAt: bumped on every message in either direction.
type Conversation struct {
	ID              string    `json:"id"               gorm:"type:char(36);primaryKey"`
	ProviderID      string    `json:"provider_id"      gorm:"type:varchar(64);not null;index:idx_provider_convs"`
	CustomerName    string    `json:"customer_name"    gorm:"type:varchar(128)"`
	CustomerContact string    `json:"customer_contact" gorm:"type:varchar(64)"`
	Platform        string    `json:"platform"         gorm:"type:varchar(16)"`
	State           string    `json:"state"            gorm:"type:varchar(32)"`
	Status          string    `json:"status"           gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','closed')"`
	CreatedAt       time.Time `json:"created_at"`
	LastMessageAt   time.Time `json:"last_message_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Notification is a persisted record of a domain event requiring user
// attention. It is mutated only by the read-flag transition.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - UserID: recipient; indexed for listing and unread counting.
//   - Type: stable event type tag (e.g. "new_conversation").
//   - Title / Message: rendered template text (Bulgarian).
//   - Data: JSON-encoded event payload for the client.
//   - Read: read flag; flips false→true once, never back.
type Notification struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;index:idx_user_notifications"`
	Type      string    `json:"type"       gorm:"type:varchar(48);not null"`
	Title     string    `json:"title"      gorm:"type:varchar(255);not null"`
	Message   string    `json:"message"    gorm:"type:text;not null"`
	Data      string    `json:"data"       gorm:"type:text"`
	Read      bool      `json:"read"       gorm:"not null;default:false;index:idx_user_notifications_unread"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }
