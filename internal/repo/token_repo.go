// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// PairingToken model.
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving the redemption rules to the services package.
//
// Error semantics:
//   - When a token is not found, functions return gorm.ErrRecordNotFound
//     (exported as ErrNotFound).
//   - MarkTokenUsed is a compare-and-set: it only updates rows that are still
//     unused, and reports ErrNotFound when zero rows were affected. The
//     service layer translates that into "already used" because it has
//     already observed the row to exist.
//
// Functions:
//
//   - CreateToken(ctx, db, identifier, token, issuedAt, expiresAt) -> *domain.PairingToken, error
//     Inserts a new unused token row scoped to identifier.
//
//   - GetToken(ctx, db, identifier, token) -> *domain.PairingToken, error
//     Fetches the (identifier, token) pair, used or not.
//
//   - GetActiveToken(ctx, db, identifier, now) -> *domain.PairingToken, error
//     Fetches the single unused, unexpired token for identifier, if any.
//
//   - DeleteLapsedTokens(ctx, db, identifier, now) -> (int64, error)
//     Evicts identifier's expired-but-unused rows from the active slot.
//
//   - MarkTokenUsed(ctx, db, id, usedAt, conversationID) -> error
//     Flips is_used for a still-unused row and stamps used_at/conversation_id.
//
//   - DeleteExpiredTokens(ctx, db, now, usedGrace) -> (int64, error)
//     Maintenance sweep: removes expired tokens and used tokens past grace.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/uslugibg/chat-backend/internal/domain"
)

// CreateToken inserts a new unused PairingToken scoped to identifier.
// Uniqueness of (identifier, token) is enforced by the schema; a violation
// is surfaced as ErrDuplicate.
func CreateToken(ctx context.Context, db *gorm.DB, identifier, token string, issuedAt, expiresAt time.Time) (*domain.PairingToken, error) {
	t := &domain.PairingToken{
		ID:         uuid.NewString(),
		Token:      token,
		Identifier: identifier,
		IssuedAt:   issuedAt,
		ExpiresAt:  expiresAt,
		IsUsed:     false,
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return t, nil
}

// GetToken fetches the token row for the (identifier, token) pair regardless
// of its used/expired state. Returns ErrNotFound when absent.
func GetToken(ctx context.Context, db *gorm.DB, identifier, token string) (*domain.PairingToken, error) {
	var t domain.PairingToken
	err := db.WithContext(ctx).
		Where("identifier = ? AND token = ?", identifier, token).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetActiveToken fetches the unused, unexpired token for identifier.
// At most one such row exists at any time (service-layer invariant).
// Returns ErrNotFound when none exists.
func GetActiveToken(ctx context.Context, db *gorm.DB, identifier string, now time.Time) (*domain.PairingToken, error) {
	var t domain.PairingToken
	err := db.WithContext(ctx).
		Where("identifier = ? AND is_used = ? AND expires_at > ?", identifier, false, now).
		Order("issued_at desc").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteLapsedTokens removes identifier's unused tokens that are already
// past expiry. Such rows occupy the single active-token slot enforced by
// the ux_active_token index; issuance evicts them before reinserting.
// Returns the number of rows removed.
func DeleteLapsedTokens(ctx context.Context, db *gorm.DB, identifier string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Where("identifier = ? AND is_used = ? AND expires_at <= ?", identifier, false, now).
		Delete(&domain.PairingToken{})
	return res.RowsAffected, res.Error
}

// MarkTokenUsed marks the token row identified by id as used, stamping
// used_at and the conversation it opened. The WHERE clause requires the row
// to still be unused, so concurrent redemption attempts race on a single
// UPDATE: exactly one succeeds, the rest affect zero rows and get ErrNotFound.
func MarkTokenUsed(ctx context.Context, db *gorm.DB, id string, usedAt time.Time, conversationID string) error {
	res := db.WithContext(ctx).
		Model(&domain.PairingToken{}).
		Where("id = ? AND is_used = ?", id, false).
		Updates(map[string]any{
			"is_used":         true,
			"used_at":         usedAt,
			"conversation_id": conversationID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteExpiredTokens removes tokens past their expiry, plus used tokens
// whose used_at is older than usedGrace ago. Returns the number of rows
// removed. The sweep is best-effort and never escalates partial failures.
func DeleteExpiredTokens(ctx context.Context, db *gorm.DB, now time.Time, usedGrace time.Duration) (int64, error) {
	res := db.WithContext(ctx).
		Where("expires_at < ?", now).
		Or("is_used = ? AND used_at < ?", true, now.Add(-usedGrace)).
		Delete(&domain.PairingToken{})
	return res.RowsAffected, res.Error
}
