// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Notification model.
//
// Error semantics:
//   - MarkNotificationRead scopes the update to the owning user; an id that
//     exists but belongs to another user affects zero rows and returns
//     ErrNotFound, so cross-user updates are impossible by construction.
//   - On DB errors the raw gorm error is propagated.
//
// Functions:
//
//   - CreateNotification(ctx, db, userID, typ, title, message, data) -> *domain.Notification, error
//   - ListNotificationsPage(ctx, db, userID, offset, limit) -> []domain.Notification, error
//   - CountNotifications(ctx, db, userID) -> (int64, error)
//   - CountUnread(ctx, db, userID) -> (int64, error)
//   - MarkNotificationRead(ctx, db, id, userID) -> error
//   - MarkAllNotificationsRead(ctx, db, userID) -> (int64, error)
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/uslugibg/chat-backend/internal/domain"
)

// CreateNotification inserts a new unread Notification for userID.
// Data carries the JSON-encoded event payload forwarded to live connections.
func CreateNotification(ctx context.Context, db *gorm.DB, userID, typ, title, message, data string) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Message:   message,
		Data:      data,
		Read:      false,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotificationsPage returns a paginated slice of notifications for
// userID, most recent first. Use CountNotifications for pagination metadata.
func ListNotificationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Notification, error) {
	var out []domain.Notification
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountNotifications returns the total number of notifications for userID.
func CountNotifications(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// CountUnread returns the number of notifications for userID with read=false.
func CountUnread(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&total).Error
	return total, err
}

// MarkNotificationRead flips the read flag for a notification owned by
// userID. Returns ErrNotFound when the row is missing or owned by someone
// else (zero rows affected).
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkAllNotificationsRead flips the read flag on every unread notification
// for userID and returns how many rows changed. Zero is not an error.
func MarkAllNotificationsRead(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	return res.RowsAffected, res.Error
}
