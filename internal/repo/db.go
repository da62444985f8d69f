// Package repo implements the persistence layer for pairing, conversation,
// and notification records, backed by GORM over the pure Go SQLite driver.
// This file holds the database bootstrap and the schema migration entry
// point; the rest of the package is free functions taking a *gorm.DB.
package repo

import (
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/uslugibg/chat-backend/internal/domain"
)

// OpenSQLite opens or creates the database file and applies the PRAGMAs
// the service relies on. WAL keeps token redemption writes from blocking
// webhook reads; busy_timeout covers the sweep goroutine contending with
// request traffic.
func OpenSQLite(path string) (*gorm.DB, error) {
	// A missing parent directory surfaces as sqlite "out of memory (14)"
	// on some platforms, check it up front.
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate creates or updates the schema for every table the service
// owns. Called once at startup and by tests against in-memory databases.
//
// The partial index is raw SQL because GORM tags cannot express a WHERE
// clause. It pins the at-most-one-active-token rule into the schema:
// concurrent issuers for the same identifier collide on the insert instead
// of both succeeding, and the loser re-reads the winner's token.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&domain.ProviderIdentifier{},
		&domain.PairingToken{},
		&domain.ChatSession{},
		&domain.Conversation{},
		&domain.Notification{},
		&domain.Idempotency{},
	); err != nil {
		return err
	}
	return db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_active_token ON pairing_tokens(identifier) WHERE is_used = 0",
	).Error
}
