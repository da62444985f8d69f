// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ProviderIdentifier model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When an identifier is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - CreateIdentifier surfaces unique violations as ErrDuplicate so the
//     service layer can retry with a freshly generated identifier.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/uslugibg/chat-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetIdentifierByProvider fetches the identifier mapping owned by providerID.
// Returns ErrNotFound when no mapping exists yet.
func GetIdentifierByProvider(ctx context.Context, db *gorm.DB, providerID string) (*domain.ProviderIdentifier, error) {
	var pi domain.ProviderIdentifier
	err := db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		First(&pi).Error
	if err != nil {
		return nil, err
	}
	return &pi, nil
}

// GetIdentifier fetches an identifier row by its public value.
// Returns ErrNotFound when absent.
func GetIdentifier(ctx context.Context, db *gorm.DB, identifier string) (*domain.ProviderIdentifier, error) {
	var pi domain.ProviderIdentifier
	err := db.WithContext(ctx).
		Where("identifier = ?", identifier).
		First(&pi).Error
	if err != nil {
		return nil, err
	}
	return &pi, nil
}

// CreateIdentifier inserts a new identifier mapping for providerID.
// A collision on the identifier primary key (or on the provider uniqueness
// constraint) is reported as ErrDuplicate so callers can regenerate and retry.
func CreateIdentifier(ctx context.Context, db *gorm.DB, identifier, providerID string) (*domain.ProviderIdentifier, error) {
	pi := &domain.ProviderIdentifier{
		Identifier: identifier,
		ProviderID: providerID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(pi).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return pi, nil
}
