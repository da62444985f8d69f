// Package services: IdentifierRegistry
//
// This file implements the IdentifierRegistry, which assigns each provider a
// short public identifier used in shareable chat links. Identifiers are
// created lazily on the first pairing-link request, are globally unique, and
// are immutable once assigned. Generation retries a bounded number of times
// on collision; at the 62^3 keyspace and expected provider counts collisions
// are rare, but the bound keeps failure deterministic instead of looping.
//
// Service-level errors (e.g., ErrIdentifierGenerationFailed) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"

	"gorm.io/gorm"

	"github.com/uslugibg/chat-backend/internal/domain"
	"github.com/uslugibg/chat-backend/internal/repo"
)

const (
	// identifierAlphabet is the generation alphabet for public identifiers.
	identifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// identifierLength is the generated portion, excluding the separator.
	identifierLength = 3
	// IdentifierSeparator terminates every public identifier so the pairing
	// URL segment is self-delimiting.
	IdentifierSeparator = "_"
	// maxIdentifierAttempts bounds collision retries during generation.
	maxIdentifierAttempts = 10
)

// IdentifierRepo defines the repository contract required by IdentifierRegistry.
// Implementations are responsible for persistence of identifier mappings.
type IdentifierRepo interface {
	// GetIdentifierByProvider returns the existing mapping for a provider.
	GetIdentifierByProvider(ctx context.Context, db *gorm.DB, providerID string) (*domain.ProviderIdentifier, error)

	// GetIdentifier returns the mapping addressed by its public value.
	GetIdentifier(ctx context.Context, db *gorm.DB, identifier string) (*domain.ProviderIdentifier, error)

	// CreateIdentifier inserts a mapping; returns repo.ErrDuplicate on collision.
	CreateIdentifier(ctx context.Context, db *gorm.DB, identifier, providerID string) (*domain.ProviderIdentifier, error)
}

// IdentifierRegistry assigns and resolves public provider identifiers.
// It is safe for concurrent use; uniqueness is delegated to the database
// constraint and collisions are retried with fresh candidates.
type IdentifierRegistry struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the identifier repository used by this registry.
	Repo IdentifierRepo
}

// NewIdentifierRegistry constructs an IdentifierRegistry.
func NewIdentifierRegistry(db *gorm.DB, r IdentifierRepo) *IdentifierRegistry {
	return &IdentifierRegistry{DB: db, Repo: r}
}

// GetOrCreate returns the provider's public identifier, creating it on first
// call. Repeat calls return the stored value unchanged (idempotent). When
// every generation attempt collides, it fails with
// ErrIdentifierGenerationFailed.
func (s *IdentifierRegistry) GetOrCreate(ctx context.Context, providerID string) (string, error) {
	if pi, err := s.Repo.GetIdentifierByProvider(ctx, s.DB, providerID); err == nil {
		return pi.Identifier, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	for attempt := 0; attempt < maxIdentifierAttempts; attempt++ {
		candidate, err := randomString(identifierAlphabet, identifierLength)
		if err != nil {
			return "", err
		}
		candidate += IdentifierSeparator

		pi, err := s.Repo.CreateIdentifier(ctx, s.DB, candidate, providerID)
		if err == nil {
			return pi.Identifier, nil
		}
		if errors.Is(err, repo.ErrDuplicate) {
			// Either the identifier collided or a concurrent call won the
			// race for this provider; re-read before retrying.
			if existing, gerr := s.Repo.GetIdentifierByProvider(ctx, s.DB, providerID); gerr == nil {
				return existing.Identifier, nil
			}
			continue
		}
		return "", err
	}
	return "", ErrIdentifierGenerationFailed
}

// Resolve maps a public identifier back to its owning provider id.
// Fails with ErrIdentifierNotFound when the identifier is unknown.
func (s *IdentifierRegistry) Resolve(ctx context.Context, identifier string) (string, error) {
	pi, err := s.Repo.GetIdentifier(ctx, s.DB, identifier)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrIdentifierNotFound
		}
		return "", err
	}
	return pi.ProviderID, nil
}

// randomString samples n characters uniformly from alphabet using crypto/rand.
func randomString(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}
