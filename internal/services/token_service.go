// Package services : TokenLedger
//
// This file implements the TokenLedger, which issues, rotates, expires, and
// atomically redeems one-time pairing tokens scoped to a provider identifier.
// The provider's shareable link endpoint (the identifier) stays constant
// while each token is single-use: redemption consumes the token and mints a
// replacement within the same transaction, so the next SMS always carries a
// valid link.
//
// The redemption unit persists, in order: token-marked-used, conversation
// row, session row, replacement token. The mark step is a compare-and-set on
// is_used, so concurrent redemptions of the same (identifier, token) pair
// yield exactly one success; the rest observe ErrTokenAlreadyUsed.
//
// Observability: the redemption and initialization paths are
// OpenTelemetry-instrumented; spans include identifier and user attributes.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/uslugibg/chat-backend/internal/domain"
	"github.com/uslugibg/chat-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// tokenAlphabet is the generation alphabet for pairing tokens (36^8 keyspace).
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// tokenLength is the pairing-token length.
	tokenLength = 8
	// maxTokenAttempts bounds regeneration when an (identifier, token) pair
	// collides. Practically unreachable at this keyspace.
	maxTokenAttempts = 3

	// DefaultTokenTTL is the issuance-to-expiry window for pairing tokens.
	DefaultTokenTTL = 7 * 24 * time.Hour
	// DefaultUsedGrace is how long used tokens are retained for the sweep.
	DefaultUsedGrace = 24 * time.Hour
)

// PairingLink is the result of initializing (or re-reading) a provider's
// pairing endpoint: the stable identifier plus the currently active token.
type PairingLink struct {
	Identifier string    `json:"identifier"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Redemption is the result of a successful ValidateAndUse call: the rows the
// transaction created plus the freshly minted replacement token.
type Redemption struct {
	Conversation *domain.Conversation
	Session      *domain.ChatSession
	NewToken     *domain.PairingToken
}

// TokenLedger owns the pairing-token lifecycle. It coordinates the
// IdentifierRegistry for lazy identifier creation and the SessionManager for
// the conversation/session rows created inside the redemption transaction.
type TokenLedger struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Registry resolves and lazily creates provider identifiers.
	Registry *IdentifierRegistry
	// Sessions binds redemptions to conversation and session rows.
	Sessions *SessionManager

	// TokenTTL is the issuance-to-expiry window; defaults to 7 days.
	TokenTTL time.Duration
	// UsedGrace is the retention window for used tokens; defaults to 1 day.
	UsedGrace time.Duration

	// now is a clock seam for expiry tests.
	now func() time.Time
}

// NewTokenLedger constructs a TokenLedger with the default TTL windows.
func NewTokenLedger(db *gorm.DB, registry *IdentifierRegistry, sessions *SessionManager) *TokenLedger {
	return &TokenLedger{
		DB:        db,
		Registry:  registry,
		Sessions:  sessions,
		TokenTTL:  DefaultTokenTTL,
		UsedGrace: DefaultUsedGrace,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// InitializeForUser ensures the provider has an identifier and an active
// pairing token, issuing either lazily. Idempotent: repeated calls without a
// redemption in between return the same token, so it is safe to invoke on
// every missed call. Overlapping calls for one provider converge on a single
// token; the ux_active_token index arbitrates and losers return the
// winner's link.
func (s *TokenLedger) InitializeForUser(ctx context.Context, userID string) (*PairingLink, error) {
	tr := otel.Tracer("services/TokenLedger")
	ctx, span := tr.Start(ctx, "InitializeForUser",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	identifier, err := s.Registry.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	tok, err := repo.GetActiveToken(ctx, s.DB, identifier, s.now())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		tok, err = s.issue(ctx, s.DB, identifier)
	}
	if err != nil {
		return nil, err
	}

	return &PairingLink{Identifier: identifier, Token: tok.Token, ExpiresAt: tok.ExpiresAt}, nil
}

// Issue ensures identifier holds exactly one active token and returns it,
// minting a fresh one with expiry now+TTL when the slot is free. When a
// concurrent issuer wins the slot first, the winner's token is returned
// instead of a second one.
func (s *TokenLedger) Issue(ctx context.Context, identifier string) (*domain.PairingToken, error) {
	return s.issue(ctx, s.DB, identifier)
}

// issue is the transaction-aware issuance used by both Issue and the
// redemption unit (which passes its tx handle).
//
// The ux_active_token partial index makes the insert the arbiter of the
// one-active-token rule. A duplicate therefore means one of three things:
// a concurrent issuer won the slot (re-read and return its token), an
// expired unused row still occupies the slot (evict it and retry), or the
// token string itself collided with an old row for this identifier (retry
// with a new string).
func (s *TokenLedger) issue(ctx context.Context, db *gorm.DB, identifier string) (*domain.PairingToken, error) {
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.ttl())

	var lastErr error
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := randomString(tokenAlphabet, tokenLength)
		if err != nil {
			return nil, err
		}
		tok, err := repo.CreateToken(ctx, db, identifier, token, issuedAt, expiresAt)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, repo.ErrDuplicate) {
			return nil, err
		}

		cur, aerr := repo.GetActiveToken(ctx, db, identifier, s.now())
		if aerr == nil {
			return cur, nil
		}
		if !errors.Is(aerr, gorm.ErrRecordNotFound) {
			return nil, aerr
		}

		// No live token, so the slot is held by a lapsed row the sweep
		// has not reached yet. Evict and retry the insert.
		if _, derr := repo.DeleteLapsedTokens(ctx, db, identifier, s.now()); derr != nil {
			return nil, derr
		}
		lastErr = err
	}
	return nil, fmt.Errorf("token generation exhausted retries: %w", lastErr)
}

// ValidateAndUse redeems the (identifier, token) pair on behalf of a
// customer. On success it atomically marks the token used, creates the
// Conversation and ChatSession rows, and issues a replacement token for the
// same identifier, all in one transaction.
//
// Failure modes are typed and mutually distinguishable:
//   - ErrTokenNotFound:    the pair does not exist
//   - ErrTokenAlreadyUsed: the token was consumed (possibly concurrently)
//   - ErrTokenExpired:     past expiry; the row is not mutated
func (s *TokenLedger) ValidateAndUse(ctx context.Context, identifier, token string, customer CustomerInfo) (*Redemption, error) {
	tr := otel.Tracer("services/TokenLedger")
	ctx, span := tr.Start(ctx, "ValidateAndUse",
		trace.WithAttributes(attribute.String("pairing.identifier", identifier)),
	)
	defer span.End()

	providerID, err := s.Registry.Resolve(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrIdentifierNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	var out Redemption
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tok, err := repo.GetToken(ctx, tx, identifier, token)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTokenNotFound
			}
			return err
		}
		if tok.IsUsed {
			return ErrTokenAlreadyUsed
		}
		if tok.ExpiresAt.Before(s.now()) {
			return ErrTokenExpired
		}

		conversationID := uuid.NewString()

		// 1) Consume the token. The CAS fails with zero rows affected when a
		// concurrent redemption got here first.
		if err := repo.MarkTokenUsed(ctx, tx, tok.ID, s.now(), conversationID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTokenAlreadyUsed
			}
			return err
		}

		// 2+3) Conversation, then session, bound to the consumed token.
		conv, sess, err := s.Sessions.Bind(ctx, tx, conversationID, providerID, identifier, customer)
		if err != nil {
			return err
		}

		// 4) Rotate: mint the replacement so the provider's link endpoint
		// stays valid for the next customer.
		next, err := s.issue(ctx, tx, identifier)
		if err != nil {
			return err
		}

		out = Redemption{Conversation: conv, Session: sess, NewToken: next}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateSession looks up a chat session by id and stamps its
// last-accessed time. Fails with ErrSessionNotFound when absent.
func (s *TokenLedger) ValidateSession(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	sess, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.Sessions.Touch(ctx, sessionID, s.now()); err != nil {
		return nil, err
	}
	sess.LastAccessedAt = s.now()
	return sess, nil
}

// CleanupExpiredTokens deletes tokens past expiry and used tokens older than
// the grace window. Returns the count removed. Intended to run on a
// low-frequency timer; failures are reported but never fatal to the caller.
func (s *TokenLedger) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	return repo.DeleteExpiredTokens(ctx, s.DB, s.now(), s.grace())
}

// PairingURL renders the customer-facing link for a pairing token:
// {baseURL}/u/{identifier}/c/{token}.
func PairingURL(baseURL, identifier, token string) string {
	return fmt.Sprintf("%s/u/%s/c/%s", strings.TrimRight(baseURL, "/"), identifier, token)
}

func (s *TokenLedger) ttl() time.Duration {
	if s.TokenTTL > 0 {
		return s.TokenTTL
	}
	return DefaultTokenTTL
}

func (s *TokenLedger) grace() time.Duration {
	if s.UsedGrace > 0 {
		return s.UsedGrace
	}
	return DefaultUsedGrace
}
