package services

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/uslugibg/chat-backend/internal/domain"
	"github.com/uslugibg/chat-backend/internal/repo"
)

// fakeIdentifierRepo is an in-memory IdentifierRepo. createErrs lets a test
// inject duplicate errors for the first N create calls to exercise the
// collision-retry loop.
type fakeIdentifierRepo struct {
	byProvider map[string]*domain.ProviderIdentifier
	byID       map[string]*domain.ProviderIdentifier
	createErrs []error
	creates    int
}

func newFakeIdentifierRepo() *fakeIdentifierRepo {
	return &fakeIdentifierRepo{
		byProvider: map[string]*domain.ProviderIdentifier{},
		byID:       map[string]*domain.ProviderIdentifier{},
	}
}

func (f *fakeIdentifierRepo) GetIdentifierByProvider(ctx context.Context, db *gorm.DB, providerID string) (*domain.ProviderIdentifier, error) {
	if rec, ok := f.byProvider[providerID]; ok {
		return rec, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeIdentifierRepo) GetIdentifier(ctx context.Context, db *gorm.DB, identifier string) (*domain.ProviderIdentifier, error) {
	if rec, ok := f.byID[identifier]; ok {
		return rec, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeIdentifierRepo) CreateIdentifier(ctx context.Context, db *gorm.DB, identifier, providerID string) (*domain.ProviderIdentifier, error) {
	f.creates++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	rec := &domain.ProviderIdentifier{Identifier: identifier, ProviderID: providerID}
	f.byProvider[providerID] = rec
	f.byID[identifier] = rec
	return rec, nil
}

func TestGetOrCreate_ReturnsExisting(t *testing.T) {
	fake := newFakeIdentifierRepo()
	fake.byProvider["user-1"] = &domain.ProviderIdentifier{Identifier: "a7K", ProviderID: "user-1"}
	registry := NewIdentifierRegistry(nil, fake)

	got, err := registry.GetOrCreate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a7K" {
		t.Fatalf("got %q, want a7K", got)
	}
	if fake.creates != 0 {
		t.Fatalf("creates = %d, want 0", fake.creates)
	}
}

func TestGetOrCreate_GeneratesOnce(t *testing.T) {
	fake := newFakeIdentifierRepo()
	registry := NewIdentifierRegistry(nil, fake)

	first, err := registry.GetOrCreate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != identifierLength+len(IdentifierSeparator) {
		t.Fatalf("identifier %q has length %d, want %d", first, len(first), identifierLength+len(IdentifierSeparator))
	}

	second, err := registry.GetOrCreate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != first {
		t.Fatalf("got %q on second call, want %q", second, first)
	}
	if fake.creates != 1 {
		t.Fatalf("creates = %d, want 1", fake.creates)
	}
}

func TestGetOrCreate_RetriesOnCollision(t *testing.T) {
	fake := newFakeIdentifierRepo()
	fake.createErrs = []error{repo.ErrDuplicate, repo.ErrDuplicate}
	registry := NewIdentifierRegistry(nil, fake)

	got, err := registry.GetOrCreate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == "" {
		t.Fatalf("empty identifier after retries")
	}
	if fake.creates != 3 {
		t.Fatalf("creates = %d, want 3", fake.creates)
	}
}

func TestGetOrCreate_ExhaustsRetries(t *testing.T) {
	fake := newFakeIdentifierRepo()
	for i := 0; i < maxIdentifierAttempts; i++ {
		fake.createErrs = append(fake.createErrs, repo.ErrDuplicate)
	}
	registry := NewIdentifierRegistry(nil, fake)

	_, err := registry.GetOrCreate(context.Background(), "user-1")
	if !errors.Is(err, ErrIdentifierGenerationFailed) {
		t.Fatalf("got %v, want ErrIdentifierGenerationFailed", err)
	}
}

func TestGetOrCreate_PropagatesRepoError(t *testing.T) {
	boom := errors.New("disk on fire")
	fake := newFakeIdentifierRepo()
	fake.createErrs = []error{boom}
	registry := NewIdentifierRegistry(nil, fake)

	_, err := registry.GetOrCreate(context.Background(), "user-1")
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want wrapped %v", err, boom)
	}
}

func TestResolve(t *testing.T) {
	fake := newFakeIdentifierRepo()
	fake.byID["a7K"] = &domain.ProviderIdentifier{Identifier: "a7K", ProviderID: "user-1"}
	registry := NewIdentifierRegistry(nil, fake)

	got, err := registry.Resolve(context.Background(), "a7K")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "user-1" {
		t.Fatalf("got %q, want user-1", got)
	}

	if _, err := registry.Resolve(context.Background(), "zzz"); !errors.Is(err, ErrIdentifierNotFound) {
		t.Fatalf("got %v, want ErrIdentifierNotFound", err)
	}
}
