package auth

import (
	"context"
	"time"

	"github.com/hitoshi/rentals/internal/model"
	"github.com/hitoshi/rentals/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn           func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn        func(ctx context.Context, email string) (*model.User, error)
	createWithIdentityFn func(ctx context.Context, user *model.User, identity *model.ExternalIdentity) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) EmailTaken(context.Context, string, string) (bool, error) {
	return false, nil
}

func (m *mockUserRepo) Create(context.Context, *model.User) error {
	return nil
}

func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.ExternalIdentity) error {
	if m.createWithIdentityFn != nil {
		return m.createWithIdentityFn(ctx, user, identity)
	}
	return nil
}

func (m *mockUserRepo) Update(context.Context, *model.User) error {
	return nil
}

func (m *mockUserRepo) SetActive(context.Context, string, bool) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Delete(context.Context, string) error {
	return nil
}

func (m *mockUserRepo) List(context.Context, model.UserListQuery) (*model.UserPage, error) {
	return &model.UserPage{}, nil
}

type mockIdentityRepo struct {
	findByProviderFn func(ctx context.Context, provider, providerUserID string) (*model.ExternalIdentity, error)
	createFn         func(ctx context.Context, identity *model.ExternalIdentity) error
}

func (m *mockIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.ExternalIdentity, error) {
	if m.findByProviderFn != nil {
		return m.findByProviderFn(ctx, provider, providerUserID)
	}
	return nil, nil
}

func (m *mockIdentityRepo) Create(ctx context.Context, identity *model.ExternalIdentity) error {
	if m.createFn != nil {
		return m.createFn(ctx, identity)
	}
	return nil
}

// memoryRevocations はテスト用のインメモリ失効記録。
type memoryRevocations struct {
	revoked   map[string]time.Time
	revokeErr error
}

func newMemoryRevocations() *memoryRevocations {
	return &memoryRevocations{revoked: make(map[string]time.Time)}
}

func (m *memoryRevocations) Revoke(_ context.Context, tokenID, _ string, expiresAt time.Time) error {
	if m.revokeErr != nil {
		return m.revokeErr
	}
	m.revoked[tokenID] = expiresAt
	return nil
}

func (m *memoryRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	_, ok := m.revoked[tokenID]
	return ok, nil
}

func (m *memoryRevocations) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, exp := range m.revoked {
		if exp.Before(now) {
			delete(m.revoked, id)
			n++
		}
	}
	return n, nil
}

type mockOAuthProvider struct {
	name           string
	exchangeCodeFn func(ctx context.Context, code string) (*ProviderProfile, error)
}

func (m *mockOAuthProvider) Name() string {
	if m.name == "" {
		return "google"
	}
	return m.name
}

func (m *mockOAuthProvider) LoginURL(state string) string {
	return "https://idp.example.com/auth?state=" + state
}

func (m *mockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*ProviderProfile, error) {
	if m.exchangeCodeFn != nil {
		return m.exchangeCodeFn(ctx, code)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.IdentityRepository = (*mockIdentityRepo)(nil)
var _ repository.RevocationRepository = (*memoryRevocations)(nil)
var _ OAuthProvider = (*mockOAuthProvider)(nil)
