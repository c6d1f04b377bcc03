// Package auth は資格情報の検証、セッショントークンの発行・失効、
// 外部IdPによるサインインを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/rentals/internal/form"
	"github.com/hitoshi/rentals/internal/metrics"
	"github.com/hitoshi/rentals/internal/model"
	"github.com/hitoshi/rentals/internal/repository"
	"github.com/hitoshi/rentals/internal/revalidate"
	"github.com/hitoshi/rentals/internal/security"
)

// DefaultRefreshAfter はセッションをユーザーレコードから再構築するまでの経過時間の既定値。
const DefaultRefreshAfter = 24 * time.Hour

// FailureKind は認証失敗の内訳。ログとメトリクスにのみ使用する。
type FailureKind string

const (
	FailureUserNotFound       FailureKind = "user_not_found"
	FailureAccountDeactivated FailureKind = "account_deactivated"
	FailureNoPassword         FailureKind = "no_password_configured"
	FailureInvalidPassword    FailureKind = "invalid_password"
)

// AuthFailure は資格情報の検証失敗を表す。
// 呼び出し元に返すメッセージは種別によらず同一にすること。
type AuthFailure struct {
	Kind FailureKind
}

func (f *AuthFailure) Error() string {
	return "authentication failed: " + string(f.Kind)
}

// ErrSessionEnded はセッションが無効・失効済み、またはユーザーが利用できなくなったことを表す。
var ErrSessionEnded = errors.New("session ended")

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	RefreshAfter time.Duration
}

// ServiceDeps は認証サービスの依存関係。
type ServiceDeps struct {
	Users       repository.UserRepository
	Identities  repository.IdentityRepository
	Revocations repository.RevocationRepository
	Hasher      *security.PasswordHasher
	Tokens      *TokenManager
	Providers   *ProviderRegistry
	Metrics     metrics.MetricsCollector
	Revalidate  revalidate.Publisher
}

// SignInResult はサインイン成功時の結果。
type SignInResult struct {
	Token   string
	Session *model.Session
	User    *model.User
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	deps   ServiceDeps
	config ServiceConfig
	now    func() time.Time

	dummyOnce   sync.Once
	dummyDigest string
}

// NewService はServiceを生成する。
func NewService(deps ServiceDeps, config ServiceConfig) *Service {
	if config.RefreshAfter <= 0 {
		config.RefreshAfter = DefaultRefreshAfter
	}
	deps.Metrics = metrics.OrNop(deps.Metrics)
	return &Service{deps: deps, config: config, now: time.Now}
}

// Authenticate はメールアドレスとパスワードを検証する。
// ユーザー不在、無効化済み、パスワード未設定、パスワード不一致の順に判定し、
// 失敗時は*AuthFailureを返す。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.deps.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		// 応答時間でアカウントの有無が分からないようにする
		s.deps.Hasher.Verify(password, s.placeholderDigest())
		return nil, &AuthFailure{Kind: FailureUserNotFound}
	}
	if !user.IsActive {
		return nil, &AuthFailure{Kind: FailureAccountDeactivated}
	}
	if !user.HasPassword() {
		return nil, &AuthFailure{Kind: FailureNoPassword}
	}
	if !s.deps.Hasher.Verify(password, user.PasswordHash) {
		return nil, &AuthFailure{Kind: FailureInvalidPassword}
	}
	return user, nil
}

func (s *Service) placeholderDigest() string {
	s.dummyOnce.Do(func() {
		s.dummyDigest, _ = s.deps.Hasher.Hash("placeholder-password")
	})
	return s.dummyDigest
}

// SignIn は入力を検証し、資格情報が正しければセッションを発行する。
// 認証失敗の内訳はログとメトリクスにのみ残し、呼び出し元には共通のエラーを返す。
func (s *Service) SignIn(ctx context.Context, in form.SignIn) (*SignInResult, error) {
	if err := form.Check(in); err != nil {
		return nil, err
	}

	user, err := s.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		var failure *AuthFailure
		if errors.As(err, &failure) {
			s.rejectSignIn(failure.Kind, in.Email, "password")
			return nil, model.NewInvalidCredentialsError()
		}
		return nil, err
	}

	return s.startSession(user, "password")
}

func (s *Service) rejectSignIn(kind FailureKind, email, method string) {
	s.deps.Metrics.RecordSignIn(string(kind))
	slog.Warn("sign in rejected",
		slog.String("reason", string(kind)),
		slog.String("email", email),
		slog.String("method", method),
	)
}

func (s *Service) startSession(user *model.User, method string) (*SignInResult, error) {
	token, session, err := s.deps.Tokens.Issue(model.IdentityOf(user))
	if err != nil {
		return nil, err
	}

	s.deps.Metrics.RecordSignIn(metrics.SignInSuccess)
	slog.Info("user signed in",
		slog.String("user_id", user.ID),
		slog.String("method", method),
	)
	return &SignInResult{Token: token, Session: session, User: user}, nil
}

// SignOut はトークンを失効させる。トークンが空・不正・失効済みでもエラーにしない。
func (s *Service) SignOut(ctx context.Context, token string) error {
	session, err := s.deps.Tokens.Read(token)
	if err != nil {
		return nil
	}

	if err := s.deps.Revocations.Revoke(ctx, session.ID, session.UserID, session.ExpiresAt); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	slog.Info("user signed out", slog.String("user_id", session.UserID))
	return nil
}

// ResumeSession はリクエストのトークンからセッションを復元する。
// 名前と管理者権限はリクエストごとにユーザーレコードから取り直す。
// 発行からRefreshAfterを過ぎたトークン、または内容が古くなったトークンは
// 新しいトークンを返す（更新不要の場合は空文字）。置き換えた旧トークンは失効させず、
// 同時に送られたリクエストも有効期限までは通す。
// ユーザーが削除・無効化されている場合はErrSessionEndedを返す。
func (s *Service) ResumeSession(ctx context.Context, token string) (*model.Session, string, error) {
	session, err := s.deps.Tokens.Read(token)
	if err != nil {
		return nil, "", ErrSessionEnded
	}

	revoked, err := s.deps.Revocations.IsRevoked(ctx, session.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return nil, "", ErrSessionEnded
	}

	user, err := s.deps.Users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive {
		s.revokeQuietly(ctx, session)
		slog.Info("session ended for unavailable user", slog.String("user_id", session.UserID))
		return nil, "", ErrSessionEnded
	}

	current := model.IdentityOf(user)
	if current == session.Identity() && s.now().Sub(session.IssuedAt) < s.config.RefreshAfter {
		return session, "", nil
	}

	fresh, refreshed, err := s.deps.Tokens.Issue(current)
	if err != nil {
		return nil, "", err
	}
	return refreshed, fresh, nil
}

func (s *Service) revokeQuietly(ctx context.Context, session *model.Session) {
	if err := s.deps.Revocations.Revoke(ctx, session.ID, session.UserID, session.ExpiresAt); err != nil {
		slog.Warn("failed to revoke session",
			slog.String("user_id", session.UserID),
			slog.String("error", err.Error()),
		)
	}
}

// ProviderNames は利用可能な外部IdPの名前を返す。
func (s *Service) ProviderNames() []string {
	return s.deps.Providers.Names()
}

// LoginURL は指定IdPの認証URLを返す。未対応のIdPにはUNKNOWN_PROVIDERエラーを返す。
func (s *Service) LoginURL(provider, state string) (string, error) {
	p, ok := s.deps.Providers.Lookup(provider)
	if !ok {
		return "", model.NewUnknownProviderError(provider)
	}
	return p.LoginURL(state), nil
}

// SocialSignIn は外部IdPのコールバックを処理し、セッションを発行する。
// 紐付け済みのユーザー、同じメールアドレスのユーザー、新規ユーザーの順に解決する。
// IdPとのやり取りの失敗は共通メッセージ（"error 500"）で返す。
func (s *Service) SocialSignIn(ctx context.Context, provider, code string) (*SignInResult, error) {
	p, ok := s.deps.Providers.Lookup(provider)
	if !ok {
		return nil, model.NewUnknownProviderError(provider)
	}

	profile, err := p.ExchangeCode(ctx, code)
	if err != nil {
		s.deps.Metrics.RecordSignIn("provider_failed")
		slog.Error("provider exchange failed",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
		)
		return nil, model.NewProviderFailedError()
	}

	user, err := s.resolveProviderUser(ctx, profile)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		s.rejectSignIn(FailureAccountDeactivated, user.Email, p.Name())
		return nil, model.NewInvalidCredentialsError()
	}

	return s.startSession(user, p.Name())
}

func (s *Service) resolveProviderUser(ctx context.Context, profile *ProviderProfile) (*model.User, error) {
	identity, err := s.deps.Identities.FindByProviderAndProviderUserID(ctx, profile.Provider, profile.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity != nil {
		user, err := s.deps.Users.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user != nil {
			return user, nil
		}
	}

	email := form.NormalizeEmail(profile.Email)
	if email == "" {
		slog.Error("provider returned no email", slog.String("provider", profile.Provider))
		return nil, model.NewProviderFailedError()
	}

	if !profile.EmailVerified {
		// 未検証のアドレスでは既存アカウントへの紐付けも新規作成も行わない
		s.deps.Metrics.RecordSignIn("email_unverified")
		slog.Warn("provider email not verified",
			slog.String("provider", profile.Provider),
			slog.String("provider_user_id", profile.ProviderUserID),
		)
		return nil, model.NewEmailUnverifiedError()
	}

	link := &model.ExternalIdentity{
		Provider:       profile.Provider,
		ProviderUserID: profile.ProviderUserID,
	}

	existing, err := s.deps.Users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return s.linkIdentity(ctx, existing, link)
	}

	user := &model.User{Email: email, IsActive: true}
	user.SetNames(splitName(profile.Name))
	err = s.deps.Users.CreateWithIdentity(ctx, user, link)
	if errors.Is(err, repository.ErrDuplicateEmail) {
		// 同時に作成された場合は作成済みのユーザーに紐付ける
		existing, err = s.deps.Users.FindByEmail(ctx, email)
		if err != nil || existing == nil {
			return nil, fmt.Errorf("failed to find concurrently created user: %w", err)
		}
		return s.linkIdentity(ctx, existing, link)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	s.deps.Metrics.RecordAccountAction("social_sign_up")
	revalidate.Notify(ctx, s.deps.Revalidate, "social_sign_up", revalidate.PathAdminUsers)
	slog.Info("new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", profile.Provider),
	)
	return user, nil
}

func (s *Service) linkIdentity(ctx context.Context, user *model.User, link *model.ExternalIdentity) (*model.User, error) {
	link.UserID = user.ID
	if err := s.deps.Identities.Create(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to link identity: %w", err)
	}
	slog.Info("identity linked",
		slog.String("user_id", user.ID),
		slog.String("provider", link.Provider),
	)
	return user, nil
}

// splitName は表示名を姓名に分割する。最初の空白より前を名とする。
func splitName(name string) (string, string) {
	first, last, _ := strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(last)
}
