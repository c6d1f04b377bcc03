package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/rentals/internal/model"
)

// ErrInvalidToken はトークンの署名・形式・有効期限のいずれかが不正であることを表す。
var ErrInvalidToken = errors.New("invalid session token")

// Claims はセッショントークンのクレーム。
// メールアドレスやパスワードダイジェストは含めない。
type Claims struct {
	Name    string `json:"name"`
	IsAdmin bool   `json:"isadmin"`
	jwt.RegisteredClaims
}

// TokenManager はHS256で署名したセッショントークンの発行と検証を行う。
type TokenManager struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewTokenManager はTokenManagerを生成する。
func NewTokenManager(secret string, maxAge time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), maxAge: maxAge, now: time.Now}
}

// MaxAge はトークンの有効期間を返す。
func (m *TokenManager) MaxAge() time.Duration {
	return m.maxAge
}

// Issue は認証済みユーザーのセッショントークンを発行する。
func (m *TokenManager) Issue(identity model.Identity) (string, *model.Session, error) {
	now := m.now().Truncate(time.Second)
	session := &model.Session{
		ID:        uuid.NewString(),
		UserID:    identity.UserID,
		Name:      identity.Name,
		IsAdmin:   identity.IsAdmin,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.maxAge),
	}

	claims := Claims{
		Name:    session.Name,
		IsAdmin: session.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			ID:        session.ID,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, session, nil
}

// Read はトークンを検証し、セッションを復元する。
// 不正なトークンにはErrInvalidTokenを返す。
func (m *TokenManager) Read(token string) (*model.Session, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.ID == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}

	return &model.Session{
		ID:        claims.ID,
		UserID:    claims.Subject,
		Name:      claims.Name,
		IsAdmin:   claims.IsAdmin,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
