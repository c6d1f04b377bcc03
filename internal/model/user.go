// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// User はサービス利用ユーザーを表す。
// PasswordHashはbcryptダイジェストで、外部IdP経由で作成されたユーザーは空になる。
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Name         string
	Email        string
	PasswordHash string
	IsAdmin      bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName は姓名から表示名を組み立てる。
func DisplayName(firstName, lastName string) string {
	return strings.TrimSpace(firstName + " " + lastName)
}

// SetNames は姓名を設定し、表示名を再計算する。
func (u *User) SetNames(firstName, lastName string) {
	u.FirstName = firstName
	u.LastName = lastName
	u.Name = DisplayName(firstName, lastName)
}

// HasPassword はパスワードが設定されているかを返す。
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// Identity は認証済みのユーザーを表す。
// セッショントークンから復元され、各アクションに明示的に渡される。
type Identity struct {
	UserID  string
	Name    string
	IsAdmin bool
}

// IdentityOf はユーザーからIdentityを生成する。
func IdentityOf(u *User) Identity {
	return Identity{UserID: u.ID, Name: u.Name, IsAdmin: u.IsAdmin}
}

// ExternalIdentity は外部IdPとの紐付け情報を表す。
type ExternalIdentity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// 署名済みトークンそのものが永続形であり、サーバー側には失効記録のみを保持する。
type Session struct {
	ID        string // トークンID (jti)
	UserID    string
	Name      string
	IsAdmin   bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Identity はセッションの認証済みユーザーを返す。
func (s *Session) Identity() Identity {
	return Identity{UserID: s.UserID, Name: s.Name, IsAdmin: s.IsAdmin}
}
