package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost はパスワードダイジェストの既定コスト。
const DefaultBcryptCost = 12

// PasswordHasher はパスワードの一方向ハッシュ化と照合を行う。
// 平文パスワードは保持もログ出力もしない。
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher はPasswordHasherを生成する。
// bcryptが受け付けない範囲のコストは既定値に置き換える。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

// Cost は使用中のコストを返す。
func (h *PasswordHasher) Cost() int {
	return h.cost
}

// Hash は平文パスワードからソルト付きダイジェストを生成する。
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// Verify は平文パスワードがダイジェストと一致するかを返す。
// ダイジェストが空または不正な形式の場合はfalseを返す。
func (h *PasswordHasher) Verify(plaintext, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
