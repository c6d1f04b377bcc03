package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// revokedKeyPrefix は失効記録のキーの接頭辞。
const revokedKeyPrefix = "revoked:token:"

// RedisRevocationRepo はRedisを使用したトークン失効リポジトリ。
// 記録はトークンの有効期限をTTLとして保存され、期限切れと同時に消える。
type RedisRevocationRepo struct {
	client *redis.Client
}

// NewRedisRevocationRepo はRedisRevocationRepoを生成する。
func NewRedisRevocationRepo(client *redis.Client) *RedisRevocationRepo {
	return &RedisRevocationRepo{client: client}
}

// Revoke はトークンIDを失効させる。有効期限を過ぎたトークンは記録しない。
func (r *RedisRevocationRepo) Revoke(ctx context.Context, tokenID, userID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := r.client.SetNX(ctx, revokedKeyPrefix+tokenID, userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked はトークンIDが失効済みかを返す。
func (r *RedisRevocationRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired はTTLで自動削除されるため何もしない。
func (r *RedisRevocationRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// compile-time interface check
var _ RevocationRepository = (*RedisRevocationRepo)(nil)
