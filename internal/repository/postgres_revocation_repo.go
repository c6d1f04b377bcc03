package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRevocationRepo はPostgreSQLを使用したトークン失効リポジトリ。
type PostgresRevocationRepo struct {
	db *sql.DB
}

// NewPostgresRevocationRepo はPostgresRevocationRepoを生成する。
func NewPostgresRevocationRepo(db *sql.DB) *PostgresRevocationRepo {
	return &PostgresRevocationRepo{db: db}
}

// Revoke はトークンIDを失効させる。
func (r *PostgresRevocationRepo) Revoke(ctx context.Context, tokenID, userID string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (token_id, user_id, expires_at, revoked_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (token_id) DO NOTHING`,
		tokenID, userID, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked はトークンIDが失効済みかを返す。
func (r *PostgresRevocationRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = $1)`,
		tokenID,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return revoked, nil
}

// DeleteExpired は有効期限を過ぎた失効記録を削除する。
// 期限切れのトークンは署名検証で拒否されるため、記録を残す必要はない。
func (r *PostgresRevocationRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired revocations: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ RevocationRepository = (*PostgresRevocationRepo)(nil)
