package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoRevocationRepo はMongoDBを使用したトークン失効リポジトリ。
// 期限切れの記録はTTLインデックスでも削除される。
type MongoRevocationRepo struct {
	revocations *mongo.Collection
}

// NewMongoRevocationRepo はMongoRevocationRepoを生成する。
func NewMongoRevocationRepo(db *mongo.Database) *MongoRevocationRepo {
	return &MongoRevocationRepo{revocations: db.Collection(revocationsCollection)}
}

// Revoke はトークンIDを失効させる。
func (r *MongoRevocationRepo) Revoke(ctx context.Context, tokenID, userID string, expiresAt time.Time) error {
	_, err := r.revocations.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: tokenID}},
		bson.D{{Key: "$setOnInsert", Value: bson.D{
			{Key: "user_id", Value: userID},
			{Key: "expires_at", Value: expiresAt},
			{Key: "revoked_at", Value: time.Now().UTC()},
		}}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked はトークンIDが失効済みかを返す。
func (r *MongoRevocationRepo) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.revocations.CountDocuments(ctx, bson.D{{Key: "_id", Value: tokenID}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}

// DeleteExpired は有効期限を過ぎた失効記録を削除する。
func (r *MongoRevocationRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.revocations.DeleteMany(ctx, bson.D{{Key: "expires_at", Value: bson.D{{Key: "$lt", Value: now}}}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired revocations: %w", err)
	}
	return result.DeletedCount, nil
}

// compile-time interface check
var _ RevocationRepository = (*MongoRevocationRepo)(nil)
