package repository

import (
	"context"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoDBのコレクション名
const (
	usersCollection       = "users"
	identitiesCollection  = "identities"
	revocationsCollection = "revoked_tokens"
	propertiesCollection  = "properties"
)

// EnsureMongoIndexes は各コレクションのインデックスを作成する。
// usersのemail一意インデックスが重複判定の根拠となる。
// revoked_tokensはexpires_atのTTLインデックスで期限切れの記録が自動削除される。
// 何度実行しても同じ結果になる。
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
		identitiesCollection: {
			{
				Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "provider_user_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		revocationsCollection: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
		propertiesCollection: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
			{Keys: bson.D{{Key: "is_featured", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
	}

	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// objectID は16進文字列のIDをObjectIDに変換する。変換できない場合はfalseを返す。
func objectID(id string) (bson.ObjectID, bool) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.NilObjectID, false
	}
	return oid, true
}

// containsPattern は大文字小文字を区別しない部分一致の正規表現を返す。
// 入力はリテラルとして扱う。
func containsPattern(s string) bson.Regex {
	return bson.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}
