package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/hitoshi/rentals/internal/model"
)

// identityDocument はidentitiesコレクションのドキュメント。
type identityDocument struct {
	ID             string    `bson:"_id"`
	UserID         string    `bson:"user_id"`
	Provider       string    `bson:"provider"`
	ProviderUserID string    `bson:"provider_user_id"`
	CreatedAt      time.Time `bson:"createdAt"`
}

// MongoIdentityRepo はMongoDBを使用したidentityリポジトリ。
type MongoIdentityRepo struct {
	identities *mongo.Collection
}

// NewMongoIdentityRepo はMongoIdentityRepoを生成する。
func NewMongoIdentityRepo(db *mongo.Database) *MongoIdentityRepo {
	return &MongoIdentityRepo{identities: db.Collection(identitiesCollection)}
}

// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
// 見つからない場合はnilを返す。
func (r *MongoIdentityRepo) FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.ExternalIdentity, error) {
	var doc identityDocument
	err := r.identities.FindOne(ctx, bson.D{
		{Key: "provider", Value: provider},
		{Key: "provider_user_id", Value: providerUserID},
	}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	return &model.ExternalIdentity{
		ID:             doc.ID,
		UserID:         doc.UserID,
		Provider:       doc.Provider,
		ProviderUserID: doc.ProviderUserID,
		CreatedAt:      doc.CreatedAt,
	}, nil
}

// Create は既存ユーザーにidentityを紐付ける。すでに紐付いている場合は何もしない。
func (r *MongoIdentityRepo) Create(ctx context.Context, identity *model.ExternalIdentity) error {
	return insertIdentity(ctx, r.identities, identity)
}

func insertIdentity(ctx context.Context, coll *mongo.Collection, identity *model.ExternalIdentity) error {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}
	_, err := coll.InsertOne(ctx, identityDocument{
		ID:             identity.ID,
		UserID:         identity.UserID,
		Provider:       identity.Provider,
		ProviderUserID: identity.ProviderUserID,
		CreatedAt:      identity.CreatedAt,
	})
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

// compile-time interface check
var _ IdentityRepository = (*MongoIdentityRepo)(nil)
