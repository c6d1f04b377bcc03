package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/hitoshi/rentals/internal/model"
)

// userDocument はusersコレクションのドキュメント。
type userDocument struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	FirstName string        `bson:"first_name"`
	LastName  string        `bson:"last_name"`
	Name      string        `bson:"name"`
	Email     string        `bson:"email"`
	Password  string        `bson:"password,omitempty"`
	IsAdmin   bool          `bson:"isadmin"`
	IsActive  bool          `bson:"isactive"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (d *userDocument) model() *model.User {
	return &model.User{
		ID:           d.ID.Hex(),
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.Password,
		IsAdmin:      d.IsAdmin,
		IsActive:     d.IsActive,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// MongoUserRepo はMongoDBを使用したユーザーリポジトリ。
type MongoUserRepo struct {
	users      *mongo.Collection
	identities *mongo.Collection
}

// NewMongoUserRepo はMongoUserRepoを生成する。
func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{
		users:      db.Collection(usersCollection),
		identities: db.Collection(identitiesCollection),
	}
}

func (r *MongoUserRepo) findOne(ctx context.Context, filter bson.D) (*model.User, error) {
	var doc userDocument
	err := r.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.model(), nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}
	user, err := r.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *MongoUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := r.findOne(ctx, bson.D{{Key: "email", Value: email}})
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// EmailTaken はexcludeID以外のユーザーがメールアドレスを使用しているかを返す。
func (r *MongoUserRepo) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	filter := bson.D{{Key: "email", Value: email}}
	if oid, ok := objectID(excludeID); ok {
		filter = append(filter, bson.E{Key: "_id", Value: bson.D{{Key: "$ne", Value: oid}}})
	}
	n, err := r.users.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return n > 0, nil
}

func (r *MongoUserRepo) insert(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
	doc := userDocument{
		ID:        bson.NewObjectID(),
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Name:      user.Name,
		Email:     user.Email,
		Password:  user.PasswordHash,
		IsAdmin:   user.IsAdmin,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
	if oid, ok := objectID(user.ID); ok {
		doc.ID = oid
	}

	if _, err := r.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	user.ID = doc.ID.Hex()
	return nil
}

// Create はユーザーを作成する。
func (r *MongoUserRepo) Create(ctx context.Context, user *model.User) error {
	return r.insert(ctx, user)
}

// CreateWithIdentity はユーザーとidentityを作成する。
// identityの作成に失敗した場合は作成したユーザーを削除する。
func (r *MongoUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.ExternalIdentity) error {
	if err := r.insert(ctx, user); err != nil {
		return err
	}

	identity.UserID = user.ID
	if err := insertIdentity(ctx, r.identities, identity); err != nil {
		if _, delErr := r.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: mustObjectID(user.ID)}}); delErr != nil {
			return fmt.Errorf("failed to insert identity: %w (rollback failed: %v)", err, delErr)
		}
		return err
	}
	return nil
}

// Update はユーザーを更新する。
func (r *MongoUserRepo) Update(ctx context.Context, user *model.User) error {
	oid, ok := objectID(user.ID)
	if !ok {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now().UTC()

	set := bson.D{
		{Key: "first_name", Value: user.FirstName},
		{Key: "last_name", Value: user.LastName},
		{Key: "name", Value: user.Name},
		{Key: "email", Value: user.Email},
		{Key: "isadmin", Value: user.IsAdmin},
		{Key: "isactive", Value: user.IsActive},
		{Key: "updatedAt", Value: user.UpdatedAt},
	}
	if user.PasswordHash != "" {
		set = append(set, bson.E{Key: "password", Value: user.PasswordHash})
	}

	result, err := r.users.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive は有効フラグのみを更新する。見つからない場合はnilを返す。
func (r *MongoUserRepo) SetActive(ctx context.Context, id string, active bool) (*model.User, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	var doc userDocument
	err := r.users.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "isactive", Value: active},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set user active: %w", err)
	}
	return doc.model(), nil
}

// Delete は指定IDのユーザーと外部IdPの紐付けを削除する。物件は削除しない。
func (r *MongoUserRepo) Delete(ctx context.Context, id string) error {
	oid, ok := objectID(id)
	if !ok {
		return nil
	}
	if _, err := r.users.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}}); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if _, err := r.identities.DeleteMany(ctx, bson.D{{Key: "user_id", Value: id}}); err != nil {
		return fmt.Errorf("failed to delete user identities: %w", err)
	}
	return nil
}

// List はユーザー一覧を作成日時の降順で返す。
func (r *MongoUserRepo) List(ctx context.Context, q model.UserListQuery) (*model.UserPage, error) {
	q.PageRequest = q.PageRequest.Normalize()

	filter := bson.D{}
	if q.HasFilter() {
		pattern := containsPattern(q.Filter)
		filter = bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "last_name", Value: pattern}},
			bson.D{{Key: "first_name", Value: pattern}},
			bson.D{{Key: "email", Value: pattern}},
		}}}
	}

	count, err := r.users.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(q.Offset())).
		SetLimit(int64(q.PageSize))
	cursor, err := r.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	users := make([]*model.User, 0, len(docs))
	for i := range docs {
		users = append(users, docs[i].model())
	}
	return &model.UserPage{
		Users:      users,
		TotalPages: model.TotalPages(count, q.PageSize),
	}, nil
}

func mustObjectID(id string) bson.ObjectID {
	oid, _ := objectID(id)
	return oid
}

// compile-time interface check
var _ UserRepository = (*MongoUserRepo)(nil)
