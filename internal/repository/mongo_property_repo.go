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

type locationDocument struct {
	Street  string `bson:"street,omitempty"`
	City    string `bson:"city"`
	State   string `bson:"state"`
	Zipcode string `bson:"zipcode,omitempty"`
}

type ratesDocument struct {
	Nightly *float64 `bson:"nightly,omitempty"`
	Weekly  *float64 `bson:"weekly,omitempty"`
	Monthly *float64 `bson:"monthly,omitempty"`
}

type sellerInfoDocument struct {
	Name  string `bson:"name,omitempty"`
	Email string `bson:"email,omitempty"`
	Phone string `bson:"phone,omitempty"`
}

// propertyDocument はpropertiesコレクションのドキュメント。
type propertyDocument struct {
	ID          bson.ObjectID      `bson:"_id,omitempty"`
	Owner       bson.ObjectID      `bson:"owner"`
	Name        string             `bson:"name"`
	Type        string             `bson:"type"`
	Description string             `bson:"description,omitempty"`
	Location    locationDocument   `bson:"location"`
	Beds        int                `bson:"beds"`
	Baths       int                `bson:"baths"`
	SquareFeet  int                `bson:"square_feet"`
	Amenities   []string           `bson:"amenities"`
	Rates       ratesDocument      `bson:"rates"`
	SellerInfo  sellerInfoDocument `bson:"seller_info"`
	Images      []string           `bson:"images"`
	IsFeatured  bool               `bson:"is_featured"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d *propertyDocument) model() *model.Property {
	return &model.Property{
		ID:          d.ID.Hex(),
		OwnerID:     d.Owner.Hex(),
		Name:        d.Name,
		Type:        d.Type,
		Description: d.Description,
		Location: model.Location{
			Street:  d.Location.Street,
			City:    d.Location.City,
			State:   d.Location.State,
			Zipcode: d.Location.Zipcode,
		},
		Beds:       d.Beds,
		Baths:      d.Baths,
		SquareFeet: d.SquareFeet,
		Amenities:  nonNil(d.Amenities),
		Rates: model.Rates{
			Nightly: d.Rates.Nightly,
			Weekly:  d.Rates.Weekly,
			Monthly: d.Rates.Monthly,
		},
		SellerInfo: model.SellerInfo{
			Name:  d.SellerInfo.Name,
			Email: d.SellerInfo.Email,
			Phone: d.SellerInfo.Phone,
		},
		Images:     nonNil(d.Images),
		IsFeatured: d.IsFeatured,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// MongoPropertyRepo はMongoDBを使用した物件リポジトリ。
type MongoPropertyRepo struct {
	properties *mongo.Collection
}

// NewMongoPropertyRepo はMongoPropertyRepoを生成する。
func NewMongoPropertyRepo(db *mongo.Database) *MongoPropertyRepo {
	return &MongoPropertyRepo{properties: db.Collection(propertiesCollection)}
}

var newestFirst = bson.D{{Key: "createdAt", Value: -1}}

func (r *MongoPropertyRepo) find(ctx context.Context, filter bson.D, opts *options.FindOptionsBuilder) ([]*model.Property, error) {
	cursor, err := r.properties.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	var docs []propertyDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}

	properties := make([]*model.Property, 0, len(docs))
	for i := range docs {
		properties = append(properties, docs[i].model())
	}
	return properties, nil
}

// FindByID は指定IDの物件を取得する。見つからない場合はnilを返す。
func (r *MongoPropertyRepo) FindByID(ctx context.Context, id string) (*model.Property, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	var doc propertyDocument
	err := r.properties.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find property by ID: %w", err)
	}
	return doc.model(), nil
}

// List は物件一覧をページ単位で返す。
func (r *MongoPropertyRepo) List(ctx context.Context, page model.PageRequest) (*model.PropertyPage, error) {
	page = page.Normalize()

	count, err := r.properties.CountDocuments(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to count properties: %w", err)
	}

	properties, err := r.find(ctx, bson.D{}, options.Find().
		SetSort(newestFirst).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.PageSize)))
	if err != nil {
		return nil, err
	}

	return &model.PropertyPage{
		Properties: properties,
		Total:      count,
		TotalPages: model.TotalPages(count, page.PageSize),
	}, nil
}

// ListFeatured はおすすめ物件を最大limit件返す。
func (r *MongoPropertyRepo) ListFeatured(ctx context.Context, limit int) ([]*model.Property, error) {
	return r.find(ctx,
		bson.D{{Key: "is_featured", Value: true}},
		options.Find().SetSort(newestFirst).SetLimit(int64(limit)),
	)
}

// ListByOwner は指定ユーザーが所有する物件を返す。
func (r *MongoPropertyRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Property, error) {
	oid, ok := objectID(ownerID)
	if !ok {
		return []*model.Property{}, nil
	}
	return r.find(ctx, bson.D{{Key: "owner", Value: oid}}, options.Find().SetSort(newestFirst))
}

// CountByOwner は指定ユーザーが所有する物件数を返す。
func (r *MongoPropertyRepo) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	oid, ok := objectID(ownerID)
	if !ok {
		return 0, nil
	}
	n, err := r.properties.CountDocuments(ctx, bson.D{{Key: "owner", Value: oid}})
	if err != nil {
		return 0, fmt.Errorf("failed to count properties by owner: %w", err)
	}
	return n, nil
}

// Search は所在地と種別で物件を検索する。
func (r *MongoPropertyRepo) Search(ctx context.Context, s model.PropertySearch) ([]*model.Property, error) {
	filter := bson.D{}
	if s.Location != "" {
		pattern := containsPattern(s.Location)
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "location.street", Value: pattern}},
			bson.D{{Key: "location.city", Value: pattern}},
			bson.D{{Key: "location.state", Value: pattern}},
			bson.D{{Key: "location.zipcode", Value: pattern}},
		}})
	}
	if s.FiltersByType() {
		filter = append(filter, bson.E{Key: "type", Value: s.PropertyType})
	}
	return r.find(ctx, filter, options.Find().SetSort(newestFirst))
}

// Create は物件を作成する。
func (r *MongoPropertyRepo) Create(ctx context.Context, p *model.Property) error {
	owner, ok := objectID(p.OwnerID)
	if !ok {
		return fmt.Errorf("invalid owner ID: %q", p.OwnerID)
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt

	doc := propertyDocument{
		ID:          bson.NewObjectID(),
		Owner:       owner,
		Name:        p.Name,
		Type:        p.Type,
		Description: p.Description,
		Location: locationDocument{
			Street:  p.Location.Street,
			City:    p.Location.City,
			State:   p.Location.State,
			Zipcode: p.Location.Zipcode,
		},
		Beds:       p.Beds,
		Baths:      p.Baths,
		SquareFeet: p.SquareFeet,
		Amenities:  nonNil(p.Amenities),
		Rates: ratesDocument{
			Nightly: p.Rates.Nightly,
			Weekly:  p.Rates.Weekly,
			Monthly: p.Rates.Monthly,
		},
		SellerInfo: sellerInfoDocument{
			Name:  p.SellerInfo.Name,
			Email: p.SellerInfo.Email,
			Phone: p.SellerInfo.Phone,
		},
		Images:     nonNil(p.Images),
		IsFeatured: p.IsFeatured,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if _, err := r.properties.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert property: %w", err)
	}
	p.ID = doc.ID.Hex()
	return nil
}

// SetFeatured はおすすめフラグを更新する。見つからない場合はnilを返す。
func (r *MongoPropertyRepo) SetFeatured(ctx context.Context, id string, featured bool) (*model.Property, error) {
	oid, ok := objectID(id)
	if !ok {
		return nil, nil
	}

	var doc propertyDocument
	err := r.properties.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "is_featured", Value: featured},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set property featured: %w", err)
	}
	return doc.model(), nil
}

// Delete は指定IDの物件を削除する。存在しない場合はErrNotFoundを返す。
func (r *MongoPropertyRepo) Delete(ctx context.Context, id string) error {
	oid, ok := objectID(id)
	if !ok {
		return ErrNotFound
	}
	result, err := r.properties.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("failed to delete property: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// compile-time interface check
var _ PropertyRepository = (*MongoPropertyRepo)(nil)
