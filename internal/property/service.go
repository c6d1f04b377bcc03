// Package property は物件掲載の閲覧・検索・登録・削除のドメインロジックを提供する。
package property

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/rentals/internal/form"
	"github.com/hitoshi/rentals/internal/imagestore"
	"github.com/hitoshi/rentals/internal/metrics"
	"github.com/hitoshi/rentals/internal/model"
	"github.com/hitoshi/rentals/internal/repository"
	"github.com/hitoshi/rentals/internal/revalidate"
	"github.com/hitoshi/rentals/internal/security"
)

// 呼び出し元に返すメッセージ
const (
	MsgPropertyCreated = "Property created successfully"
	MsgPropertyDeleted = "Property deleted successfully"
	MsgFeaturedOn      = "Property marked as featured"
	MsgFeaturedOff     = "Property removed from featured"
)

// FeaturedLimit はおすすめ物件の表示件数。
const FeaturedLimit = 3

// MaxPageSize は物件一覧の1ページあたりの上限件数。
const MaxPageSize = 100

// ErrImagesDisabled は画像ストレージが設定されていないことを表す。
var ErrImagesDisabled = errors.New("image uploads are not configured")

// ImageSigner は画像アップロードURLの発行インターフェース。
type ImageSigner interface {
	PresignUpload(ctx context.Context, ownerID, contentType string) (*imagestore.Upload, error)
}

// Service は物件のサービス層。
type Service struct {
	repo      repository.PropertyRepository
	images    ImageSigner
	sanitizer *security.ContentSanitizer
	metrics   metrics.MetricsCollector
	publisher revalidate.Publisher
}

// NewService はServiceの新しいインスタンスを生成する。imagesはnilでもよい。
func NewService(
	repo repository.PropertyRepository,
	images ImageSigner,
	collector metrics.MetricsCollector,
	publisher revalidate.Publisher,
) *Service {
	return &Service{
		repo:      repo,
		images:    images,
		sanitizer: security.NewContentSanitizer(),
		metrics:   metrics.OrNop(collector),
		publisher: publisher,
	}
}

func (s *Service) done(ctx context.Context, action string) {
	s.metrics.RecordListingAction(action)
	revalidate.Notify(ctx, s.publisher, action, revalidate.PathProperties, revalidate.PathHome)
}

// List は物件一覧を作成日時の降順でページ単位に返す。
func (s *Service) List(ctx context.Context, page model.PageRequest) (*model.PropertyPage, error) {
	page = page.Normalize()
	if page.PageSize > MaxPageSize {
		page.PageSize = MaxPageSize
	}

	result, err := s.repo.List(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return result, nil
}

// Get は指定IDの物件を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Property, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find property: %w", err)
	}
	if p == nil {
		return nil, model.NewPropertyNotFoundError()
	}
	return p, nil
}

// Featured はおすすめ物件を新しい順に返す。
func (s *Service) Featured(ctx context.Context) ([]*model.Property, error) {
	props, err := s.repo.ListFeatured(ctx, FeaturedLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list featured properties: %w", err)
	}
	return props, nil
}

// ByOwner は指定ユーザーの物件を新しい順に返す。
func (s *Service) ByOwner(ctx context.Context, ownerID string) ([]*model.Property, error) {
	props, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list owner properties: %w", err)
	}
	return props, nil
}

// Search は所在地と種別で物件を検索する。
// 所在地は大文字小文字を区別しない文字列の部分一致で、正規表現としては解釈しない。
func (s *Service) Search(ctx context.Context, q model.PropertySearch) ([]*model.Property, error) {
	q.Location = strings.TrimSpace(q.Location)
	q.PropertyType = strings.TrimSpace(q.PropertyType)

	props, err := s.repo.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to search properties: %w", err)
	}
	return props, nil
}

// Create はログイン中のユーザーを所有者として物件を登録する。
func (s *Service) Create(ctx context.Context, actor model.Identity, in form.Property) (*model.Property, error) {
	if actor.UserID == "" {
		return nil, model.NewUnauthenticatedError()
	}

	// サニタイズ後の値を検証する（タグのみの名前は空として弾く）
	in.Name = s.sanitizer.SanitizeText(in.Name)
	in.Description = s.sanitizer.SanitizeDescription(in.Description)
	in.SellerInfo.Name = s.sanitizer.SanitizeText(in.SellerInfo.Name)
	amenities := make([]string, 0, len(in.Amenities))
	for _, a := range in.Amenities {
		if a = s.sanitizer.SanitizeText(a); a != "" {
			amenities = append(amenities, a)
		}
	}
	in.Amenities = amenities

	if err := form.Check(in); err != nil {
		return nil, err
	}

	p := in.Model()
	p.OwnerID = actor.UserID

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create property: %w", err)
	}

	s.done(ctx, "create_property")
	slog.Info("property created",
		slog.String("property_id", p.ID),
		slog.String("owner_id", p.OwnerID),
	)
	return p, nil
}

// Delete は物件を削除する。所有者または管理者のみ実行できる。
func (s *Service) Delete(ctx context.Context, actor model.Identity, id string) error {
	if actor.UserID == "" {
		return model.NewUnauthenticatedError()
	}

	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.OwnerID != actor.UserID && !actor.IsAdmin {
		return model.NewForbiddenError()
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewPropertyNotFoundError()
		}
		return fmt.Errorf("failed to delete property: %w", err)
	}

	s.done(ctx, "delete_property")
	slog.Info("property deleted",
		slog.String("property_id", id),
		slog.String("by", actor.UserID),
	)
	return nil
}

// ToggleFeatured はおすすめフラグを反転する。管理者のみ実行できる。
func (s *Service) ToggleFeatured(ctx context.Context, actor model.Identity, id string) (*model.Property, string, error) {
	if actor.UserID == "" {
		return nil, "", model.NewUnauthenticatedError()
	}
	if !actor.IsAdmin {
		return nil, "", model.NewForbiddenError()
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	p, err := s.repo.SetFeatured(ctx, id, !current.IsFeatured)
	if err != nil {
		return nil, "", fmt.Errorf("failed to update featured flag: %w", err)
	}
	if p == nil {
		return nil, "", model.NewPropertyNotFoundError()
	}

	msg := MsgFeaturedOff
	if p.IsFeatured {
		msg = MsgFeaturedOn
	}

	s.done(ctx, "toggle_featured")
	slog.Info("property featured flag changed",
		slog.String("property_id", id),
		slog.Bool("is_featured", p.IsFeatured),
	)
	return p, msg, nil
}

// ImageUploadURL は物件画像の署名付きアップロードURLを発行する。
func (s *Service) ImageUploadURL(ctx context.Context, actor model.Identity, contentType string) (*imagestore.Upload, error) {
	if actor.UserID == "" {
		return nil, model.NewUnauthenticatedError()
	}
	if s.images == nil {
		return nil, ErrImagesDisabled
	}

	up, err := s.images.PresignUpload(ctx, actor.UserID, contentType)
	if err != nil {
		if errors.Is(err, imagestore.ErrUnsupportedType) {
			return nil, model.NewUnsupportedImageError(contentType)
		}
		return nil, err
	}
	return up, nil
}
