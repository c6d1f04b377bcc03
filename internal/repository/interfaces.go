// Package repository はデータ永続化のインターフェースと
// PostgreSQL・MongoDBによる実装を提供する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/rentals/internal/model"
)

var (
	// ErrDuplicateEmail はメールアドレスの一意制約違反を表す。
	// 重複判定はこのエラーのみを正とし、事前の検索結果には依存しない。
	ErrDuplicateEmail = errors.New("email already exists")

	// ErrNotFound は更新対象が存在しないことを表す。
	ErrNotFound = errors.New("record not found")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// EmailTaken はexcludeID以外のユーザーがメールアドレスを使用しているかを返す。
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)

	// Create はユーザーを作成する。IDが空の場合は採番して設定する。
	// メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーと外部IdPの紐付けを作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.ExternalIdentity) error

	// Update はユーザーの姓名・メール・権限・状態・パスワードダイジェストを更新する。
	// 存在しない場合はErrNotFound、メールアドレスが重複する場合はErrDuplicateEmailを返す。
	Update(ctx context.Context, user *model.User) error

	// SetActive は有効フラグのみを更新する。見つからない場合はnilを返す。
	SetActive(ctx context.Context, id string, active bool) (*model.User, error)

	// Delete は指定IDのユーザーを削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, id string) error

	// List はユーザー一覧を作成日時の降順で返す。
	List(ctx context.Context, q model.UserListQuery) (*model.UserPage, error)
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idで紐付けを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.ExternalIdentity, error)

	// Create は既存ユーザーに紐付けを追加する。
	Create(ctx context.Context, identity *model.ExternalIdentity) error
}

// RevocationRepository はサインアウト済みトークンの失効記録の永続化インターフェース。
type RevocationRepository interface {
	// Revoke はトークンIDを失効させる。同じIDを複数回失効させてもエラーにしない。
	Revoke(ctx context.Context, tokenID, userID string, expiresAt time.Time) error

	// IsRevoked はトークンIDが失効済みかを返す。
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// DeleteExpired は有効期限を過ぎた失効記録を削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PropertyRepository は物件データの永続化インターフェース。
// 一覧系はすべて作成日時の降順で返す。
type PropertyRepository interface {
	// FindByID は指定IDの物件を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Property, error)

	// List は物件一覧をページ単位で返す。
	List(ctx context.Context, page model.PageRequest) (*model.PropertyPage, error)

	// ListFeatured はおすすめ物件を最大limit件返す。
	ListFeatured(ctx context.Context, limit int) ([]*model.Property, error)

	// ListByOwner は指定ユーザーが所有する物件を返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Property, error)

	// CountByOwner は指定ユーザーが所有する物件数を返す。
	CountByOwner(ctx context.Context, ownerID string) (int64, error)

	// Search は所在地（番地・市・州・郵便番号の部分一致）と種別で物件を検索する。
	Search(ctx context.Context, s model.PropertySearch) ([]*model.Property, error)

	// Create は物件を作成する。IDが空の場合は採番して設定する。
	Create(ctx context.Context, property *model.Property) error

	// SetFeatured はおすすめフラグを更新する。見つからない場合はnilを返す。
	SetFeatured(ctx context.Context, id string, featured bool) (*model.Property, error)

	// Delete は指定IDの物件を削除する。存在しない場合はErrNotFoundを返す。
	Delete(ctx context.Context, id string) error
}
