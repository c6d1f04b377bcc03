// Package user はアカウント操作（サインアップと管理者によるユーザー管理）の
// ドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/rentals/internal/form"
	"github.com/hitoshi/rentals/internal/metrics"
	"github.com/hitoshi/rentals/internal/model"
	"github.com/hitoshi/rentals/internal/repository"
	"github.com/hitoshi/rentals/internal/revalidate"
	"github.com/hitoshi/rentals/internal/security"
)

// 呼び出し元に返すメッセージ
const (
	MsgAccountCreated  = "Account created successfully"
	MsgUserCreated     = "User created successfully"
	MsgUserUpdated     = "User updated successfully"
	MsgUserDeleted     = "User deleted successfully"
	MsgUserActivated   = "User activated successfully"
	MsgUserDeactivated = "User deactivated successfully"
	MsgEmailAvailable  = "Email is available"
	MsgEmailTaken      = "Email is already taken"
)

// MaxPageSize はユーザー一覧の1ページあたりの上限件数。
const MaxPageSize = 100

// PropertyCounter は所有物件数の取得インターフェース。
type PropertyCounter interface {
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
}

// Availability はメールアドレスの利用可否。
type Availability struct {
	Available bool
	Message   string
}

// Service はアカウント操作のサービス層。
// 管理者向けの操作は呼び出し元のIdentityを明示的に受け取り、権限を確認する。
type Service struct {
	users      repository.UserRepository
	properties PropertyCounter
	hasher     *security.PasswordHasher
	metrics    metrics.MetricsCollector
	publisher  revalidate.Publisher
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	users repository.UserRepository,
	properties PropertyCounter,
	hasher *security.PasswordHasher,
	collector metrics.MetricsCollector,
	publisher revalidate.Publisher,
) *Service {
	return &Service{
		users:      users,
		properties: properties,
		hasher:     hasher,
		metrics:    metrics.OrNop(collector),
		publisher:  publisher,
	}
}

func requireAdmin(actor model.Identity) error {
	if actor.UserID == "" {
		return model.NewUnauthenticatedError()
	}
	if !actor.IsAdmin {
		return model.NewForbiddenError()
	}
	return nil
}

func (s *Service) done(ctx context.Context, action string) {
	s.metrics.RecordAccountAction(action)
	revalidate.Notify(ctx, s.publisher, action, revalidate.PathAdminUsers)
}

// SignUp はメールアドレスとパスワードでアカウントを作成する。セッションは発行しない。
// 重複の判定は一意制約を正とし、事前の検索は早期に返すためだけに使う。
func (s *Service) SignUp(ctx context.Context, in form.SignUp) (*model.User, error) {
	if err := form.Check(in); err != nil {
		return nil, err
	}

	existing, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return nil, model.NewAccountExistsError(in.Email)
	}

	user, err := s.newUser(in.FirstName, in.LastName, in.Email, in.Password, false)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewAccountExistsError(in.Email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.done(ctx, "sign_up")
	slog.Info("user signed up", slog.String("user_id", user.ID))
	return user, nil
}

func (s *Service) newUser(firstName, lastName, email, password string, isAdmin bool) (*model.User, error) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user := &model.User{
		Email:        email,
		PasswordHash: digest,
		IsAdmin:      isAdmin,
		IsActive:     true,
	}
	user.SetNames(firstName, lastName)
	return user, nil
}

// GetUser は指定IDのユーザーを返す。
func (s *Service) GetUser(ctx context.Context, actor model.Identity, id string) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// ListUsers はユーザー一覧を作成日時の降順で返す。
// フィルタは姓・名・メールアドレスの部分一致（大文字小文字を区別しない）。
func (s *Service) ListUsers(ctx context.Context, actor model.Identity, q model.UserListQuery) (*model.UserPage, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	q.PageRequest = q.PageRequest.Normalize()
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	q.Filter = strings.TrimSpace(q.Filter)

	page, err := s.users.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return page, nil
}

// CreateUser は管理者がユーザーを作成する。管理者フラグは入力に従い、有効状態で作成する。
func (s *Service) CreateUser(ctx context.Context, actor model.Identity, in form.CreateUser) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := form.Check(in); err != nil {
		return nil, err
	}

	existing, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return nil, model.NewUserExistsError(in.Email)
	}

	user, err := s.newUser(in.FirstName, in.LastName, in.Email, in.Password, in.IsAdmin)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewUserExistsError(in.Email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.done(ctx, "create_user")
	slog.Info("user created",
		slog.String("user_id", user.ID),
		slog.String("by", actor.UserID),
		slog.Bool("is_admin", user.IsAdmin),
	)
	return user, nil
}

// UpdateUser は管理者がユーザーを更新する。
// メールアドレスは変更された場合のみ重複を確認し、パスワードは指定された場合のみ再ハッシュする。
func (s *Service) UpdateUser(ctx context.Context, actor model.Identity, in form.UpdateUser) (*model.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := form.Check(in); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, in.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	if in.Email != user.Email {
		taken, err := s.users.EmailTaken(ctx, in.Email, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
		if taken {
			return nil, model.NewEmailTakenError(in.Email)
		}
	}

	user.SetNames(in.FirstName, in.LastName)
	user.Email = in.Email
	user.IsAdmin = in.IsAdmin
	user.IsActive = in.IsActive
	if in.ChangesPassword() {
		digest, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = digest
	}

	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, model.NewEmailTakenError(in.Email)
		case errors.Is(err, repository.ErrNotFound):
			return nil, model.NewUserNotFoundError()
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.done(ctx, "update_user")
	slog.Info("user updated",
		slog.String("user_id", user.ID),
		slog.String("by", actor.UserID),
		slog.Bool("password_changed", in.ChangesPassword()),
	)
	return user, nil
}

// SetUserActive はユーザーの有効状態を切り替え、結果メッセージとともに返す。
func (s *Service) SetUserActive(ctx context.Context, actor model.Identity, id string, active bool) (*model.User, string, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, "", err
	}

	user, err := s.users.SetActive(ctx, id, active)
	if err != nil {
		return nil, "", fmt.Errorf("failed to set user status: %w", err)
	}
	if user == nil {
		return nil, "", model.NewUserNotFoundError()
	}

	msg := MsgUserDeactivated
	if active {
		msg = MsgUserActivated
	}

	s.done(ctx, "set_user_active")
	slog.Info("user status changed",
		slog.String("user_id", id),
		slog.String("by", actor.UserID),
		slog.Bool("is_active", active),
	)
	return user, msg, nil
}

// DeleteUser は管理者がユーザーを削除する。存在しないIDでもエラーにしない。
// 所有物件は削除せず、所有者不在となる件数をログに残す。
func (s *Service) DeleteUser(ctx context.Context, actor model.Identity, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}

	orphaned := s.countOwned(ctx, id)

	if err := s.users.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	s.done(ctx, "delete_user")
	slog.Info("user deleted",
		slog.String("user_id", id),
		slog.String("by", actor.UserID),
		slog.Int64("orphaned_properties", orphaned),
	)
	return nil
}

func (s *Service) countOwned(ctx context.Context, id string) int64 {
	if s.properties == nil {
		return 0
	}
	n, err := s.properties.CountByOwner(ctx, id)
	if err != nil {
		slog.Warn("failed to count owned properties",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return n
}

// CheckEmailAvailable はメールアドレスが利用可能かを返す。
// excludeIDを指定した場合、そのユーザー自身のメールアドレスは利用可能とみなす。
func (s *Service) CheckEmailAvailable(ctx context.Context, email, excludeID string) (*Availability, error) {
	email = form.NormalizeEmail(email)
	if email == "" {
		return nil, model.NewValidationError(map[string][]string{"email": {"cannot be blank"}})
	}

	taken, err := s.users.EmailTaken(ctx, email, strings.TrimSpace(excludeID))
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if taken {
		return &Availability{Available: false, Message: MsgEmailTaken}, nil
	}
	return &Availability{Available: true, Message: MsgEmailAvailable}, nil
}
