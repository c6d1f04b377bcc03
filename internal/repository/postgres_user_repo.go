package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/rentals/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

const userColumns = `id, first_name, last_name, name, email, password_hash, is_admin, is_active, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Name, &user.Email, &user.PasswordHash,
		&user.IsAdmin, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
// UUIDとして解釈できないIDも見つからないものとして扱う。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// EmailTaken はexcludeID以外のユーザーがメールアドレスを使用しているかを返す。
func (r *PostgresUserRepo) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	var taken bool
	var err error
	if _, parseErr := uuid.Parse(excludeID); parseErr == nil {
		err = r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1 AND id <> $2)`,
			email, excludeID,
		).Scan(&taken)
	} else {
		err = r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`,
			email,
		).Scan(&taken)
	}
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return taken, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	prepareUser(user)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.FirstName, user.LastName, user.Name, user.Email, user.PasswordHash,
		user.IsAdmin, user.IsActive, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.ExternalIdentity) error {
	prepareUser(user)
	prepareIdentity(identity, user.ID)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		user.ID, user.FirstName, user.LastName, user.Name, user.Email, user.PasswordHash,
		user.IsAdmin, user.IsActive, user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update はユーザーを更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	if _, err := uuid.Parse(user.ID); err != nil {
		return ErrNotFound
	}
	user.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET first_name = $2, last_name = $3, name = $4, email = $5, password_hash = $6,
		     is_admin = $7, is_active = $8, updated_at = $9
		 WHERE id = $1`,
		user.ID, user.FirstName, user.LastName, user.Name, user.Email, user.PasswordHash,
		user.IsAdmin, user.IsActive, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive は有効フラグのみを更新する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) SetActive(ctx context.Context, id string, active bool) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users SET is_active = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userColumns,
		id, active,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set user active: %w", err)
	}
	return user, nil
}

// Delete は指定IDのユーザーを削除する。
// 関連するidentitiesはCASCADE削除される。物件は削除しない。
func (r *PostgresUserRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// List はユーザー一覧を作成日時の降順で返す。
// フィルタは姓・名・メールアドレスのいずれかに対する大文字小文字を区別しない部分一致。
func (r *PostgresUserRepo) List(ctx context.Context, q model.UserListQuery) (*model.UserPage, error) {
	q.PageRequest = q.PageRequest.Normalize()

	where := ""
	var args []any
	if q.HasFilter() {
		args = append(args, likePattern(q.Filter))
		where = ` WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR email ILIKE $1`
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM users`+where, args...).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		userColumns, where, n+1, n+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, q.PageSize, q.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return &model.UserPage{
		Users:      users,
		TotalPages: model.TotalPages(count, q.PageSize),
	}, nil
}

func prepareUser(user *model.User) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}
}

func prepareIdentity(identity *model.ExternalIdentity, userID string) {
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	identity.UserID = userID
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}
}

// isUniqueViolation は一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// likePattern はLIKE/ILIKEのメタ文字をエスケープした部分一致パターンを返す。
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
