package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/rentals/internal/model"
)

const propertyColumns = `id, owner_id, name, type, description,
	street, city, state, zipcode, beds, baths, square_feet, amenities,
	rate_nightly, rate_weekly, rate_monthly, seller_name, seller_email, seller_phone,
	images, is_featured, created_at, updated_at`

// PostgresPropertyRepo はPostgreSQLを使用した物件リポジトリ。
type PostgresPropertyRepo struct {
	db *sql.DB
}

// NewPostgresPropertyRepo はPostgresPropertyRepoを生成する。
func NewPostgresPropertyRepo(db *sql.DB) *PostgresPropertyRepo {
	return &PostgresPropertyRepo{db: db}
}

func scanProperty(row rowScanner) (*model.Property, error) {
	p := &model.Property{}
	var nightly, weekly, monthly sql.NullFloat64
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Name, &p.Type, &p.Description,
		&p.Location.Street, &p.Location.City, &p.Location.State, &p.Location.Zipcode,
		&p.Beds, &p.Baths, &p.SquareFeet, pq.Array(&p.Amenities),
		&nightly, &weekly, &monthly,
		&p.SellerInfo.Name, &p.SellerInfo.Email, &p.SellerInfo.Phone,
		pq.Array(&p.Images), &p.IsFeatured, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Rates = model.Rates{
		Nightly: nullFloat(nightly),
		Weekly:  nullFloat(weekly),
		Monthly: nullFloat(monthly),
	}
	return p, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func (r *PostgresPropertyRepo) queryProperties(ctx context.Context, query string, args ...any) ([]*model.Property, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer rows.Close()

	properties := []*model.Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		properties = append(properties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate properties: %w", err)
	}
	return properties, nil
}

// FindByID は指定IDの物件を取得する。見つからない場合はnilを返す。
func (r *PostgresPropertyRepo) FindByID(ctx context.Context, id string) (*model.Property, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	p, err := scanProperty(r.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find property by ID: %w", err)
	}
	return p, nil
}

// List は物件一覧をページ単位で返す。
func (r *PostgresPropertyRepo) List(ctx context.Context, page model.PageRequest) (*model.PropertyPage, error) {
	page = page.Normalize()

	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM properties`).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count properties: %w", err)
	}

	properties, err := r.queryProperties(ctx,
		`SELECT `+propertyColumns+` FROM properties ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		page.PageSize, page.Offset(),
	)
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
func (r *PostgresPropertyRepo) ListFeatured(ctx context.Context, limit int) ([]*model.Property, error) {
	return r.queryProperties(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE is_featured ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
}

// ListByOwner は指定ユーザーが所有する物件を返す。
func (r *PostgresPropertyRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Property, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return []*model.Property{}, nil
	}
	return r.queryProperties(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID,
	)
}

// CountByOwner は指定ユーザーが所有する物件数を返す。
func (r *PostgresPropertyRepo) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return 0, nil
	}
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM properties WHERE owner_id = $1`,
		ownerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count properties by owner: %w", err)
	}
	return count, nil
}

// Search は所在地と種別で物件を検索する。
// 所在地は番地・市・州・郵便番号のいずれかに対する大文字小文字を区別しない部分一致。
func (r *PostgresPropertyRepo) Search(ctx context.Context, s model.PropertySearch) ([]*model.Property, error) {
	var conds []string
	var args []any

	if s.Location != "" {
		args = append(args, likePattern(s.Location))
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(street ILIKE $%d OR city ILIKE $%d OR state ILIKE $%d OR zipcode ILIKE $%d)", n, n, n, n))
	}
	if s.FiltersByType() {
		args = append(args, s.PropertyType)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}

	query := `SELECT ` + propertyColumns + ` FROM properties`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	return r.queryProperties(ctx, query, args...)
}

// Create は物件を作成する。
func (r *PostgresPropertyRepo) Create(ctx context.Context, p *model.Property) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO properties (`+propertyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		         $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		p.ID, p.OwnerID, p.Name, p.Type, p.Description,
		p.Location.Street, p.Location.City, p.Location.State, p.Location.Zipcode,
		p.Beds, p.Baths, p.SquareFeet, pq.Array(nonNil(p.Amenities)),
		p.Rates.Nightly, p.Rates.Weekly, p.Rates.Monthly,
		p.SellerInfo.Name, p.SellerInfo.Email, p.SellerInfo.Phone,
		pq.Array(nonNil(p.Images)), p.IsFeatured, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert property: %w", err)
	}
	return nil
}

// SetFeatured はおすすめフラグを更新する。見つからない場合はnilを返す。
func (r *PostgresPropertyRepo) SetFeatured(ctx context.Context, id string, featured bool) (*model.Property, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	p, err := scanProperty(r.db.QueryRowContext(ctx,
		`UPDATE properties SET is_featured = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+propertyColumns,
		id, featured,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set property featured: %w", err)
	}
	return p, nil
}

// Delete は指定IDの物件を削除する。存在しない場合はErrNotFoundを返す。
func (r *PostgresPropertyRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM properties WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete property: %w", err)
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

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// compile-time interface check
var _ PropertyRepository = (*PostgresPropertyRepo)(nil)
