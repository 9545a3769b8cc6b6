package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/takumi/voltmap/internal/model"
)

// PostgresAccessoryRepo はPostgreSQLを使用したアクセサリーリポジトリ。
type PostgresAccessoryRepo struct {
	db *sql.DB
}

// NewPostgresAccessoryRepo はPostgresAccessoryRepoを生成する。
func NewPostgresAccessoryRepo(db *sql.DB) *PostgresAccessoryRepo {
	return &PostgresAccessoryRepo{db: db}
}

// ListWithRatings は全アクセサリーを評価集計付きでcreated_at降順で返す。
// 平均は全評価の算術平均（評価が無い場合は0）、user_ratingは
// リクエストユーザー自身の評価（未評価ならNULL）。
func (r *PostgresAccessoryRepo) ListWithRatings(ctx context.Context, userID string) ([]model.AccessoryWithRating, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.id, a.name, a.description, a.image_url, a.category, a.created_at, a.updated_at,
		        COALESCE(AVG(ar.rating), 0) AS average_rating,
		        COUNT(ar.rating) AS rating_count,
		        MAX(CASE WHEN ar.user_id = $1 THEN ar.rating END) AS user_rating
		 FROM accessories a
		 LEFT JOIN accessory_ratings ar ON ar.accessory_id = a.id
		 GROUP BY a.id
		 ORDER BY a.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accessories: %w", err)
	}
	defer rows.Close()

	var result []model.AccessoryWithRating
	for rows.Next() {
		var aw model.AccessoryWithRating
		var userRating sql.NullInt64
		if err := rows.Scan(
			&aw.ID, &aw.Name, &aw.Description, &aw.ImageURL, &aw.Category,
			&aw.CreatedAt, &aw.UpdatedAt,
			&aw.AverageRating, &aw.RatingCount, &userRating,
		); err != nil {
			return nil, fmt.Errorf("failed to scan accessory row: %w", err)
		}
		if userRating.Valid {
			v := int(userRating.Int64)
			aw.UserRating = &v
		}
		result = append(result, aw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accessory rows: %w", err)
	}

	return result, nil
}

// FindByID は指定IDのアクセサリーを取得する。見つからない場合はnilを返す。
func (r *PostgresAccessoryRepo) FindByID(ctx context.Context, id string) (*model.Accessory, error) {
	a := &model.Accessory{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, image_url, category, created_at, updated_at
		 FROM accessories WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.Name, &a.Description, &a.ImageURL, &a.Category, &a.CreatedAt, &a.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find accessory by ID: %w", err)
	}

	return a, nil
}

// Create はアクセサリーを作成する。
func (r *PostgresAccessoryRepo) Create(ctx context.Context, accessory *model.Accessory) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accessories (id, name, description, image_url, category, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		accessory.ID, accessory.Name, accessory.Description, accessory.ImageURL,
		accessory.Category, accessory.CreatedAt, accessory.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert accessory: %w", err)
	}
	return nil
}

// Update はアクセサリーを更新する。
func (r *PostgresAccessoryRepo) Update(ctx context.Context, accessory *model.Accessory) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accessories
		 SET name = $2, description = $3, image_url = $4, category = $5, updated_at = now()
		 WHERE id = $1`,
		accessory.ID, accessory.Name, accessory.Description, accessory.ImageURL, accessory.Category,
	)
	if err != nil {
		return fmt.Errorf("failed to update accessory: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("accessory not found: %s", accessory.ID)
	}
	return nil
}

// Delete は指定IDのアクセサリーを削除する。評価はCASCADE削除される。
func (r *PostgresAccessoryRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM accessories WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete accessory: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("accessory not found: %s", id)
	}
	return nil
}

// UpsertRating は評価を(accessory_id, user_id)でUPSERTする。
// 同一ユーザーの再評価は最新値で上書きされ、行は1つのまま。
func (r *PostgresAccessoryRepo) UpsertRating(ctx context.Context, rating *model.AccessoryRating) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accessory_ratings (accessory_id, user_id, rating, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (accessory_id, user_id)
		 DO UPDATE SET rating = EXCLUDED.rating, updated_at = now()`,
		rating.AccessoryID, rating.UserID, rating.Rating,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AccessoryRepository = (*PostgresAccessoryRepo)(nil)
