package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/takumi/voltmap/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	p := &model.Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, email, plate_number, vehicle_model, avatar_url, created_at, updated_at
		 FROM profiles WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.PlateNumber, &p.VehicleModel, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}

	return p, nil
}

// CreateWithIdentity はプロフィール・identity・デフォルトロールを
// 同一トランザクションで作成する。
func (r *PostgresProfileRepo) CreateWithIdentity(ctx context.Context, profile *model.Profile, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, first_name, last_name, email, plate_number, vehicle_model, avatar_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		profile.ID, profile.FirstName, profile.LastName, profile.Email,
		profile.PlateNumber, profile.VehicleModel, profile.AvatarURL,
		profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	// デフォルトロールを同時にプロビジョニングする
	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES ($1, $2)`,
		profile.ID, string(model.RoleUser),
	)
	if err != nil {
		return fmt.Errorf("failed to insert default role: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Update はプロフィールの編集可能フィールドを更新する。
func (r *PostgresProfileRepo) Update(ctx context.Context, profile *model.Profile) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET first_name = $2, last_name = $3, email = $4, plate_number = $5, vehicle_model = $6, updated_at = now()
		 WHERE id = $1`,
		profile.ID, profile.FirstName, profile.LastName, profile.Email, profile.PlateNumber, profile.VehicleModel,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile not found: %s", profile.ID)
	}
	return nil
}

// UpdateAvatarURL はアバターURLのみを更新する。
func (r *PostgresProfileRepo) UpdateAvatarURL(ctx context.Context, userID, avatarURL string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET avatar_url = $2, updated_at = now() WHERE id = $1`,
		userID, avatarURL,
	)
	if err != nil {
		return fmt.Errorf("failed to update avatar URL: %w", err)
	}
	return nil
}

// EmailInUse は指定メールアドレスが他ユーザーに使用されているかを返す。
func (r *PostgresProfileRepo) EmailInUse(ctx context.Context, email, excludeUserID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM profiles WHERE email = $1 AND id <> $2)`,
		email, excludeUserID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check email uniqueness: %w", err)
	}
	return exists, nil
}

// PlateNumberInUse は指定ナンバープレートが他ユーザーに使用されているかを返す。
func (r *PostgresProfileRepo) PlateNumberInUse(ctx context.Context, plateNumber, excludeUserID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM profiles WHERE plate_number = $1 AND plate_number <> '' AND id <> $2)`,
		plateNumber, excludeUserID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check plate number uniqueness: %w", err)
	}
	return exists, nil
}

// List は全プロフィールをロール付きでcreated_at降順で返す。
func (r *PostgresProfileRepo) List(ctx context.Context) ([]model.ProfileWithRole, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.first_name, p.last_name, p.email, p.plate_number, p.vehicle_model, p.avatar_url,
		        p.created_at, p.updated_at,
		        COALESCE(ur.role, 'user') AS role
		 FROM profiles p
		 LEFT JOIN user_roles ur ON ur.user_id = p.id
		 ORDER BY p.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var result []model.ProfileWithRole
	for rows.Next() {
		var pr model.ProfileWithRole
		var role string
		if err := rows.Scan(
			&pr.ID, &pr.FirstName, &pr.LastName, &pr.Email, &pr.PlateNumber,
			&pr.VehicleModel, &pr.AvatarURL, &pr.CreatedAt, &pr.UpdatedAt, &role,
		); err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		pr.IsAdmin = model.Role(role) == model.RoleAdmin
		result = append(result, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profile rows: %w", err)
	}

	return result, nil
}

// Search は氏名・メールの部分一致でプロフィールを検索する。
func (r *PostgresProfileRepo) Search(ctx context.Context, query string, excludeUserID string, limit int) ([]model.Profile, error) {
	pattern := "%" + query + "%"
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, first_name, last_name, email, plate_number, vehicle_model, avatar_url, created_at, updated_at
		 FROM profiles
		 WHERE id <> $1
		   AND (first_name ILIKE $2 OR last_name ILIKE $2 OR email ILIKE $2)
		 ORDER BY first_name, last_name
		 LIMIT $3`,
		excludeUserID, pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search profiles: %w", err)
	}
	defer rows.Close()

	var result []model.Profile
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(
			&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.PlateNumber,
			&p.VehicleModel, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profile rows: %w", err)
	}

	return result, nil
}

// DeleteByID は指定IDのプロフィールを削除する。
// identities、sessions、user_roles、chat_messages等はCASCADE削除される。
func (r *PostgresProfileRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM profiles WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
