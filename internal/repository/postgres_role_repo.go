package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/takumi/voltmap/internal/model"
)

// PostgresRoleRepo はPostgreSQLを使用したロールリポジトリ。
type PostgresRoleRepo struct {
	db *sql.DB
}

// NewPostgresRoleRepo はPostgresRoleRepoを生成する。
func NewPostgresRoleRepo(db *sql.DB) *PostgresRoleRepo {
	return &PostgresRoleRepo{db: db}
}

// FindRole は指定ユーザーのロールを返す。行が無い場合は空文字列を返す。
func (r *PostgresRoleRepo) FindRole(ctx context.Context, userID string) (model.Role, error) {
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT role FROM user_roles WHERE user_id = $1`,
		userID,
	).Scan(&role)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find role: %w", err)
	}

	return model.Role(role), nil
}

// EnsureDefault はロール行が無い場合にデフォルトの'user'ロールを永続化する。
func (r *PostgresRoleRepo) EnsureDefault(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, string(model.RoleUser),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure default role: %w", err)
	}
	return nil
}

// SetAdmin は管理者フラグを切り替える。
// 付与時はロール行を'admin'でUPSERTし、剥奪時はロール行を削除する。
func (r *PostgresRoleRepo) SetAdmin(ctx context.Context, userID string, makeAdmin bool) error {
	if makeAdmin {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
			 ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role`,
			userID, string(model.RoleAdmin),
		)
		if err != nil {
			return fmt.Errorf("failed to grant admin role: %w", err)
		}
		return nil
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke admin role: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RoleRepository = (*PostgresRoleRepo)(nil)
