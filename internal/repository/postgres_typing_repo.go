package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/takumi/voltmap/internal/model"
)

// PostgresTypingRepo はPostgreSQLを使用した入力中ステータスリポジトリ。
type PostgresTypingRepo struct {
	db *sql.DB
}

// NewPostgresTypingRepo はPostgresTypingRepoを生成する。
func NewPostgresTypingRepo(db *sql.DB) *PostgresTypingRepo {
	return &PostgresTypingRepo{db: db}
}

// Replace は順序付きペア(userID, chatWith)の既存行を常に削除し、
// isTypingがtrueの場合のみ新しい行を挿入する。
// delete-then-insertを同一トランザクションで行い、ペアごとに最大1行を保証する。
// 更新競合の処理を持たないための設計。
func (r *PostgresTypingRepo) Replace(ctx context.Context, userID, chatWith string, isTyping bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM typing_status WHERE user_id = $1 AND chat_with = $2`,
		userID, chatWith,
	)
	if err != nil {
		return fmt.Errorf("failed to clear typing status: %w", err)
	}

	if isTyping {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO typing_status (user_id, chat_with, is_typing, updated_at)
			 VALUES ($1, $2, true, now())`,
			userID, chatWith,
		)
		if err != nil {
			return fmt.Errorf("failed to insert typing status: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Find は順序付きペアの入力中ステータスを返す。行が無い場合はnilを返す。
func (r *PostgresTypingRepo) Find(ctx context.Context, userID, chatWith string) (*model.TypingStatus, error) {
	ts := &model.TypingStatus{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, chat_with, is_typing, updated_at
		 FROM typing_status WHERE user_id = $1 AND chat_with = $2`,
		userID, chatWith,
	).Scan(&ts.UserID, &ts.ChatWith, &ts.IsTyping, &ts.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find typing status: %w", err)
	}

	return ts, nil
}

// DeleteStale はupdated_atがttlより古い行を削除し、削除件数を返す。
func (r *PostgresTypingRepo) DeleteStale(ctx context.Context, ttl time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM typing_status WHERE updated_at < now() - $1 * interval '1 second'`,
		int64(ttl.Seconds()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale typing rows: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ TypingRepository = (*PostgresTypingRepo)(nil)
