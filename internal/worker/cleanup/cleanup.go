// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 有効期限を過ぎたセッションと、更新が途絶えた「入力中」行を
// 定期バッチで削除する。どちらの削除も冪等で、対象ゼロ件は正常終了する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPruner は期限切れセッションの削除を抽象化するインターフェース。
type SessionPruner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// TypingPruner は古い入力中ステータス行の削除を抽象化するインターフェース。
type TypingPruner interface {
	DeleteStale(ctx context.Context, ttl time.Duration) (int64, error)
}

// CleanupJob は期限切れセッションと古い入力中行の削除ジョブ。
// 定期実行のバッチジョブとして設計されている。
type CleanupJob struct {
	sessions SessionPruner
	typing   TypingPruner
	logger   *slog.Logger

	// TypingRowTTL はこの期間更新されていない入力中行を削除対象とする。
	TypingRowTTL time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの入力中行TTLは30秒。
func NewCleanupJob(sessions SessionPruner, typing TypingPruner, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions:     sessions,
		typing:       typing,
		logger:       logger,
		TypingRowTTL: 30 * time.Second,
	}
}

// Run は期限切れセッションと古い入力中行を削除する。
// 片方の削除が失敗してももう片方は実行し、最初のエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	var firstErr error

	sessionCount, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		firstErr = fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	typingCount, err := j.typing.DeleteStale(ctx, j.TypingRowTTL)
	if err != nil {
		j.logger.Error("古い入力中行の削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("typing_row_ttl", j.TypingRowTTL),
		)
		if firstErr == nil {
			firstErr = fmt.Errorf("古い入力中行の削除に失敗: %w", err)
		}
	}

	if firstErr != nil {
		return firstErr
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("expired_sessions", sessionCount),
		slog.Int64("stale_typing_rows", typingCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
