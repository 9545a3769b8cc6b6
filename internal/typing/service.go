// Package typing は「入力中」ステータスの管理を提供する。
//
// 入力中ステータスはエフェメラルなシグナルで、(ユーザー, 相手)の
// 順序付きペアごとに最大1行をDBに保持し、変化を会話ペアの
// チャンネルにリアルタイム配信する。
package typing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/takumi/voltmap/internal/model"
	"github.com/takumi/voltmap/internal/realtime"
	"github.com/takumi/voltmap/internal/repository"
)

// Service は入力中ステータスの更新・取得を提供する。
type Service struct {
	typingRepo repository.TypingRepository
	broker     realtime.Broker
}

// NewService はServiceを生成する。
func NewService(typingRepo repository.TypingRepository, broker realtime.Broker) *Service {
	return &Service{
		typingRepo: typingRepo,
		broker:     broker,
	}
}

// Update は入力中ステータスを更新し、変化イベントを配信する。
// 既存行は常に削除され、isTypingがtrueの場合のみ新しい行が挿入される。
// この delete-then-insert によりペアごとに最大1行が維持される。
func (s *Service) Update(ctx context.Context, userID, chatWith string, isTyping bool) error {
	if err := s.typingRepo.Replace(ctx, userID, chatWith, isTyping); err != nil {
		return fmt.Errorf("failed to replace typing status: %w", err)
	}

	event := &model.TypingEvent{
		UserID:   userID,
		ChatWith: chatWith,
		IsTyping: isTyping,
	}
	if err := s.broker.PublishTyping(ctx, userID, chatWith, event); err != nil {
		// 配信失敗はステータス更新の失敗にしない
		slog.Warn("failed to publish typing event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// IsTyping は相手が自分宛てに入力中かどうかを返す。
func (s *Service) IsTyping(ctx context.Context, userID, chatWith string) (bool, error) {
	status, err := s.typingRepo.Find(ctx, chatWith, userID)
	if err != nil {
		return false, fmt.Errorf("failed to find typing status: %w", err)
	}
	return status != nil && status.IsTyping, nil
}

// CleanupStale はttlより古い入力中行を削除する。
// 切断時にクリアされなかった行の回収用。クリーンアップワーカーから呼ばれる。
func (s *Service) CleanupStale(ctx context.Context, ttl time.Duration) (int64, error) {
	deleted, err := s.typingRepo.DeleteStale(ctx, ttl)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale typing rows: %w", err)
	}
	return deleted, nil
}
