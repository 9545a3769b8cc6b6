// Package admin は管理パネルのビジネスロジックを提供する。
// 全操作は管理者ロールのユーザーのみ実行できる（認可はミドルウェアで行う）。
package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/takumi/voltmap/internal/model"
	"github.com/takumi/voltmap/internal/realtime"
	"github.com/takumi/voltmap/internal/repository"
)

// Service は管理者向けのユーザー・会話管理を提供する。
type Service struct {
	profileRepo repository.ProfileRepository
	roleRepo    repository.RoleRepository
	sessionRepo repository.SessionRepository
	messageRepo repository.MessageRepository
	broker      realtime.Broker
}

// NewService はServiceを生成する。
func NewService(
	profileRepo repository.ProfileRepository,
	roleRepo repository.RoleRepository,
	sessionRepo repository.SessionRepository,
	messageRepo repository.MessageRepository,
	broker realtime.Broker,
) *Service {
	return &Service{
		profileRepo: profileRepo,
		roleRepo:    roleRepo,
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		broker:      broker,
	}
}

// ListUsers は全ユーザーをロール付きで返す。
func (s *Service) ListUsers(ctx context.Context) ([]model.ProfileWithRole, error) {
	users, err := s.profileRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if users == nil {
		users = []model.ProfileWithRole{}
	}
	return users, nil
}

// SetAdmin はユーザーの管理者フラグを切り替える。
// 自分自身の管理者権限の剥奪は許可しない（管理者が0人になるのを防ぐ）。
func (s *Service) SetAdmin(ctx context.Context, actorID, targetUserID string, makeAdmin bool) error {
	if actorID == targetUserID && !makeAdmin {
		return model.NewNotAuthorizedError()
	}

	target, err := s.profileRepo.FindByID(ctx, targetUserID)
	if err != nil {
		return fmt.Errorf("failed to find target user: %w", err)
	}
	if target == nil {
		return model.NewProfileNotFoundError()
	}

	if err := s.roleRepo.SetAdmin(ctx, targetUserID, makeAdmin); err != nil {
		return fmt.Errorf("failed to set admin role: %w", err)
	}

	slog.Info("admin role changed",
		slog.String("actor_id", actorID),
		slog.String("target_user_id", targetUserID),
		slog.Bool("is_admin", makeAdmin),
	)
	return nil
}

// DeleteUser はユーザーを削除する。
// identities・sessions・user_roles・メッセージ・評価はCASCADE削除される。
// 自分自身の削除は許可しない。
func (s *Service) DeleteUser(ctx context.Context, actorID, targetUserID string) error {
	if actorID == targetUserID {
		return model.NewNotAuthorizedError()
	}

	target, err := s.profileRepo.FindByID(ctx, targetUserID)
	if err != nil {
		return fmt.Errorf("failed to find target user: %w", err)
	}
	if target == nil {
		return model.NewProfileNotFoundError()
	}

	// CASCADE前に明示的にセッションを破棄し、即時ログアウトさせる
	if err := s.sessionRepo.DeleteByUserID(ctx, targetUserID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}

	if err := s.profileRepo.DeleteByID(ctx, targetUserID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("user deleted by admin",
		slog.String("actor_id", actorID),
		slog.String("target_user_id", targetUserID),
	)
	return nil
}

// ListConversations は全会話ペアの要約を返す。
func (s *Service) ListConversations(ctx context.Context) ([]model.ConversationSummary, error) {
	summaries, err := s.messageRepo.ListConversationSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation summaries: %w", err)
	}
	if summaries == nil {
		summaries = []model.ConversationSummary{}
	}
	return summaries, nil
}

// FetchConversation は任意の2ユーザー間の会話を閲覧する。
func (s *Service) FetchConversation(ctx context.Context, userA, userB string) ([]model.ChatMessage, error) {
	messages, err := s.messageRepo.ListConversation(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	if messages == nil {
		messages = []model.ChatMessage{}
	}
	return messages, nil
}

// DeleteMessage は任意のメッセージを送信者チェックなしで削除する。
// 会話ペアのチャンネルに削除イベントを配信する。
func (s *Service) DeleteMessage(ctx context.Context, actorID, messageID string) error {
	existing, err := s.messageRepo.FindByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to find message: %w", err)
	}
	if existing == nil {
		return model.NewMessageNotFoundError(messageID)
	}

	if err := s.messageRepo.DeleteByID(ctx, messageID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	event := &model.ChatEvent{
		Type:      model.ChatEventDelete,
		MessageID: existing.ID,
		Revision:  existing.Revision + 1,
	}
	if err := s.broker.PublishChat(ctx, existing.SenderID, existing.ReceiverID, event); err != nil {
		slog.Warn("failed to publish admin delete event",
			slog.String("message_id", messageID),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("message deleted by admin",
		slog.String("actor_id", actorID),
		slog.String("message_id", messageID),
	)
	return nil
}
