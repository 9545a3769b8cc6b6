// Package chat はダイレクトメッセージのビジネスロジックを提供する。
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/takumi/voltmap/internal/model"
	"github.com/takumi/voltmap/internal/realtime"
	"github.com/takumi/voltmap/internal/repository"
	"github.com/takumi/voltmap/internal/security"
)

// TypingClearer は入力中ステータスのクリアに使うインターフェース。
// typing.Serviceの部分集合として定義する。
type TypingClearer interface {
	Update(ctx context.Context, userID, chatWith string, isTyping bool) error
}

// Service はチャットメッセージの操作を提供する。
// 全ての変更操作は会話ペアのチャンネルへリアルタイムイベントを配信する。
type Service struct {
	messageRepo repository.MessageRepository
	broker      realtime.Broker
	sanitizer   security.TextSanitizerService
	typing      TypingClearer
}

// NewService はServiceを生成する。
func NewService(
	messageRepo repository.MessageRepository,
	broker realtime.Broker,
	sanitizer security.TextSanitizerService,
	typing TypingClearer,
) *Service {
	return &Service{
		messageRepo: messageRepo,
		broker:      broker,
		sanitizer:   sanitizer,
		typing:      typing,
	}
}

// FetchConversation は2ユーザー間の全メッセージをcreated_at昇順で返す。
// メッセージが無い場合は空スライスを返す。
func (s *Service) FetchConversation(ctx context.Context, userID, otherID string) ([]model.ChatMessage, error) {
	messages, err := s.messageRepo.ListConversation(ctx, userID, otherID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation: %w", err)
	}
	if messages == nil {
		messages = []model.ChatMessage{}
	}
	return messages, nil
}

// RecentConversations は指定ユーザーの会話相手ごとの最新メッセージを
// 新しい順で返す。会話が無い場合は空スライスを返す。
func (s *Service) RecentConversations(ctx context.Context, userID string) ([]model.RecentConversation, error) {
	recent, err := s.messageRepo.ListRecentConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent conversations: %w", err)
	}
	if recent == nil {
		recent = []model.RecentConversation{}
	}
	return recent, nil
}

// Send はメッセージを送信する。
// 本文は前後の空白を除去しHTMLタグをサニタイズする。
// サニタイズ後に空になった場合はEMPTY_MESSAGEエラーを返し、挿入は行わない。
// 送信成功時は送信者の入力中ステータスを即時クリアする。
func (s *Service) Send(ctx context.Context, senderID, receiverID, body string) (*model.ChatMessage, error) {
	cleaned := s.cleanBody(body)
	if cleaned == "" {
		return nil, model.NewEmptyMessageError()
	}

	now := time.Now()
	msg := &model.ChatMessage{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Body:       cleaned,
		Revision:   1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.messageRepo.Insert(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	s.publishChat(ctx, msg.SenderID, msg.ReceiverID, &model.ChatEvent{
		Type:      model.ChatEventInsert,
		MessageID: msg.ID,
		Message:   msg,
		Revision:  msg.Revision,
	})

	// 送信した時点で入力は終わっている。デバウンスの静止期間を待たずにクリアする。
	// クリア失敗は送信の失敗にしない。
	if err := s.typing.Update(ctx, senderID, receiverID, false); err != nil {
		slog.Warn("failed to clear typing status on send",
			slog.String("sender_id", senderID),
			slog.String("error", err.Error()),
		)
	}

	return msg, nil
}

// Edit はメッセージ本文を編集する。送信者本人のみ編集できる。
// 更新が0行だった場合は成功扱いにせず、メッセージが存在すれば
// NOT_AUTHORIZED、存在しなければMESSAGE_NOT_FOUNDを返す。
func (s *Service) Edit(ctx context.Context, messageID, senderID, newBody string) (*model.ChatMessage, error) {
	cleaned := s.cleanBody(newBody)
	if cleaned == "" {
		return nil, model.NewEmptyMessageError()
	}

	updated, err := s.messageRepo.UpdateBody(ctx, messageID, cleaned, senderID)
	if err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}

	if updated == nil {
		existing, err := s.messageRepo.FindByID(ctx, messageID)
		if err != nil {
			return nil, fmt.Errorf("failed to find message: %w", err)
		}
		if existing == nil {
			return nil, model.NewMessageNotFoundError(messageID)
		}
		return nil, model.NewNotAuthorizedError()
	}

	s.publishChat(ctx, updated.SenderID, updated.ReceiverID, &model.ChatEvent{
		Type:      model.ChatEventUpdate,
		MessageID: updated.ID,
		Message:   updated,
		Revision:  updated.Revision,
	})

	return updated, nil
}

// Delete はメッセージを削除する。送信者本人のみ削除できる。
// 削除が0行だった場合はEditと同様にNOT_AUTHORIZEDまたは
// MESSAGE_NOT_FOUNDを区別して返す。
func (s *Service) Delete(ctx context.Context, messageID, senderID string) error {
	// 削除前にペアとリビジョンを取得する。イベント配信に必要。
	existing, err := s.messageRepo.FindByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to find message: %w", err)
	}
	if existing == nil {
		return model.NewMessageNotFoundError(messageID)
	}

	deleted, err := s.messageRepo.DeleteBySender(ctx, messageID, senderID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if !deleted {
		return model.NewNotAuthorizedError()
	}

	// 削除イベントのリビジョンは既存リビジョンより大きくする。
	// 同一リビジョンの編集イベントと競合した場合に削除が勝つ。
	s.publishChat(ctx, existing.SenderID, existing.ReceiverID, &model.ChatEvent{
		Type:      model.ChatEventDelete,
		MessageID: existing.ID,
		Revision:  existing.Revision + 1,
	})

	return nil
}

// cleanBody は本文の前後の空白を除去し、HTMLタグをサニタイズする。
func (s *Service) cleanBody(body string) string {
	return strings.TrimSpace(s.sanitizer.SanitizeText(strings.TrimSpace(body)))
}

// publishChat はイベント配信を行う。配信失敗は操作の失敗にしない。
// DBへの書き込みが完了している以上、操作自体は成功として扱う。
func (s *Service) publishChat(ctx context.Context, userA, userB string, event *model.ChatEvent) {
	if err := s.broker.PublishChat(ctx, userA, userB, event); err != nil {
		slog.Warn("failed to publish chat event",
			slog.String("type", string(event.Type)),
			slog.String("message_id", event.MessageID),
			slog.String("error", err.Error()),
		)
	}
}
