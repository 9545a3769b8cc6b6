package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/takumi/voltmap/internal/middleware"
	"github.com/takumi/voltmap/internal/model"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	FetchConversation(ctx context.Context, userID, otherID string) ([]model.ChatMessage, error)
	RecentConversations(ctx context.Context, userID string) ([]model.RecentConversation, error)
	Send(ctx context.Context, senderID, receiverID, body string) (*model.ChatMessage, error)
	Edit(ctx context.Context, messageID, senderID, newBody string) (*model.ChatMessage, error)
	Delete(ctx context.Context, messageID, senderID string) error
}

// TypingServiceInterface は入力中ステータスのサービスインターフェース。
type TypingServiceInterface interface {
	Update(ctx context.Context, userID, chatWith string, isTyping bool) error
	IsTyping(ctx context.Context, userID, chatWith string) (bool, error)
}

// MessageMetricsRecorder はチャット操作のメトリクス記録インターフェース。
type MessageMetricsRecorder interface {
	RecordMessageSent()
	RecordMessageEdited()
	RecordMessageDeleted()
}

// ChatHandler はチャットメッセージングのHTTPハンドラー。
type ChatHandler struct {
	chatService   ChatServiceInterface
	typingService TypingServiceInterface
	metrics       MessageMetricsRecorder
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(chatService ChatServiceInterface, typingService TypingServiceInterface, metrics MessageMetricsRecorder) *ChatHandler {
	return &ChatHandler{
		chatService:   chatService,
		typingService: typingService,
		metrics:       metrics,
	}
}

// sendMessageRequest はメッセージ送信リクエストのボディ。
type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
}

// editMessageRequest はメッセージ編集リクエストのボディ。
type editMessageRequest struct {
	Body string `json:"body"`
}

// updateTypingRequest は入力中ステータス更新リクエストのボディ。
type updateTypingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// messageResponse はチャットメッセージのAPIレスポンス。
type messageResponse struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Body       string    `json:"body"`
	Revision   int64     `json:"revision"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// recentConversationResponse は会話相手ごとの要約のAPIレスポンス。
type recentConversationResponse struct {
	PartnerID           string    `json:"partner_id"`
	PartnerPlateNumber  string    `json:"partner_plate_number"`
	PartnerVehicleModel string    `json:"partner_vehicle_model"`
	LastMessage         string    `json:"last_message"`
	LastMessageAt       time.Time `json:"last_message_at"`
}

// ListConversations は自分の会話相手ごとの最新メッセージを新しい順で返す。
// チャットのサイドバー表示用。
// GET /api/chat/conversations
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	recent, err := h.chatService.RecentConversations(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]recentConversationResponse, 0, len(recent))
	for _, c := range recent {
		resp = append(resp, recentConversationResponse{
			PartnerID:           c.PartnerID,
			PartnerPlateNumber:  c.PartnerPlateNumber,
			PartnerVehicleModel: c.PartnerVehicleModel,
			LastMessage:         c.LastMessageBody,
			LastMessageAt:       c.LastMessageAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListMessages は指定した相手との会話履歴を取得する。
// GET /api/chat/{otherID}/messages
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	otherID := chi.URLParam(r, "otherID")
	messages, err := h.chatService.FetchConversation(r.Context(), userID, otherID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]messageResponse, 0, len(messages))
	for i := range messages {
		resp = append(resp, toMessageResponse(&messages[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// SendMessage は新規メッセージを送信する。
// POST /api/chat/messages
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if req.ReceiverID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "受信者IDが指定されていません。",
			Category: "validation",
			Action:   "receiver_idを指定してください。",
		})
		return
	}

	msg, err := h.chatService.Send(r.Context(), userID, req.ReceiverID, req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordMessageSent()
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

// EditMessage は自分が送信したメッセージを編集する。
// PATCH /api/chat/messages/{id}
func (h *ChatHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	messageID := chi.URLParam(r, "id")

	var req editMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	msg, err := h.chatService.Edit(r.Context(), messageID, userID, req.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordMessageEdited()
	}
	writeJSON(w, http.StatusOK, toMessageResponse(msg))
}

// DeleteMessage は自分が送信したメッセージを削除する。
// DELETE /api/chat/messages/{id}
func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	messageID := chi.URLParam(r, "id")

	if err := h.chatService.Delete(r.Context(), messageID, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordMessageDeleted()
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateTyping は入力中ステータスを更新する。
// PUT /api/chat/{otherID}/typing
func (h *ChatHandler) UpdateTyping(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	otherID := chi.URLParam(r, "otherID")

	var req updateTypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if err := h.typingService.Update(r.Context(), userID, otherID, req.IsTyping); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetTyping は相手が自分宛てに入力中かどうかを返す。
// GET /api/chat/{otherID}/typing
func (h *ChatHandler) GetTyping(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	otherID := chi.URLParam(r, "otherID")

	typing, err := h.typingService.IsTyping(r.Context(), userID, otherID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"is_typing": typing})
}

func toMessageResponse(m *model.ChatMessage) messageResponse {
	return messageResponse{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Body:       m.Body,
		Revision:   m.Revision,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
