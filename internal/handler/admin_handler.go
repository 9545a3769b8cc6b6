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

// AdminServiceInterface は管理パネルハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	ListUsers(ctx context.Context) ([]model.ProfileWithRole, error)
	SetAdmin(ctx context.Context, actorID, targetUserID string, makeAdmin bool) error
	DeleteUser(ctx context.Context, actorID, targetUserID string) error
	ListConversations(ctx context.Context) ([]model.ConversationSummary, error)
	FetchConversation(ctx context.Context, userA, userB string) ([]model.ChatMessage, error)
	DeleteMessage(ctx context.Context, actorID, messageID string) error
}

// AdminHandler は管理パネルのHTTPハンドラー。
// AdminMiddlewareの内側に配置する前提で、ロール検証はミドルウェアに委ねる。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// setRoleRequest はロール変更リクエストのボディ。
type setRoleRequest struct {
	IsAdmin bool `json:"is_admin"`
}

// conversationSummaryResponse は会話要約のAPIレスポンス。
type conversationSummaryResponse struct {
	UserAID       string    `json:"user_a_id"`
	UserBID       string    `json:"user_b_id"`
	MessageCount  int       `json:"message_count"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// ListUsers は全ユーザーの一覧をロール付きで返す。
// GET /api/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]profileWithRoleResponse, 0, len(users))
	for i := range users {
		resp = append(resp, toProfileWithRoleResponse(&users[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetUserRole はユーザーの管理者フラグを切り替える。
// PUT /api/admin/users/{id}/role
// 自分自身の降格は拒否される。
func (h *AdminHandler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	targetID := chi.URLParam(r, "id")

	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if err := h.service.SetAdmin(r.Context(), actorID, targetID, req.IsAdmin); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteUser はユーザーアカウントを削除する。
// DELETE /api/admin/users/{id}
// セッションも同時に破棄され、対象ユーザーは即座にログアウトされる。
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	targetID := chi.URLParam(r, "id")

	if err := h.service.DeleteUser(r.Context(), actorID, targetID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListConversations は全会話ペアの要約一覧を返す。
// GET /api/admin/conversations
func (h *AdminHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.service.ListConversations(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]conversationSummaryResponse, 0, len(conversations))
	for _, c := range conversations {
		resp = append(resp, conversationSummaryResponse{
			UserAID:       c.UserAID,
			UserBID:       c.UserBID,
			MessageCount:  c.MessageCount,
			LastMessageAt: c.LastMessageAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetConversation は指定した2ユーザー間の会話全文を返す。
// GET /api/admin/conversations/{userA}/{userB}
func (h *AdminHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userA := chi.URLParam(r, "userA")
	userB := chi.URLParam(r, "userB")

	messages, err := h.service.FetchConversation(r.Context(), userA, userB)
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

// DeleteMessage は任意のメッセージをモデレーション削除する。
// DELETE /api/admin/messages/{id}
func (h *AdminHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	actorID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	messageID := chi.URLParam(r, "id")

	if err := h.service.DeleteMessage(r.Context(), actorID, messageID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
