package handler

import (
	"context"
	"net/http"

	"github.com/takumi/voltmap/internal/middleware"
)

// PresenceTrackerInterface はプレゼンスハンドラーが必要とするトラッカーインターフェース。
type PresenceTrackerInterface interface {
	Join(ctx context.Context, userID string) error
	Heartbeat(ctx context.Context, userID string) error
	Leave(ctx context.Context, userID string) error
	Online(ctx context.Context) ([]string, error)
}

// PresenceHandler はオンラインプレゼンスのHTTPハンドラー。
// WebSocketを使わないクライアント向けのポーリングAPI。
type PresenceHandler struct {
	tracker PresenceTrackerInterface
}

// NewPresenceHandler はPresenceHandlerを生成する。
func NewPresenceHandler(tracker PresenceTrackerInterface) *PresenceHandler {
	return &PresenceHandler{tracker: tracker}
}

// ListOnline は現在オンラインのユーザーID一覧を返す。
// GET /api/presence
func (h *PresenceHandler) ListOnline(w http.ResponseWriter, r *http.Request) {
	online, err := h.tracker.Online(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string][]string{"online": online})
}

// Heartbeat は自分のオンライン状態を維持する。
// POST /api/presence/heartbeat
// TTLが切れていた場合は再参加として扱う。
func (h *PresenceHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.tracker.Heartbeat(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Leave は自分をオンライン集合から明示的に除外する。
// POST /api/presence/leave
func (h *PresenceHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	if err := h.tracker.Leave(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
