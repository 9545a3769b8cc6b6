package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/takumi/voltmap/internal/accessory"
	"github.com/takumi/voltmap/internal/middleware"
	"github.com/takumi/voltmap/internal/model"
)

// AccessoryServiceInterface はアクセサリーハンドラーが必要とするサービスインターフェース。
type AccessoryServiceInterface interface {
	List(ctx context.Context, userID string) ([]model.AccessoryWithRating, error)
	Rate(ctx context.Context, userID, accessoryID string, rating int) ([]model.AccessoryWithRating, error)
	Create(ctx context.Context, input accessory.CreateInput) (*model.Accessory, error)
	Update(ctx context.Context, accessoryID string, input accessory.UpdateInput) (*model.Accessory, error)
	Delete(ctx context.Context, accessoryID string) error
}

// RatingMetricsRecorder は評価登録のメトリクス記録インターフェース。
type RatingMetricsRecorder interface {
	RecordRatingSubmitted()
}

// AccessoryHandler はアクセサリーカタログのHTTPハンドラー。
type AccessoryHandler struct {
	service AccessoryServiceInterface
	metrics RatingMetricsRecorder
}

// NewAccessoryHandler はAccessoryHandlerを生成する。
func NewAccessoryHandler(service AccessoryServiceInterface, metrics RatingMetricsRecorder) *AccessoryHandler {
	return &AccessoryHandler{
		service: service,
		metrics: metrics,
	}
}

// rateAccessoryRequest は評価登録リクエストのボディ。
type rateAccessoryRequest struct {
	Rating int `json:"rating"`
}

// accessoryInputRequest はアクセサリー作成・更新リクエストのボディ。
type accessoryInputRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url"`
}

// accessoryResponse はアクセサリーのAPIレスポンス。
type accessoryResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// accessoryWithRatingResponse は評価集計付きアクセサリーのAPIレスポンス。
type accessoryWithRatingResponse struct {
	accessoryResponse
	UserRating    *int    `json:"user_rating"`
	AverageRating float64 `json:"average_rating"`
	RatingCount   int     `json:"rating_count"`
}

// ListAccessories はアクセサリー一覧を評価集計付きで取得する。
// GET /api/accessories
func (h *AccessoryHandler) ListAccessories(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	accessories, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccessoryWithRatingResponses(accessories))
}

// RateAccessory はアクセサリーへの評価を登録・更新する。
// PUT /api/accessories/{id}/rating
// 更新後の一覧（評価集計済み）を返す。
func (h *AccessoryHandler) RateAccessory(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	accessoryID := chi.URLParam(r, "id")

	var req rateAccessoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	accessories, err := h.service.Rate(r.Context(), userID, accessoryID, req.Rating)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordRatingSubmitted()
	}
	writeJSON(w, http.StatusOK, toAccessoryWithRatingResponses(accessories))
}

// CreateAccessory はアクセサリーを新規登録する（管理者のみ）。
// POST /api/admin/accessories
func (h *AccessoryHandler) CreateAccessory(w http.ResponseWriter, r *http.Request) {
	var req accessoryInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	created, err := h.service.Create(r.Context(), accessory.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccessoryResponse(created))
}

// UpdateAccessory はアクセサリー情報を更新する（管理者のみ）。
// PUT /api/admin/accessories/{id}
func (h *AccessoryHandler) UpdateAccessory(w http.ResponseWriter, r *http.Request) {
	accessoryID := chi.URLParam(r, "id")

	var req accessoryInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	updated, err := h.service.Update(r.Context(), accessoryID, accessory.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccessoryResponse(updated))
}

// DeleteAccessory はアクセサリーを削除する（管理者のみ）。
// DELETE /api/admin/accessories/{id}
func (h *AccessoryHandler) DeleteAccessory(w http.ResponseWriter, r *http.Request) {
	accessoryID := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), accessoryID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toAccessoryResponse(a *model.Accessory) accessoryResponse {
	return accessoryResponse{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		ImageURL:    a.ImageURL,
		Category:    a.Category,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toAccessoryWithRatingResponses(list []model.AccessoryWithRating) []accessoryWithRatingResponse {
	resp := make([]accessoryWithRatingResponse, 0, len(list))
	for i := range list {
		resp = append(resp, accessoryWithRatingResponse{
			accessoryResponse: toAccessoryResponse(&list[i].Accessory),
			UserRating:        list[i].UserRating,
			AverageRating:     list[i].AverageRating,
			RatingCount:       list[i].RatingCount,
		})
	}
	return resp
}
