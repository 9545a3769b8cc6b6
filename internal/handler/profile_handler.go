package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/takumi/voltmap/internal/middleware"
	"github.com/takumi/voltmap/internal/model"
	"github.com/takumi/voltmap/internal/profile"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Get(ctx context.Context, userID string) (*model.ProfileWithRole, error)
	Update(ctx context.Context, userID string, input profile.UpdateInput) (*model.Profile, error)
	UploadAvatar(ctx context.Context, userID, contentType string, r io.Reader) (string, error)
	Search(ctx context.Context, query, requesterID string, limit int) ([]model.Profile, error)
}

// ProfileHandler はプロフィール管理のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	PlateNumber  string `json:"plate_number"`
	VehicleModel string `json:"vehicle_model"`
}

// profileResponse はプロフィール情報のAPIレスポンス。
type profileResponse struct {
	ID           string    `json:"id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `json:"email"`
	PlateNumber  string    `json:"plate_number"`
	VehicleModel string    `json:"vehicle_model"`
	AvatarURL    string    `json:"avatar_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// profileWithRoleResponse はロール付きプロフィールのAPIレスポンス。
type profileWithRoleResponse struct {
	profileResponse
	IsAdmin bool `json:"is_admin"`
}

// GetProfile は自分のプロフィールを取得する。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	p, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileWithRoleResponse(p))
}

// UpdateProfile は自分のプロフィールを更新する。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	updated, err := h.service.Update(r.Context(), userID, profile.UpdateInput{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		PlateNumber:  req.PlateNumber,
		VehicleModel: req.VehicleModel,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(updated))
}

// UploadAvatar はアバター画像をアップロードする。
// POST /api/profile/avatar
// ボディは画像のバイナリ、Content-Typeヘッダーで形式を指定する。
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	contentType := r.Header.Get("Content-Type")
	url, err := h.service.UploadAvatar(r.Context(), userID, contentType, r.Body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"avatar_url": url})
}

// SearchProfiles はチャット相手検索用のプロフィール検索を行う。
// GET /api/profiles/search?q=xxx
func (h *ProfileHandler) SearchProfiles(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	query := r.URL.Query().Get("q")
	results, err := h.service.Search(r.Context(), query, userID, 0)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]profileResponse, 0, len(results))
	for i := range results {
		resp = append(resp, toProfileResponse(&results[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- ヘルパー関数 ---

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		ID:           p.ID,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Email:        p.Email,
		PlateNumber:  p.PlateNumber,
		VehicleModel: p.VehicleModel,
		AvatarURL:    p.AvatarURL,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func toProfileWithRoleResponse(p *model.ProfileWithRole) profileWithRoleResponse {
	return profileWithRoleResponse{
		profileResponse: toProfileResponse(&p.Profile),
		IsAdmin:         p.IsAdmin,
	}
}
