// Package profile はEVオーナープロフィールの管理を提供する。
package profile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/takumi/voltmap/internal/model"
	"github.com/takumi/voltmap/internal/repository"
	"github.com/takumi/voltmap/internal/security"
	"github.com/takumi/voltmap/internal/storage"
)

// maxAvatarBytes はアバター画像の最大サイズ。
const maxAvatarBytes = 5 << 20 // 5MiB

// allowedAvatarTypes はアップロードを許可するアバターのContent-Type。
var allowedAvatarTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// Service はプロフィールの取得・更新を提供する。
type Service struct {
	profileRepo repository.ProfileRepository
	roleRepo    repository.RoleRepository
	sanitizer   security.TextSanitizerService
	objectStore storage.ObjectStore
}

// NewService はServiceを生成する。
func NewService(
	profileRepo repository.ProfileRepository,
	roleRepo repository.RoleRepository,
	sanitizer security.TextSanitizerService,
	objectStore storage.ObjectStore,
) *Service {
	return &Service{
		profileRepo: profileRepo,
		roleRepo:    roleRepo,
		sanitizer:   sanitizer,
		objectStore: objectStore,
	}
}

// Get は指定ユーザーのプロフィールをロール付きで取得する。
// ロール行が無い場合はデフォルトの'user'ロールを永続化して返す。
func (s *Service) Get(ctx context.Context, userID string) (*model.ProfileWithRole, error) {
	profile, err := s.profileRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError()
	}

	role, err := s.roleRepo.FindRole(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find role: %w", err)
	}
	if role == "" {
		if err := s.roleRepo.EnsureDefault(ctx, userID); err != nil {
			return nil, fmt.Errorf("failed to ensure default role: %w", err)
		}
		role = model.RoleUser
	}

	return &model.ProfileWithRole{
		Profile: *profile,
		IsAdmin: role == model.RoleAdmin,
	}, nil
}

// UpdateInput はプロフィール更新の入力。
type UpdateInput struct {
	FirstName    string
	LastName     string
	Email        string
	PlateNumber  string
	VehicleModel string
}

// Update はプロフィールの編集可能フィールドを更新する。
// メールアドレスとナンバープレートは全プロフィールを通じて一意であり、
// 他ユーザーが使用中の場合はEMAIL_TAKEN / PLATE_NUMBER_TAKENを返す。
func (s *Service) Update(ctx context.Context, userID string, input UpdateInput) (*model.Profile, error) {
	existing, err := s.profileRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if existing == nil {
		return nil, model.NewProfileNotFoundError()
	}

	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	taken, err := s.profileRepo.EmailInUse(ctx, email, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check email uniqueness: %w", err)
	}
	if taken {
		return nil, model.NewEmailTakenError(email)
	}

	plate := strings.TrimSpace(input.PlateNumber)
	if plate != "" {
		taken, err := s.profileRepo.PlateNumberInUse(ctx, plate, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to check plate number uniqueness: %w", err)
		}
		if taken {
			return nil, model.NewPlateNumberTakenError(plate)
		}
	}

	existing.FirstName = strings.TrimSpace(s.sanitizer.SanitizeText(input.FirstName))
	existing.LastName = strings.TrimSpace(s.sanitizer.SanitizeText(input.LastName))
	existing.Email = email
	existing.PlateNumber = plate
	existing.VehicleModel = strings.TrimSpace(s.sanitizer.SanitizeText(input.VehicleModel))

	if err := s.profileRepo.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	slog.Info("profile updated", slog.String("user_id", userID))
	return existing, nil
}

// UploadAvatar はアバター画像をオブジェクトストレージに保存し、
// プロフィールのアバターURLを更新する。保存先URLを返す。
func (s *Service) UploadAvatar(ctx context.Context, userID, contentType string, r io.Reader) (string, error) {
	existing, err := s.profileRepo.FindByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to find profile: %w", err)
	}
	if existing == nil {
		return "", model.NewProfileNotFoundError()
	}

	ext, ok := allowedAvatarTypes[contentType]
	if !ok {
		return "", model.NewInvalidImageError(fmt.Sprintf("unsupported content type %q", contentType))
	}

	body, err := io.ReadAll(io.LimitReader(r, maxAvatarBytes+1))
	if err != nil {
		return "", model.NewInvalidImageError("failed to read image body")
	}
	if len(body) > maxAvatarBytes {
		return "", model.NewInvalidImageError("image exceeds size limit")
	}
	if len(body) == 0 {
		return "", model.NewInvalidImageError("empty image body")
	}

	key := fmt.Sprintf("avatars/%s%s", userID, ext)
	avatarURL, err := s.objectStore.Put(ctx, key, bytes.NewReader(body), int64(len(body)), contentType)
	if err != nil {
		return "", fmt.Errorf("failed to store avatar: %w", err)
	}

	if err := s.profileRepo.UpdateAvatarURL(ctx, userID, avatarURL); err != nil {
		return "", fmt.Errorf("failed to update avatar url: %w", err)
	}

	slog.Info("avatar uploaded", slog.String("user_id", userID))
	return avatarURL, nil
}

// Search は氏名・メールの部分一致でプロフィールを検索する。
// チャット相手の検索用。自分自身は結果から除外される。
func (s *Service) Search(ctx context.Context, query, requesterID string, limit int) ([]model.Profile, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.Profile{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	profiles, err := s.profileRepo.Search(ctx, query, requesterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search profiles: %w", err)
	}
	if profiles == nil {
		profiles = []model.Profile{}
	}
	return profiles, nil
}
