// Package accessory はEVアクセサリーのリスティングと評価を提供する。
package accessory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
	"github.com/google/uuid"

	"github.com/takumi/voltmap/internal/model"
	"github.com/takumi/voltmap/internal/repository"
	"github.com/takumi/voltmap/internal/security"
	"github.com/takumi/voltmap/internal/storage"
)

// maxImageBytes は取り込む画像の最大サイズ。
const maxImageBytes = 10 << 20 // 10MiB

// allowedImageTypes は取り込みを許可する画像のContent-Type。
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// ImageFetcher は画像取得用HTTPクライアントのインターフェース。
// 本番ではsafeurl.WrappedClient（SSRFガード付き）を注入する。
type ImageFetcher interface {
	Get(url string) (*http.Response, error)
}

// safeurl.WrappedClientがImageFetcherを満たすことの確認
var _ ImageFetcher = (*safeurl.WrappedClient)(nil)

// Service はアクセサリーの閲覧・評価と管理者向けCRUDを提供する。
type Service struct {
	accessoryRepo repository.AccessoryRepository
	sanitizer     security.TextSanitizerService
	fetcher       ImageFetcher
	objectStore   storage.ObjectStore
}

// NewService はServiceを生成する。
func NewService(
	accessoryRepo repository.AccessoryRepository,
	sanitizer security.TextSanitizerService,
	fetcher ImageFetcher,
	objectStore storage.ObjectStore,
) *Service {
	return &Service{
		accessoryRepo: accessoryRepo,
		sanitizer:     sanitizer,
		fetcher:       fetcher,
		objectStore:   objectStore,
	}
}

// List は全アクセサリーを評価集計付きで返す。
// userIDのユーザー自身の評価が解決される（未評価ならnil）。
func (s *Service) List(ctx context.Context, userID string) ([]model.AccessoryWithRating, error) {
	items, err := s.accessoryRepo.ListWithRatings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accessories: %w", err)
	}
	if items == nil {
		items = []model.AccessoryWithRating{}
	}
	return items, nil
}

// Rate はアクセサリーへの評価を登録する。
// 同一ユーザーの再評価は最新値で上書きされる。
// 評価後の最新の集計を含むアクセサリー一覧を返す（全件再取得）。
func (s *Service) Rate(ctx context.Context, userID, accessoryID string, rating int) ([]model.AccessoryWithRating, error) {
	if !model.ValidRating(rating) {
		return nil, model.NewInvalidRatingError(rating)
	}

	existing, err := s.accessoryRepo.FindByID(ctx, accessoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to find accessory: %w", err)
	}
	if existing == nil {
		return nil, model.NewAccessoryNotFoundError(accessoryID)
	}

	now := time.Now()
	if err := s.accessoryRepo.UpsertRating(ctx, &model.AccessoryRating{
		AccessoryID: accessoryID,
		UserID:      userID,
		Rating:      rating,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		return nil, fmt.Errorf("failed to upsert rating: %w", err)
	}

	return s.List(ctx, userID)
}

// CreateInput はアクセサリー作成の入力。
type CreateInput struct {
	Name        string
	Description string
	Category    string
	ImageURL    string // 取り込み元の画像URL（省略可）
}

// Create はアクセサリーを作成する。管理者のみ実行できる
// （認可はハンドラー層のミドルウェアで行う）。
// ImageURLが指定された場合はSSRFガード経由で画像を取得し、
// オブジェクトストレージに複製を保存する。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Accessory, error) {
	name := strings.TrimSpace(s.sanitizer.SanitizeText(input.Name))
	if name == "" {
		return nil, fmt.Errorf("accessory name is required")
	}

	now := time.Now()
	accessory := &model.Accessory{
		ID:          uuid.New().String(),
		Name:        name,
		Description: s.sanitizer.SanitizeDescription(input.Description),
		Category:    strings.TrimSpace(s.sanitizer.SanitizeText(input.Category)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if input.ImageURL != "" {
		storedURL, err := s.ingestImage(ctx, accessory.ID, input.ImageURL)
		if err != nil {
			return nil, err
		}
		accessory.ImageURL = storedURL
	}

	if err := s.accessoryRepo.Create(ctx, accessory); err != nil {
		return nil, fmt.Errorf("failed to create accessory: %w", err)
	}

	slog.Info("accessory created",
		slog.String("accessory_id", accessory.ID),
		slog.String("name", accessory.Name),
	)
	return accessory, nil
}

// UpdateInput はアクセサリー更新の入力。
type UpdateInput struct {
	Name        string
	Description string
	Category    string
	ImageURL    string // 新しい取り込み元URL。空なら画像は変更しない
}

// Update はアクセサリーを更新する。管理者のみ実行できる。
func (s *Service) Update(ctx context.Context, accessoryID string, input UpdateInput) (*model.Accessory, error) {
	existing, err := s.accessoryRepo.FindByID(ctx, accessoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to find accessory: %w", err)
	}
	if existing == nil {
		return nil, model.NewAccessoryNotFoundError(accessoryID)
	}

	name := strings.TrimSpace(s.sanitizer.SanitizeText(input.Name))
	if name == "" {
		return nil, fmt.Errorf("accessory name is required")
	}

	existing.Name = name
	existing.Description = s.sanitizer.SanitizeDescription(input.Description)
	existing.Category = strings.TrimSpace(s.sanitizer.SanitizeText(input.Category))
	existing.UpdatedAt = time.Now()

	if input.ImageURL != "" {
		storedURL, err := s.ingestImage(ctx, existing.ID, input.ImageURL)
		if err != nil {
			return nil, err
		}
		existing.ImageURL = storedURL
	}

	if err := s.accessoryRepo.Update(ctx, existing); err != nil {
		return nil, fmt.Errorf("failed to update accessory: %w", err)
	}

	return existing, nil
}

// Delete はアクセサリーを削除する。管理者のみ実行できる。
// 紐付く評価はCASCADE削除される。
func (s *Service) Delete(ctx context.Context, accessoryID string) error {
	existing, err := s.accessoryRepo.FindByID(ctx, accessoryID)
	if err != nil {
		return fmt.Errorf("failed to find accessory: %w", err)
	}
	if existing == nil {
		return model.NewAccessoryNotFoundError(accessoryID)
	}

	if err := s.accessoryRepo.Delete(ctx, accessoryID); err != nil {
		return fmt.Errorf("failed to delete accessory: %w", err)
	}

	slog.Info("accessory deleted", slog.String("accessory_id", accessoryID))
	return nil
}

// ingestImage は外部URLから画像を取得し、オブジェクトストレージに保存する。
// SSRFガードで内部ネットワークへのアクセスをブロックする。
func (s *Service) ingestImage(ctx context.Context, accessoryID, rawURL string) (string, error) {
	if err := security.ValidateImageURL(rawURL); err != nil {
		slog.Warn("accessory image url blocked",
			slog.String("accessory_id", accessoryID),
			slog.String("error", err.Error()),
		)
		return "", model.NewSSRFBlockedError()
	}

	resp, err := s.fetcher.Get(rawURL)
	if err != nil {
		return "", model.NewInvalidImageError(fmt.Sprintf("failed to fetch image: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", model.NewInvalidImageError(fmt.Sprintf("image fetch returned status %d", resp.StatusCode))
	}

	contentType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return "", model.NewInvalidImageError("missing content type")
	}
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return "", model.NewInvalidImageError(fmt.Sprintf("unsupported content type %q", contentType))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", model.NewInvalidImageError("failed to read image body")
	}
	if len(body) > maxImageBytes {
		return "", model.NewInvalidImageError("image exceeds size limit")
	}
	if len(body) == 0 {
		return "", model.NewInvalidImageError("empty image body")
	}

	key := fmt.Sprintf("accessories/%s%s", accessoryID, ext)
	storedURL, err := s.objectStore.Put(ctx, key, bytes.NewReader(body), int64(len(body)), contentType)
	if err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}

	return storedURL, nil
}
