package profile

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/takumi/voltmap/internal/model"
	"github.com/takumi/voltmap/internal/repository"
	"github.com/takumi/voltmap/internal/security"
	"github.com/takumi/voltmap/internal/storage"
)

// --- モック定義 ---

type mockProfileRepo struct {
	findByIDFn          func(ctx context.Context, id string) (*model.Profile, error)
	updateFn            func(ctx context.Context, profile *model.Profile) error
	updateAvatarURLFn   func(ctx context.Context, userID, avatarURL string) error
	emailInUseFn        func(ctx context.Context, email, excludeUserID string) (bool, error)
	plateNumberInUseFn  func(ctx context.Context, plateNumber, excludeUserID string) (bool, error)
	searchFn            func(ctx context.Context, query, excludeUserID string, limit int) ([]model.Profile, error)
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockProfileRepo) CreateWithIdentity(_ context.Context, _ *model.Profile, _ *model.Identity) error {
	return nil
}

func (m *mockProfileRepo) Update(ctx context.Context, profile *model.Profile) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, profile)
	}
	return nil
}

func (m *mockProfileRepo) UpdateAvatarURL(ctx context.Context, userID, avatarURL string) error {
	if m.updateAvatarURLFn != nil {
		return m.updateAvatarURLFn(ctx, userID, avatarURL)
	}
	return nil
}

func (m *mockProfileRepo) EmailInUse(ctx context.Context, email, excludeUserID string) (bool, error) {
	if m.emailInUseFn != nil {
		return m.emailInUseFn(ctx, email, excludeUserID)
	}
	return false, nil
}

func (m *mockProfileRepo) PlateNumberInUse(ctx context.Context, plateNumber, excludeUserID string) (bool, error) {
	if m.plateNumberInUseFn != nil {
		return m.plateNumberInUseFn(ctx, plateNumber, excludeUserID)
	}
	return false, nil
}

func (m *mockProfileRepo) List(_ context.Context) ([]model.ProfileWithRole, error) { return nil, nil }

func (m *mockProfileRepo) Search(ctx context.Context, query, excludeUserID string, limit int) ([]model.Profile, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, excludeUserID, limit)
	}
	return nil, nil
}

func (m *mockProfileRepo) DeleteByID(_ context.Context, _ string) error { return nil }

type mockRoleRepo struct {
	findRoleFn      func(ctx context.Context, userID string) (model.Role, error)
	ensureDefaultFn func(ctx context.Context, userID string) error
}

func (m *mockRoleRepo) FindRole(ctx context.Context, userID string) (model.Role, error) {
	if m.findRoleFn != nil {
		return m.findRoleFn(ctx, userID)
	}
	return "", nil
}

func (m *mockRoleRepo) EnsureDefault(ctx context.Context, userID string) error {
	if m.ensureDefaultFn != nil {
		return m.ensureDefaultFn(ctx, userID)
	}
	return nil
}

func (m *mockRoleRepo) SetAdmin(_ context.Context, _ string, _ bool) error { return nil }

type mockObjectStore struct {
	putKey         string
	putContentType string
	putErr         error
}

func (m *mockObjectStore) Put(_ context.Context, key string, _ io.Reader, _ int64, contentType string) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	m.putKey = key
	m.putContentType = contentType
	return "http://store.local/voltmap/" + key, nil
}

func (m *mockObjectStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://store.local/presigned/" + key, nil
}

func (m *mockObjectStore) Delete(_ context.Context, _ string) error { return nil }

var _ repository.ProfileRepository = (*mockProfileRepo)(nil)
var _ repository.RoleRepository = (*mockRoleRepo)(nil)
var _ storage.ObjectStore = (*mockObjectStore)(nil)

func newTestService(profileRepo *mockProfileRepo, roleRepo *mockRoleRepo, store *mockObjectStore) *Service {
	return NewService(profileRepo, roleRepo, security.NewTextSanitizer(), store)
}

// --- テスト ---

func TestGet_ExistingProfile_ReturnsWithRole(t *testing.T) {
	ctx := context.Background()

	profileRepo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			return &model.Profile{ID: id, Email: "alice@example.com"}, nil
		},
	}
	roleRepo := &mockRoleRepo{
		findRoleFn: func(ctx context.Context, userID string) (model.Role, error) {
			return model.RoleAdmin, nil
		},
	}

	svc := newTestService(profileRepo, roleRepo, &mockObjectStore{})

	got, err := svc.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("email = %q", got.Email)
	}
	if !got.IsAdmin {
		t.Error("IsAdmin = false, want true")
	}
}

func TestGet_NoRoleRow_PersistsDefault(t *testing.T) {
	ctx := context.Background()

	var ensured string
	profileRepo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			return &model.Profile{ID: id}, nil
		},
	}
	roleRepo := &mockRoleRepo{
		ensureDefaultFn: func(ctx context.Context, userID string) error {
			ensured = userID
			return nil
		},
	}

	svc := newTestService(profileRepo, roleRepo, &mockObjectStore{})

	got, err := svc.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ensured != "alice" {
		t.Errorf("EnsureDefault対象 = %q, want alice", ensured)
	}
	if got.IsAdmin {
		t.Error("デフォルトロールでIsAdmin = true")
	}
}

func TestGet_MissingProfile_ReturnsNotFound(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(&mockProfileRepo{}, &mockRoleRepo{}, &mockObjectStore{})

	_, err := svc.Get(ctx, "missing")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeProfileNotFound {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeProfileNotFound)
	}
}

func TestUpdate_ValidInput_UpdatesProfile(t *testing.T) {
	ctx := context.Background()

	var updated *model.Profile
	profileRepo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			return &model.Profile{ID: id, Email: "old@example.com"}, nil
		},
		updateFn: func(ctx context.Context, profile *model.Profile) error {
			updated = profile
			return nil
		},
	}

	svc := newTestService(profileRepo, &mockRoleRepo{}, &mockObjectStore{})

	got, err := svc.Update(ctx, "alice", UpdateInput{
		FirstName:    " Takumi ",
		LastName:     "Sato",
		Email:        " Alice@Example.COM ",
		PlateNumber:  "品川 300 あ 12-34",
		VehicleModel: "Ariya",
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated == nil {
		t.Fatal("expected profile to be updated")
	}
	// メールアドレスは小文字に正規化される
	if got.Email != "alice@example.com" {
		t.Errorf("email = %q, want alice@example.com", got.Email)
	}
	if got.FirstName != "Takumi" {
		t.Errorf("first name = %q, 空白が除去されていない", got.FirstName)
	}
	if got.PlateNumber != "品川 300 あ 12-34" {
		t.Errorf("plate = %q", got.PlateNumber)
	}
}

func TestUpdate_EmailTaken_ReturnsError(t *testing.T) {
	ctx := context.Background()

	profileRepo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			return &model.Profile{ID: id}, nil
		},
		emailInUseFn: func(ctx context.Context, email, excludeUserID string) (bool, error) {
			return true, nil
		},
	}

	svc := newTestService(profileRepo, &mockRoleRepo{}, &mockObjectStore{})

	_, err := svc.Update(ctx, "alice", UpdateInput{Email: "taken@example.com"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeEmailTaken {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeEmailTaken)
	}
}

func TestUpdate_PlateNumberTaken_ReturnsError(t *testing.T) {
	ctx := context.Background()

	profileRepo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			return &model.Profile{ID: id}, nil
		},
		plateNumberInUseFn: func(ctx context.Context, plateNumber, excludeUserID string) (bool, error) {
			return true, nil
		},
	}

	svc := newTestService(profileRepo, &mockRoleRepo{}, &mockObjectStore{})

	_, err := svc.Update(ctx, "alice", UpdateInput{
		Email:       "alice@example.com",
		PlateNumber: "品川 300 あ 12-34",
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodePlateNumberTaken {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodePlateNumberTaken)
	}
}

func TestUpdate_EmptyPlate_SkipsUniquenessCheck(t *testing.T) {
	ctx := context.Background()

	checked := false
	profileRepo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			return &model.Profile{ID: id}, nil
		},
		plateNumberInUseFn: func(ctx context.Context, plateNumber, excludeUserID string) (bool, error) {
			checked = true
			return false, nil
		},
	}

	svc := newTestService(profileRepo, &mockRoleRepo{}, &mockObjectStore{})

	_, err := svc.Update(ctx, "alice", UpdateInput{Email: "alice@example.com", PlateNumber: "  "})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if checked {
		t.Error("空のナンバープレートで一意性チェックが実行された")
	}
}

func TestUploadAvatar_ValidImage_StoresAndUpdatesURL(t *testing.T) {
	ctx := context.Background()

	var savedURL string
	profileRepo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			return &model.Profile{ID: id}, nil
		},
		updateAvatarURLFn: func(ctx context.Context, userID, avatarURL string) error {
			savedURL = avatarURL
			return nil
		},
	}
	store := &mockObjectStore{}

	svc := newTestService(profileRepo, &mockRoleRepo{}, store)

	url, err := svc.UploadAvatar(ctx, "alice", "image/png", strings.NewReader("fake-png"))
	if err != nil {
		t.Fatalf("UploadAvatar() error = %v", err)
	}

	if store.putKey != "avatars/alice.png" {
		t.Errorf("put key = %q, want avatars/alice.png", store.putKey)
	}
	if url == "" || url != savedURL {
		t.Errorf("url = %q, savedURL = %q", url, savedURL)
	}
}

func TestUploadAvatar_UnsupportedType_ReturnsInvalidImage(t *testing.T) {
	ctx := context.Background()

	profileRepo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			return &model.Profile{ID: id}, nil
		},
	}

	svc := newTestService(profileRepo, &mockRoleRepo{}, &mockObjectStore{})

	_, err := svc.UploadAvatar(ctx, "alice", "image/gif", strings.NewReader("gif-data"))

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidImage {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeInvalidImage)
	}
}

func TestUploadAvatar_EmptyBody_ReturnsInvalidImage(t *testing.T) {
	ctx := context.Background()

	profileRepo := &mockProfileRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Profile, error) {
			return &model.Profile{ID: id}, nil
		},
	}

	svc := newTestService(profileRepo, &mockRoleRepo{}, &mockObjectStore{})

	_, err := svc.UploadAvatar(ctx, "alice", "image/png", strings.NewReader(""))

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidImage {
		t.Errorf("error code = %q, want %q", apiErr.Code, model.ErrCodeInvalidImage)
	}
}

func TestSearch_EmptyQuery_ReturnsEmpty(t *testing.T) {
	ctx := context.Background()

	called := false
	profileRepo := &mockProfileRepo{
		searchFn: func(ctx context.Context, query, excludeUserID string, limit int) ([]model.Profile, error) {
			called = true
			return nil, nil
		},
	}

	svc := newTestService(profileRepo, &mockRoleRepo{}, &mockObjectStore{})

	results, err := svc.Search(ctx, "   ", "alice", 20)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %v, want empty", results)
	}
	if called {
		t.Error("空クエリでリポジトリ検索が実行された")
	}
}

func TestSearch_LimitIsClamped(t *testing.T) {
	ctx := context.Background()

	var gotLimit int
	profileRepo := &mockProfileRepo{
		searchFn: func(ctx context.Context, query, excludeUserID string, limit int) ([]model.Profile, error) {
			gotLimit = limit
			return []model.Profile{}, nil
		},
	}

	svc := newTestService(profileRepo, &mockRoleRepo{}, &mockObjectStore{})

	if _, err := svc.Search(ctx, "sato", "alice", 1000); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if gotLimit != 20 {
		t.Errorf("limit = %d, want 20", gotLimit)
	}
}
