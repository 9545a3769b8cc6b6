package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/takumi/voltmap/internal/model"
)

// --- モック定義 ---

type mockAdminService struct {
	listUsersFn         func(ctx context.Context) ([]model.ProfileWithRole, error)
	setAdminFn          func(ctx context.Context, actorID, targetUserID string, makeAdmin bool) error
	deleteUserFn        func(ctx context.Context, actorID, targetUserID string) error
	listConversationsFn func(ctx context.Context) ([]model.ConversationSummary, error)
	fetchConversationFn func(ctx context.Context, userA, userB string) ([]model.ChatMessage, error)
	deleteMessageFn     func(ctx context.Context, actorID, messageID string) error
}

func (m *mockAdminService) ListUsers(ctx context.Context) ([]model.ProfileWithRole, error) {
	if m.listUsersFn != nil {
		return m.listUsersFn(ctx)
	}
	return nil, nil
}

func (m *mockAdminService) SetAdmin(ctx context.Context, actorID, targetUserID string, makeAdmin bool) error {
	if m.setAdminFn != nil {
		return m.setAdminFn(ctx, actorID, targetUserID, makeAdmin)
	}
	return nil
}

func (m *mockAdminService) DeleteUser(ctx context.Context, actorID, targetUserID string) error {
	if m.deleteUserFn != nil {
		return m.deleteUserFn(ctx, actorID, targetUserID)
	}
	return nil
}

func (m *mockAdminService) ListConversations(ctx context.Context) ([]model.ConversationSummary, error) {
	if m.listConversationsFn != nil {
		return m.listConversationsFn(ctx)
	}
	return nil, nil
}

func (m *mockAdminService) FetchConversation(ctx context.Context, userA, userB string) ([]model.ChatMessage, error) {
	if m.fetchConversationFn != nil {
		return m.fetchConversationFn(ctx, userA, userB)
	}
	return nil, nil
}

func (m *mockAdminService) DeleteMessage(ctx context.Context, actorID, messageID string) error {
	if m.deleteMessageFn != nil {
		return m.deleteMessageFn(ctx, actorID, messageID)
	}
	return nil
}

var _ AdminServiceInterface = (*mockAdminService)(nil)

// --- テスト ---

func TestAdminListUsers_ReturnsRoles(t *testing.T) {
	svc := &mockAdminService{
		listUsersFn: func(ctx context.Context) ([]model.ProfileWithRole, error) {
			return []model.ProfileWithRole{
				{Profile: model.Profile{ID: "user-1"}, IsAdmin: true},
				{Profile: model.Profile{ID: "user-2"}, IsAdmin: false},
			}, nil
		},
	}
	h := NewAdminHandler(svc)

	req := authedRequestWithParams(http.MethodGet, "/api/admin/users", "admin-1", "", nil)
	w := httptest.NewRecorder()

	h.ListUsers(w, req)

	var body []profileWithRoleResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("len = %d, want 2", len(body))
	}
	if !body[0].IsAdmin || body[1].IsAdmin {
		t.Errorf("unexpected roles: %+v", body)
	}
}

func TestSetUserRole_PassesActorAndTarget(t *testing.T) {
	var gotActor, gotTarget string
	var gotAdmin bool
	svc := &mockAdminService{
		setAdminFn: func(ctx context.Context, actorID, targetUserID string, makeAdmin bool) error {
			gotActor, gotTarget, gotAdmin = actorID, targetUserID, makeAdmin
			return nil
		},
	}
	h := NewAdminHandler(svc)

	req := authedRequestWithParams(http.MethodPut, "/api/admin/users/user-2/role", "admin-1",
		`{"is_admin":true}`, map[string]string{"id": "user-2"})
	w := httptest.NewRecorder()

	h.SetUserRole(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if gotActor != "admin-1" || gotTarget != "user-2" || !gotAdmin {
		t.Errorf("SetAdmin(%q, %q, %v), want (admin-1, user-2, true)", gotActor, gotTarget, gotAdmin)
	}
}

func TestSetUserRole_SelfDemotion_Returns403(t *testing.T) {
	svc := &mockAdminService{
		setAdminFn: func(ctx context.Context, actorID, targetUserID string, makeAdmin bool) error {
			return model.NewNotAuthorizedError()
		},
	}
	h := NewAdminHandler(svc)

	req := authedRequestWithParams(http.MethodPut, "/api/admin/users/admin-1/role", "admin-1",
		`{"is_admin":false}`, map[string]string{"id": "admin-1"})
	w := httptest.NewRecorder()

	h.SetUserRole(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

func TestAdminDeleteUser_Returns204(t *testing.T) {
	var gotTarget string
	svc := &mockAdminService{
		deleteUserFn: func(ctx context.Context, actorID, targetUserID string) error {
			gotTarget = targetUserID
			return nil
		},
	}
	h := NewAdminHandler(svc)

	req := authedRequestWithParams(http.MethodDelete, "/api/admin/users/user-2", "admin-1", "", map[string]string{"id": "user-2"})
	w := httptest.NewRecorder()

	h.DeleteUser(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if gotTarget != "user-2" {
		t.Errorf("target = %q, want user-2", gotTarget)
	}
}

func TestGetConversation_PassesBothUsers(t *testing.T) {
	svc := &mockAdminService{
		fetchConversationFn: func(ctx context.Context, userA, userB string) ([]model.ChatMessage, error) {
			if userA != "user-1" || userB != "user-2" {
				t.Errorf("pair = (%q, %q), want (user-1, user-2)", userA, userB)
			}
			return []model.ChatMessage{{ID: "msg-1"}}, nil
		},
	}
	h := NewAdminHandler(svc)

	req := authedRequestWithParams(http.MethodGet, "/api/admin/conversations/user-1/user-2", "admin-1", "",
		map[string]string{"userA": "user-1", "userB": "user-2"})
	w := httptest.NewRecorder()

	h.GetConversation(w, req)

	var body []messageResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body) != 1 || body[0].ID != "msg-1" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestAdminDeleteMessage_NotFound_Returns404(t *testing.T) {
	svc := &mockAdminService{
		deleteMessageFn: func(ctx context.Context, actorID, messageID string) error {
			return model.NewMessageNotFoundError(messageID)
		},
	}
	h := NewAdminHandler(svc)

	req := authedRequestWithParams(http.MethodDelete, "/api/admin/messages/gone", "admin-1", "", map[string]string{"id": "gone"})
	w := httptest.NewRecorder()

	h.DeleteMessage(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}
