package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/agora/internal/model"
)

type mockGroupService struct {
	createFn          func(ctx context.Context, name, description string) (*model.Group, error)
	getFn             func(ctx context.Context, id string) (*model.Group, error)
	listFn            func(ctx context.Context) ([]*model.Group, error)
	updateFn          func(ctx context.Context, id, description string) (*model.Group, error)
	deleteFn          func(ctx context.Context, id string) error
	grantModeratorFn  func(ctx context.Context, groupID, userID string) error
	revokeModeratorFn func(ctx context.Context, groupID, userID string) error
}

func (m *mockGroupService) Create(ctx context.Context, name, description string) (*model.Group, error) {
	if m.createFn != nil {
		return m.createFn(ctx, name, description)
	}
	return nil, nil
}

func (m *mockGroupService) Get(ctx context.Context, id string) (*model.Group, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, nil
}

func (m *mockGroupService) List(ctx context.Context) ([]*model.Group, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockGroupService) Update(ctx context.Context, id, description string) (*model.Group, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, id, description)
	}
	return nil, nil
}

func (m *mockGroupService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

func (m *mockGroupService) GrantModerator(ctx context.Context, groupID, userID string) error {
	if m.grantModeratorFn != nil {
		return m.grantModeratorFn(ctx, groupID, userID)
	}
	return nil
}

func (m *mockGroupService) RevokeModerator(ctx context.Context, groupID, userID string) error {
	if m.revokeModeratorFn != nil {
		return m.revokeModeratorFn(ctx, groupID, userID)
	}
	return nil
}

// withModeratorParams はグループIDとユーザーIDの2つのURLパラメータを注入するヘルパー。
func withModeratorParams(r *http.Request, groupID, userID string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", groupID)
	rctx.URLParams.Add("userID", userID)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// TestGroupHandler_CreateGroup はグループ作成を検証する。
func TestGroupHandler_CreateGroup(t *testing.T) {
	svc := &mockGroupService{
		createFn: func(ctx context.Context, name, description string) (*model.Group, error) {
			return &model.Group{ID: "group-1", Name: name, Description: description, OwnerID: "user-1"}, nil
		},
	}
	h := NewGroupHandler(svc)

	body := `{"name":"golang-news","description":"Goの話題"}`
	req := httptest.NewRequest(http.MethodPost, "/api/groups", strings.NewReader(body))
	w := httptest.NewRecorder()

	h.CreateGroup(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var got groupResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Name != "golang-news" {
		t.Errorf("name = %q, want golang-news", got.Name)
	}
}

// TestGroupHandler_CreateGroup_Conflict はグループ名の重複が409になることを検証する。
func TestGroupHandler_CreateGroup_Conflict(t *testing.T) {
	svc := &mockGroupService{
		createFn: func(ctx context.Context, name, description string) (*model.Group, error) {
			return nil, model.NewConflictError("グループ名")
		},
	}
	h := NewGroupHandler(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/groups", strings.NewReader(`{"name":"golang-news"}`))
	w := httptest.NewRecorder()

	h.CreateGroup(w, req)

	if w.Result().StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusConflict)
	}
}

// TestGroupHandler_ListGroups はグループ一覧の取得を検証する。
func TestGroupHandler_ListGroups(t *testing.T) {
	svc := &mockGroupService{
		listFn: func(ctx context.Context) ([]*model.Group, error) {
			return []*model.Group{{ID: "group-1"}, {ID: "group-2"}}, nil
		},
	}
	h := NewGroupHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/groups", nil)
	w := httptest.NewRecorder()

	h.ListGroups(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var body struct {
		Groups []groupResponse `json:"groups"`
	}
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Groups) != 2 {
		t.Errorf("groups = %d, want 2", len(body.Groups))
	}
}

// TestGroupHandler_UpdateGroup はグループ更新を検証する。
func TestGroupHandler_UpdateGroup(t *testing.T) {
	svc := &mockGroupService{
		updateFn: func(ctx context.Context, id, description string) (*model.Group, error) {
			return &model.Group{ID: id, Name: "golang-news", Description: description}, nil
		},
	}
	h := NewGroupHandler(svc)

	req := withChiURLParam(
		httptest.NewRequest(http.MethodPatch, "/api/groups/group-1", strings.NewReader(`{"description":"新しい説明"}`)),
		"id", "group-1")
	w := httptest.NewRecorder()

	h.UpdateGroup(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestGroupHandler_DeleteGroup はグループ削除と権限エラーの変換を検証する。
func TestGroupHandler_DeleteGroup(t *testing.T) {
	svc := &mockGroupService{
		deleteFn: func(ctx context.Context, id string) error {
			if id == "group-1" {
				return nil
			}
			return model.NewForbiddenError()
		},
	}
	h := NewGroupHandler(svc)

	req := withChiURLParam(httptest.NewRequest(http.MethodDelete, "/api/groups/group-1", nil), "id", "group-1")
	w := httptest.NewRecorder()
	h.DeleteGroup(w, req)
	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}

	req = withChiURLParam(httptest.NewRequest(http.MethodDelete, "/api/groups/other", nil), "id", "other")
	w = httptest.NewRecorder()
	h.DeleteGroup(w, req)
	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

// TestGroupHandler_GrantModerator はモデレーター付与のパラメータ受け渡しを検証する。
func TestGroupHandler_GrantModerator(t *testing.T) {
	granted := ""
	svc := &mockGroupService{
		grantModeratorFn: func(ctx context.Context, groupID, userID string) error {
			granted = groupID + ":" + userID
			return nil
		},
	}
	h := NewGroupHandler(svc)

	req := withModeratorParams(
		httptest.NewRequest(http.MethodPut, "/api/groups/group-1/moderators/mod-1", nil),
		"group-1", "mod-1")
	w := httptest.NewRecorder()

	h.GrantModerator(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if granted != "group-1:mod-1" {
		t.Errorf("granted = %q, want group-1:mod-1", granted)
	}
}

// TestGroupHandler_RevokeModerator はモデレーター剥奪を検証する。
func TestGroupHandler_RevokeModerator(t *testing.T) {
	revoked := ""
	svc := &mockGroupService{
		revokeModeratorFn: func(ctx context.Context, groupID, userID string) error {
			revoked = groupID + ":" + userID
			return nil
		},
	}
	h := NewGroupHandler(svc)

	req := withModeratorParams(
		httptest.NewRequest(http.MethodDelete, "/api/groups/group-1/moderators/mod-1", nil),
		"group-1", "mod-1")
	w := httptest.NewRecorder()

	h.RevokeModerator(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if revoked != "group-1:mod-1" {
		t.Errorf("revoked = %q, want group-1:mod-1", revoked)
	}
}
