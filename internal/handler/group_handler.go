package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/agora/internal/model"
)

// GroupServiceInterface はグループハンドラーが必要とするサービスインターフェース。
type GroupServiceInterface interface {
	Create(ctx context.Context, name, description string) (*model.Group, error)
	Get(ctx context.Context, id string) (*model.Group, error)
	List(ctx context.Context) ([]*model.Group, error)
	Update(ctx context.Context, id, description string) (*model.Group, error)
	Delete(ctx context.Context, id string) error
	GrantModerator(ctx context.Context, groupID, userID string) error
	RevokeModerator(ctx context.Context, groupID, userID string) error
}

// GroupHandler はグループ管理のHTTPハンドラー。
type GroupHandler struct {
	service GroupServiceInterface
}

// NewGroupHandler はGroupHandlerを生成する。
func NewGroupHandler(service GroupServiceInterface) *GroupHandler {
	return &GroupHandler{service: service}
}

// createGroupRequest はグループ作成リクエストのボディ。
type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// updateGroupRequest はグループ更新リクエストのボディ。
type updateGroupRequest struct {
	Description string `json:"description"`
}

// groupResponse はグループのAPIレスポンス。
type groupResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	OwnerID     string `json:"owner_id"`
	CreatedAt   string `json:"created_at"`
}

func toGroupResponse(g *model.Group) groupResponse {
	return groupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		OwnerID:     g.OwnerID,
		CreatedAt:   g.CreatedAt.Format(time.RFC3339),
	}
}

// CreateGroup はグループを作成する。
// POST /api/groups
func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyResponse(w)
		return
	}

	group, err := h.service.Create(r.Context(), req.Name, req.Description)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toGroupResponse(group))
}

// GetGroup はグループ詳細を取得する。
// GET /api/groups/{id}
func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	group, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGroupResponse(group))
}

// ListGroups はグループ一覧を取得する。
// GET /api/groups
func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupResponse(g))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"groups": out,
	})
}

// UpdateGroup はグループの説明を更新する。
// PATCH /api/groups/{id}
func (h *GroupHandler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyResponse(w)
		return
	}

	group, err := h.service.Update(r.Context(), id, req.Description)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGroupResponse(group))
}

// DeleteGroup はグループを削除する。
// DELETE /api/groups/{id}
func (h *GroupHandler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GrantModerator は指定ユーザーにモデレーター許可を付与する。
// PUT /api/groups/{id}/moderators/{userID}
func (h *GroupHandler) GrantModerator(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userID")

	if err := h.service.GrantModerator(r.Context(), groupID, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeModerator は指定ユーザーのモデレーター許可を剥奪する。
// DELETE /api/groups/{id}/moderators/{userID}
func (h *GroupHandler) RevokeModerator(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userID")

	if err := h.service.RevokeModerator(r.Context(), groupID, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
