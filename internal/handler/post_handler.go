package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/post"
)

// PostServiceInterface は投稿ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	Create(ctx context.Context, input post.CreateInput) (*model.Post, error)
	Get(ctx context.Context, id string) (*model.Post, error)
	List(ctx context.Context, groupID string, cursor time.Time, limit int) ([]*model.Post, error)
	Update(ctx context.Context, id string, input post.UpdateInput) (*model.Post, error)
	Delete(ctx context.Context, id string) error
}

// PostHandler は投稿管理のHTTPハンドラー。
type PostHandler struct {
	service PostServiceInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface) *PostHandler {
	return &PostHandler{service: service}
}

// createPostRequest は投稿作成リクエストのボディ。
type createPostRequest struct {
	GroupID  string `json:"group_id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	LinkURL  string `json:"link_url"`
	IsPublic *bool  `json:"is_public"`
}

// updatePostRequest は投稿更新リクエストのボディ。nilフィールドは変更しない。
type updatePostRequest struct {
	Title    *string `json:"title"`
	Body     *string `json:"body"`
	LinkURL  *string `json:"link_url"`
	IsPublic *bool   `json:"is_public"`
}

// postResponse は投稿のAPIレスポンス。
type postResponse struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	GroupID   string `json:"group_id,omitempty"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	LinkURL   string `json:"link_url,omitempty"`
	LinkTitle string `json:"link_title,omitempty"`
	IsPublic  bool   `json:"is_public"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toPostResponse(p *model.Post) postResponse {
	return postResponse{
		ID:        p.ID,
		OwnerID:   p.OwnerID,
		GroupID:   p.GroupID,
		Title:     p.Title,
		Body:      p.Body,
		LinkURL:   p.LinkURL,
		LinkTitle: p.LinkTitle,
		IsPublic:  p.IsPublic,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
	}
}

func toPostListResponse(posts []*model.Post) []postResponse {
	out := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostResponse(p))
	}
	return out
}

// CreatePost は投稿を作成する。
// POST /api/posts
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyResponse(w)
		return
	}

	created, err := h.service.Create(r.Context(), post.CreateInput{
		GroupID:  req.GroupID,
		Title:    req.Title,
		Body:     req.Body,
		LinkURL:  req.LinkURL,
		IsPublic: req.IsPublic,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostResponse(created))
}

// GetPost は投稿詳細を取得する。
// GET /api/posts/{id}
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(p))
}

// ListPosts は公開投稿の一覧を取得する。
// GET /api/posts?group_id=xxx&cursor=RFC3339&limit=50
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("group_id")

	var cursor time.Time
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("cursorはRFC3339形式で指定してください"))
			return
		}
		cursor = parsed
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("limitは正の整数で指定してください"))
			return
		}
		limit = parsed
	}

	posts, err := h.service.List(r.Context(), groupID, cursor, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"posts": toPostListResponse(posts),
	})
}

// UpdatePost は投稿を更新する。
// PATCH /api/posts/{id}
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyResponse(w)
		return
	}

	updated, err := h.service.Update(r.Context(), id, post.UpdateInput{
		Title:    req.Title,
		Body:     req.Body,
		LinkURL:  req.LinkURL,
		IsPublic: req.IsPublic,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(updated))
}

// DeletePost は投稿を削除する。
// DELETE /api/posts/{id}
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
