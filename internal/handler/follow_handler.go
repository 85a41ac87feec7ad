package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/agora/internal/model"
)

// FollowServiceInterface はフォローハンドラーが必要とするサービスインターフェース。
type FollowServiceInterface interface {
	Follow(ctx context.Context, followeeID string) error
	Unfollow(ctx context.Context, followeeID string) error
	Following(ctx context.Context) ([]*model.User, error)
	Followers(ctx context.Context, userID string) ([]*model.User, error)
}

// FollowHandler はフォロー管理のHTTPハンドラー。
type FollowHandler struct {
	service FollowServiceInterface
}

// NewFollowHandler はFollowHandlerを生成する。
func NewFollowHandler(service FollowServiceInterface) *FollowHandler {
	return &FollowHandler{service: service}
}

// publicUserResponse は他ユーザーに公開するユーザー情報のAPIレスポンス。
// メールアドレスは本人向けのuserResponseにのみ含める。
type publicUserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func toPublicUserListResponse(users []*model.User) []publicUserResponse {
	out := make([]publicUserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, publicUserResponse{ID: u.ID, Username: u.Username})
	}
	return out
}

// Follow は指定ユーザーをフォローする。
// PUT /api/users/{userID}/follow
func (h *FollowHandler) Follow(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.service.Follow(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Unfollow はフォローを解除する。
// DELETE /api/users/{userID}/follow
func (h *FollowHandler) Unfollow(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.service.Unfollow(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListFollowing はフォロー中のユーザー一覧を取得する。
// GET /api/following
func (h *FollowHandler) ListFollowing(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.Following(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": toPublicUserListResponse(users),
	})
}

// ListFollowers は指定ユーザーのフォロワー一覧を取得する。
// GET /api/users/{userID}/followers
func (h *FollowHandler) ListFollowers(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	users, err := h.service.Followers(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users": toPublicUserListResponse(users),
	})
}
