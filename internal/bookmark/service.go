// Package bookmark はブックマークに関するビジネスロジックを提供する。
package bookmark

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/agora/internal/gateway"
	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/policy"
	"github.com/hitoshi/agora/internal/repository"
)

// defaultListLimit はブックマーク一覧取得のデフォルト件数。
const defaultListLimit = 100

// Service はブックマークに関するビジネスロジックを提供する。
// ブックマークは呼び出し元自身のものだけを操作できる。
type Service struct {
	bookmarks repository.BookmarkRepository
	posts     repository.PostRepository
	guard     *gateway.Guard
}

// NewService はServiceを生成する。
func NewService(
	bookmarks repository.BookmarkRepository,
	posts repository.PostRepository,
	guard *gateway.Guard,
) *Service {
	return &Service{
		bookmarks: bookmarks,
		posts:     posts,
		guard:     guard,
	}
}

// Add は投稿をブックマークする。認証済みユーザーのみ実行できる。
// 読み取り権限のない投稿はブックマークできず、NOT_FOUNDを返す。
// 既にブックマーク済みの場合も成功する（冪等）。
func (s *Service) Add(ctx context.Context, postID string) error {
	identity, err := s.guard.AuthorizeClass(ctx, policy.ActionCreate)
	if err != nil {
		return err
	}

	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return gateway.MapStorageError(fmt.Errorf("failed to find post: %w", err))
	}
	if post == nil {
		return model.NewNotFoundError("投稿")
	}

	resource := policy.Resource{
		Type:          model.ResourceTypePost,
		ID:            post.ID,
		OwnerID:       post.OwnerID,
		IsPublic:      post.IsPublic,
		ParentGroupID: post.GroupID,
	}
	if _, err := s.guard.Authorize(ctx, resource, policy.ActionRead); err != nil {
		return gateway.MaskHidden(err, post.IsPublic, "投稿")
	}

	bookmark := &model.Bookmark{
		UserID:    identity.UserID,
		PostID:    postID,
		CreatedAt: time.Now(),
	}
	if err := s.bookmarks.Put(ctx, bookmark); err != nil {
		return gateway.MapStorageError(fmt.Errorf("failed to put bookmark: %w", err))
	}

	return nil
}

// Remove はブックマークを解除する。存在しない場合も成功する（冪等）。
func (s *Service) Remove(ctx context.Context, postID string) error {
	identity := policy.IdentityFromContext(ctx)
	if identity.IsAnonymous() {
		return model.NewUnauthenticatedError()
	}

	if err := s.bookmarks.Delete(ctx, identity.UserID, postID); err != nil {
		return gateway.MapStorageError(fmt.Errorf("failed to delete bookmark: %w", err))
	}

	return nil
}

// List は呼び出し元がブックマークした投稿一覧をブックマーク日時降順で取得する。
func (s *Service) List(ctx context.Context) ([]*model.Post, error) {
	identity := policy.IdentityFromContext(ctx)
	if identity.IsAnonymous() {
		return nil, model.NewUnauthenticatedError()
	}

	posts, err := s.bookmarks.ListPostsByUser(ctx, identity.UserID, defaultListLimit)
	if err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to list bookmarks: %w", err))
	}
	return posts, nil
}
