// Package comment はコメントに関するビジネスロジックを提供する。
package comment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/agora/internal/gateway"
	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/policy"
	"github.com/hitoshi/agora/internal/repository"
	"github.com/hitoshi/agora/internal/security"
)

// defaultListLimit はコメント一覧取得のデフォルト件数。
const defaultListLimit = 100

// Service はコメントに関するビジネスロジックを提供する。
// コメントの可視性は親投稿に従う: 親投稿を読めない呼び出し元は
// コメントも読めない。
type Service struct {
	comments  repository.CommentRepository
	posts     repository.PostRepository
	guard     *gateway.Guard
	sanitizer security.ContentSanitizerService
}

// NewService はServiceを生成する。
func NewService(
	comments repository.CommentRepository,
	posts repository.PostRepository,
	guard *gateway.Guard,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		comments:  comments,
		posts:     posts,
		guard:     guard,
		sanitizer: sanitizer,
	}
}

// commentResource はコメントをポリシー判定用のリソース表現に変換する。
// コメントの公開範囲と親グループは親投稿から引き継ぐ。
func commentResource(comment *model.Comment, parent *model.Post) policy.Resource {
	return policy.Resource{
		Type:          model.ResourceTypeComment,
		ID:            comment.ID,
		OwnerID:       comment.OwnerID,
		IsPublic:      parent.IsPublic,
		ParentGroupID: parent.GroupID,
	}
}

// Create は投稿にコメントを作成する。認証済みユーザーのみ実行できる。
// 親投稿を読めない場合はNOT_FOUNDを返し、投稿の存在を漏らさない。
func (s *Service) Create(ctx context.Context, postID, body string) (*model.Comment, error) {
	identity, err := s.guard.AuthorizeClass(ctx, policy.ActionCreate)
	if err != nil {
		return nil, err
	}

	if body == "" {
		return nil, model.NewInvalidRequestError("本文を指定してください")
	}

	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	// 親投稿の読み取り権限がなければコメントも作成できない
	if _, err := s.guard.Authorize(ctx, postPolicyResource(post), policy.ActionRead); err != nil {
		return nil, gateway.MaskHidden(err, post.IsPublic, "投稿")
	}

	now := time.Now()
	comment := &model.Comment{
		ID:        uuid.New().String(),
		PostID:    postID,
		OwnerID:   identity.UserID,
		Body:      s.sanitizer.Sanitize(body),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to create comment: %w", err))
	}

	return comment, nil
}

// ListByPost は投稿のコメント一覧をcreated_at昇順で取得する。
// 親投稿を読めない呼び出し元にはNOT_FOUNDを返す。
func (s *Service) ListByPost(ctx context.Context, postID string) ([]*model.Comment, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	if _, err := s.guard.Authorize(ctx, postPolicyResource(post), policy.ActionRead); err != nil {
		return nil, gateway.MaskHidden(err, post.IsPublic, "投稿")
	}

	comments, err := s.comments.ListByPost(ctx, postID, defaultListLimit)
	if err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to list comments: %w", err))
	}
	return comments, nil
}

// Update はコメント本文を更新する。所有者・明示的許可の保持者・管理者のみ
// 実行できる。
func (s *Service) Update(ctx context.Context, id, body string) (*model.Comment, error) {
	if body == "" {
		return nil, model.NewInvalidRequestError("本文を指定してください")
	}

	comment, parent, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.guard.Authorize(ctx, commentResource(comment, parent), policy.ActionUpdate); err != nil {
		return nil, gateway.MaskHidden(err, parent.IsPublic, "コメント")
	}

	comment.Body = s.sanitizer.Sanitize(body)
	comment.UpdatedAt = time.Now()

	if err := s.comments.Update(ctx, comment); err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to update comment: %w", err))
	}

	return comment, nil
}

// Delete はコメントを削除する。所有者・明示的許可の保持者・管理者のみ実行できる。
func (s *Service) Delete(ctx context.Context, id string) error {
	comment, parent, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.guard.Authorize(ctx, commentResource(comment, parent), policy.ActionDelete); err != nil {
		return gateway.MaskHidden(err, parent.IsPublic, "コメント")
	}

	if err := s.comments.Delete(ctx, id); err != nil {
		return gateway.MapStorageError(fmt.Errorf("failed to delete comment: %w", err))
	}

	return nil
}

// load はコメントと親投稿を取得する。いずれかが存在しない場合はNOT_FOUNDを返す。
func (s *Service) load(ctx context.Context, id string) (*model.Comment, *model.Post, error) {
	comment, err := s.comments.FindByID(ctx, id)
	if err != nil {
		return nil, nil, gateway.MapStorageError(fmt.Errorf("failed to find comment: %w", err))
	}
	if comment == nil {
		return nil, nil, model.NewNotFoundError("コメント")
	}

	parent, err := s.loadPost(ctx, comment.PostID)
	if err != nil {
		return nil, nil, err
	}
	return comment, parent, nil
}

// loadPost は親投稿を取得し、存在しない場合はNOT_FOUNDを返す。
func (s *Service) loadPost(ctx context.Context, postID string) (*model.Post, error) {
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to find post: %w", err))
	}
	if post == nil {
		return nil, model.NewNotFoundError("投稿")
	}
	return post, nil
}

// postPolicyResource は親投稿をポリシー判定用のリソース表現に変換する。
func postPolicyResource(post *model.Post) policy.Resource {
	return policy.Resource{
		Type:          model.ResourceTypePost,
		ID:            post.ID,
		OwnerID:       post.OwnerID,
		IsPublic:      post.IsPublic,
		ParentGroupID: post.GroupID,
	}
}
