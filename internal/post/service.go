// Package post は投稿に関するビジネスロジックを提供する。
//
// すべての書き込み操作とオブジェクト指定操作は、ストレージへ委譲する前に
// gateway.Guardによる認可判定を通過する。
package post

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

const (
	// maxTitleLength はタイトルの最大文字数。
	maxTitleLength = 300
	// defaultListLimit は一覧取得のデフォルト件数。
	defaultListLimit = 50
	// maxListLimit は一覧取得の最大件数。
	maxListLimit = 100
)

// CreateInput は投稿作成の入力。
type CreateInput struct {
	GroupID  string
	Title    string
	Body     string
	LinkURL  string
	IsPublic *bool // 未指定の場合は公開
}

// UpdateInput は投稿更新の入力。nilフィールドは変更しない。
type UpdateInput struct {
	Title    *string
	Body     *string
	LinkURL  *string
	IsPublic *bool
}

// Service は投稿に関するビジネスロジックを提供する。
type Service struct {
	posts     repository.PostRepository
	groups    repository.GroupRepository
	guard     *gateway.Guard
	sanitizer security.ContentSanitizerService
	ssrfGuard security.SSRFGuardService
}

// NewService はServiceを生成する。
func NewService(
	posts repository.PostRepository,
	groups repository.GroupRepository,
	guard *gateway.Guard,
	sanitizer security.ContentSanitizerService,
	ssrfGuard security.SSRFGuardService,
) *Service {
	return &Service{
		posts:     posts,
		groups:    groups,
		guard:     guard,
		sanitizer: sanitizer,
		ssrfGuard: ssrfGuard,
	}
}

// policyResource は投稿をポリシー判定用のリソース表現に変換する。
func policyResource(post *model.Post) policy.Resource {
	return policy.Resource{
		Type:          model.ResourceTypePost,
		ID:            post.ID,
		OwnerID:       post.OwnerID,
		IsPublic:      post.IsPublic,
		ParentGroupID: post.GroupID,
	}
}

// Create は投稿を作成する。認証済みユーザーのみ実行できる。
// 本文は保存前にサニタイズされ、リンクURLはSSRF対策の事前検証を通過する
// 必要がある。所属グループを指定する場合、グループは存在しなければならない。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Post, error) {
	identity, err := s.guard.AuthorizeClass(ctx, policy.ActionCreate)
	if err != nil {
		return nil, err
	}

	if err := s.validateCreate(ctx, input); err != nil {
		return nil, err
	}

	now := time.Now()
	isPublic := true
	if input.IsPublic != nil {
		isPublic = *input.IsPublic
	}

	post := &model.Post{
		ID:        uuid.New().String(),
		OwnerID:   identity.UserID,
		GroupID:   input.GroupID,
		Title:     input.Title,
		Body:      s.sanitizer.Sanitize(input.Body),
		LinkURL:   input.LinkURL,
		IsPublic:  isPublic,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.posts.Create(ctx, post); err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to create post: %w", err))
	}

	return post, nil
}

// Get は投稿を取得する。
// 非公開投稿は読み取り権限のない呼び出し元にはNOT_FOUNDとして扱われ、
// 存在自体を漏らさない。
func (s *Service) Get(ctx context.Context, id string) (*model.Post, error) {
	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.guard.Authorize(ctx, policyResource(post), policy.ActionRead); err != nil {
		return nil, gateway.MaskHidden(err, post.IsPublic, "投稿")
	}

	return post, nil
}

// List は公開投稿の一覧をcreated_at降順で取得する。匿名でも実行できる。
func (s *Service) List(ctx context.Context, groupID string, cursor time.Time, limit int) ([]*model.Post, error) {
	if _, err := s.guard.AuthorizeClass(ctx, policy.ActionRead); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	posts, err := s.posts.ListPublic(ctx, groupID, cursor, limit)
	if err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to list posts: %w", err))
	}
	return posts, nil
}

// Update は投稿の可変フィールドを更新する。所有者・明示的許可の保持者・
// 管理者のみ実行できる。所有者は変更されない。
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*model.Post, error) {
	post, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.guard.Authorize(ctx, policyResource(post), policy.ActionUpdate); err != nil {
		return nil, gateway.MaskHidden(err, post.IsPublic, "投稿")
	}

	if input.Title != nil {
		if err := validateTitle(*input.Title); err != nil {
			return nil, err
		}
		post.Title = *input.Title
	}
	if input.Body != nil {
		post.Body = s.sanitizer.Sanitize(*input.Body)
	}
	if input.LinkURL != nil {
		if *input.LinkURL != "" {
			if err := s.ssrfGuard.ValidateURL(*input.LinkURL); err != nil {
				return nil, model.NewInvalidRequestError("リンクURLが不正です")
			}
		}
		post.LinkURL = *input.LinkURL
	}
	if input.IsPublic != nil {
		post.IsPublic = *input.IsPublic
	}
	post.UpdatedAt = time.Now()

	if err := s.posts.Update(ctx, post); err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to update post: %w", err))
	}

	return post, nil
}

// Delete は投稿を削除する。所有者・明示的許可の保持者・管理者のみ実行できる。
// コメント・許可・ブックマークも連動して削除される。
func (s *Service) Delete(ctx context.Context, id string) error {
	post, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.guard.Authorize(ctx, policyResource(post), policy.ActionDelete); err != nil {
		return gateway.MaskHidden(err, post.IsPublic, "投稿")
	}

	if err := s.posts.Delete(ctx, id); err != nil {
		return gateway.MapStorageError(fmt.Errorf("failed to delete post: %w", err))
	}

	return nil
}

// load は投稿を取得し、存在しない場合はNOT_FOUNDを返す。
func (s *Service) load(ctx context.Context, id string) (*model.Post, error) {
	post, err := s.posts.FindByID(ctx, id)
	if err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to find post: %w", err))
	}
	if post == nil {
		return nil, model.NewNotFoundError("投稿")
	}
	return post, nil
}

// validateCreate は投稿作成の入力を検証する。
func (s *Service) validateCreate(ctx context.Context, input CreateInput) error {
	if err := validateTitle(input.Title); err != nil {
		return err
	}
	if input.Body == "" && input.LinkURL == "" {
		return model.NewInvalidRequestError("本文またはリンクURLのいずれかを指定してください")
	}
	if input.LinkURL != "" {
		if err := s.ssrfGuard.ValidateURL(input.LinkURL); err != nil {
			return model.NewInvalidRequestError("リンクURLが不正です")
		}
	}
	if input.GroupID != "" {
		group, err := s.groups.FindByID(ctx, input.GroupID)
		if err != nil {
			return gateway.MapStorageError(fmt.Errorf("failed to find group: %w", err))
		}
		if group == nil {
			return model.NewInvalidRequestError("指定されたグループが存在しません")
		}
	}
	return nil
}

// validateTitle はタイトルを検証する。
func validateTitle(title string) error {
	if title == "" {
		return model.NewInvalidRequestError("タイトルを指定してください")
	}
	if len([]rune(title)) > maxTitleLength {
		return model.NewInvalidRequestError(fmt.Sprintf("タイトルは%d文字以内で指定してください", maxTitleLength))
	}
	return nil
}
