// Package report はコンテンツ通報に関するビジネスロジックを提供する。
//
// 通報は認証済みユーザーなら誰でも行えるが、未対応通報の閲覧と対応は
// 管理者のみに制限される。
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/agora/internal/gateway"
	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/policy"
	"github.com/hitoshi/agora/internal/repository"
)

const (
	// maxReasonLength は通報理由の最大文字数。
	maxReasonLength = 1000
	// defaultListLimit は通報一覧取得のデフォルト件数。
	defaultListLimit = 100
)

// FileInput は通報作成の入力。
type FileInput struct {
	ResourceType model.ResourceType
	ResourceID   string
	Reason       string
}

// Service はコンテンツ通報に関するビジネスロジックを提供する。
type Service struct {
	reports  repository.ReportRepository
	posts    repository.PostRepository
	comments repository.CommentRepository
	guard    *gateway.Guard
}

// NewService はServiceを生成する。
func NewService(
	reports repository.ReportRepository,
	posts repository.PostRepository,
	comments repository.CommentRepository,
	guard *gateway.Guard,
) *Service {
	return &Service{
		reports:  reports,
		posts:    posts,
		comments: comments,
		guard:    guard,
	}
}

// File は投稿・コメントに対する通報を作成する。認証済みユーザーのみ実行できる。
// 通報対象が存在しない場合はNOT_FOUNDを返す。
func (s *Service) File(ctx context.Context, input FileInput) (*model.Report, error) {
	identity, err := s.guard.AuthorizeClass(ctx, policy.ActionCreate)
	if err != nil {
		return nil, err
	}

	if err := validateInput(input); err != nil {
		return nil, err
	}

	if err := s.ensureTargetExists(ctx, input.ResourceType, input.ResourceID); err != nil {
		return nil, err
	}

	report := &model.Report{
		ID:           uuid.New().String(),
		ReporterID:   identity.UserID,
		ResourceType: input.ResourceType,
		ResourceID:   input.ResourceID,
		Reason:       input.Reason,
		Status:       model.ReportStatusOpen,
		CreatedAt:    time.Now(),
	}

	if err := s.reports.Create(ctx, report); err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to create report: %w", err))
	}

	return report, nil
}

// ListOpen は未対応の通報一覧をcreated_at昇順で取得する。管理者のみ実行できる。
func (s *Service) ListOpen(ctx context.Context) ([]*model.Report, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	reports, err := s.reports.ListOpen(ctx, defaultListLimit)
	if err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to list open reports: %w", err))
	}
	return reports, nil
}

// Resolve は通報を対応済みにする。管理者のみ実行できる。
// 既に対応済みの場合も成功する（冪等）。
func (s *Service) Resolve(ctx context.Context, id string) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}

	report, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return gateway.MapStorageError(fmt.Errorf("failed to find report: %w", err))
	}
	if report == nil {
		return model.NewNotFoundError("通報")
	}

	identity := policy.IdentityFromContext(ctx)
	if err := s.reports.Resolve(ctx, id, identity.UserID, time.Now()); err != nil {
		return gateway.MapStorageError(fmt.Errorf("failed to resolve report: %w", err))
	}

	return nil
}

// requireAdmin は呼び出し元が管理者であることを確認する。
// 匿名はUNAUTHENTICATED、一般ユーザーはFORBIDDENを返す。
func (s *Service) requireAdmin(ctx context.Context) error {
	identity := policy.IdentityFromContext(ctx)
	if identity.IsAnonymous() {
		return model.NewUnauthenticatedError()
	}
	if identity.Role != model.RoleAdmin {
		return model.NewForbiddenError()
	}
	return nil
}

// ensureTargetExists は通報対象の存在を確認する。
func (s *Service) ensureTargetExists(ctx context.Context, resourceType model.ResourceType, resourceID string) error {
	switch resourceType {
	case model.ResourceTypePost:
		post, err := s.posts.FindByID(ctx, resourceID)
		if err != nil {
			return gateway.MapStorageError(fmt.Errorf("failed to find post: %w", err))
		}
		if post == nil {
			return model.NewNotFoundError("投稿")
		}
	case model.ResourceTypeComment:
		comment, err := s.comments.FindByID(ctx, resourceID)
		if err != nil {
			return gateway.MapStorageError(fmt.Errorf("failed to find comment: %w", err))
		}
		if comment == nil {
			return model.NewNotFoundError("コメント")
		}
	}
	return nil
}

// validateInput は通報作成の入力を検証する。
func validateInput(input FileInput) error {
	if input.ResourceType != model.ResourceTypePost && input.ResourceType != model.ResourceTypeComment {
		return model.NewInvalidRequestError("通報対象は投稿またはコメントを指定してください")
	}
	if input.ResourceID == "" {
		return model.NewInvalidRequestError("通報対象のIDを指定してください")
	}
	if input.Reason == "" {
		return model.NewInvalidRequestError("通報理由を指定してください")
	}
	if len([]rune(input.Reason)) > maxReasonLength {
		return model.NewInvalidRequestError(fmt.Sprintf("通報理由は%d文字以内で指定してください", maxReasonLength))
	}
	return nil
}
