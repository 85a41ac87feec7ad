// Package follow はユーザー間のフォロー関係に関するビジネスロジックを提供する。
package follow

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/agora/internal/gateway"
	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/policy"
	"github.com/hitoshi/agora/internal/repository"
)

// defaultListLimit はフォロー一覧取得のデフォルト件数。
const defaultListLimit = 100

// Service はフォロー関係に関するビジネスロジックを提供する。
// フォロー関係は呼び出し元自身のものだけを操作できる。
type Service struct {
	follows repository.FollowRepository
	users   repository.UserRepository
	guard   *gateway.Guard
}

// NewService はServiceを生成する。
func NewService(
	follows repository.FollowRepository,
	users repository.UserRepository,
	guard *gateway.Guard,
) *Service {
	return &Service{
		follows: follows,
		users:   users,
		guard:   guard,
	}
}

// Follow は指定ユーザーをフォローする。認証済みユーザーのみ実行できる。
// 自分自身はフォローできない。対象ユーザーが存在しない、または無効化済みの
// 場合はNOT_FOUNDを返す。既にフォロー済みの場合も成功する（冪等）。
func (s *Service) Follow(ctx context.Context, followeeID string) error {
	identity, err := s.guard.AuthorizeClass(ctx, policy.ActionCreate)
	if err != nil {
		return err
	}

	if identity.UserID == followeeID {
		return model.NewInvalidRequestError("自分自身はフォローできません")
	}

	followee, err := s.users.FindByID(ctx, followeeID)
	if err != nil {
		return gateway.MapStorageError(fmt.Errorf("failed to find followee: %w", err))
	}
	if followee == nil {
		return model.NewNotFoundError("ユーザー")
	}

	follow := &model.Follow{
		FollowerID: identity.UserID,
		FolloweeID: followeeID,
		CreatedAt:  time.Now(),
	}
	if err := s.follows.Put(ctx, follow); err != nil {
		return gateway.MapStorageError(fmt.Errorf("failed to put follow: %w", err))
	}

	return nil
}

// Unfollow はフォローを解除する。存在しない場合も成功する（冪等）。
func (s *Service) Unfollow(ctx context.Context, followeeID string) error {
	identity := policy.IdentityFromContext(ctx)
	if identity.IsAnonymous() {
		return model.NewUnauthenticatedError()
	}

	if err := s.follows.Delete(ctx, identity.UserID, followeeID); err != nil {
		return gateway.MapStorageError(fmt.Errorf("failed to delete follow: %w", err))
	}

	return nil
}

// Following は呼び出し元がフォローしているユーザー一覧をフォロー日時降順で取得する。
func (s *Service) Following(ctx context.Context) ([]*model.User, error) {
	identity := policy.IdentityFromContext(ctx)
	if identity.IsAnonymous() {
		return nil, model.NewUnauthenticatedError()
	}

	users, err := s.follows.ListFollowing(ctx, identity.UserID, defaultListLimit)
	if err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to list following: %w", err))
	}
	return users, nil
}

// Followers は指定ユーザーのフォロワー一覧をフォロー日時降順で取得する。
// 匿名でも実行できる。対象ユーザーが存在しない場合はNOT_FOUNDを返す。
func (s *Service) Followers(ctx context.Context, userID string) ([]*model.User, error) {
	if _, err := s.guard.AuthorizeClass(ctx, policy.ActionRead); err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to find user: %w", err))
	}
	if user == nil {
		return nil, model.NewNotFoundError("ユーザー")
	}

	users, err := s.follows.ListFollowers(ctx, userID, defaultListLimit)
	if err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to list followers: %w", err))
	}
	return users, nil
}
