// Package group はグループ（コミュニティ）に関するビジネスロジックを提供する。
//
// グループ所有者と管理者はモデレーター許可の付与・剥奪を行える。
// モデレーター許可はグループへのmoderateとして保存され、ポリシーエンジンに
// より配下の投稿・コメントのupdate/deleteに波及する。グループ自体の更新・
// 削除・モデレーター管理には及ばない。
package group

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/agora/internal/gateway"
	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/policy"
	"github.com/hitoshi/agora/internal/repository"
)

// groupNamePattern はグループ名の形式。英数字・ハイフン・アンダースコアの3〜50文字。
var groupNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,50}$`)

// defaultListLimit はグループ一覧取得のデフォルト件数。
const defaultListLimit = 100

// Service はグループに関するビジネスロジックを提供する。
type Service struct {
	groups repository.GroupRepository
	users  repository.UserRepository
	grants repository.GrantRepository
	guard  *gateway.Guard
}

// NewService はServiceを生成する。
func NewService(
	groups repository.GroupRepository,
	users repository.UserRepository,
	grants repository.GrantRepository,
	guard *gateway.Guard,
) *Service {
	return &Service{
		groups: groups,
		users:  users,
		grants: grants,
		guard:  guard,
	}
}

// policyResource はグループをポリシー判定用のリソース表現に変換する。
// グループ自体は常に公開される。
func policyResource(group *model.Group) policy.Resource {
	return policy.Resource{
		Type:     model.ResourceTypeGroup,
		ID:       group.ID,
		OwnerID:  group.OwnerID,
		IsPublic: true,
	}
}

// Create はグループを作成する。認証済みユーザーのみ実行できる。
// 作成者が所有者となる。グループ名の重複はCONFLICTを返す。
func (s *Service) Create(ctx context.Context, name, description string) (*model.Group, error) {
	identity, err := s.guard.AuthorizeClass(ctx, policy.ActionCreate)
	if err != nil {
		return nil, err
	}

	if !groupNamePattern.MatchString(name) {
		return nil, model.NewInvalidRequestError("グループ名は3〜50文字の英数字、ハイフン、アンダースコアで指定してください")
	}

	now := time.Now()
	group := &model.Group{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		OwnerID:     identity.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.groups.Create(ctx, group); err != nil {
		if _, ok := repository.IsUniqueViolation(err); ok {
			return nil, model.NewConflictError("グループ名")
		}
		return nil, gateway.MapStorageError(fmt.Errorf("failed to create group: %w", err))
	}

	return group, nil
}

// Get はグループを取得する。匿名でも実行できる。
func (s *Service) Get(ctx context.Context, id string) (*model.Group, error) {
	group, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.guard.Authorize(ctx, policyResource(group), policy.ActionRead); err != nil {
		return nil, err
	}

	return group, nil
}

// List はグループ一覧をname昇順で取得する。匿名でも実行できる。
func (s *Service) List(ctx context.Context) ([]*model.Group, error) {
	if _, err := s.guard.AuthorizeClass(ctx, policy.ActionRead); err != nil {
		return nil, err
	}

	groups, err := s.groups.List(ctx, defaultListLimit)
	if err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to list groups: %w", err))
	}
	return groups, nil
}

// Update はグループの説明を更新する。所有者・管理者のみ実行できる。
// モデレーター許可ではグループ自体を更新できない。
// グループ名と所有者は変更されない。
func (s *Service) Update(ctx context.Context, id, description string) (*model.Group, error) {
	group, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := s.guard.Authorize(ctx, policyResource(group), policy.ActionUpdate); err != nil {
		return nil, err
	}

	group.Description = description
	group.UpdatedAt = time.Now()

	if err := s.groups.Update(ctx, group); err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to update group: %w", err))
	}

	return group, nil
}

// Delete はグループを削除する。所有者・管理者のみ実行できる。
// グループに紐づく許可も併せて削除され、配下の投稿はグループ未所属となる。
func (s *Service) Delete(ctx context.Context, id string) error {
	group, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.guard.Authorize(ctx, policyResource(group), policy.ActionDelete); err != nil {
		return err
	}

	if err := s.groups.Delete(ctx, id); err != nil {
		return gateway.MapStorageError(fmt.Errorf("failed to delete group: %w", err))
	}

	return nil
}

// GrantModerator は指定ユーザーにグループのモデレーター許可を付与する。
// グループ所有者と管理者のみ実行できる。付与されるのはグループへのmoderate
// 許可で、配下の投稿・コメントのupdate/deleteに及ぶ。グループ自体の操作
// 権限は与えない。許可の付与は冪等で、既に付与済みの場合も成功する。
func (s *Service) GrantModerator(ctx context.Context, groupID, userID string) error {
	group, err := s.load(ctx, groupID)
	if err != nil {
		return err
	}

	granter, err := s.authorizeModeratorAdmin(ctx, group)
	if err != nil {
		return err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return gateway.MapStorageError(fmt.Errorf("failed to find user: %w", err))
	}
	if user == nil {
		return model.NewNotFoundError("ユーザー")
	}

	grant := &model.Grant{
		UserID:       userID,
		ResourceType: model.ResourceTypeGroup,
		ResourceID:   groupID,
		Action:       string(policy.ActionModerate),
		GrantedBy:    granter.UserID,
		CreatedAt:    time.Now(),
	}
	if err := s.grants.Put(ctx, grant); err != nil {
		return gateway.MapStorageError(fmt.Errorf("failed to put grant: %w", err))
	}

	slog.Info("moderator granted",
		slog.String("group_id", groupID),
		slog.String("user_id", userID),
		slog.String("granted_by", granter.UserID),
	)

	return nil
}

// RevokeModerator は指定ユーザーのモデレーター許可を剥奪する。
// グループ所有者と管理者のみ実行できる。許可が存在しない場合も成功する
// （冪等）。剥奪は次回の判定から即座に反映される。
func (s *Service) RevokeModerator(ctx context.Context, groupID, userID string) error {
	group, err := s.load(ctx, groupID)
	if err != nil {
		return err
	}

	revoker, err := s.authorizeModeratorAdmin(ctx, group)
	if err != nil {
		return err
	}

	if err := s.grants.DeleteByUserAndResource(ctx, userID, model.ResourceTypeGroup, groupID); err != nil {
		return gateway.MapStorageError(fmt.Errorf("failed to delete grants: %w", err))
	}

	slog.Info("moderator revoked",
		slog.String("group_id", groupID),
		slog.String("user_id", userID),
		slog.String("revoked_by", revoker.UserID),
	)

	return nil
}

// authorizeModeratorAdmin はモデレーター管理操作の認可を行う。
// 許可されるのはグループ所有者と管理者のみ。グループへの明示的許可では
// 実行できない（モデレーターが他のモデレーターを任免できてはならない）。
func (s *Service) authorizeModeratorAdmin(ctx context.Context, group *model.Group) (policy.Identity, error) {
	identity, err := s.guard.Authorize(ctx, policyResource(group), policy.ActionUpdate)
	if err != nil {
		return identity, err
	}
	if identity.UserID != group.OwnerID && identity.Role != model.RoleAdmin {
		return identity, model.NewForbiddenError()
	}
	return identity, nil
}

// load はグループを取得し、存在しない場合はNOT_FOUNDを返す。
func (s *Service) load(ctx context.Context, id string) (*model.Group, error) {
	group, err := s.groups.FindByID(ctx, id)
	if err != nil {
		return nil, gateway.MapStorageError(fmt.Errorf("failed to find group: %w", err))
	}
	if group == nil {
		return nil, model.NewNotFoundError("グループ")
	}
	return group, nil
}
