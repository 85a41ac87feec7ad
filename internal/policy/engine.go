// Package policy はリソースアクセス可否の判定を提供する。
//
// 判定はクラスレベル（匿名/認証済みの区別）とオブジェクトレベル
// （所有権・明示的許可）の2層で構成され、順序付きルールを先頭から評価して
// 最初に一致したルールで確定する。判定は純粋な参照のみで副作用を持たない。
package policy

import (
	"context"
	"fmt"

	"github.com/hitoshi/agora/internal/model"
)

// Action はリソースに対する操作種別を表す。
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"

	// ActionModerate はグループに対してのみ付与される許可で、
	// 配下の投稿・コメントのupdate/deleteを許可する。
	// グループ自体のupdate/deleteには一致しない。
	ActionModerate Action = "moderate"
)

// Identity は解決済みの呼び出し元を表す。
// UserIDが空の場合は匿名を意味する。
type Identity struct {
	UserID string
	Role   model.Role
}

// Anonymous は未認証の呼び出し元を表すIdentity。
var Anonymous = Identity{}

// IsAnonymous は匿名かどうかを返す。
func (i Identity) IsAnonymous() bool {
	return i.UserID == ""
}

// Resource は判定対象リソースの属性を表す。
// ParentGroupIDは投稿・コメントが属するグループ。グループへのmoderate許可は
// 配下のリソースのupdate/deleteに及ぶ（モデレーター権限）。
type Resource struct {
	Type          model.ResourceType
	ID            string
	OwnerID       string
	IsPublic      bool
	ParentGroupID string
}

// Decision はアクセス判定の結果を表す。
// Ruleには一致したルール名が入り、ログとメトリクスに使用される。
// 拒否の場合、ReasonはErrCodeUnauthenticatedまたはErrCodeForbidden。
type Decision struct {
	Allowed bool
	Rule    string
	Reason  string
}

// 判定ルール名。
const (
	RulePublicRead    = "public_read"
	RuleAnonymousDeny = "anonymous_write_deny"
	RuleOwner         = "owner"
	RuleGrant         = "grant"
	RuleAdmin         = "admin"
	RuleDefaultDeny   = "default_deny"
	RuleAuthenticated = "authenticated_create"
)

// GrantFinder は明示的許可の検索に必要なインターフェース。
// repository.GrantRepositoryの部分集合として定義する。
type GrantFinder interface {
	Exists(ctx context.Context, userID string, resourceType model.ResourceType, resourceID, action string) (bool, error)
}

// Engine はアクセス判定エンジン。
type Engine struct {
	grants GrantFinder
}

// NewEngine はEngineを生成する。
func NewEngine(grants GrantFinder) *Engine {
	return &Engine{grants: grants}
}

// DecideClass はオブジェクトを特定しない操作（作成・一覧）のクラスレベル判定を行う。
// 読み取りは誰でも許可、書き込みは認証済みユーザーのみ許可する。
// オブジェクトレベル判定（Decide）の代替にはならない。
func (e *Engine) DecideClass(identity Identity, action Action) Decision {
	if action == ActionRead {
		return Decision{Allowed: true, Rule: RulePublicRead}
	}
	if identity.IsAnonymous() {
		return Decision{Allowed: false, Rule: RuleAnonymousDeny, Reason: model.ErrCodeUnauthenticated}
	}
	return Decision{Allowed: true, Rule: RuleAuthenticated}
}

// Decide は(identity, resource, action)に対するオブジェクトレベル判定を行う。
// ルールは以下の優先順で評価され、最初に一致したもので確定する。
//
//  1. 読み取り かつ 公開リソース → 許可
//  2. 匿名 かつ 読み取り以外 → 拒否（UNAUTHENTICATED）
//  3. 所有者 → read/update/delete を許可
//  4. 明示的許可（リソース自体、または親グループのmoderate）が存在 → 許可
//  5. 管理者ロール → 許可
//  6. それ以外 → 拒否（FORBIDDEN）
//
// デフォルト拒否の理由は匿名でもFORBIDDEN。非公開リソースの拒否応答は
// ゲートウェイ層でNOT_FOUNDに変換され、存在の有無が呼び出し元に漏れない。
//
// 許可の検索がストレージ障害で失敗した場合はエラーを返し、判定は保留される。
func (e *Engine) Decide(ctx context.Context, identity Identity, resource Resource, action Action) (Decision, error) {
	// 1. 公開リソースの読み取り
	if action == ActionRead && resource.IsPublic {
		return Decision{Allowed: true, Rule: RulePublicRead}, nil
	}

	// 2. 匿名の書き込み
	if identity.IsAnonymous() && action != ActionRead {
		return Decision{Allowed: false, Rule: RuleAnonymousDeny, Reason: model.ErrCodeUnauthenticated}, nil
	}

	// 3. 所有者
	if !identity.IsAnonymous() && identity.UserID == resource.OwnerID {
		switch action {
		case ActionRead, ActionUpdate, ActionDelete:
			return Decision{Allowed: true, Rule: RuleOwner}, nil
		}
	}

	// 4. 明示的許可
	if !identity.IsAnonymous() {
		granted, err := e.hasGrant(ctx, identity.UserID, resource, action)
		if err != nil {
			return Decision{}, fmt.Errorf("failed to look up grants: %w", err)
		}
		if granted {
			return Decision{Allowed: true, Rule: RuleGrant}, nil
		}
	}

	// 5. 管理者ロール
	if identity.Role == model.RoleAdmin {
		return Decision{Allowed: true, Rule: RuleAdmin}, nil
	}

	// 6. デフォルト拒否
	return Decision{Allowed: false, Rule: RuleDefaultDeny, Reason: model.ErrCodeForbidden}, nil
}

// hasGrant はリソース自体への許可、次に親グループへのmoderate許可の順で
// 明示的許可を検索する。親グループのmoderateが及ぶのはupdate/deleteのみ。
func (e *Engine) hasGrant(ctx context.Context, userID string, resource Resource, action Action) (bool, error) {
	ok, err := e.grants.Exists(ctx, userID, resource.Type, resource.ID, string(action))
	if err != nil || ok {
		return ok, err
	}
	if resource.ParentGroupID != "" && (action == ActionUpdate || action == ActionDelete) {
		return e.grants.Exists(ctx, userID, model.ResourceTypeGroup, resource.ParentGroupID, string(ActionModerate))
	}
	return false, nil
}
