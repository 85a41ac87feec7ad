// Package gateway はリソース操作の認可ゲートを提供する。
//
// すべての書き込み操作とオブジェクト指定操作は、ストレージへ委譲する前に
// ここを通過する: コンテキストからIdentityを取り出し、ポリシーエンジンの
// 判定を仰ぎ、拒否を統一エラー種別に変換する。認可判定の再試行は行わない。
package gateway

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/policy"
	"github.com/hitoshi/agora/internal/repository"
)

// DecisionRecorder はポリシー判定結果のメトリクス記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type DecisionRecorder interface {
	RecordPolicyDecision(rule string, allowed bool)
}

// nopRecorder は何も記録しないDecisionRecorder。
type nopRecorder struct{}

func (nopRecorder) RecordPolicyDecision(rule string, allowed bool) {}

// Guard は認可ゲート。
type Guard struct {
	engine   *policy.Engine
	recorder DecisionRecorder
}

// NewGuard はGuardを生成する。recorderがnilの場合は記録しない。
func NewGuard(engine *policy.Engine, recorder DecisionRecorder) *Guard {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Guard{engine: engine, recorder: recorder}
}

// Authorize はオブジェクト指定操作の認可判定を行う。
// 許可された場合は解決済みIdentityを返す。
// 拒否はUNAUTHENTICATEDまたはFORBIDDENのAPIErrorに変換される。
func (g *Guard) Authorize(ctx context.Context, resource policy.Resource, action policy.Action) (policy.Identity, error) {
	identity := policy.IdentityFromContext(ctx)

	decision, err := g.engine.Decide(ctx, identity, resource, action)
	if err != nil {
		if repository.IsUnavailable(err) {
			return identity, model.NewUnavailableError()
		}
		return identity, err
	}

	g.recorder.RecordPolicyDecision(decision.Rule, decision.Allowed)

	if !decision.Allowed {
		slog.Info("access denied",
			slog.String("user_id", identity.UserID),
			slog.String("resource_type", string(resource.Type)),
			slog.String("resource_id", resource.ID),
			slog.String("action", string(action)),
			slog.String("rule", decision.Rule),
		)
		return identity, denyError(decision)
	}

	return identity, nil
}

// AuthorizeClass はオブジェクトを特定しない操作（作成・一覧）のクラスレベル
// 認可判定を行う。オブジェクトレベル判定（Authorize）の代替にはならない。
func (g *Guard) AuthorizeClass(ctx context.Context, action policy.Action) (policy.Identity, error) {
	identity := policy.IdentityFromContext(ctx)

	decision := g.engine.DecideClass(identity, action)
	g.recorder.RecordPolicyDecision(decision.Rule, decision.Allowed)

	if !decision.Allowed {
		return identity, denyError(decision)
	}

	return identity, nil
}

// denyError は拒否判定を統一エラー種別に変換する。
func denyError(decision policy.Decision) *model.APIError {
	if decision.Reason == model.ErrCodeUnauthenticated {
		return model.NewUnauthenticatedError()
	}
	return model.NewForbiddenError()
}

// MaskHidden は非公開リソースに対する拒否をNOT_FOUNDに変換する。
// 匿名読み取りが許可されない（= 存在が公開情報でない）リソースについては、
// 権限不足の応答からリソースの存在が漏れないようにする。
// 公開リソースに対する拒否はそのまま返す（存在は既に公開情報のため）。
func MaskHidden(err error, isPublic bool, resourceLabel string) error {
	if err == nil || isPublic {
		return err
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeForbidden {
		return model.NewNotFoundError(resourceLabel)
	}
	return err
}

// MapStorageError はストレージ層のエラーを統一エラー種別に変換する。
// 接続不能はUNAVAILABLEに変換し、それ以外はそのまま返す（ハンドラー層で
// 内部エラーとして扱われる）。
func MapStorageError(err error) error {
	if err == nil {
		return nil
	}
	if repository.IsUnavailable(err) {
		return model.NewUnavailableError()
	}
	return err
}
