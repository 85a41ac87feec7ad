// Package authn は提示された認証情報の解決を提供する。
//
// ベアラートークンまたはセッションCookieをIdentityに解決する。
// 認証情報が提示されていない場合は匿名Identityを返し、エラーにはしない。
// 解決は純粋な参照のみで副作用を持たず、有効期限は呼び出し時点で評価される。
package authn

import (
	"context"
	"fmt"

	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/policy"
	"github.com/hitoshi/agora/internal/repository"
)

// Credentials はリクエストから抽出した認証素材を表す。
// 両フィールドとも空の場合は匿名リクエストを意味する。
type Credentials struct {
	BearerToken string
	SessionID   string
}

// IsEmpty は認証素材が提示されていないかどうかを返す。
func (c Credentials) IsEmpty() bool {
	return c.BearerToken == "" && c.SessionID == ""
}

// TokenUserFinder はトークンからユーザーを解決するインターフェース。
// repository.TokenRepositoryの部分集合として定義する。
type TokenUserFinder interface {
	FindUser(ctx context.Context, token string) (*model.User, error)
}

// SessionFinder はセッションの検索インターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// UserFinder はユーザーの検索インターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Authenticator は認証素材をIdentityに解決する。
type Authenticator struct {
	tokens   TokenUserFinder
	sessions SessionFinder
	users    UserFinder
}

// NewAuthenticator はAuthenticatorを生成する。
func NewAuthenticator(tokens TokenUserFinder, sessions SessionFinder, users UserFinder) *Authenticator {
	return &Authenticator{
		tokens:   tokens,
		sessions: sessions,
		users:    users,
	}
}

// Authenticate は認証素材をIdentityに解決する。
// 解決順序: ベアラートークン → セッションCookie → 匿名。
// 素材が提示されているが無効・期限切れの場合のみUNAUTHENTICATEDを返す。
// 素材の不在はエラーではなく匿名Identityを返す（多くのエンドポイントは
// 匿名の読み取りを許可するため）。
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) (policy.Identity, error) {
	if creds.BearerToken != "" {
		return a.resolveToken(ctx, creds.BearerToken)
	}
	if creds.SessionID != "" {
		return a.resolveSession(ctx, creds.SessionID)
	}
	return policy.Anonymous, nil
}

// resolveToken はベアラートークンをIdentityに解決する。
func (a *Authenticator) resolveToken(ctx context.Context, token string) (policy.Identity, error) {
	user, err := a.tokens.FindUser(ctx, token)
	if err != nil {
		if repository.IsUnavailable(err) {
			return policy.Anonymous, model.NewUnavailableError()
		}
		return policy.Anonymous, fmt.Errorf("failed to resolve token: %w", err)
	}
	if user == nil {
		return policy.Anonymous, model.NewUnauthenticatedError()
	}
	return policy.Identity{UserID: user.ID, Role: user.Role}, nil
}

// resolveSession はセッションIDをIdentityに解決する。
// 期限切れセッションはリポジトリ層でnilとなり、UNAUTHENTICATEDを返す。
func (a *Authenticator) resolveSession(ctx context.Context, sessionID string) (policy.Identity, error) {
	session, err := a.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if repository.IsUnavailable(err) {
			return policy.Anonymous, model.NewUnavailableError()
		}
		return policy.Anonymous, fmt.Errorf("failed to resolve session: %w", err)
	}
	if session == nil {
		return policy.Anonymous, model.NewUnauthenticatedError()
	}

	user, err := a.users.FindByID(ctx, session.UserID)
	if err != nil {
		if repository.IsUnavailable(err) {
			return policy.Anonymous, model.NewUnavailableError()
		}
		return policy.Anonymous, fmt.Errorf("failed to resolve session user: %w", err)
	}
	if user == nil {
		// セッションは有効だがユーザーが無効化済み
		return policy.Anonymous, model.NewUnauthenticatedError()
	}

	return policy.Identity{UserID: user.ID, Role: user.Role}, nil
}
