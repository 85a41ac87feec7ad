// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/agora/internal/authn"
	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/policy"
)

// sessionCookieName はセッションIDを保持するHTTP Only Cookieの名前。
const sessionCookieName = "session_id"

// AuthRecorder は認証試行のメトリクス記録インターフェース。
// metrics.Collectorの部分集合として定義する。
type AuthRecorder interface {
	RecordAuthAttempt(method string, success bool)
}

// nopAuthRecorder は何も記録しないAuthRecorder。
type nopAuthRecorder struct{}

func (nopAuthRecorder) RecordAuthAttempt(method string, success bool) {}

// ExtractCredentials はリクエストから認証素材を抽出する。
// AuthorizationヘッダーのBearerトークンを優先し、次にセッションCookieを見る。
func ExtractCredentials(r *http.Request) authn.Credentials {
	var creds authn.Credentials

	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		creds.BearerToken = strings.TrimSpace(after)
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		creds.SessionID = cookie.Value
	}

	return creds
}

// NewIdentityMiddleware は認証素材をIdentityに解決し、リクエストコンテキストに
// 注入するミドルウェアを返す。
// 素材が提示されていない場合は匿名Identityとしてリクエストを通過させる。
// 素材が提示されたが無効・期限切れの場合は401を返し、後段には到達させない。
func NewIdentityMiddleware(authenticator *authn.Authenticator, recorder AuthRecorder) func(next http.Handler) http.Handler {
	if recorder == nil {
		recorder = nopAuthRecorder{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := ExtractCredentials(r)

			identity, err := authenticator.Authenticate(r.Context(), creds)

			if !creds.IsEmpty() {
				recorder.RecordAuthAttempt(credentialMethod(creds), err == nil)
			}

			if err != nil {
				writeAuthError(w, r, err)
				return
			}

			ctx := policy.ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthenticated は匿名リクエストを401で拒否するミドルウェアを返す。
// IdentityMiddlewareの後段に配置し、認証必須のルートグループに適用する。
func RequireAuthenticated() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := policy.IdentityFromContext(r.Context())
			if identity.IsAnonymous() {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// credentialMethod はメトリクスラベル用の認証方式名を返す。
func credentialMethod(creds authn.Credentials) string {
	if creds.BearerToken != "" {
		return "token"
	}
	return "session"
}

// writeAuthError は認証エラーをHTTPレスポンスに変換する。
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		status := http.StatusUnauthorized
		if apiErr.Code == model.ErrCodeUnavailable {
			status = http.StatusServiceUnavailable
		}
		WriteErrorResponse(w, status, apiErr)
		return
	}

	slog.Error("authentication failed",
		slog.String("path", r.URL.Path),
		slog.Any("error", err),
	)
	WriteInternalServerError(w)
}
