package policy

import "context"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストにIdentityを格納するためのキー。
var identityContextKey = contextKey("identity")

// ContextWithIdentity はコンテキストにIdentityを注入する。
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext はリクエストコンテキストからIdentityを取得する。
// 注入されていない場合は匿名Identityを返す。
func IdentityFromContext(ctx context.Context) Identity {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	if !ok {
		return Anonymous
	}
	return identity
}
