// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの役割を表す。
type Role string

const (
	// RoleUser は一般ユーザー。
	RoleUser Role = "user"
	// RoleAdmin は管理者。全リソースに対する操作が許可される。
	RoleAdmin Role = "admin"
)

// User はサービス利用ユーザーを表す。
// 退会時は物理削除せずIsActiveをfalseにする（ソフト無効化）。
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Token はAPIアクセス用の不透明ベアラートークンを表す。
// ユーザーごとに同時に有効なトークンは最大1つ。
type Token struct {
	Token     string
	UserID    string
	CreatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// 複数のIdP（Google, Facebook等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Follow はユーザー間のフォロー関係を表す。
// 自分自身はフォローできない。
type Follow struct {
	FollowerID string
	FolloweeID string
	CreatedAt  time.Time
}

// Session はブラウザ向けのログインセッションを表す。
// OAuthフロー経由のログインで発行され、有効期限は参照時に評価される（遅延失効）。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
