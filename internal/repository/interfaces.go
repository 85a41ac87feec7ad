// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/agora/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。username/emailの一意制約違反はそのまま返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDの有効なユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsernameOrEmail はユーザー名またはメールアドレスで有効なユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	// OAuth経由の新規ユーザープロビジョニングで使用する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// Deactivate は指定IDのユーザーをソフト無効化する。物理削除は行わない。
	Deactivate(ctx context.Context, id string) error
}

// TokenRepository はベアラートークンの永続化インターフェース。
type TokenRepository interface {
	// Replace はユーザーの既存トークンを破棄し、新しいトークンを登録する。
	// 削除と挿入は同一トランザクションで行われ、完了後に有効なトークンは
	// 常にちょうど1つになる。
	Replace(ctx context.Context, token *model.Token) error

	// FindUser はトークンに対応する有効なユーザーを取得する。
	// トークンが存在しない、またはユーザーが無効化済みの場合はnilを返す。
	FindUser(ctx context.Context, token string) (*model.User, error)

	// Delete は指定トークンを削除する。存在しない場合もエラーにしない（冪等）。
	Delete(ctx context.Context, token string) error

	// DeleteByUserID は指定ユーザーのトークンを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// PostRepository は投稿データの永続化インターフェース。
type PostRepository interface {
	// Create は投稿を作成する。
	Create(ctx context.Context, post *model.Post) error

	// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
	// 公開/非公開を問わず返し、可視性の判定は呼び出し側が行う。
	FindByID(ctx context.Context, id string) (*model.Post, error)

	// ListPublic は公開投稿の一覧をcreated_at降順で取得する。
	// cursorがゼロ値の場合は先頭から取得する。
	ListPublic(ctx context.Context, groupID string, cursor time.Time, limit int) ([]*model.Post, error)

	// Update は投稿の可変フィールドを更新する。owner_idは変更しない。
	Update(ctx context.Context, post *model.Post) error

	// Delete は指定IDの投稿と投稿を対象とする許可を削除する。
	// コメントとブックマークは外部キーでCASCADE削除される。
	Delete(ctx context.Context, id string) error

	// ListNeedingPreview はリンクタイトル未取得のリンク投稿を取得する。
	ListNeedingPreview(ctx context.Context, limit int) ([]*model.Post, error)

	// UpdatePreview は投稿のリンクタイトルと取得日時を更新する。
	UpdatePreview(ctx context.Context, postID, linkTitle string, fetchedAt time.Time) error
}

// CommentRepository はコメントデータの永続化インターフェース。
type CommentRepository interface {
	// Create はコメントを作成する。
	Create(ctx context.Context, comment *model.Comment) error
	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Comment, error)
	// ListByPost は投稿のコメント一覧をcreated_at昇順で取得する。
	ListByPost(ctx context.Context, postID string, limit int) ([]*model.Comment, error)
	// Update はコメント本文を更新する。owner_idは変更しない。
	Update(ctx context.Context, comment *model.Comment) error
	// Delete は指定IDのコメントを削除する。
	Delete(ctx context.Context, id string) error
}

// GroupRepository はグループデータの永続化インターフェース。
type GroupRepository interface {
	// Create はグループを作成する。nameの一意制約違反はそのまま返す。
	Create(ctx context.Context, group *model.Group) error
	// FindByID は指定IDのグループを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Group, error)
	// List はグループ一覧をname昇順で取得する。
	List(ctx context.Context, limit int) ([]*model.Group, error)
	// Update はグループの可変フィールドを更新する。owner_idは変更しない。
	Update(ctx context.Context, group *model.Group) error
	// Delete は指定IDのグループとグループを対象とする許可を削除する。
	Delete(ctx context.Context, id string) error
}

// GrantRepository はオブジェクトレベル許可の永続化インターフェース。
type GrantRepository interface {
	// Put は許可を冪等に登録する。既に存在する場合は何もしない。
	Put(ctx context.Context, grant *model.Grant) error

	// Exists は(userID, resourceType, resourceID, action)の許可が存在するかを返す。
	Exists(ctx context.Context, userID string, resourceType model.ResourceType, resourceID, action string) (bool, error)

	// DeleteByUserAndResource は指定ユーザー・リソースの全許可を削除する。
	DeleteByUserAndResource(ctx context.Context, userID string, resourceType model.ResourceType, resourceID string) error
}

// BookmarkRepository はブックマークの永続化インターフェース。
type BookmarkRepository interface {
	// Put はブックマークを冪等に登録する。
	Put(ctx context.Context, bookmark *model.Bookmark) error
	// Delete はブックマークを削除する。存在しない場合もエラーにしない（冪等）。
	Delete(ctx context.Context, userID, postID string) error
	// ListPostsByUser はユーザーがブックマークした投稿一覧をブックマーク日時降順で返す。
	ListPostsByUser(ctx context.Context, userID string, limit int) ([]*model.Post, error)
}

// FollowRepository はフォロー関係の永続化インターフェース。
type FollowRepository interface {
	// Put はフォロー関係を冪等に登録する。既に存在する場合は何もしない。
	Put(ctx context.Context, follow *model.Follow) error
	// Delete はフォロー関係を削除する。存在しない場合もエラーにしない（冪等）。
	Delete(ctx context.Context, followerID, followeeID string) error
	// ListFollowing はユーザーがフォローしている有効なユーザー一覧を
	// フォロー日時降順で返す。
	ListFollowing(ctx context.Context, followerID string, limit int) ([]*model.User, error)
	// ListFollowers はユーザーをフォローしている有効なユーザー一覧を
	// フォロー日時降順で返す。
	ListFollowers(ctx context.Context, followeeID string, limit int) ([]*model.User, error)
}

// ReportRepository はコンテンツ通報の永続化インターフェース。
type ReportRepository interface {
	// Create は通報を作成する。
	Create(ctx context.Context, report *model.Report) error
	// FindByID は指定IDの通報を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Report, error)
	// ListOpen は未対応の通報一覧をcreated_at昇順で返す。
	ListOpen(ctx context.Context, limit int) ([]*model.Report, error)
	// Resolve は通報を対応済みにする。既に対応済みの場合は何もしない（冪等）。
	Resolve(ctx context.Context, id, resolvedBy string, resolvedAt time.Time) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
