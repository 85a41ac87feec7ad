package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/agora/internal/authn"
	"github.com/hitoshi/agora/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     *authn.Authenticator
	AuthRecorder      middleware.AuthRecorder
	HTTPRecorder      middleware.HTTPRecorder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	CredentialService CredentialServiceInterface
	OAuthService      OAuthServiceInterface
	AuthConfig        AuthHandlerConfig

	// リソース
	PostService     PostServiceInterface
	CommentService  CommentServiceInterface
	GroupService    GroupServiceInterface
	BookmarkService BookmarkServiceInterface
	FollowService   FollowServiceInterface
	ReportService   ReportServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成した
// chi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → CSRF → Identity → Logging → RateLimit(General)
//
// Identityミドルウェアは全ルートに適用され、匿名リクエストも通過させる。
// LoggingはIdentityの後段に置き、user_idをログに含める。
// 認証必須のルートグループにのみRequireAuthenticatedを追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
	r.Use(middleware.NewIdentityMiddleware(deps.Authenticator, deps.AuthRecorder))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.HTTPRecorder))
	}
	r.Use(deps.RateLimiter.GeneralMiddleware())

	authHandler := NewAuthHandler(deps.CredentialService, deps.OAuthService, deps.AuthConfig)
	postHandler := NewPostHandler(deps.PostService)
	commentHandler := NewCommentHandler(deps.CommentService)
	groupHandler := NewGroupHandler(deps.GroupService)
	bookmarkHandler := NewBookmarkHandler(deps.BookmarkService)
	followHandler := NewFollowHandler(deps.FollowService)
	reportHandler := NewReportHandler(deps.ReportService)

	// 運用エンドポイント
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// CSRFトークン取得
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 認証ルート
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)

		// OAuthフロー
		r.Get("/{provider}/login", authHandler.OAuthLogin)
		r.Get("/{provider}/callback", authHandler.OAuthCallback)
	})

	// --- 匿名アクセス可能なルート（読み取り） ---

	r.Get("/api/posts", postHandler.ListPosts)
	r.Get("/api/posts/{id}", postHandler.GetPost)
	r.Get("/api/posts/{id}/comments", commentHandler.ListComments)
	r.Get("/api/groups", groupHandler.ListGroups)
	r.Get("/api/groups/{id}", groupHandler.GetGroup)
	r.Get("/api/users/{userID}/followers", followHandler.ListFollowers)

	// --- 認証が必要なルート（書き込み） ---

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuthenticated())

		// 投稿（作成には書き込み専用レート制限を追加）
		r.With(deps.RateLimiter.WriteMiddleware()).Post("/api/posts", postHandler.CreatePost)
		r.Route("/api/posts/{id}", func(r chi.Router) {
			r.Patch("/", postHandler.UpdatePost)
			r.Delete("/", postHandler.DeletePost)
			r.With(deps.RateLimiter.WriteMiddleware()).Post("/comments", commentHandler.CreateComment)
		})

		// コメント
		r.Route("/api/comments/{id}", func(r chi.Router) {
			r.Patch("/", commentHandler.UpdateComment)
			r.Delete("/", commentHandler.DeleteComment)
		})

		// グループ
		r.Post("/api/groups", groupHandler.CreateGroup)
		r.Route("/api/groups/{id}", func(r chi.Router) {
			r.Patch("/", groupHandler.UpdateGroup)
			r.Delete("/", groupHandler.DeleteGroup)

			// モデレーター許可の付与・剥奪
			r.Put("/moderators/{userID}", groupHandler.GrantModerator)
			r.Delete("/moderators/{userID}", groupHandler.RevokeModerator)
		})

		// ブックマーク
		r.Route("/api/bookmarks", func(r chi.Router) {
			r.Get("/", bookmarkHandler.ListBookmarks)
			r.Put("/{postID}", bookmarkHandler.AddBookmark)
			r.Delete("/{postID}", bookmarkHandler.RemoveBookmark)
		})

		// フォロー
		r.Get("/api/following", followHandler.ListFollowing)
		r.Put("/api/users/{userID}/follow", followHandler.Follow)
		r.Delete("/api/users/{userID}/follow", followHandler.Unfollow)

		// 通報（一覧と対応はサービス層で管理者に制限される）
		r.With(deps.RateLimiter.WriteMiddleware()).Post("/api/reports", reportHandler.FileReport)
		r.Get("/api/reports", reportHandler.ListOpenReports)
		r.Post("/api/reports/{id}/resolve", reportHandler.ResolveReport)

		// ユーザー管理
		r.Delete("/api/users/me", authHandler.Withdraw)
	})

	return r
}
