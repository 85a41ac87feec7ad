// Package app はアプリケーションの起動と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/agora/internal/auth"
	"github.com/hitoshi/agora/internal/authn"
	"github.com/hitoshi/agora/internal/bookmark"
	"github.com/hitoshi/agora/internal/comment"
	"github.com/hitoshi/agora/internal/config"
	"github.com/hitoshi/agora/internal/credential"
	"github.com/hitoshi/agora/internal/database"
	"github.com/hitoshi/agora/internal/follow"
	"github.com/hitoshi/agora/internal/gateway"
	"github.com/hitoshi/agora/internal/group"
	"github.com/hitoshi/agora/internal/handler"
	"github.com/hitoshi/agora/internal/logger"
	"github.com/hitoshi/agora/internal/metrics"
	"github.com/hitoshi/agora/internal/middleware"
	"github.com/hitoshi/agora/internal/notify"
	"github.com/hitoshi/agora/internal/policy"
	"github.com/hitoshi/agora/internal/post"
	"github.com/hitoshi/agora/internal/report"
	"github.com/hitoshi/agora/internal/repository"
	"github.com/hitoshi/agora/internal/security"
	"github.com/hitoshi/agora/internal/worker/preview"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込み前にログを使えるようにする
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// buildOAuthProviders は設定済みのOAuthプロバイダー群を構築する。
// ClientIDが未設定のプロバイダーは登録されない。
func buildOAuthProviders(cfg *config.Config) []auth.OAuthProvider {
	var providers []auth.OAuthProvider

	if cfg.GoogleClientID != "" {
		providers = append(providers, auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		}))
	}

	if cfg.FacebookClientID != "" {
		providers = append(providers, auth.NewFacebookOAuthProvider(auth.FacebookOAuthConfig{
			ClientID:     cfg.FacebookClientID,
			ClientSecret: cfg.FacebookClientSecret,
			RedirectURL:  cfg.FacebookRedirectURL,
		}))
	}

	return providers
}

// rateLimiterConfig は設定値（req/min）からレート制限設定を組み立てる。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rlCfg.GeneralBurst = cfg.RateLimitGeneral
	rlCfg.WriteRate = rate.Limit(float64(cfg.RateLimitWrite) / 60.0)
	rlCfg.WriteBurst = cfg.RateLimitWrite
	return rlCfg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	tokenRepo := repository.NewPostgresTokenRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)
	groupRepo := repository.NewPostgresGroupRepo(db)
	grantRepo := repository.NewPostgresGrantRepo(db)
	bookmarkRepo := repository.NewPostgresBookmarkRepo(db)
	followRepo := repository.NewPostgresFollowRepo(db)
	reportRepo := repository.NewPostgresReportRepo(db)

	// 3. メトリクスとセキュリティサービスの初期化
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	// 4. 認証・認可の初期化
	engine := policy.NewEngine(grantRepo)
	guard := gateway.NewGuard(engine, collector)
	authenticator := authn.NewAuthenticator(tokenRepo, sessionRepo, userRepo)

	notifier := notify.NewNotifier(notify.NewLogSender())
	credStore := credential.NewStore(userRepo, tokenRepo, sessionRepo, notifier)

	oauthService := auth.NewService(
		buildOAuthProviders(cfg), userRepo, identRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	// 5. ドメインサービスの初期化
	postService := post.NewService(postRepo, groupRepo, guard, sanitizer, ssrfGuard)
	commentService := comment.NewService(commentRepo, postRepo, guard, sanitizer)
	groupService := group.NewService(groupRepo, userRepo, grantRepo, guard)
	bookmarkService := bookmark.NewService(bookmarkRepo, postRepo, guard)
	followService := follow.NewService(followRepo, userRepo, guard)
	reportService := report.NewService(reportRepo, postRepo, commentRepo, guard)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Authenticator:     authenticator,
		AuthRecorder:      collector,
		HTTPRecorder:      collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		Logger:      slog.Default(),

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(prometheus.DefaultGatherer),

		CredentialService: credStore,
		OAuthService:      oauthService,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		PostService:     postService,
		CommentService:  commentService,
		GroupService:    groupService,
		BookmarkService: bookmarkService,
		FollowService:   followService,
		ReportService:   reportService,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 送信中の通知が残っていれば完了を待つ
	if err := notifier.Shutdown(ctx); err != nil {
		slog.Warn("notification dispatch did not drain", slog.String("error", err.Error()))
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はプレビューワーカーモードで起動する。
// DB接続を開き、リンクプレビュー取得スケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. フェッチャーとスケジューラの初期化
	postRepo := repository.NewPostgresPostRepo(db)
	ssrfGuard := security.NewSSRFGuard()
	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	fetcher := preview.NewFetcher(
		postRepo, ssrfGuard, collector,
		slog.Default(), cfg.PreviewTimeout, cfg.PreviewMaxSize,
	)
	scheduler := preview.NewScheduler(
		postRepo, fetcher, slog.Default(), cfg.PreviewMaxConcurrent,
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("preview_interval", cfg.PreviewInterval),
		slog.Int("max_concurrent", cfg.PreviewMaxConcurrent),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.PreviewInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
