// Package auth はOAuth認証フローとブラウザセッションの発行を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	Provider       string // "google", "facebook" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// Name はプロバイダー識別子を返す。
	Name() string
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はOAuth認証に関するビジネスロジックを提供する。
// 複数のプロバイダーをprovider名で切り替える。
type Service struct {
	providers   map[string]OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	providers []OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	m := make(map[string]OAuthProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &Service{
		providers:   m,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// provider は指定名のプロバイダーを取得する。未設定の場合はNOT_FOUNDを返す。
func (s *Service) provider(name string) (OAuthProvider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, model.NewNotFoundError("認証プロバイダー")
	}
	return p, nil
}

// GetLoginURL は指定プロバイダーのOAuth認証URLを生成する。
func (s *Service) GetLoginURL(providerName, state string) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	return p.GetLoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同一トランザクションで
// 自動作成する。登録済みユーザーの場合はidentitiesテーブルで既存ユーザーを特定し
// ログインする。無効化済みユーザーはログインできない。
func (s *Service) HandleCallback(ctx context.Context, providerName, code string) (*model.Session, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	userInfo, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. identitiesテーブルで既存ユーザーを検索
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var userID string

	if identity != nil {
		// 3a. 既存ユーザー: 有効性を確認してログイン
		user, err := s.userRepo.FindByID(ctx, identity.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to find user: %w", err)
		}
		if user == nil {
			return nil, model.NewInvalidCredentialsError()
		}
		userID = user.ID
		slog.Info("existing user logged in",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		// 3b. 新規ユーザー: usersレコードとidentitiesレコードを同時に作成
		user, err := s.provisionUser(ctx, userInfo)
		if err != nil {
			return nil, err
		}
		userID = user.ID
		slog.Info("new user provisioned",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	}

	// 4. セッションを発行
	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// provisionUser はOAuthユーザー情報から新規ユーザーを作成する。
// ユーザー名はメールアドレスのローカル部から導出し、衝突時はランダム接尾辞で
// 再試行する。
func (s *Service) provisionUser(ctx context.Context, userInfo *OAuthUserInfo) (*model.User, error) {
	now := time.Now()
	username := deriveUsername(userInfo.Email)

	for attempt := 0; attempt < 3; attempt++ {
		user := &model.User{
			ID:        uuid.New().String(),
			Username:  username,
			Email:     strings.ToLower(userInfo.Email),
			Role:      model.RoleUser,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		identity := &model.Identity{
			ID:             uuid.New().String(),
			UserID:         user.ID,
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
			CreatedAt:      now,
		}

		err := s.userRepo.CreateWithIdentity(ctx, user, identity)
		if err == nil {
			return user, nil
		}
		if constraint, ok := repository.IsUniqueViolation(err); ok {
			if strings.Contains(constraint, "email") {
				// 同一メールの既存アカウントあり。自動リンクはしない
				return nil, model.NewConflictError("メールアドレス")
			}
			// ユーザー名衝突: 接尾辞を付けて再試行
			username = deriveUsername(userInfo.Email) + "_" + randomSuffix()
			continue
		}
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	return nil, fmt.Errorf("failed to provision user: username collisions exhausted retries")
}

// Logout はセッションを破棄する。既に破棄済みの場合も成功する（冪等）。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// deriveUsername はメールアドレスのローカル部からユーザー名を導出する。
// 使用できない文字はアンダースコアに置換する。
func deriveUsername(email string) string {
	local := email
	if i := strings.IndexByte(email, '@'); i > 0 {
		local = email[:i]
	}
	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if len(name) < 3 {
		name = "user_" + randomSuffix()
	}
	if len(name) > 30 {
		name = name[:30]
	}
	return name
}

// randomSuffix はユーザー名衝突回避用の短いランダム文字列を生成する。
func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// エントロピー枯渇時はタイムスタンプで代替
		return fmt.Sprintf("%d", time.Now().UnixNano()%100000000)
	}
	return hex.EncodeToString(b)
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
