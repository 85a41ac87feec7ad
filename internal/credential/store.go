// Package credential はユーザー認証情報とベアラートークンの管理を提供する。
//
// パスワードはbcryptでハッシュ化して保存し、平文は保持しない。
// トークンはユーザーごとに同時に1つのみ有効で、発行時に旧トークンは
// 同一トランザクション内で破棄される。
package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/repository"
)

// usernamePattern はユーザー名に許可する文字種と長さ。
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)

// dummyHash はユーザー不在時のタイミング均一化に使用するbcryptハッシュ。
// ユーザーが見つからない場合もこのハッシュとの比較を実行し、
// 応答時間からユーザーの存在を推測されることを防ぐ。
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("agora-timing-equalizer"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("failed to generate dummy hash: %v", err))
	}
	return h
}()

// Notifier は登録完了通知の送信インターフェース。
// notify.Notifierの部分集合として定義する。送信は呼び出しをブロックしない。
type Notifier interface {
	Send(to, templateID string, data map[string]string)
}

// Store は認証情報に関するビジネスロジックを提供する。
type Store struct {
	users    repository.UserRepository
	tokens   repository.TokenRepository
	sessions repository.SessionRepository
	notifier Notifier
}

// NewStore はStoreを生成する。
func NewStore(
	users repository.UserRepository,
	tokens repository.TokenRepository,
	sessions repository.SessionRepository,
	notifier Notifier,
) *Store {
	return &Store{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		notifier: notifier,
	}
}

// Register は新規ユーザーを登録し、トークンを発行する。
// username/emailが既に使用されている場合はCONFLICTを返す。
// 登録完了通知は送信失敗してもリクエストを失敗させない。
func (s *Store) Register(ctx context.Context, username, email, password string) (*model.User, *model.Token, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))

	if err := validateRegistration(username, email, password); err != nil {
		return nil, nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if constraint, ok := repository.IsUniqueViolation(err); ok {
			return nil, nil, conflictFieldError(constraint)
		}
		if repository.IsUnavailable(err) {
			return nil, nil, model.NewUnavailableError()
		}
		return nil, nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.IssueToken(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.notifier.Send(email, "welcome", map[string]string{"username": username})

	slog.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("username", username),
	)

	return user, token, nil
}

// Login はユーザー名またはメールアドレスとパスワードでログインし、トークンを発行する。
// ユーザー不在とパスワード不一致はどちらもINVALID_CREDENTIALSを返し、
// 応答から区別できない。
func (s *Store) Login(ctx context.Context, usernameOrEmail, password string) (*model.User, *model.Token, error) {
	usernameOrEmail = strings.TrimSpace(usernameOrEmail)
	if usernameOrEmail == "" || password == "" {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	user, err := s.users.FindByUsernameOrEmail(ctx, usernameOrEmail)
	if err != nil {
		if repository.IsUnavailable(err) {
			return nil, nil, model.NewUnavailableError()
		}
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		// ユーザー不在時も同等のコストの比較を実行する
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, model.NewInvalidCredentialsError()
	}

	token, err := s.IssueToken(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))

	return user, token, nil
}

// IssueToken は新しいベアラートークンを発行する。
// 同一ユーザーの旧トークンはトランザクション内で破棄されるため、
// 発行完了後に有効なトークンは常にちょうど1つになる。
func (s *Store) IssueToken(ctx context.Context, userID string) (*model.Token, error) {
	value, err := generateTokenValue()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	token := &model.Token{
		Token:     value,
		UserID:    userID,
		CreatedAt: time.Now(),
	}

	if err := s.tokens.Replace(ctx, token); err != nil {
		if repository.IsUnavailable(err) {
			return nil, model.NewUnavailableError()
		}
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	return token, nil
}

// RevokeToken は指定トークンを破棄する。既に破棄済みの場合も成功する（冪等）。
func (s *Store) RevokeToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.tokens.Delete(ctx, token); err != nil {
		if repository.IsUnavailable(err) {
			return model.NewUnavailableError()
		}
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// GetUser は指定IDの有効なユーザーを取得する。無効化済みの場合はNOT_FOUNDを返す。
func (s *Store) GetUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if repository.IsUnavailable(err) {
			return nil, model.NewUnavailableError()
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewNotFoundError("ユーザー")
	}
	return user, nil
}

// Withdraw はユーザーをソフト無効化し、トークンと全セッションを破棄する。
func (s *Store) Withdraw(ctx context.Context, userID string) error {
	if err := s.users.Deactivate(ctx, userID); err != nil {
		if repository.IsUnavailable(err) {
			return model.NewUnavailableError()
		}
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if err := s.tokens.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}

	slog.Info("user withdrawn", slog.String("user_id", userID))
	return nil
}

// validateRegistration は登録入力を検証する。
func validateRegistration(username, email, password string) error {
	if !usernamePattern.MatchString(username) {
		return model.NewInvalidRequestError("ユーザー名は3〜30文字の英数字とアンダースコアで指定してください")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return model.NewInvalidRequestError("メールアドレスの形式が正しくありません")
	}
	if len(password) < 8 {
		return model.NewInvalidRequestError("パスワードは8文字以上で指定してください")
	}
	// bcryptは72バイトを超える入力を受け付けない
	if len(password) > 72 {
		return model.NewInvalidRequestError("パスワードが長すぎます")
	}
	return nil
}

// conflictFieldError は一意制約名から重複フィールド名を特定する。
func conflictFieldError(constraint string) *model.APIError {
	switch {
	case strings.Contains(constraint, "email"):
		return model.NewConflictError("メールアドレス")
	case strings.Contains(constraint, "username"):
		return model.NewConflictError("ユーザー名")
	default:
		return model.NewConflictError("指定された値")
	}
}

// generateTokenValue は暗号的に安全な不透明トークン値を生成する。
// 256ビットのエントロピーを持つ。
func generateTokenValue() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
