package credential

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/agora/internal/model"
)

// --- モック ---

type mockUserRepo struct {
	createFn                func(ctx context.Context, user *model.User) error
	findByIDFn              func(ctx context.Context, id string) (*model.User, error)
	findByUsernameOrEmailFn func(ctx context.Context, usernameOrEmail string) (*model.User, error)
	deactivateFn            func(ctx context.Context, id string) error
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}
func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (*model.User, error) {
	if m.findByUsernameOrEmailFn != nil {
		return m.findByUsernameOrEmailFn(ctx, usernameOrEmail)
	}
	return nil, nil
}
func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	return nil
}
func (m *mockUserRepo) Deactivate(ctx context.Context, id string) error {
	if m.deactivateFn != nil {
		return m.deactivateFn(ctx, id)
	}
	return nil
}

type mockTokenRepo struct {
	replaceFn        func(ctx context.Context, token *model.Token) error
	deleteFn         func(ctx context.Context, token string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockTokenRepo) Replace(ctx context.Context, token *model.Token) error {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, token)
	}
	return nil
}
func (m *mockTokenRepo) FindUser(ctx context.Context, token string) (*model.User, error) {
	return nil, nil
}
func (m *mockTokenRepo) Delete(ctx context.Context, token string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, token)
	}
	return nil
}
func (m *mockTokenRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

type mockSessionRepo struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return nil
}
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

type mockNotifier struct {
	sent []string
}

func (m *mockNotifier) Send(to, templateID string, data map[string]string) {
	m.sent = append(m.sent, templateID+":"+to)
}

func newTestStore(users *mockUserRepo, tokens *mockTokenRepo) (*Store, *mockNotifier) {
	notifier := &mockNotifier{}
	return NewStore(users, tokens, &mockSessionRepo{}, notifier), notifier
}

// --- テスト ---

// TestStore_Register は新規登録の成功パスを検証する。
func TestStore_Register(t *testing.T) {
	var created *model.User
	users := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			created = user
			return nil
		},
	}
	tokens := &mockTokenRepo{}
	store, notifier := newTestStore(users, tokens)

	user, token, err := store.Register(context.Background(), "alice", "Alice@Example.com", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if created == nil {
		t.Fatal("user was not persisted")
	}
	if user.Username != "alice" {
		t.Errorf("Username = %q, want %q", user.Username, "alice")
	}
	// メールアドレスは小文字に正規化される
	if user.Email != "alice@example.com" {
		t.Errorf("Email = %q, want %q", user.Email, "alice@example.com")
	}
	if user.Role != model.RoleUser {
		t.Errorf("Role = %q, want %q", user.Role, model.RoleUser)
	}
	if !user.IsActive {
		t.Error("new user should be active")
	}

	// 平文パスワードは保存されない
	if user.PasswordHash == "password123" {
		t.Error("password must not be stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password123")); err != nil {
		t.Errorf("password hash does not verify: %v", err)
	}

	// 64桁hexの不透明トークンが発行される
	if len(token.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(token.Token))
	}
	if token.UserID != user.ID {
		t.Errorf("token.UserID = %q, want %q", token.UserID, user.ID)
	}

	// 登録完了通知が送信される
	if len(notifier.sent) != 1 || !strings.HasPrefix(notifier.sent[0], "welcome:") {
		t.Errorf("notification = %v, want one welcome", notifier.sent)
	}
}

// TestStore_Register_Validation は登録入力の検証を検証する。
func TestStore_Register_Validation(t *testing.T) {
	store, _ := newTestStore(&mockUserRepo{}, &mockTokenRepo{})

	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"ユーザー名が短すぎる", "ab", "a@example.com", "password123"},
		{"ユーザー名に記号", "alice!", "a@example.com", "password123"},
		{"メールアドレスの形式が不正", "alice", "not-an-email", "password123"},
		{"パスワードが短すぎる", "alice", "a@example.com", "short"},
		{"パスワードが長すぎる", "alice", "a@example.com", strings.Repeat("x", 73)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := store.Register(context.Background(), tt.username, tt.email, tt.password)

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Code != model.ErrCodeInvalidRequest {
				t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidRequest)
			}
		})
	}
}

// TestStore_Register_Conflict は一意制約違反がCONFLICTに変換されることを検証する。
func TestStore_Register_Conflict(t *testing.T) {
	tests := []struct {
		name       string
		constraint string
		wantField  string
	}{
		{"ユーザー名の重複", "users_username_key", "ユーザー名"},
		{"メールアドレスの重複", "users_email_key", "メールアドレス"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &mockUserRepo{
				createFn: func(ctx context.Context, user *model.User) error {
					return &pq.Error{Code: "23505", Constraint: tt.constraint}
				},
			}
			store, _ := newTestStore(users, &mockTokenRepo{})

			_, _, err := store.Register(context.Background(), "alice", "a@example.com", "password123")

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Code != model.ErrCodeConflict {
				t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeConflict)
			}
			if !strings.Contains(apiErr.Message, tt.wantField) {
				t.Errorf("Message = %q, want to contain %q", apiErr.Message, tt.wantField)
			}
		})
	}
}

// TestStore_Login はログインの成功と失敗を検証する。
func TestStore_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	existing := &model.User{
		ID:           "user-1",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		IsActive:     true,
	}

	users := &mockUserRepo{
		findByUsernameOrEmailFn: func(ctx context.Context, usernameOrEmail string) (*model.User, error) {
			if usernameOrEmail == "alice" || usernameOrEmail == "alice@example.com" {
				return existing, nil
			}
			return nil, nil
		},
	}
	store, _ := newTestStore(users, &mockTokenRepo{})

	// ユーザー名でログイン
	user, token, err := store.Login(context.Background(), "alice", "password123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.ID != "user-1" {
		t.Errorf("user.ID = %q, want %q", user.ID, "user-1")
	}
	if token == nil || token.Token == "" {
		t.Error("expected token to be issued")
	}

	// メールアドレスでもログイン可能
	if _, _, err := store.Login(context.Background(), "alice@example.com", "password123"); err != nil {
		t.Errorf("login by email failed: %v", err)
	}

	// パスワード不一致とユーザー不在は同じエラー
	for _, tc := range []struct {
		name            string
		login, password string
	}{
		{"パスワード不一致", "alice", "wrong-password"},
		{"ユーザー不在", "nobody", "password123"},
		{"空の入力", "", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := store.Login(context.Background(), tc.login, tc.password)

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Code != model.ErrCodeInvalidCredentials {
				t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCredentials)
			}
		})
	}
}

// TestStore_IssueToken_Replace はトークン発行が旧トークンの置換で行われることを検証する。
func TestStore_IssueToken_Replace(t *testing.T) {
	var replaced *model.Token
	tokens := &mockTokenRepo{
		replaceFn: func(ctx context.Context, token *model.Token) error {
			replaced = token
			return nil
		},
	}
	store, _ := newTestStore(&mockUserRepo{}, tokens)

	token, err := store.IssueToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	if replaced == nil {
		t.Fatal("Replace was not called")
	}
	if replaced.Token != token.Token {
		t.Errorf("persisted token %q != returned token %q", replaced.Token, token.Token)
	}

	// 発行のたびに異なる値になる
	second, err := store.IssueToken(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("second IssueToken failed: %v", err)
	}
	if second.Token == token.Token {
		t.Error("expected a fresh token value on each issuance")
	}
}

// TestStore_RevokeToken はトークン破棄の冪等性を検証する。
func TestStore_RevokeToken(t *testing.T) {
	deleted := []string{}
	tokens := &mockTokenRepo{
		deleteFn: func(ctx context.Context, token string) error {
			deleted = append(deleted, token)
			return nil
		},
	}
	store, _ := newTestStore(&mockUserRepo{}, tokens)

	if err := store.RevokeToken(context.Background(), "some-token"); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != "some-token" {
		t.Errorf("deleted = %v, want [some-token]", deleted)
	}

	// 空トークンは何もせず成功する
	if err := store.RevokeToken(context.Background(), ""); err != nil {
		t.Errorf("RevokeToken with empty token failed: %v", err)
	}
	if len(deleted) != 1 {
		t.Errorf("delete should not be called for empty token")
	}
}

// TestStore_GetUser は無効化済みユーザーがNOT_FOUNDになることを検証する。
func TestStore_GetUser_NotFound(t *testing.T) {
	users := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, nil
		},
	}
	store, _ := newTestStore(users, &mockTokenRepo{})

	_, err := store.GetUser(context.Background(), "user-1")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeNotFound {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeNotFound)
	}
}

// TestStore_Withdraw は退会時の無効化とトークン・セッション破棄を検証する。
func TestStore_Withdraw(t *testing.T) {
	deactivated := ""
	users := &mockUserRepo{
		deactivateFn: func(ctx context.Context, id string) error {
			deactivated = id
			return nil
		},
	}
	tokensDeleted := ""
	tokens := &mockTokenRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			tokensDeleted = userID
			return nil
		},
	}
	sessionsDeleted := ""
	sessions := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			sessionsDeleted = userID
			return nil
		},
	}
	store := NewStore(users, tokens, sessions, &mockNotifier{})

	if err := store.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if deactivated != "user-1" {
		t.Errorf("deactivated = %q, want user-1", deactivated)
	}
	if tokensDeleted != "user-1" {
		t.Errorf("tokens deleted for %q, want user-1", tokensDeleted)
	}
	if sessionsDeleted != "user-1" {
		t.Errorf("sessions deleted for %q, want user-1", sessionsDeleted)
	}
}
