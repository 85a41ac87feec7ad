package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/hitoshi/agora/internal/model"
)

func testUser() *model.User {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &model.User{
		ID:           "user-1",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "$2a$10$hash",
		Role:         model.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func userRows(user *model.User) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "username", "email", "password_hash", "role", "is_active", "created_at", "updated_at",
	}).AddRow(
		user.ID, user.Username, user.Email, user.PasswordHash,
		string(user.Role), user.IsActive, user.CreatedAt, user.UpdatedAt,
	)
}

// TestPostgresUserRepo_Create はユーザーのINSERTを検証する。
func TestPostgresUserRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	user := testUser()
	mock.ExpectExec("INSERT INTO users").
		WithArgs(user.ID, user.Username, user.Email, user.PasswordHash,
			user.Role, user.IsActive, user.CreatedAt, user.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresUserRepo(db)
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestPostgresUserRepo_Create_UniqueViolation は一意制約違反が
// 呼び出し側で判定可能な形で返ることを検証する。
func TestPostgresUserRepo_Create_UniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_username_key"})

	repo := NewPostgresUserRepo(db)
	err = repo.Create(context.Background(), testUser())
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	constraint, ok := IsUniqueViolation(err)
	if !ok {
		t.Fatalf("IsUniqueViolation = false for %v", err)
	}
	if constraint != "users_username_key" {
		t.Errorf("constraint = %q, want users_username_key", constraint)
	}
}

// TestPostgresUserRepo_FindByID はID検索を検証する。
func TestPostgresUserRepo_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	user := testUser()
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs("user-1").
		WillReturnRows(userRows(user))

	repo := NewPostgresUserRepo(db)
	got, err := repo.FindByID(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("FindByID returned nil user")
	}
	if got.Username != "alice" {
		t.Errorf("Username = %q, want alice", got.Username)
	}
	if got.Role != model.RoleUser {
		t.Errorf("Role = %q, want %q", got.Role, model.RoleUser)
	}
}

// TestPostgresUserRepo_FindByID_NotFound は未登録IDに対して
// エラーではなくnilが返ることを検証する。
func TestPostgresUserRepo_FindByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "email", "password_hash", "role", "is_active", "created_at", "updated_at",
		}))

	repo := NewPostgresUserRepo(db)
	got, err := repo.FindByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got != nil {
		t.Errorf("FindByID = %+v, want nil", got)
	}
}

// TestPostgresUserRepo_FindByUsernameOrEmail はユーザー名・メール共用の検索を検証する。
func TestPostgresUserRepo_FindByUsernameOrEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	user := testUser()
	mock.ExpectQuery("SELECT (.+) FROM users").
		WithArgs("alice@example.com").
		WillReturnRows(userRows(user))

	repo := NewPostgresUserRepo(db)
	got, err := repo.FindByUsernameOrEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("FindByUsernameOrEmail failed: %v", err)
	}
	if got == nil || got.ID != "user-1" {
		t.Errorf("user = %+v, want user-1", got)
	}
}

// TestPostgresUserRepo_CreateWithIdentity はユーザーとidentityが
// 同一トランザクションで作成されることを検証する。
func TestPostgresUserRepo_CreateWithIdentity(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	user := testUser()
	identity := &model.Identity{
		ID:             "identity-1",
		UserID:         user.ID,
		Provider:       "google",
		ProviderUserID: "google-uid-1",
		CreatedAt:      user.CreatedAt,
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WithArgs(user.ID, user.Username, user.Email, user.PasswordHash,
			user.Role, user.IsActive, user.CreatedAt, user.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO identities").
		WithArgs(identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewPostgresUserRepo(db)
	if err := repo.CreateWithIdentity(context.Background(), user, identity); err != nil {
		t.Fatalf("CreateWithIdentity failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestPostgresUserRepo_CreateWithIdentity_RollbackOnError はidentityの
// INSERT失敗時にコミットされないことを検証する。
func TestPostgresUserRepo_CreateWithIdentity_RollbackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	user := testUser()
	identity := &model.Identity{ID: "identity-1", UserID: user.ID, Provider: "google"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO identities").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "identities_provider_uid_key"})
	mock.ExpectRollback()

	repo := NewPostgresUserRepo(db)
	if err := repo.CreateWithIdentity(context.Background(), user, identity); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestPostgresUserRepo_Deactivate はソフト無効化を検証する。
func TestPostgresUserRepo_Deactivate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE users SET is_active = FALSE").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresUserRepo(db)
	if err := repo.Deactivate(context.Background(), "user-1"); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
}

// TestPostgresUserRepo_Deactivate_NotFound は対象行がない場合に
// エラーが返ることを検証する。
func TestPostgresUserRepo_Deactivate_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("UPDATE users SET is_active = FALSE").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresUserRepo(db)
	if err := repo.Deactivate(context.Background(), "missing"); err == nil {
		t.Error("expected error for missing user, got nil")
	}
}
