package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/agora/internal/model"
)

// TestPostgresSessionRepo_Create はセッションのINSERTを検証する。
func TestPostgresSessionRepo_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	session := &model.Session{
		ID:        "session-1",
		UserID:    "user-1",
		ExpiresAt: now.Add(24 * time.Hour),
		CreatedAt: now,
	}

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs(session.ID, session.UserID, session.ExpiresAt, session.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresSessionRepo(db)
	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
}

// TestPostgresSessionRepo_FindByID はセッションの取得と、期限切れ・未登録時の
// nil返却を検証する。期限はクエリ内で評価されるため、どちらも行なしとして現れる。
func TestPostgresSessionRepo_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "user_id", "expires_at", "created_at"}).
		AddRow("session-1", "user-1", now.Add(24*time.Hour), now)

	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs("session-1").
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs("expired-or-missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "expires_at", "created_at"}))

	repo := NewPostgresSessionRepo(db)

	got, err := repo.FindByID(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got == nil || got.UserID != "user-1" {
		t.Errorf("session = %+v, want UserID user-1", got)
	}

	got, err = repo.FindByID(context.Background(), "expired-or-missing")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got != nil {
		t.Errorf("session = %+v, want nil", got)
	}
}

// TestPostgresSessionRepo_DeleteByID は削除の冪等性を検証する。
func TestPostgresSessionRepo_DeleteByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM sessions WHERE id").
		WithArgs("already-gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgresSessionRepo(db)
	if err := repo.DeleteByID(context.Background(), "already-gone"); err != nil {
		t.Errorf("DeleteByID failed: %v", err)
	}
}

// TestPostgresSessionRepo_DeleteByUserID はユーザー単位の全セッション削除を検証する。
func TestPostgresSessionRepo_DeleteByUserID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("DELETE FROM sessions WHERE user_id").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	repo := NewPostgresSessionRepo(db)
	if err := repo.DeleteByUserID(context.Background(), "user-1"); err != nil {
		t.Errorf("DeleteByUserID failed: %v", err)
	}
}
