package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/agora/internal/model"
)

// PostgresTokenRepo はPostgreSQLを使用したベアラートークンリポジトリ。
type PostgresTokenRepo struct {
	db *sql.DB
}

// NewPostgresTokenRepo はPostgresTokenRepoを生成する。
func NewPostgresTokenRepo(db *sql.DB) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

// Replace はユーザーの既存トークンを破棄し、新しいトークンを登録する。
// 削除と挿入は同一トランザクションで行われるため、同時ログインが競合しても
// 完了後に有効なトークンはちょうど1つになる。
func (r *PostgresTokenRepo) Replace(ctx context.Context, token *model.Token) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM tokens WHERE user_id = $1`,
		token.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete prior token: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tokens (token, user_id, created_at) VALUES ($1, $2, $3)`,
		token.Token, token.UserID, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// FindUser はトークンに対応する有効なユーザーを取得する。
// トークンが存在しない、またはユーザーが無効化済みの場合はnilを返す。
func (r *PostgresTokenRepo) FindUser(ctx context.Context, token string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.username, u.email, u.password_hash, u.role, u.is_active, u.created_at, u.updated_at
		 FROM tokens t
		 JOIN users u ON u.id = t.user_id
		 WHERE t.token = $1 AND u.is_active = TRUE`,
		token,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by token: %w", err)
	}
	return user, nil
}

// Delete は指定トークンを削除する。存在しない場合もエラーにしない（冪等）。
func (r *PostgresTokenRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tokens WHERE token = $1`,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーのトークンを削除する。
func (r *PostgresTokenRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tokens WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete tokens by user ID: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TokenRepository = (*PostgresTokenRepo)(nil)
