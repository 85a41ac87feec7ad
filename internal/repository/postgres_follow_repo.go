package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/agora/internal/model"
)

// PostgresFollowRepo はPostgreSQLを使用したフォローリポジトリ。
type PostgresFollowRepo struct {
	db *sql.DB
}

// NewPostgresFollowRepo はPostgresFollowRepoを生成する。
func NewPostgresFollowRepo(db *sql.DB) *PostgresFollowRepo {
	return &PostgresFollowRepo{db: db}
}

// Put はフォロー関係を冪等に登録する。
func (r *PostgresFollowRepo) Put(ctx context.Context, follow *model.Follow) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO follows (follower_id, followee_id, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (follower_id, followee_id) DO NOTHING`,
		follow.FollowerID, follow.FolloweeID, follow.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert follow: %w", err)
	}
	return nil
}

// Delete はフォロー関係を削除する。存在しない場合もエラーにしない（冪等）。
func (r *PostgresFollowRepo) Delete(ctx context.Context, followerID, followeeID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`,
		followerID, followeeID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete follow: %w", err)
	}
	return nil
}

// ListFollowing はユーザーがフォローしている有効なユーザー一覧をフォロー日時降順で返す。
func (r *PostgresFollowRepo) ListFollowing(ctx context.Context, followerID string, limit int) ([]*model.User, error) {
	users, err := r.listUsers(ctx,
		`SELECT u.id, u.username, u.email, u.password_hash, u.role, u.is_active, u.created_at, u.updated_at
		 FROM follows f
		 JOIN users u ON u.id = f.followee_id
		 WHERE f.follower_id = $1 AND u.is_active = TRUE
		 ORDER BY f.created_at DESC LIMIT $2`,
		followerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list following: %w", err)
	}
	return users, nil
}

// ListFollowers はユーザーをフォローしている有効なユーザー一覧をフォロー日時降順で返す。
func (r *PostgresFollowRepo) ListFollowers(ctx context.Context, followeeID string, limit int) ([]*model.User, error) {
	users, err := r.listUsers(ctx,
		`SELECT u.id, u.username, u.email, u.password_hash, u.role, u.is_active, u.created_at, u.updated_at
		 FROM follows f
		 JOIN users u ON u.id = f.follower_id
		 WHERE f.followee_id = $1 AND u.is_active = TRUE
		 ORDER BY f.created_at DESC LIMIT $2`,
		followeeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list followers: %w", err)
	}
	return users, nil
}

// listUsers はフォロー結合クエリの結果をユーザー一覧に読み取る。
func (r *PostgresFollowRepo) listUsers(ctx context.Context, query string, args ...any) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		if err := rows.Scan(
			&user.ID, &user.Username, &user.Email, &user.PasswordHash,
			&user.Role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// compile-time interface check
var _ FollowRepository = (*PostgresFollowRepo)(nil)
