package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/agora/internal/model"
)

// PostgresBookmarkRepo はPostgreSQLを使用したブックマークリポジトリ。
type PostgresBookmarkRepo struct {
	db *sql.DB
}

// NewPostgresBookmarkRepo はPostgresBookmarkRepoを生成する。
func NewPostgresBookmarkRepo(db *sql.DB) *PostgresBookmarkRepo {
	return &PostgresBookmarkRepo{db: db}
}

// Put はブックマークを冪等に登録する。
func (r *PostgresBookmarkRepo) Put(ctx context.Context, bookmark *model.Bookmark) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bookmarks (user_id, post_id, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, post_id) DO NOTHING`,
		bookmark.UserID, bookmark.PostID, bookmark.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bookmark: %w", err)
	}
	return nil
}

// Delete はブックマークを削除する。存在しない場合もエラーにしない（冪等）。
func (r *PostgresBookmarkRepo) Delete(ctx context.Context, userID, postID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE user_id = $1 AND post_id = $2`,
		userID, postID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete bookmark: %w", err)
	}
	return nil
}

// ListPostsByUser はユーザーがブックマークした投稿一覧をブックマーク日時降順で返す。
func (r *PostgresBookmarkRepo) ListPostsByUser(ctx context.Context, userID string, limit int) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.owner_id, COALESCE(p.group_id, ''), p.title, p.body,
			COALESCE(p.link_url, ''), COALESCE(p.link_title, ''), p.is_public,
			p.preview_fetched_at, p.created_at, p.updated_at
		 FROM bookmarks b
		 JOIN posts p ON p.id = b.post_id
		 WHERE b.user_id = $1
		 ORDER BY b.created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarked posts: %w", err)
	}
	defer rows.Close()

	var posts []*model.Post
	for rows.Next() {
		post, err := scanPost(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bookmarked post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookmarked posts: %w", err)
	}

	return posts, nil
}

// compile-time interface check
var _ BookmarkRepository = (*PostgresBookmarkRepo)(nil)
