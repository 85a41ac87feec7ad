package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/agora/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

const postColumns = `id, owner_id, COALESCE(group_id, ''), title, body,
	COALESCE(link_url, ''), COALESCE(link_title, ''), is_public,
	preview_fetched_at, created_at, updated_at`

// scanPost は現在の行をmodel.Postに読み取る。
func scanPost(scan func(dest ...any) error) (*model.Post, error) {
	post := &model.Post{}
	err := scan(
		&post.ID, &post.OwnerID, &post.GroupID, &post.Title, &post.Body,
		&post.LinkURL, &post.LinkTitle, &post.IsPublic,
		&post.PreviewFetchedAt, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return post, nil
}

// nullableString は空文字列をNULLに変換する。
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Create は投稿を作成する。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (id, owner_id, group_id, title, body, link_url, is_public, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		post.ID, post.OwnerID, nullableString(post.GroupID), post.Title, post.Body,
		nullableString(post.LinkURL), post.IsPublic, post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`,
		id,
	)
	post, err := scanPost(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post by ID: %w", err)
	}
	return post, nil
}

// ListPublic は公開投稿の一覧をcreated_at降順で取得する。
// groupIDが空でない場合はそのグループの投稿に限定する。
// cursorがゼロ値の場合は先頭から取得する（カーソルベースページネーション）。
func (r *PostgresPostRepo) ListPublic(ctx context.Context, groupID string, cursor time.Time, limit int) ([]*model.Post, error) {
	if cursor.IsZero() {
		cursor = time.Now().Add(time.Hour)
	}

	var rows *sql.Rows
	var err error
	if groupID != "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+postColumns+` FROM posts
			 WHERE is_public = TRUE AND created_at < $1 AND group_id = $2
			 ORDER BY created_at DESC LIMIT $3`,
			cursor, groupID, limit,
		)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+postColumns+` FROM posts
			 WHERE is_public = TRUE AND created_at < $1
			 ORDER BY created_at DESC LIMIT $2`,
			cursor, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list public posts: %w", err)
	}
	defer rows.Close()

	var posts []*model.Post
	for rows.Next() {
		post, err := scanPost(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}

// Update は投稿の可変フィールドを更新する。owner_idは更新対象に含めない。
func (r *PostgresPostRepo) Update(ctx context.Context, post *model.Post) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts SET title = $1, body = $2, link_url = $3, is_public = $4, updated_at = $5
		 WHERE id = $6`,
		post.Title, post.Body, nullableString(post.LinkURL), post.IsPublic, post.UpdatedAt, post.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("post not found: %s", post.ID)
	}
	return nil
}

// Delete は指定IDの投稿と、投稿を対象とする許可を同一トランザクションで削除する。
// コメントとブックマークは外部キーでCASCADE削除されるが、grantsは連動しない。
func (r *PostgresPostRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM grants WHERE resource_type = 'post' AND resource_id = $1`,
		id,
	); err != nil {
		return fmt.Errorf("failed to delete post grants: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM posts WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("post not found: %s", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListNeedingPreview はリンクタイトル未取得のリンク投稿を古い順に取得する。
func (r *PostgresPostRepo) ListNeedingPreview(ctx context.Context, limit int) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts
		 WHERE link_url IS NOT NULL AND preview_fetched_at IS NULL
		 ORDER BY created_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts needing preview: %w", err)
	}
	defer rows.Close()

	var posts []*model.Post
	for rows.Next() {
		post, err := scanPost(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	return posts, nil
}

// UpdatePreview は投稿のリンクタイトルと取得日時を更新する。
func (r *PostgresPostRepo) UpdatePreview(ctx context.Context, postID, linkTitle string, fetchedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE posts SET link_title = $1, preview_fetched_at = $2 WHERE id = $3`,
		nullableString(linkTitle), fetchedAt, postID,
	)
	if err != nil {
		return fmt.Errorf("failed to update post preview: %w", err)
	}
	return nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
