package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/agora/internal/model"
)

// PostgresGrantRepo はPostgreSQLを使用したオブジェクトレベル許可リポジトリ。
type PostgresGrantRepo struct {
	db *sql.DB
}

// NewPostgresGrantRepo はPostgresGrantRepoを生成する。
func NewPostgresGrantRepo(db *sql.DB) *PostgresGrantRepo {
	return &PostgresGrantRepo{db: db}
}

// Put は許可を冪等に登録する。既に存在する場合は何もしない。
func (r *PostgresGrantRepo) Put(ctx context.Context, grant *model.Grant) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO grants (user_id, resource_type, resource_id, action, granted_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, resource_type, resource_id, action) DO NOTHING`,
		grant.UserID, grant.ResourceType, grant.ResourceID, grant.Action,
		grant.GrantedBy, grant.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert grant: %w", err)
	}
	return nil
}

// Exists は(userID, resourceType, resourceID, action)の許可が存在するかを返す。
func (r *PostgresGrantRepo) Exists(ctx context.Context, userID string, resourceType model.ResourceType, resourceID, action string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM grants
			WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3 AND action = $4
		)`,
		userID, resourceType, resourceID, action,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check grant existence: %w", err)
	}
	return exists, nil
}

// DeleteByUserAndResource は指定ユーザー・リソースの全許可を削除する。
// 存在しない場合もエラーにしない（冪等）。
func (r *PostgresGrantRepo) DeleteByUserAndResource(ctx context.Context, userID string, resourceType model.ResourceType, resourceID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM grants WHERE user_id = $1 AND resource_type = $2 AND resource_id = $3`,
		userID, resourceType, resourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete grants: %w", err)
	}
	return nil
}

// compile-time interface check
var _ GrantRepository = (*PostgresGrantRepo)(nil)
