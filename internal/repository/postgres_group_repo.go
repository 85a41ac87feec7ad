package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/agora/internal/model"
)

// PostgresGroupRepo はPostgreSQLを使用したグループリポジトリ。
type PostgresGroupRepo struct {
	db *sql.DB
}

// NewPostgresGroupRepo はPostgresGroupRepoを生成する。
func NewPostgresGroupRepo(db *sql.DB) *PostgresGroupRepo {
	return &PostgresGroupRepo{db: db}
}

// Create はグループを作成する。nameの一意制約違反はそのまま返す。
func (r *PostgresGroupRepo) Create(ctx context.Context, group *model.Group) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO groups (id, name, description, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		group.ID, group.Name, group.Description, group.OwnerID,
		group.CreatedAt, group.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

// FindByID は指定IDのグループを取得する。見つからない場合はnilを返す。
func (r *PostgresGroupRepo) FindByID(ctx context.Context, id string) (*model.Group, error) {
	group := &model.Group{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, owner_id, created_at, updated_at FROM groups WHERE id = $1`,
		id,
	).Scan(&group.ID, &group.Name, &group.Description, &group.OwnerID,
		&group.CreatedAt, &group.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find group by ID: %w", err)
	}

	return group, nil
}

// List はグループ一覧をname昇順で取得する。
func (r *PostgresGroupRepo) List(ctx context.Context, limit int) ([]*model.Group, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, owner_id, created_at, updated_at FROM groups
		 ORDER BY name ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var groups []*model.Group
	for rows.Next() {
		group := &model.Group{}
		err := rows.Scan(&group.ID, &group.Name, &group.Description, &group.OwnerID,
			&group.CreatedAt, &group.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, group)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	return groups, nil
}

// Update はグループの可変フィールドを更新する。owner_idは更新対象に含めない。
func (r *PostgresGroupRepo) Update(ctx context.Context, group *model.Group) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE groups SET name = $1, description = $2, updated_at = $3 WHERE id = $4`,
		group.Name, group.Description, group.UpdatedAt, group.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("group not found: %s", group.ID)
	}
	return nil
}

// Delete は指定IDのグループと、グループを対象とする許可を同一トランザクションで
// 削除する。grantsはresource_idに外部キーを持たないため、ここで連動破棄する。
func (r *PostgresGroupRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM grants WHERE resource_type = 'group' AND resource_id = $1`,
		id,
	); err != nil {
		return fmt.Errorf("failed to delete group grants: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM groups WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("group not found: %s", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var _ GroupRepository = (*PostgresGroupRepo)(nil)
