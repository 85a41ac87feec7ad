package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/agora/internal/model"
)

// PostgresReportRepo はPostgreSQLを使用した通報リポジトリ。
type PostgresReportRepo struct {
	db *sql.DB
}

// NewPostgresReportRepo はPostgresReportRepoを生成する。
func NewPostgresReportRepo(db *sql.DB) *PostgresReportRepo {
	return &PostgresReportRepo{db: db}
}

const reportColumns = `id, reporter_id, resource_type, resource_id, reason, status, created_at, resolved_at, COALESCE(resolved_by::text, '')`

// scanReport は1行をmodel.Reportに読み取る。
func scanReport(scan func(dest ...any) error) (*model.Report, error) {
	report := &model.Report{}
	err := scan(
		&report.ID, &report.ReporterID, &report.ResourceType, &report.ResourceID,
		&report.Reason, &report.Status, &report.CreatedAt,
		&report.ResolvedAt, &report.ResolvedBy,
	)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// Create は通報を作成する。
func (r *PostgresReportRepo) Create(ctx context.Context, report *model.Report) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reports (id, reporter_id, resource_type, resource_id, reason, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		report.ID, report.ReporterID, report.ResourceType, report.ResourceID,
		report.Reason, report.Status, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// FindByID は指定IDの通報を取得する。見つからない場合はnilを返す。
func (r *PostgresReportRepo) FindByID(ctx context.Context, id string) (*model.Report, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`,
		id,
	)
	report, err := scanReport(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find report: %w", err)
	}
	return report, nil
}

// ListOpen は未対応の通報一覧をcreated_at昇順で返す。
func (r *PostgresReportRepo) ListOpen(ctx context.Context, limit int) ([]*model.Report, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports
		 WHERE status = 'open'
		 ORDER BY created_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list open reports: %w", err)
	}
	defer rows.Close()

	var reports []*model.Report
	for rows.Next() {
		report, err := scanReport(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}

	return reports, nil
}

// Resolve は通報を対応済みにする。既に対応済みの場合は何もしない（冪等）。
func (r *PostgresReportRepo) Resolve(ctx context.Context, id, resolvedBy string, resolvedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE reports SET status = 'resolved', resolved_by = $1, resolved_at = $2
		 WHERE id = $3 AND status = 'open'`,
		resolvedBy, resolvedAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve report: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ReportRepository = (*PostgresReportRepo)(nil)
