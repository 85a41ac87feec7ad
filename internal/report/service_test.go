package report

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/agora/internal/gateway"
	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/policy"
)

// --- モック ---

type mockReportRepo struct {
	created    []*model.Report
	resolved   []string
	findByIDFn func(ctx context.Context, id string) (*model.Report, error)
	listOpenFn func(ctx context.Context, limit int) ([]*model.Report, error)
}

func (m *mockReportRepo) Create(ctx context.Context, report *model.Report) error {
	m.created = append(m.created, report)
	return nil
}
func (m *mockReportRepo) FindByID(ctx context.Context, id string) (*model.Report, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockReportRepo) ListOpen(ctx context.Context, limit int) ([]*model.Report, error) {
	if m.listOpenFn != nil {
		return m.listOpenFn(ctx, limit)
	}
	return nil, nil
}
func (m *mockReportRepo) Resolve(ctx context.Context, id, resolvedBy string, resolvedAt time.Time) error {
	m.resolved = append(m.resolved, id+":"+resolvedBy)
	return nil
}

type mockPostRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Post, error)
}

func (m *mockPostRepo) Create(ctx context.Context, post *model.Post) error { return nil }
func (m *mockPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockPostRepo) ListPublic(ctx context.Context, groupID string, cursor time.Time, limit int) ([]*model.Post, error) {
	return nil, nil
}
func (m *mockPostRepo) Update(ctx context.Context, post *model.Post) error { return nil }
func (m *mockPostRepo) Delete(ctx context.Context, id string) error        { return nil }
func (m *mockPostRepo) ListNeedingPreview(ctx context.Context, limit int) ([]*model.Post, error) {
	return nil, nil
}
func (m *mockPostRepo) UpdatePreview(ctx context.Context, postID, linkTitle string, fetchedAt time.Time) error {
	return nil
}

type mockCommentRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Comment, error)
}

func (m *mockCommentRepo) Create(ctx context.Context, comment *model.Comment) error { return nil }
func (m *mockCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockCommentRepo) ListByPost(ctx context.Context, postID string, limit int) ([]*model.Comment, error) {
	return nil, nil
}
func (m *mockCommentRepo) Update(ctx context.Context, comment *model.Comment) error { return nil }
func (m *mockCommentRepo) Delete(ctx context.Context, id string) error              { return nil }

type mockGrantFinder struct{}

func (mockGrantFinder) Exists(ctx context.Context, userID string, resourceType model.ResourceType, resourceID, action string) (bool, error) {
	return false, nil
}

func newTestService(reports *mockReportRepo, posts *mockPostRepo, comments *mockCommentRepo) *Service {
	guard := gateway.NewGuard(policy.NewEngine(mockGrantFinder{}), nil)
	return NewService(reports, posts, comments, guard)
}

func authedCtx(userID string) context.Context {
	return policy.ContextWithIdentity(context.Background(),
		policy.Identity{UserID: userID, Role: model.RoleUser})
}

func adminCtx() context.Context {
	return policy.ContextWithIdentity(context.Background(),
		policy.Identity{UserID: "admin-1", Role: model.RoleAdmin})
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("Code = %q, want %q", apiErr.Code, code)
	}
}

func postRepoWith(post *model.Post) *mockPostRepo {
	return &mockPostRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Post, error) {
			if post != nil && post.ID == id {
				return post, nil
			}
			return nil, nil
		},
	}
}

// --- テスト ---

// TestService_File は通報の作成を検証する。
func TestService_File(t *testing.T) {
	reports := &mockReportRepo{}
	posts := postRepoWith(&model.Post{ID: "post-1", IsPublic: true})
	service := newTestService(reports, posts, &mockCommentRepo{})

	report, err := service.File(authedCtx("user-1"), FileInput{
		ResourceType: model.ResourceTypePost,
		ResourceID:   "post-1",
		Reason:       "スパム",
	})
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	if report.ReporterID != "user-1" {
		t.Errorf("ReporterID = %q, want user-1", report.ReporterID)
	}
	if report.Status != model.ReportStatusOpen {
		t.Errorf("Status = %q, want open", report.Status)
	}
	if len(reports.created) != 1 {
		t.Errorf("created = %d, want 1", len(reports.created))
	}

	// 匿名は通報できない
	_, err = service.File(context.Background(), FileInput{
		ResourceType: model.ResourceTypePost, ResourceID: "post-1", Reason: "スパム",
	})
	wantCode(t, err, model.ErrCodeUnauthenticated)
}

// TestService_File_Validation は通報入力の検証を検証する。
func TestService_File_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input FileInput
	}{
		{"対象種別が不正", FileInput{ResourceType: model.ResourceTypeGroup, ResourceID: "g-1", Reason: "r"}},
		{"対象IDが空", FileInput{ResourceType: model.ResourceTypePost, Reason: "r"}},
		{"理由が空", FileInput{ResourceType: model.ResourceTypePost, ResourceID: "post-1"}},
		{"理由が長すぎる", FileInput{ResourceType: model.ResourceTypePost, ResourceID: "post-1", Reason: strings.Repeat("あ", 1001)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := newTestService(&mockReportRepo{}, &mockPostRepo{}, &mockCommentRepo{})
			_, err := service.File(authedCtx("user-1"), tt.input)
			wantCode(t, err, model.ErrCodeInvalidRequest)
		})
	}
}

// TestService_File_UnknownTarget は存在しない対象への通報が
// NOT_FOUNDになることを検証する。
func TestService_File_UnknownTarget(t *testing.T) {
	service := newTestService(&mockReportRepo{}, &mockPostRepo{}, &mockCommentRepo{})

	_, err := service.File(authedCtx("user-1"), FileInput{
		ResourceType: model.ResourceTypePost, ResourceID: "missing", Reason: "r",
	})
	wantCode(t, err, model.ErrCodeNotFound)

	_, err = service.File(authedCtx("user-1"), FileInput{
		ResourceType: model.ResourceTypeComment, ResourceID: "missing", Reason: "r",
	})
	wantCode(t, err, model.ErrCodeNotFound)
}

// TestService_ListOpen は未対応通報一覧が管理者のみに許可されることを検証する。
func TestService_ListOpen(t *testing.T) {
	reports := &mockReportRepo{
		listOpenFn: func(ctx context.Context, limit int) ([]*model.Report, error) {
			return []*model.Report{{ID: "report-1", Status: model.ReportStatusOpen}}, nil
		},
	}
	service := newTestService(reports, &mockPostRepo{}, &mockCommentRepo{})

	got, err := service.ListOpen(adminCtx())
	if err != nil {
		t.Fatalf("ListOpen failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "report-1" {
		t.Errorf("reports = %+v, want single report-1", got)
	}

	// 一般ユーザーは閲覧できない
	_, err = service.ListOpen(authedCtx("user-1"))
	wantCode(t, err, model.ErrCodeForbidden)

	_, err = service.ListOpen(context.Background())
	wantCode(t, err, model.ErrCodeUnauthenticated)
}

// TestService_Resolve は通報の対応が管理者のみに許可されることを検証する。
func TestService_Resolve(t *testing.T) {
	existing := &model.Report{ID: "report-1", Status: model.ReportStatusOpen}
	reports := &mockReportRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Report, error) {
			if id == "report-1" {
				return existing, nil
			}
			return nil, nil
		},
	}
	service := newTestService(reports, &mockPostRepo{}, &mockCommentRepo{})

	if err := service.Resolve(adminCtx(), "report-1"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(reports.resolved) != 1 || reports.resolved[0] != "report-1:admin-1" {
		t.Errorf("resolved = %v, want [report-1:admin-1]", reports.resolved)
	}

	// 存在しない通報はNOT_FOUND
	err := service.Resolve(adminCtx(), "missing")
	wantCode(t, err, model.ErrCodeNotFound)

	// 一般ユーザーは対応できない
	err = service.Resolve(authedCtx("user-1"), "report-1")
	wantCode(t, err, model.ErrCodeForbidden)
}
