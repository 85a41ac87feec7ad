package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/agora/internal/model"
	"github.com/hitoshi/agora/internal/report"
)

// ReportServiceInterface は通報ハンドラーが必要とするサービスインターフェース。
type ReportServiceInterface interface {
	File(ctx context.Context, input report.FileInput) (*model.Report, error)
	ListOpen(ctx context.Context) ([]*model.Report, error)
	Resolve(ctx context.Context, id string) error
}

// ReportHandler はコンテンツ通報のHTTPハンドラー。
type ReportHandler struct {
	service ReportServiceInterface
}

// NewReportHandler はReportHandlerを生成する。
func NewReportHandler(service ReportServiceInterface) *ReportHandler {
	return &ReportHandler{service: service}
}

// fileReportRequest は通報作成リクエストのボディ。
type fileReportRequest struct {
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Reason       string `json:"reason"`
}

// reportResponse は通報のAPIレスポンス。
type reportResponse struct {
	ID           string `json:"id"`
	ReporterID   string `json:"reporter_id"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Reason       string `json:"reason"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
}

func toReportResponse(r *model.Report) reportResponse {
	return reportResponse{
		ID:           r.ID,
		ReporterID:   r.ReporterID,
		ResourceType: string(r.ResourceType),
		ResourceID:   r.ResourceID,
		Reason:       r.Reason,
		Status:       string(r.Status),
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
	}
}

// FileReport は投稿・コメントに対する通報を作成する。
// POST /api/reports
func (h *ReportHandler) FileReport(w http.ResponseWriter, r *http.Request) {
	var req fileReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidBodyResponse(w)
		return
	}

	created, err := h.service.File(r.Context(), report.FileInput{
		ResourceType: model.ResourceType(req.ResourceType),
		ResourceID:   req.ResourceID,
		Reason:       req.Reason,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toReportResponse(created))
}

// ListOpenReports は未対応の通報一覧を取得する。管理者専用。
// GET /api/reports
func (h *ReportHandler) ListOpenReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.service.ListOpen(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]reportResponse, 0, len(reports))
	for _, rep := range reports {
		out = append(out, toReportResponse(rep))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reports": out,
	})
}

// ResolveReport は通報を対応済みにする。管理者専用。
// POST /api/reports/{id}/resolve
func (h *ReportHandler) ResolveReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.Resolve(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
