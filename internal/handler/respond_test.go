package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/agora/internal/model"
)

// TestMapAPIErrorToHTTPStatus はエラーコードとHTTPステータスの対応を検証する。
func TestMapAPIErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeConflict, http.StatusConflict},
		{model.ErrCodeInvalidCredentials, http.StatusUnauthorized},
		{model.ErrCodeUnauthenticated, http.StatusUnauthorized},
		{model.ErrCodeForbidden, http.StatusForbidden},
		{model.ErrCodeNotFound, http.StatusNotFound},
		{model.ErrCodeInvalidRequest, http.StatusBadRequest},
		{model.ErrCodeUnavailable, http.StatusServiceUnavailable},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		got := mapAPIErrorToHTTPStatus(&model.APIError{Code: tt.code})
		if got != tt.want {
			t.Errorf("mapAPIErrorToHTTPStatus(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

// TestHandleServiceError はサービス層エラーのレスポンス変換を検証する。
func TestHandleServiceError(t *testing.T) {
	t.Run("APIErrorは統一フォーマットで返す", func(t *testing.T) {
		w := httptest.NewRecorder()

		handleServiceError(w, model.NewForbiddenError())

		resp := w.Result()
		if resp.StatusCode != http.StatusForbidden {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusForbidden)
		}

		var body apiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body.Code != model.ErrCodeForbidden {
			t.Errorf("code = %q, want %q", body.Code, model.ErrCodeForbidden)
		}
		if body.Category != "permission" {
			t.Errorf("category = %q, want permission", body.Category)
		}
		if body.Action == "" {
			t.Error("action should be present")
		}
	})

	t.Run("想定外のエラーは500", func(t *testing.T) {
		w := httptest.NewRecorder()

		handleServiceError(w, errors.New("unexpected"))

		resp := w.Result()
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
		}

		var body apiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		// 内部エラーの詳細はレスポンスに含めない
		if body.Code != "INTERNAL_ERROR" {
			t.Errorf("code = %q, want INTERNAL_ERROR", body.Code)
		}
	})
}
