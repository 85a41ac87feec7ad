package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// TestCSRFMiddleware_SafeMethod は安全なメソッドが検証なしで通過し、
// トークンCookieが設定されることを検証する。
func TestCSRFMiddleware_SafeMethod(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})
	handler := mw(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var csrfCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "csrf_token" {
			csrfCookie = c
		}
	}
	if csrfCookie == nil {
		t.Fatal("expected csrf_token cookie to be set")
	}
	// フロントエンドからJavaScriptで読めること
	if csrfCookie.HttpOnly {
		t.Error("csrf_token cookie should not be HttpOnly")
	}
}

// TestCSRFMiddleware_MutatingMethod は状態変更メソッドのトークン検証を検証する。
func TestCSRFMiddleware_MutatingMethod(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})
	handler := mw(okHandler())

	tests := []struct {
		name       string
		cookie     string
		header     string
		wantStatus int
	}{
		{"一致するトークン", "csrf-1", "csrf-1", http.StatusOK},
		{"Cookieなし", "", "csrf-1", http.StatusForbidden},
		{"ヘッダーなし", "csrf-1", "", http.StatusForbidden},
		{"不一致", "csrf-1", "csrf-2", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/posts", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "csrf_token", Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("X-CSRF-Token", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
		})
	}
}

// TestCSRFMiddleware_BearerSkips はBearer認証のリクエストが検証対象外で
// あることを検証する。
func TestCSRFMiddleware_BearerSkips(t *testing.T) {
	mw := NewCSRFMiddleware(CSRFConfig{})
	handler := mw(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/posts", nil)
	req.Header.Set("Authorization", "Bearer token-abc")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestCSRFTokenHandler はトークン取得エンドポイントを検証する。
func TestCSRFTokenHandler(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{})

	t.Run("新規トークンを生成してCookieに設定", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		resp := w.Result()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body.Token == "" {
			t.Fatal("token should be present")
		}

		found := false
		for _, c := range resp.Cookies() {
			if c.Name == "csrf_token" && c.Value == body.Token {
				found = true
			}
		}
		if !found {
			t.Error("cookie should carry the same token as the response body")
		}
	})

	t.Run("既存のトークンを再利用", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "existing-token"})
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if body.Token != "existing-token" {
			t.Errorf("token = %q, want existing-token", body.Token)
		}
	})
}
