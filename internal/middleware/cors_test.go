package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

const catalogUI = "https://catalog.booknest.example"

func corsRequest(cfg CORSConfig, method, origin string) *httptest.ResponseRecorder {
	reached := false
	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(method, "/api/v1/books/available", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if reached {
		rec.Header().Set("X-Test-Reached", "1")
	}
	return rec
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		method      string
		origin      string
		wantStatus  int
		wantAllow   string
		wantReached bool
	}{
		{"same-origin request untouched", []string{catalogUI}, http.MethodGet, "", http.StatusOK, "", true},
		{"nothing configured denies browsers", nil, http.MethodGet, catalogUI, http.StatusOK, "", true},
		{"allowed origin echoed", []string{catalogUI}, http.MethodGet, catalogUI, http.StatusOK, catalogUI, true},
		{"origin match ignores case", []string{"HTTPS://CATALOG.BOOKNEST.EXAMPLE"}, http.MethodGet, catalogUI, http.StatusOK, catalogUI, true},
		{"preflight answered without handler", []string{catalogUI}, http.MethodOptions, catalogUI, http.StatusNoContent, catalogUI, false},
		{"foreign preflight rejected", []string{catalogUI}, http.MethodOptions, "https://evil.example", http.StatusForbidden, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCORSConfig()
			cfg.AllowedOrigins = tt.allowed

			rec := corsRequest(cfg, tt.method, tt.origin)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if reached := rec.Header().Get("X-Test-Reached") == "1"; reached != tt.wantReached {
				t.Errorf("handler reached = %v, want %v", reached, tt.wantReached)
			}
		})
	}
}

func TestCORS_PreflightAdvertisesAPI(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = []string{catalogUI}

	rec := corsRequest(cfg, http.MethodOptions, catalogUI)
	h := rec.Header()

	if got := h.Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT, DELETE, OPTIONS" {
		t.Errorf("Allow-Methods = %q", got)
	}
	if got := h.Get("Access-Control-Allow-Headers"); got == "" {
		t.Error("Allow-Headers missing")
	}
	if got := h.Get("Access-Control-Max-Age"); got != "86400" {
		t.Errorf("Max-Age = %q, want 86400", got)
	}
	if got := h.Get("Access-Control-Expose-Headers"); got == "" {
		t.Error("rate limit headers not exposed")
	}
	if got := h.Get("Vary"); got != "Origin" {
		t.Errorf("Vary = %q, want Origin", got)
	}
}

func TestOriginMatcher_Wildcard(t *testing.T) {
	match := newOriginMatcher([]string{"*.booknest.example"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://app.booknest.example", true},
		{"https://a.b.booknest.example", true},
		{"https://notbooknest.example", false},
		{"https://booknest.example", false},
		{"https://evil.com", false},
	}

	for _, tt := range tests {
		if got := match(tt.origin); got != tt.want {
			t.Errorf("match(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
