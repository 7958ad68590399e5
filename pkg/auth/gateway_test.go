package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func testGateway(cfg SecConfig) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Role", r.Header.Get("X-Role-Name"))
		w.WriteHeader(http.StatusOK)
	})
	return AuthenticateRequestMiddleware(cfg)(inner)
}

func keys(ks ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(ks))
	for _, k := range ks {
		m[k] = struct{}{}
	}
	return m
}

func TestHealthProbesBypassAuth(t *testing.T) {
	h := testGateway(SecConfig{BackendKeys: keys("bk")})
	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestMissingKeyRejected(t *testing.T) {
	h := testGateway(SecConfig{BackendKeys: keys("bk")})
	req := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBearerAndHeaderKeys(t *testing.T) {
	h := testGateway(SecConfig{BackendKeys: keys("bk"), FrontendKeys: keys("fk")})

	req := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	req.Header.Set("Authorization", "Bearer bk")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer: expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Seen-Role"); got != "backend" {
		t.Fatalf("bearer role: %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/threads/t1/messages", nil)
	req.Header.Set("X-API-Key", "fk")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("header key: expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Seen-Role"); got != "frontend" {
		t.Fatalf("header role: %q", got)
	}
}

func TestUnknownKeyRejected(t *testing.T) {
	h := testGateway(SecConfig{BackendKeys: keys("bk")})
	req := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAdminSurfaceNeedsAdminKey(t *testing.T) {
	h := testGateway(SecConfig{BackendKeys: keys("bk"), AdminKeys: keys("ak")})

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/reset", nil)
	req.Header.Set("X-API-Key", "bk")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("backend on admin: expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/admin/reset", nil)
	req.Header.Set("X-API-Key", "ak")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin on admin: expected 200, got %d", rec.Code)
	}
}

func TestFrontendScopedToThreads(t *testing.T) {
	h := testGateway(SecConfig{FrontendKeys: keys("fk")})

	req := httptest.NewRequest(http.MethodGet, "/v1/threads/t1/messages", nil)
	req.Header.Set("X-API-Key", "fk")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("threads: expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/export", nil)
	req.Header.Set("X-API-Key", "fk")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("export: expected 403, got %d", rec.Code)
	}
}

func TestIPWhitelist(t *testing.T) {
	h := testGateway(SecConfig{BackendKeys: keys("bk"), IPWhitelist: []string{"10.0.0.1"}})

	req := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	req.Header.Set("X-API-Key", "bk")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("blocked ip: expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-API-Key", "bk")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("allowed ip: expected 200, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := testGateway(SecConfig{AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/v1/threads", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("allow-origin: %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/v1/threads", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin for unknown origin: %q", got)
	}
}

func TestRateLimitKicksIn(t *testing.T) {
	h := testGateway(SecConfig{BackendKeys: keys("bk"), RPS: 1, Burst: 2})

	var limited bool
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/threads", nil)
		req.Header.Set("X-API-Key", "bk")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatalf("expected a 429 within the burst window")
	}
}
