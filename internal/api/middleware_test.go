package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func corsHandler(t *testing.T, origins []string) http.Handler {
	t.Helper()
	mw := NewMiddleware(testLogger(t))
	return mw.CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCORSAllowedOrigin(t *testing.T) {
	handler := corsHandler(t, []string{"http://localhost:3000"})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Expected origin echoed back, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("Unexpected allowed methods: %q", got)
	}
}

func TestCORSDisallowedOrigin(t *testing.T) {
	handler := corsHandler(t, []string{"http://localhost:3000"})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no CORS headers for a disallowed origin, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := corsHandler(t, []string{"*"})

	req := httptest.NewRequest("OPTIONS", "/api/v1/sessions/start", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 on preflight, got %d", rec.Code)
	}
}
