package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestOriginPolicy(t *testing.T) {
	policy := newOriginPolicy([]string{"https://focus.example.com/", "http://localhost:*", " "})

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://focus.example.com", true},
		{"http://localhost:5173", true},
		{"http://localhost:3000", true},
		{"http://localhost", false},
		{"https://localhost:5173", false},
		{"http://127.0.0.1:5173", false},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		if got := policy.allows(tt.origin); got != tt.want {
			t.Errorf("allows(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}

	if !newOriginPolicy([]string{"*"}).allows("https://anything.test") {
		t.Fatal("wildcard should allow every origin")
	}
}

func TestCORSLeavesUnknownOriginsBare(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(CORS([]string{"http://localhost:*"}))
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin header, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "http://localhost:4000")
	recorder = httptest.NewRecorder()
	engine.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", recorder.Code)
	}
	if got := recorder.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:4000" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}
