package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("u1") || !rl.Allow("u1") {
		t.Fatal("expected the burst to be allowed")
	}
	if rl.Allow("u1") {
		t.Error("expected the third request to be limited")
	}
	if !rl.Allow("u2") {
		t.Error("expected other keys to have their own bucket")
	}

	now = now.Add(time.Second)
	if !rl.Allow("u1") {
		t.Error("expected a token to be refilled after one second")
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("u1")
	now = now.Add(visitorIdleTTL + time.Second)
	rl.Allow("u2")
	rl.evictIdle()

	if _, ok := rl.visitors["u1"]; ok {
		t.Error("expected idle visitor to be evicted")
	}
	if _, ok := rl.visitors["u2"]; !ok {
		t.Error("expected active visitor to be kept")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(NewRateLimiter(0.001, 1).Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))

	if first.Code != http.StatusNoContent {
		t.Errorf("expected first request through, got %d", first.Code)
	}
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", second.Code)
	}
}

func TestSessionContextKey(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"header", "tab-7", "", "u1:tab-7"},
		{"query fallback", "", "tab-9", "u1:tab-9"},
		{"default", "", "", "u1:default"},
		{"oversized", strings.Repeat("x", maxClientIDLen+1), "", "u1:default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?client_id="+tt.query, nil)
			if tt.header != "" {
				req.Header.Set(ClientIDHeader, tt.header)
			}
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = req

			if got := SessionContextKey(c, "u1"); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.Use(NoStore())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(w.Header().Get("Cache-Control"), "no-store") {
		t.Errorf("expected no-store, got %q", w.Header().Get("Cache-Control"))
	}
}

func brotliRouter(body string) *gin.Engine {
	r := gin.New()
	r.Use(Brotli())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, body) })
	return r
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	body := strings.Repeat("question text ", 200)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip, br;q=0.9")
	w := httptest.NewRecorder()
	brotliRouter(body).ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "br" {
		t.Fatalf("expected br encoding, got %q", w.Header().Get("Content-Encoding"))
	}
	plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(w.Body.Bytes())))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(plain) != body {
		t.Error("decompressed body does not match")
	}
}

func TestBrotliSkipsSmallBodies(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "br")
	w := httptest.NewRecorder()
	brotliRouter("ok").ServeHTTP(w, req)

	if w.Header().Get("Content-Encoding") != "" {
		t.Errorf("expected no encoding, got %q", w.Header().Get("Content-Encoding"))
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected plain body, got %q", w.Body.String())
	}
}

func TestBrotliRequiresAcceptEncoding(t *testing.T) {
	w := httptest.NewRecorder()
	brotliRouter(strings.Repeat("a", 4096)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Header().Get("Content-Encoding") != "" {
		t.Errorf("expected no encoding, got %q", w.Header().Get("Content-Encoding"))
	}
}
