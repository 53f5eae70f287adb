package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })
	return &buf
}

func newLoggedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Logger(), Recovery())
	return r
}

func TestRequestID_PropagatesOrGenerates(t *testing.T) {
	r := newLoggedRouter()
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "rid-1")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "rid-1" {
		t.Fatalf("request id = %q", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if got := w.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Fatalf("generated id = %q", got)
	}
}

func TestLogger_LevelsAndContextLogger(t *testing.T) {
	buf := captureLogs(t)
	r := newLoggedRouter()
	r.GET("/ok", func(c *gin.Context) {
		zerolog.Ctx(c.Request.Context()).Info().Msg("from engine")
		c.Status(http.StatusOK)
	})
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/ok?access_token=abc&page=2", nil)
	req.Header.Set(RequestIDHeader, "rid-ctx")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("want 3 log lines, got %d:\n%s", len(lines), buf.String())
	}
	var engine, access, warn map[string]any
	for i, dst := range []*map[string]any{&engine, &access, &warn} {
		if err := json.Unmarshal([]byte(lines[i]), dst); err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
	}
	if engine["request_id"] != "rid-ctx" || engine["message"] != "from engine" {
		t.Fatalf("context logger missing request id: %v", engine)
	}
	if access["level"] != "info" || access["path"] != "/ok" {
		t.Fatalf("access log = %v", access)
	}
	q, _ := access["query"].(string)
	if strings.Contains(q, "abc") || !strings.Contains(q, "access_token=%5BREDACTED%5D") || !strings.Contains(q, "page=2") {
		t.Fatalf("query not redacted: %q", q)
	}
	if warn["level"] != "warn" {
		t.Fatalf("4xx should log at warn: %v", warn)
	}
}

func TestRecovery_JSON500(t *testing.T) {
	buf := captureLogs(t)
	r := newLoggedRouter()
	r.GET("/panic", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(RequestIDHeader, "rid-p")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["request_id"] != "rid-p" || body["code"] != "internal_error" {
		t.Fatalf("body = %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}

func TestLoggerFrom_Fallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if LoggerFrom(c) == nil {
		t.Fatalf("fallback logger should not be nil")
	}
}

func TestRedactQuery(t *testing.T) {
	if got := redactQuery(""); got != "" {
		t.Fatalf("empty = %q", got)
	}
	if got := redactQuery("%zz"); got != "[unparseable]" {
		t.Fatalf("bad query = %q", got)
	}
	long := "q=" + strings.Repeat("a", 2*maxQueryLogLength)
	if got := redactQuery(long); !strings.HasSuffix(got, "…") {
		t.Fatalf("long query not truncated")
	}
}
