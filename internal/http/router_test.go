package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-engage-backend/internal/config"
	"github.com/tbourn/go-engage-backend/internal/domain"
	"github.com/tbourn/go-engage-backend/internal/repo"
	"github.com/tbourn/go-engage-backend/internal/services"
)

type stubEngine struct{ ticks int }

func (s *stubEngine) Tick(context.Context) (services.TickReport, error) {
	s.ticks++
	return services.TickReport{PostsDue: 1}, nil
}

func (s *stubEngine) BuildReplyContext(context.Context, string) (services.ReplyContext, error) {
	return services.ReplyContext{}, services.ErrCommentNotFound
}

func (s *stubEngine) RetryReply(context.Context, string) (*domain.Comment, error) {
	return nil, services.ErrReplyNotRetryable
}

func (s *stubEngine) HideComment(_ context.Context, id string) (*domain.Comment, error) {
	return &domain.Comment{ID: id, Hidden: true}, nil
}

type stubMonitoring struct{}

func (stubMonitoring) Enable(_ context.Context, id string, _ *int) (*domain.MonitoredPost, error) {
	return &domain.MonitoredPost{ID: id, MonitoringEnabled: true}, nil
}

func (stubMonitoring) Disable(_ context.Context, id string) (*domain.MonitoredPost, error) {
	return &domain.MonitoredPost{ID: id}, nil
}

func (stubMonitoring) SyncPosts(context.Context, string) (services.SyncReport, error) {
	return services.SyncReport{}, nil
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   100,
		OTEL:        config.OTELConfig{ServiceName: "engaged-test"},
	}
}

func newServer(t *testing.T, cfg config.Config) (*gin.Engine, *stubEngine) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testDB(t)
	eng := &stubEngine{}
	r := gin.New()
	RegisterRoutes(r, Deps{
		Engine:     eng,
		Monitoring: stubMonitoring{},
		Decider:    &services.DecisionService{DB: db},
		DB:         db,
	}, cfg)
	return r, eng
}

func serve(r http.Handler, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body.Code
}

func TestHealthAndCommonHeaders(t *testing.T) {
	r, _ := newServer(t, testConfig())

	w := serve(r, http.MethodGet, "/health", map[string]string{"X-Request-ID": "rid-1"})
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Request-ID"); got != "rid-1" {
		t.Fatalf("request id not echoed: %q", got)
	}
	for k, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := w.Header().Get(k); got != want {
			t.Fatalf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestGzipAndMetrics(t *testing.T) {
	r, _ := newServer(t, testConfig())

	w := serve(r, http.MethodGet, "/health", map[string]string{"Accept-Encoding": "gzip"})
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("health should be gzipped, headers=%v", w.Header())
	}
	w = serve(r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "engage_http_requests_total") {
		t.Fatalf("metrics: %d, http collectors missing", w.Code)
	}
}

func TestFallbacks(t *testing.T) {
	r, _ := newServer(t, testConfig())

	w := serve(r, http.MethodGet, "/nope", nil)
	if w.Code != http.StatusNotFound || errorCode(t, w) != "not_found" {
		t.Fatalf("no route: %d %s", w.Code, w.Body.String())
	}
	w = serve(r, http.MethodGet, "/api/v1/polls", nil)
	if w.Code != http.StatusMethodNotAllowed || errorCode(t, w) != "method_not_allowed" {
		t.Fatalf("no method: %d %s", w.Code, w.Body.String())
	}
}

func TestAPIRoutes(t *testing.T) {
	r, eng := newServer(t, testConfig())

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, "/api/v1/polls", http.StatusOK},
		{http.MethodGet, "/api/v1/comments/c1/reply-context", http.StatusNotFound},
		{http.MethodPost, "/api/v1/comments/c1/reply/retry", http.StatusConflict},
		{http.MethodPost, "/api/v1/comments/c1/hide", http.StatusOK},
		{http.MethodGet, "/api/v1/decisions/stats?user_id=u1", http.StatusOK},
		{http.MethodGet, "/api/v1/posts/p404/diagnostics", http.StatusNotFound},
		{http.MethodPost, "/api/v1/accounts/a1/sync", http.StatusOK},
	}
	for _, tt := range tests {
		if w := serve(r, tt.method, tt.path, nil); w.Code != tt.want {
			t.Fatalf("%s %s = %d, want %d (%s)", tt.method, tt.path, w.Code, tt.want, w.Body.String())
		}
	}
	if eng.ticks != 1 {
		t.Fatalf("ticks = %d", eng.ticks)
	}
}

func TestOperatorToken(t *testing.T) {
	cfg := testConfig()
	cfg.OperatorToken = "s3cret"
	r, eng := newServer(t, cfg)

	w := serve(r, http.MethodPost, "/api/v1/polls", nil)
	if w.Code != http.StatusUnauthorized || errorCode(t, w) != "unauthorized" {
		t.Fatalf("anonymous: %d %s", w.Code, w.Body.String())
	}
	w = serve(r, http.MethodPost, "/api/v1/polls", map[string]string{"Authorization": "Bearer wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", w.Code)
	}
	w = serve(r, http.MethodPost, "/api/v1/polls", map[string]string{"Authorization": "Bearer s3cret"})
	if w.Code != http.StatusOK || eng.ticks != 1 {
		t.Fatalf("valid token: %d ticks=%d", w.Code, eng.ticks)
	}
	if w := serve(r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health must stay public, got %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 1
	r, _ := newServer(t, cfg)

	if w := serve(r, http.MethodPost, "/api/v1/polls", nil); w.Code != http.StatusOK {
		t.Fatalf("first: %d", w.Code)
	}
	w := serve(r, http.MethodPost, "/api/v1/polls", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Fatalf("second: %d %v", w.Code, w.Header())
	}
	if w := serve(r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Fatalf("health is not rate limited, got %d", w.Code)
	}
}

func TestSwagger(t *testing.T) {
	r, _ := newServer(t, testConfig())
	if w := serve(r, http.MethodGet, "/swagger/doc.json", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be off by default, got %d", w.Code)
	}

	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r, _ = newServer(t, cfg)
	w := serve(r, http.MethodGet, "/swagger/doc.json", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/comments/{id}/reply-context") {
		t.Fatalf("swagger doc: %d %.200s", w.Code, w.Body.String())
	}
}
