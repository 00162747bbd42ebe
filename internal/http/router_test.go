package httpapi

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/news-archive/internal/config"
	"github.com/tbourn/news-archive/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite("file:router_" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		PageSize:    50,
		MaxPageSize: 200,
		RateRPS:     1000,
		RateBurst:   1000,
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newTestRouter(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newTestDB(t), cfg)
	return r
}

func serve(r http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_HealthMetricsAndFallbacks(t *testing.T) {
	r := newTestRouter(t, testConfig())

	w := serve(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("allow-all CORS expected, got %q", w.Header().Get("Access-Control-Allow-Origin"))
	}
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("middleware headers missing: %v", w.Header())
	}

	if w := serve(r, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("GET /metrics: %d", w.Code)
	}

	w = serve(r, http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope = %d", w.Code)
	}
	var env map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	if env["code"] != "not_found" {
		t.Fatalf("unexpected fallback body %v", env)
	}

	if w := serve(r, http.MethodPost, "/health", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health = %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/swagger/index.html", ""); w.Code != http.StatusNotFound {
		t.Fatalf("swagger should be off by default, got %d", w.Code)
	}
}

func TestRegisterRoutes_MaterialLifecycle(t *testing.T) {
	r := newTestRouter(t, testConfig())

	w := serve(r, http.MethodPost, "/api/v1/materials", `{"id":"m1","title":"Markets","quiz":[{"q":"?"}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("writes should be no-store")
	}

	if w := serve(r, http.MethodPatch, "/api/v1/materials/m1/audio", `{"field":"audio_podcast","url":"https://cdn/p.mp3"}`); w.Code != http.StatusNoContent {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}

	w = serve(r, http.MethodGet, "/api/v1/materials/m1", "")
	var m map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &m)
	if w.Code != http.StatusOK || m["audio_podcast"] != "https://cdn/p.mp3" || m["title"] != "Markets" {
		t.Fatalf("get: %d %v", w.Code, m)
	}

	w = serve(r, http.MethodGet, "/api/v1/materials", "")
	if w.Code != http.StatusOK || w.Header().Get("ETag") == "" {
		t.Fatalf("list: %d etag=%q", w.Code, w.Header().Get("ETag"))
	}

	if w := serve(r, http.MethodDelete, "/api/v1/materials/m1", ""); w.Code != http.StatusOK {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/api/v1/materials/m1", ""); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", w.Code)
	}
}

func TestRegisterRoutes_TopicsAndNews(t *testing.T) {
	r := newTestRouter(t, testConfig())

	if w := serve(r, http.MethodPost, "/api/v1/topics", `{"groups":{"tech":[1]}}`); w.Code != http.StatusCreated {
		t.Fatalf("topics: %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/api/v1/topics/latest", ""); w.Code != http.StatusOK {
		t.Fatalf("latest: %d", w.Code)
	}
	w := serve(r, http.MethodPost, "/api/v1/news", `{"records":[{"original_link":"https://a/1","title":"t"}]}`)
	if w.Code != http.StatusOK || w.Body.String() != `{"created":1}` {
		t.Fatalf("news: %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_GzipAndSwagger(t *testing.T) {
	cfg := testConfig()
	cfg.SwaggerEnabled = true
	r := newTestRouter(t, cfg)

	w := serve(r, http.MethodGet, "/api/v1/news", "", "Accept-Encoding", "gzip")
	if w.Code != http.StatusOK || w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip response, got %d %q", w.Code, w.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(w.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	body, _ := io.ReadAll(zr)
	if string(body) != `{"records":[]}` {
		t.Fatalf("unexpected body %q", body)
	}

	if w := serve(r, http.MethodGet, "/swagger/doc.json", ""); w.Code != http.StatusOK || !bytes.Contains(w.Body.Bytes(), []byte("/materials")) {
		t.Fatalf("swagger doc: %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.APIBasePath = "/"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://viewer.example"}}
	r := newTestRouter(t, cfg)

	w := serve(r, http.MethodGet, "/health", "", "Origin", "http://viewer.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://viewer.example" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
	if w := serve(r, http.MethodGet, "/materials", ""); w.Code != http.StatusOK {
		t.Fatalf("root-mounted API: %d", w.Code)
	}
}

func TestRegisterRoutes_RateLimitSparesHealth(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS, cfg.RateBurst = 0.001, 1
	r := newTestRouter(t, cfg)

	if w := serve(r, http.MethodGet, "/api/v1/news", ""); w.Code != http.StatusOK {
		t.Fatalf("first: %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/api/v1/news", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second should be limited: %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health must not be limited: %d", w.Code)
	}
}

func Test_limitBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})
	if w := serve(r, http.MethodPost, "/echo", "0123456789AB"); w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
	if w := serve(r, http.MethodPost, "/echo", "short"); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		if w := serve(r, http.MethodGet, path, ""); w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, w.Code, w.Body.String())
		}
	}
}

