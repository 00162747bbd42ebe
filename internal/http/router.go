// Package httpapi wires the archive viewer API (Gin) to the stores,
// middleware, and route handlers.
//
// Middleware order:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. AccessLog: structured logs with credential scrubbing
//  4. Recovery: capture panics after the logger is attached
//  5. Body size limit
//  6. Gzip compression
//  7. Metrics
//  8. Rate limiter (per client IP)
//  9. CORS and security headers
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/news-archive/docs"
	"github.com/tbourn/news-archive/internal/config"
	"github.com/tbourn/news-archive/internal/http/handlers"
	"github.com/tbourn/news-archive/internal/http/middleware"
	"github.com/tbourn/news-archive/internal/services"
)

// maxBodyBytes caps request bodies. Material documents and news batches are
// larger than typical API payloads.
const maxBodyBytes = 8 << 20

// RegisterRoutes attaches middleware and mounts the viewer API on r, backed
// by stores on db.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) {
	h := handlers.New(
		services.NewMaterialStore(db),
		services.NewTopicStore(db),
		services.NewNewsStore(db),
		handlers.Paging{DefaultSize: cfg.PageSize, MaxSize: cfg.MaxPageSize},
	)
	Mount(r, h, cfg)
}

// Mount installs the middleware chain and routes for h. It is split from
// RegisterRoutes so tests can supply handlers over fake services.
func Mount(r *gin.Engine, h *handlers.Handlers, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(middleware.AccessLogOptions{
		MaskHeaders: []string{"X-API-Key"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	r.Use(middleware.Metrics("/metrics"))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP(), "/health", "/metrics")
	r.Use(rl.Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStoreWrites: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/materials", h.ListMaterials)
		api.POST("/materials", h.CreateMaterial)
		api.GET("/materials/:id", h.GetMaterial)
		api.PATCH("/materials/:id/audio", h.UpdateMaterialAudio)
		api.DELETE("/materials/:id", h.DeleteMaterial)

		api.GET("/topics/latest", h.LatestTopics)
		api.POST("/topics", h.CreateTopics)

		api.GET("/news", h.ListNews)
		api.GET("/news/search", h.SearchNews)
		api.POST("/news", h.SaveNews)
	}
}

// corsMiddleware allows any origin when none are configured, otherwise only
// the listed ones. Credentials are never allowed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "If-None-Match"},
		ExposeHeaders: []string{"X-Request-ID", "ETag", "Retry-After", "Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) > 0 {
		base.AllowOrigins = origins
		return []gin.HandlerFunc{cors.New(base)}
	}
	base.AllowAllOrigins = true
	return []gin.HandlerFunc{
		// Set ACAO even without an Origin header so curl and health checkers see it.
		func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps the request body at maxBytes; larger bodies fail to bind.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
