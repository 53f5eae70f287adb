// Package httpapi wires the operator HTTP API (Gin) to the engine.
//
// Middleware order:
//  1. OpenTelemetry tracing
//  2. RequestID
//  3. Logger (request-scoped logger, secret query params redacted)
//  4. Recovery
//  5. Body size limit
//  6. Prometheus metrics
//  7. gzip (not on /metrics)
//  8. CORS and security headers
//
// The versioned API group additionally requires the operator token and is
// rate limited per operator or client IP.
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

	"github.com/tbourn/go-engage-backend/docs"
	"github.com/tbourn/go-engage-backend/internal/config"
	"github.com/tbourn/go-engage-backend/internal/http/handlers"
	"github.com/tbourn/go-engage-backend/internal/http/middleware"
)

// Deps are the engine components served by the API.
type Deps struct {
	Engine     handlers.Engine
	Monitoring handlers.Monitoring
	Decider    handlers.Decider
	DB         *gorm.DB
}

// RegisterRoutes attaches middleware and endpoints to r.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))
	r.Use(middleware.Metrics())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(corsPolicy(cfg.CORS.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(d.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(d.Engine, d.Monitoring, d.Decider, d.DB)
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByOperatorOrIP())

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.RequireToken(cfg.OperatorToken), rl.Handler())
	{
		api.POST("/polls", h.ForcePoll)

		api.GET("/comments/:id/reply-context", h.GetReplyContext)
		api.POST("/comments/:id/reply/retry", h.RetryReply)
		api.POST("/comments/:id/hide", h.HideComment)

		api.POST("/decisions/dry-run", h.DryRunDecision)
		api.GET("/decisions/stats", h.DecisionStats)

		api.PUT("/posts/:id/monitoring", h.SetMonitoring)
		api.GET("/posts/:id/diagnostics", h.PostDiagnostics)

		api.POST("/accounts/:id/sync", h.SyncAccount)
	}
}

// health reports liveness and whether the datastore answers a ping.
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(c.Request.Context())
			}
			if err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// corsPolicy allows any origin when none are configured. Credentials are
// never allowed; the operator token travels in the Authorization header.
func corsPolicy(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Operator", "If-None-Match"},
		ExposeHeaders:    []string{middleware.RequestIDHeader, "ETag", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
	}
	return cors.New(cc)
}

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
