package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"cvcreator-backend/internal/documents"
	"cvcreator-backend/internal/owners"
	"cvcreator-backend/internal/services/health"
	"cvcreator-backend/internal/shared/config"
	"cvcreator-backend/internal/shared/metrics"
	"cvcreator-backend/internal/shared/server/middleware"
	"cvcreator-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers mounted under /api/v1.
type RouterDeps struct {
	Config          config.Config
	DocumentHandler *documents.Handler
	OwnerHandler    *owners.Handler
	// Health reports dependency checks; nil answers a plain liveness probe.
	Health *health.Service
	// Limiter is shared across rebuilt routers in tests; nil creates one.
	Limiter *middleware.RateLimiter
}

// Token buckets per owner (or client IP). Heavy routes render or stream PDFs.
var rateLimitRules = map[string]middleware.RateLimitRule{
	middleware.RateLimitStandard: {Rate: 0.5, Burst: 50},
	middleware.RateLimitHeavy:    {Rate: 0.2, Burst: 20},
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.OwnerIdentity(),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		checks, healthy := deps.Health.Status(c.Request.Context())
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, gin.H{"ok": healthy, "checks": checks})
	})

	if deps.Config.RateLimitEnabled {
		var heavy []string
		if deps.DocumentHandler != nil {
			heavy = deps.DocumentHandler.HeavyRoutes()
		}
		api.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    rateLimitRules,
			GroupFor: middleware.HeavyRoutes(heavy...),
			Limiter:  deps.Limiter,
		}))
	}

	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(api)
	}
	if deps.OwnerHandler != nil {
		deps.OwnerHandler.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
