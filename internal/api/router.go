// Package api wires together all HTTP routes of the organization management
// service.
//
// Route grouping:
//   - /, /health, /ready and /docs are public.
//   - POST /org/create, GET /org/get and POST /admin/login are public; login is
//     rate limited per client before any credential check.
//   - PUT /org/update, DELETE /org/delete, GET /admin/me and
//     POST /admin/verify-token require a bearer token.
//   - When audit.enabled is set, create, update, delete and login requests
//     are recorded to the audit shippers.
//
// The Swagger UI under /docs/ gets a relaxed Content Security Policy so its
// bundled scripts and styles load; every other route keeps the strict API
// policy.
package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/org-management/org-service/docs"
	"github.com/org-management/org-service/internal/api/admin"
	"github.com/org-management/org-service/internal/api/organizations"
	"github.com/org-management/org-service/internal/api/response"
	"github.com/org-management/org-service/internal/audit"
	"github.com/org-management/org-service/internal/auth"
	"github.com/org-management/org-service/internal/config"
	"github.com/org-management/org-service/internal/middleware"
	"github.com/org-management/org-service/internal/services"
	"github.com/org-management/org-service/internal/store"
)

// BackgroundServices holds resources owned by the router that must be
// released during graceful shutdown. The caller (cmd/server) is responsible
// for calling Shutdown() after the HTTP server has stopped.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
	redisClient  *redis.Client
	auditShipper audit.Shipper
}

// Shutdown stops rate limiter goroutines, flushes the audit shippers and
// closes the Redis client.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, backend store.Backend, tokens *auth.TokenService) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	hasher := auth.NewPasswordHasher(cfg.Auth.BcryptCost)
	orgService := services.NewOrganizationService(backend, backend, hasher)
	authService := services.NewAuthService(backend, hasher, tokens)

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware())
	router.Use(cors.New(corsConfig(cfg.Security.CORS)))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/", rootHandler(cfg))
	router.GET("/health", healthCheckHandler(cfg, backend))
	router.GET("/ready", readinessHandler(backend))

	docs.SwaggerInfo.Version = cfg.App.Version
	docsGroup := router.Group("/docs", middleware.SecurityHeadersMiddleware(middleware.DocsSecurityHeadersConfig(cfg.Security.TLS.Enabled)))
	docsGroup.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	requireAdmin := middleware.AuthMiddleware(authService, cfg.Server.Debug)

	var audited []gin.HandlerFunc
	if shipper := auditShipper(cfg.Audit); shipper != nil {
		bg.auditShipper = shipper
		audited = append(audited, middleware.AuditMiddleware(shipper, cfg.Audit.LogFailedRequests))
	}

	orgHandlers := organizations.NewHandlers(orgService, cfg.Server.Debug)
	orgGroup := router.Group("/org", audited...)
	{
		orgGroup.POST("/create", orgHandlers.Create())
		orgGroup.GET("/get", orgHandlers.Get())
		orgGroup.PUT("/update", requireAdmin, orgHandlers.Update())
		orgGroup.DELETE("/delete", requireAdmin, orgHandlers.Delete())
	}

	authHandlers := admin.NewAuthHandlers(authService, cfg.Server.Debug)
	adminGroup := router.Group("/admin", audited...)
	{
		loginChain := []gin.HandlerFunc{}
		if limit := loginRateLimiter(cfg, bg); limit != nil {
			loginChain = append(loginChain, limit)
		}
		loginChain = append(loginChain, authHandlers.Login())
		adminGroup.POST("/login", loginChain...)

		adminGroup.GET("/me", requireAdmin, authHandlers.Me())
		adminGroup.POST("/verify-token", requireAdmin, authHandlers.VerifyToken())
	}

	router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, "Not Found", nil)
	})

	return router, bg
}

// auditShipper builds the configured audit shippers, or returns nil when the
// audit trail is disabled or cannot be set up.
func auditShipper(cfg config.AuditConfig) audit.Shipper {
	if !cfg.Enabled {
		return nil
	}
	ms, err := audit.NewMultiShipper(cfg.Shippers)
	if err != nil {
		slog.Error("audit trail disabled", "error", err)
		return nil
	}
	if ms.Len() == 0 {
		ms.Add(audit.NewLogShipper(slog.Default()))
	}
	slog.Info("audit trail enabled", "shippers", ms.Len(), "log_failed_requests", cfg.LogFailedRequests)
	return ms
}

// loginRateLimiter returns the login limiter middleware, or nil when rate
// limiting is disabled. A Redis-backed limiter is used when redis.enabled is
// set so that every replica shares one budget.
func loginRateLimiter(cfg *config.Config, bg *BackgroundServices) gin.HandlerFunc {
	if !cfg.Security.RateLimiting.Enabled {
		return nil
	}
	limits := middleware.LoginRateLimitConfig(cfg.Security.RateLimiting.RequestsPerMinute, cfg.Security.RateLimiting.Burst)

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		bg.redisClient = client
		slog.Info("login rate limiting backed by redis", "addr", cfg.Redis.Address)
		return middleware.RedisRateLimitMiddleware(redis_rate.NewLimiter(client), limits, "oms:login:")
	}

	limiter := middleware.NewRateLimiter(limits)
	bg.rateLimiters = append(bg.rateLimiters, limiter)
	return middleware.RateLimitMiddleware(limiter)
}

func corsConfig(c config.CORSConfig) cors.Config {
	out := cors.Config{
		AllowMethods:  c.AllowedMethods,
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        time.Hour,
	}
	if len(out.AllowMethods) == 0 {
		out.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	}
	if len(c.AllowedOrigins) == 0 || slices.Contains(c.AllowedOrigins, "*") {
		out.AllowAllOrigins = true
		return out
	}
	out.AllowOrigins = c.AllowedOrigins
	out.AllowCredentials = true
	return out
}

// @Summary      Service banner
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       / [get]
func rootHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Organization Management Service is running",
			"version": cfg.App.Version,
		})
	}
}

// @Summary      Health check
// @Description  Reports liveness and the master store connection.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, service, version"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy"
// @Router       /health [get]
func healthCheckHandler(cfg *config.Config, backend store.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := backend.Ping(c.Request.Context()); err != nil {
			slog.Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"service": cfg.App.Name,
				"version": cfg.App.Version,
				"error":   "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.App.Name,
			"version": cfg.App.Version,
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service can serve traffic.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true"
// @Failure      503  {object}  map[string]interface{}  "ready: false"
// @Router       /ready [get]
func readinessHandler(backend store.Backend) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := backend.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": gin.H{"store": "unhealthy"},
				"error":  "store not ready",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": gin.H{"store": "healthy"},
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
