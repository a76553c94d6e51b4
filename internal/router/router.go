package router

import (
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/edusync/proctor/internal/config"
	"github.com/edusync/proctor/internal/handler"
	"github.com/edusync/proctor/internal/middleware"
	"github.com/edusync/proctor/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	Monitor *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	verifier *middleware.Verifier,
	limiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. WebSocket Group (Student WS Auth, Rate Limited) ────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(verifier), limiter.Middleware())
	{
		ws.GET("/assessments/:assessment_id/session", handlers.Session.Stream)
	}

	// ─── 2. Instructor Group (JWT) ─────────────────────────────────────
	instructorAPI := router.Group("/api/v1")
	instructorAPI.Use(middleware.RequireInstructorJWT(verifier))
	{
		// Event streams are excluded from compression by the middleware.
		instructorAPI.GET("/sessions/stream", handlers.Monitor.StreamSessions)

		compressed := instructorAPI.Group("")
		compressed.Use(middleware.Brotli(brotli.DefaultCompression, 1024))
		{
			compressed.GET("/sessions", handlers.Monitor.ListSessions)
			compressed.GET("/assessments/:assessment_id/violations", handlers.Monitor.ListViolations)
		}
	}

	return router
}
