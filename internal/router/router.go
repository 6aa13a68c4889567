package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/handler"
	"github.com/stemsi/exstem-prep/internal/middleware"
	"github.com/stemsi/exstem-prep/internal/response"
	"github.com/stemsi/exstem-prep/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session   *handler.ExamSessionHandler
	Dashboard *handler.DashboardHandler
	WS        *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", middleware.ClientIDHeader}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware(log))
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── Student API (JWT) ─────────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireJWT(authService),
		middleware.RequireRole(service.RoleStudent, service.RoleTutor),
		limiter.Middleware(),
		middleware.NoStore(),
	)
	{
		studentAPI.GET("/dashboard", handlers.Dashboard.GetDashboard)
		studentAPI.GET("/results/:result_id", handlers.Dashboard.GetResult)

		sessions := studentAPI.Group("/sessions")
		{
			sessions.POST("", handlers.Session.Start)
			sessions.GET("/active", handlers.Session.Resume)
			sessions.DELETE("/active", handlers.Session.Abandon)
			sessions.PUT("/active/answers", handlers.Session.SelectAnswer)
			sessions.POST("/active/check", handlers.Session.CheckAnswer)
			sessions.PUT("/active/position", handlers.Session.Navigate)
			sessions.GET("/active/timer", handlers.Session.Timer)
			sessions.GET("/active/summary", handlers.Session.Summary)
			sessions.POST("/active/submit", handlers.Session.Submit)
		}
	}

	// ─── WebSocket (token in query) ────────────────────────────────────
	wsGroup := router.Group("/ws/v1/student")
	wsGroup.Use(
		middleware.RequireJWT(authService),
		middleware.RequireRole(service.RoleStudent, service.RoleTutor),
	)
	{
		wsGroup.GET("/sessions/active/stream", handlers.WS.SessionStream)
	}

	return router
}
