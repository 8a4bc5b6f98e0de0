package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/examina/examina-backend/internal/config"
	"github.com/examina/examina-backend/internal/handler"
	"github.com/examina/examina-backend/internal/middleware"
	"github.com/examina/examina-backend/internal/response"
	"github.com/examina/examina-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Session *handler.SessionHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", middleware.HeaderSessionToken}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Session creation: the only route on student JWT.
	examAPI := router.Group("/api/v1/exams")
	examAPI.Use(middleware.RequireStudentJWT(authService))
	{
		examAPI.POST("/:exam_id/sessions", handlers.Session.StartSession)
	}

	// In-session operations: authenticated by the opaque session token.
	// The answer path absorbs one auto-save every few seconds per client;
	// the limiter is keyed by token so it caps clients individually.
	writeLimiter := middleware.NewSessionRateLimiter(120, time.Minute)
	sessionAPI := router.Group("/api/v1/sessions")
	sessionAPI.Use(middleware.RequireSessionToken())
	{
		sessionAPI.POST("/answers", writeLimiter.Middleware(), handlers.Session.RecordAnswer)
		sessionAPI.POST("/snapshots", writeLimiter.Middleware(), handlers.Session.CreateSnapshot)
		sessionAPI.POST("/violations", handlers.Session.ReportViolation)
		sessionAPI.POST("/submit", handlers.Session.SubmitSession)
		sessionAPI.GET("/paper", handlers.Session.GetPaper)
		sessionAPI.GET("/recovery", handlers.Session.GetRecoveryState)
		sessionAPI.GET("/questions/:question_id/history", handlers.Session.GetAnswerHistory)
	}

	// WebSocket stream: same session-token auth, via query param since
	// browsers cannot set headers on the upgrade request.
	wsGroup := router.Group("/ws/v1")
	wsGroup.Use(middleware.RequireSessionToken())
	{
		wsGroup.GET("/sessions/stream", handlers.WS.SessionStream)
	}

	return router
}
