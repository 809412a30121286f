package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stemsi/mockexam-backend/internal/handler"
	"github.com/stemsi/mockexam-backend/internal/metrics"
	"github.com/stemsi/mockexam-backend/internal/middleware"
	"github.com/stemsi/mockexam-backend/internal/response"
	"github.com/stemsi/mockexam-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	StudentExam *handler.StudentExamHandler
	Submission  *handler.SubmissionHandler
	Schedule    *handler.ScheduleHandler
	WS          *handler.WSHandler
	System      *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// submitLimiter may be nil to disable rate limiting of attempt writes.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	submitLimiter *middleware.RateLimiter,
	log zerolog.Logger,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata
	// and every request context carries a logger tagged with the same ID.
	router.Use(response.RequestIDMiddleware(log))

	if cfg.MetricsEnabled {
		router.Use(metrics.MetricsMiddleware())
		router.GET("/metrics", metrics.PrometheusHandler())
	}

	router.GET("/health", handlers.System.Health)

	writeLimit := func(c *gin.Context) { c.Next() }
	if submitLimiter != nil {
		writeLimit = submitLimiter.Middleware()
	}

	// ─── 1. Student Group (JWT, role STUDENT) ──────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.Authenticate(authService),
		middleware.RequireRole(service.RoleStudent),
		middleware.NoStore(),
		middleware.Brotli(),
	)
	{
		studentAPI.GET("/dashboard", handlers.StudentExam.GetDashboard)
		studentAPI.POST("/exams/:id/start", writeLimit, handlers.StudentExam.StartExam)
		studentAPI.GET("/exams/:id", handlers.StudentExam.ResumeExam)
		studentAPI.PUT("/exams/:id/answers", writeLimit, handlers.StudentExam.SaveAnswers)
		studentAPI.POST("/exams/:id/submit", writeLimit, handlers.StudentExam.SubmitExam)
		studentAPI.GET("/exams/:id/results", handlers.StudentExam.GetResults)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/exams/:id/stream", handlers.WS.ExamSessionStream)
	}

	// ─── 3. Admin Group (JWT, role ADMIN) ──────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(
		middleware.Authenticate(authService),
		middleware.RequireRole(service.RoleAdmin),
		middleware.NoStore(),
		middleware.Brotli(),
	)
	{
		adminAPI.POST("/schedules", handlers.Schedule.ScheduleExam)

		adminAPI.GET("/submissions", handlers.Submission.ListSubmissions)
		adminAPI.GET("/submissions/:id", handlers.Submission.GetSubmission)
		adminAPI.POST("/submissions/:id/mark", handlers.Submission.MarkSubmission)
		adminAPI.POST("/submissions/:id/release", handlers.Submission.ReleaseResults)
		adminAPI.GET("/submissions/:id/scores", handlers.Submission.GetScores)
	}

	return router
}
