package router

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth         *handler.AuthHandler
	Session      *handler.SessionHandler
	Exam         *handler.ExamHandler
	Question     *handler.QuestionHandler
	Group        *handler.GroupHandler
	StudentMgmt  *handler.StudentManagementHandler
	AdminSession *handler.AdminSessionHandler
	Monitor      *handler.MonitorHandler
	WS           *handler.WSHandler
	Health       *handler.HealthHandler
}

// Limiters are the per-client rate limiters applied to hot routes. A nil
// limiter disables limiting for its routes.
type Limiters struct {
	Auth     *middleware.RateLimiter
	Autosave *middleware.RateLimiter
}

func limit(rl *middleware.RateLimiter) gin.HandlerFunc {
	if rl == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return rl.Middleware()
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiters Limiters,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	if cfg.CompressionEnabled {
		router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
			Quality:   middleware.DefaultBrotliConfig.Quality,
			MinLength: middleware.DefaultBrotliConfig.MinLength,
			Skipper: func(c *gin.Context) bool {
				return strings.HasSuffix(c.Request.URL.Path, "/monitor")
			},
		}))
	}

	if cfg.MetricsEnabled {
		metrics.Init()
		router.Use(metrics.MetricsMiddleware())
		router.GET("/metrics", metrics.PrometheusHandler())
	}

	router.GET("/health", handlers.Health.Health)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	noStore := middleware.CacheControl(middleware.NoStore)

	auth := router.Group("/api/v1/auth")
	auth.Use(noStore)
	{
		auth.POST("/student/login", limit(limiters.Auth), handlers.Auth.StudentLogin)
		auth.POST("/admin/login", limit(limiters.Auth), handlers.Auth.AdminLogin)

		auth.POST("/logout", middleware.RequireAnyJWT(authService), handlers.Auth.Logout)
		auth.GET("/me", middleware.RequireAnyJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Student Group ──────────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(noStore, middleware.RequireStudentJWT(authService))
	{
		studentAPI.GET("/exams/active", handlers.Session.GetActiveExam)
		studentAPI.POST("/exams/:id/sessions", handlers.Session.CreateSession)
		studentAPI.GET("/exams/:id/sessions/existing", handlers.Session.CheckExisting)

		sessions := studentAPI.Group("/sessions/:id")
		{
			sessions.GET("", handlers.Session.GetSession)
			sessions.GET("/recovery", handlers.Session.GetRecovery)
			sessions.POST("/resume", handlers.Session.Resume)
			sessions.POST("/complete", handlers.Session.Complete)
			sessions.GET("/violations", handlers.Session.ListViolations)
			sessions.POST("/violations", handlers.Session.LogViolation)

			// Autosave traffic is limited per student rather than per IP so a
			// whole exam room behind one NAT does not share a bucket.
			autosave := limit(limiters.Autosave)
			sessions.POST("/snapshots", autosave, handlers.Session.SaveSnapshot)
			sessions.PUT("/responses", autosave, handlers.Session.SaveResponse)
		}
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/sessions/:id/stream", handlers.WS.SessionStream)
	}

	// ─── 4. Admin Group ────────────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(noStore, middleware.RequireAdminJWT(authService))
	{
		// Exam management
		adminAPI.GET("/exams", handlers.Exam.ListExams)
		adminAPI.POST("/exams", handlers.Exam.CreateExam)
		adminAPI.GET("/exams/:id", handlers.Exam.GetExam)
		adminAPI.PATCH("/exams/:id", handlers.Exam.UpdateExam)
		adminAPI.DELETE("/exams/:id", handlers.Exam.DeleteExam)
		adminAPI.POST("/exams/:id/activate", handlers.Exam.ActivateExam)
		adminAPI.GET("/exams/:id/sessions", handlers.Exam.ListSessions)
		adminAPI.GET("/exams/:id/reports", handlers.Exam.ListReports)
		adminAPI.GET("/exams/:id/groups", handlers.Group.ListExamGroups)
		adminAPI.GET("/exams/:id/access/:student_id", handlers.Exam.CheckAccess)
		adminAPI.GET("/exams/:id/monitor", handlers.Monitor.MonitorExamSSE)

		// Questions
		adminAPI.GET("/exams/:id/questions", handlers.Question.ListQuestions)
		adminAPI.POST("/exams/:id/questions", handlers.Question.AddQuestion)

		// Sessions
		adminAPI.GET("/sessions/:id/report", handlers.AdminSession.GetReport)
		adminAPI.GET("/sessions/:id/violations", handlers.AdminSession.ListViolations)
		adminAPI.POST("/sessions/:id/terminate", handlers.AdminSession.Terminate)
		adminAPI.POST("/sessions/:id/stats", handlers.AdminSession.RecomputeStats)

		// Groups
		adminAPI.GET("/groups", handlers.Group.ListGroups)
		adminAPI.POST("/groups", handlers.Group.CreateGroup)
		adminAPI.GET("/groups/:id", handlers.Group.GetGroup)
		adminAPI.DELETE("/groups/:id", handlers.Group.DeleteGroup)
		adminAPI.GET("/groups/:id/members", handlers.Group.ListMembers)
		adminAPI.POST("/groups/:id/members", handlers.Group.AddMembers)
		adminAPI.DELETE("/groups/:id/members/:student_id", handlers.Group.RemoveMember)
		adminAPI.POST("/groups/:id/exams", handlers.Group.GrantExam)
		adminAPI.DELETE("/groups/:id/exams/:exam_id", handlers.Group.RevokeExam)

		// Students
		adminAPI.GET("/students", handlers.StudentMgmt.ListStudents)
		adminAPI.POST("/students", handlers.StudentMgmt.CreateStudent)
		adminAPI.PUT("/students/:id/authorization", handlers.StudentMgmt.SetAuthorization)
		adminAPI.POST("/students/:id/reset-login", handlers.StudentMgmt.ResetStudentLogin)
	}

	return router
}
