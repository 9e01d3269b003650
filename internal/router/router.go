package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/acadex/examtrack-backend/internal/config"
	"github.com/acadex/examtrack-backend/internal/handler"
	"github.com/acadex/examtrack-backend/internal/middleware"
	"github.com/acadex/examtrack-backend/internal/response"
	"github.com/acadex/examtrack-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth     *handler.AuthHandler
	Subject  *handler.SubjectHandler
	Question *handler.QuestionHandler
	Exam     *handler.ExamHandler
	Student  *handler.StudentHandler
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
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

	// ─── 1. Auth Group (Public) ────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)

		// Authenticated account routes
		auth.GET("/me", middleware.RequireJWT(authService), handlers.Auth.GetProfile)
		auth.PUT("/password", middleware.RequireJWT(authService), handlers.Auth.ChangePassword)
	}

	// ─── 2. Student Group (Student JWT) ────────────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(middleware.RequireStudentJWT(authService))
	{
		studentAPI.GET("/exams", handlers.Student.Lobby)
		studentAPI.POST("/exams/:id/begin", handlers.Student.Begin)
		studentAPI.GET("/exams/:id/paper", handlers.Student.GetPaper)
		studentAPI.PUT("/attempts/:id/answers", handlers.Student.SaveAnswer)
		studentAPI.POST("/attempts/:id/finish", handlers.Student.Finish)
		studentAPI.GET("/history", handlers.Student.History)
		studentAPI.GET("/attempts/:id/review", handlers.Student.Review)
	}

	// ─── 3. Admin Group (Admin JWT) ────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/subjects", handlers.Subject.GetAll)
		adminAPI.POST("/subjects", handlers.Subject.Create)
		adminAPI.PUT("/subjects/:id", handlers.Subject.Update)
		adminAPI.DELETE("/subjects/:id", handlers.Subject.Delete)
		adminAPI.GET("/subjects/:id/questions", handlers.Question.ListBySubject)

		adminAPI.POST("/questions", handlers.Question.Create)
		adminAPI.PUT("/questions/:id", handlers.Question.Update)
		adminAPI.DELETE("/questions/:id", handlers.Question.Delete)
		adminAPI.POST("/questions/import", handlers.Question.Import)

		adminAPI.GET("/exams", handlers.Exam.List)
		adminAPI.POST("/exams", handlers.Exam.Create)
		adminAPI.POST("/exams/auto", handlers.Exam.CreateAuto)
		adminAPI.GET("/exams/:id", handlers.Exam.Get)
		adminAPI.POST("/exams/:id/publish", handlers.Exam.Publish)
		adminAPI.POST("/exams/:id/close", handlers.Exam.Close)
		adminAPI.GET("/exams/:id/results", handlers.Exam.Results)
		adminAPI.GET("/attempts/:id", handlers.Exam.ReviewAttempt)
		adminAPI.DELETE("/attempts/:id", handlers.Exam.DeleteAttempt)
	}

	return router
}
