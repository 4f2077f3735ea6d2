package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"codelab/internal/metrics"
	"codelab/internal/middleware"
	"codelab/pkg/models"
)

// RegisterRoutes mounts the full API surface.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(metrics.PrometheusMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.PrometheusHandler())

	authLimiter := middleware.NewIPRateLimiter(rate.Limit(5), 10)

	api := r.Group("/api")

	// Auth
	authRoutes := api.Group("/auth")
	authRoutes.POST("/register", authLimiter.Middleware(), h.Register)
	authRoutes.POST("/login", authLimiter.Middleware(), h.Login)
	authRoutes.GET("/me", middleware.RequireAuth(h.Auth), h.Me)
	authRoutes.PUT("/profile", middleware.RequireAuth(h.Auth), h.UpdateProfile)

	authed := api.Group("")
	authed.Use(middleware.RequireAuth(h.Auth))

	instructor := middleware.RequireRole(models.RoleInstructor, models.RoleAdmin)
	student := middleware.RequireRole(models.RoleStudent)

	// Websocket entry point
	authed.GET("/ws", h.Hub.HandleWebSocket)

	// Lab sessions
	sessions := authed.Group("/lab-sessions")
	sessions.GET("", h.ListLabSessions)
	sessions.POST("", instructor, h.CreateLabSession)
	sessions.GET("/:id", h.GetLabSession)
	sessions.PUT("/:id", instructor, h.UpdateLabSession)
	sessions.DELETE("/:id", instructor, h.DeleteLabSession)
	sessions.PUT("/:id/activate", instructor, h.ActivateLabSession)
	sessions.PUT("/:id/deactivate", instructor, h.DeactivateLabSession)
	sessions.GET("/:id/available-students", instructor, h.AvailableStudents)
	sessions.POST("/:id/students", instructor, h.AddStudents)
	sessions.DELETE("/:id/students/:studentId", instructor, h.RemoveStudent)
	sessions.POST("/:id/activities", instructor, h.CreateActivity)
	sessions.GET("/:id/activities", h.ListActivities)

	// Activities, drafts, snapshots, hints
	activities := authed.Group("/activities")
	activities.GET("/:id", h.GetActivity)
	activities.PUT("/:id", instructor, h.UpdateActivity)
	activities.DELETE("/:id", instructor, h.DeleteActivity)
	activities.GET("/:id/draft", student, h.GetDraft)
	activities.POST("/:id/draft", student, h.SaveDraft)
	activities.DELETE("/:id/draft", student, h.ClearDraft)
	activities.POST("/:id/snapshots", student, h.CreateSnapshot)
	activities.GET("/:id/snapshots", student, h.SnapshotHistory)
	activities.GET("/:id/classification", student, h.ClassifyRevisions)
	activities.GET("/:id/classification/:studentId", instructor, h.ClassifyRevisions)
	activities.POST("/:id/hint", student, h.RequestHint)

	// Submissions
	submissions := authed.Group("/submissions")
	submissions.POST("", student, h.Submit)
	submissions.GET("/my", student, h.MySubmissions)
	submissions.GET("/activity/:activityId", instructor, h.ActivitySubmissions)
	submissions.GET("/stats", student, h.SubmissionStats)

	// Monitoring
	monitoringRoutes := authed.Group("/monitoring")
	monitoringRoutes.POST("/start", student, h.StartMonitoring)
	monitoringRoutes.POST("/events", student, h.IngestMonitoringEvents)
	monitoringRoutes.POST("/end", student, h.EndMonitoring)

	// Analytics
	analyticsRoutes := authed.Group("/analytics")
	analyticsRoutes.GET("/overview", instructor, h.AnalyticsOverview)
	analyticsRoutes.GET("/live", instructor, h.AnalyticsLive)
	analyticsRoutes.GET("/session/:sessionId", instructor, h.AnalyticsSession)
}
