package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/seva-hours-api/internal/handler"
	"github.com/noah-isme/seva-hours-api/internal/middleware"
	"github.com/noah-isme/seva-hours-api/internal/models"
)

// Handlers groups every HTTP handler mounted by the router.
type Handlers struct {
	Auth          *handler.AuthHandler
	Students      *handler.StudentHandler
	Events        *handler.EventHandler
	Attendance    *handler.AttendanceHandler
	Dashboard     *handler.DashboardHandler
	Notifications *handler.NotificationHandler
	Metrics       *handler.MetricsHandler
}

// Options controls route registration.
type Options struct {
	APIPrefix       string
	Tokens          middleware.TokenValidator
	Audit           middleware.AuditRecorder
	Observer        middleware.HTTPObserver
	Logger          *zap.Logger
	EnableDashboard bool
	EnableDocs      bool
}

// Register mounts health checks, docs and the versioned API on r.
func Register(r *gin.Engine, h Handlers, opts Options) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api/v1"
	}
	if opts.Observer != nil {
		r.Use(middleware.Metrics(opts.Observer))
	}

	if h.Metrics != nil {
		r.GET("/health", h.Metrics.Health)
		r.GET("/ready", h.Metrics.Ready)
		r.GET("/metrics", h.Metrics.Prometheus)
	}
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(opts.APIPrefix, middleware.WithResponseMeta())
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(opts.Audit, opts.Logger, action, resource)
	}
	authed := middleware.JWT(opts.Tokens)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	studentOnly := middleware.RequireRoles(models.RoleStudent)

	auth := api.Group("/auth")
	auth.POST("/admin/login", h.Auth.AdminLogin)
	auth.POST("/admin/register", h.Auth.AdminRegister)
	auth.POST("/admin/google-login", h.Auth.AdminGoogleLogin)
	auth.POST("/student/login", h.Auth.StudentLogin)
	auth.POST("/student/google-login", h.Auth.StudentGoogleLogin)
	auth.GET("/me", authed, h.Auth.Me)

	students := api.Group("/students")
	students.POST("/register", h.Students.Register)
	students.GET("/status/:rollNo", h.Students.Status)
	students.GET("/profile/:rollNo", h.Students.PublicProfile)
	students.GET("/profile/:rollNo/events", h.Students.PublicLedger)
	students.GET("/leaderboard", h.Students.Leaderboard)
	students.GET("/me", authed, studentOnly, h.Students.Me)
	students.GET("/me/events", authed, studentOnly, h.Students.MyLedger)

	adminStudents := students.Group("", authed, adminOnly)
	adminStudents.GET("", h.Students.List)
	adminStudents.GET("/pending", h.Students.Pending)
	adminStudents.GET("/export", h.Students.Export)
	adminStudents.GET("/:id", h.Students.Get)
	adminStudents.PATCH("/:id/approve", audit(models.AuditActionStudentApprove, "student"), h.Students.Approve)
	adminStudents.PATCH("/:id/reject", audit(models.AuditActionStudentReject, "student"), h.Students.Reject)
	adminStudents.PATCH("/:id/block", audit(models.AuditActionStudentBlock, "student"), h.Students.Block)
	adminStudents.PATCH("/:id/unblock", audit(models.AuditActionStudentUnblock, "student"), h.Students.Unblock)
	adminStudents.PUT("/:id", audit(models.AuditActionStudentUpdate, "student"), h.Students.Update)
	adminStudents.DELETE("/:id", audit(models.AuditActionStudentDelete, "student"), h.Students.Delete)

	events := api.Group("/events")
	events.GET("", h.Events.List)
	events.GET("/upcoming", h.Events.Upcoming)
	events.GET("/attendance/template", authed, adminOnly, h.Attendance.Template)
	events.GET("/export", authed, adminOnly, h.Events.Export)
	events.GET("/:id", h.Events.Get)
	events.POST("/:id/register", authed, studentOnly, h.Events.Register)
	events.POST("/:id/unregister", authed, studentOnly, h.Events.Unregister)

	adminEvents := events.Group("", authed, adminOnly)
	adminEvents.POST("", audit(models.AuditActionEventCreate, "event"), h.Events.Create)
	adminEvents.PATCH("/:id/complete", audit(models.AuditActionEventComplete, "event"), h.Events.Complete)
	adminEvents.GET("/:id/attendance", h.Events.Attendance)
	adminEvents.GET("/:id/attendance/export", h.Attendance.Export)
	adminEvents.POST("/:id/attendance/upload", audit(models.AuditActionAttendanceUpload, "event"), h.Attendance.Upload)
	adminEvents.POST("/:id/attendance/manual", audit(models.AuditActionAttendanceManual, "event"), h.Attendance.ManualCredit)
	adminEvents.POST("/:id/attendance/bonus", audit(models.AuditActionAttendanceBonus, "event"), h.Attendance.Bonus)

	api.GET("/reports/hours", authed, adminOnly, h.Students.HoursReport)

	if opts.EnableDashboard && h.Dashboard != nil {
		api.GET("/dashboard", authed, adminOnly, h.Dashboard.Admin)
	}
	if h.Metrics != nil {
		api.GET("/admin/metrics", authed, adminOnly, h.Metrics.Snapshot)
	}

	notifications := api.Group("/notifications", authed)
	notifications.GET("", h.Notifications.List)
	notifications.GET("/unread-count", h.Notifications.UnreadCount)
	notifications.PATCH("/read-all", h.Notifications.MarkAllRead)
	notifications.PATCH("/:id/read", h.Notifications.MarkRead)
	notifications.DELETE("/:id", h.Notifications.Delete)
	notifications.POST("", adminOnly, audit(models.AuditActionNotificationSend, "notification"), h.Notifications.Send)
}
