package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "github.com/noah-isme/seva-hours-api/api/swagger"
	"github.com/noah-isme/seva-hours-api/internal/handler"
	"github.com/noah-isme/seva-hours-api/internal/repository"
	"github.com/noah-isme/seva-hours-api/internal/router"
	"github.com/noah-isme/seva-hours-api/internal/service"
	"github.com/noah-isme/seva-hours-api/pkg/cache"
	"github.com/noah-isme/seva-hours-api/pkg/config"
	"github.com/noah-isme/seva-hours-api/pkg/database"
	"github.com/noah-isme/seva-hours-api/pkg/googleauth"
	"github.com/noah-isme/seva-hours-api/pkg/jobs"
	"github.com/noah-isme/seva-hours-api/pkg/logger"
	"github.com/noah-isme/seva-hours-api/pkg/messaging"
	corsmiddleware "github.com/noah-isme/seva-hours-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/seva-hours-api/pkg/middleware/requestid"
	"github.com/noah-isme/seva-hours-api/pkg/storage"
)

// @title Seva Hours API
// @version 1.0.0
// @description Service-hours tracking and attendance reconciliation
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	producer := messaging.NewProducer(cfg.Kafka, logr)
	defer producer.Close() //nolint:errcheck

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Dashboard.CacheTTL, logr, redisClient != nil)

	admins := repository.NewAdminRepository(db)
	students := repository.NewStudentRepository(db)
	events := repository.NewEventRepository(db)

	notificationSvc := service.NewNotificationService(service.NotificationServiceParams{
		Store:     repository.NewNotificationRepository(db),
		Publisher: producer,
		Admins:    admins,
		Validator: validate,
		Metrics:   metrics,
		Logger:    logr,
	})
	queue := jobs.NewQueue("notifications", notificationSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.Retries,
		Logger:     logr,
	})
	queue.Start(context.Background())
	defer queue.Stop()
	notificationSvc.UseQueue(queue)

	authSvc := service.NewAuthService(admins, students, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		AdminPasskey:      cfg.Org.AdminPasskey,
		OrgDomain:         cfg.Org.Domain,
	})
	google := googleauth.New(cfg.Google.ClientIDs...)
	if !google.Configured() {
		logr.Info("google sign-in disabled, GOOGLE_CLIENT_ID is empty")
	}
	authSvc.UseGoogleVerifier(google)
	studentSvc := service.NewStudentService(service.StudentServiceParams{
		Repo:      students,
		Notifier:  notificationSvc,
		Cache:     cacheSvc,
		Validator: validate,
		Logger:    logr,
		OrgDomain: cfg.Org.Domain,
	})
	eventSvc := service.NewEventService(events, students, notificationSvc, validate, logr)

	attendanceParams := service.AttendanceServiceParams{
		Events:    events,
		Students:  students,
		Ledger:    repository.NewLedgerRepository(db),
		Notifier:  notificationSvc,
		Cache:     cacheSvc,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr,
	}
	if cfg.Attendance.ArchiveEnabled {
		archive, err := storage.NewLocalStorage(cfg.Attendance.ArchiveDir)
		if err != nil {
			return fmt.Errorf("init upload archive: %w", err)
		}
		attendanceParams.Archive = archive
	}
	attendanceSvc := service.NewAttendanceService(attendanceParams)
	dashboardSvc := service.NewDashboardService(repository.NewDashboardRepository(db), cacheSvc, logr, service.DashboardServiceConfig{
		CacheTTL: cfg.Dashboard.CacheTTL,
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))

	router.Register(r, router.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Students:      handler.NewStudentHandler(studentSvc),
		Events:        handler.NewEventHandler(eventSvc),
		Attendance:    handler.NewAttendanceHandler(attendanceSvc, cfg.Attendance.MaxUploadBytes),
		Dashboard:     handler.NewDashboardHandler(dashboardSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Metrics:       handler.NewMetricsHandler(metrics, readinessChecks(db, cacheRepo)),
	}, router.Options{
		APIPrefix:       cfg.APIPrefix,
		Tokens:          authSvc,
		Audit:           admins,
		Observer:        metrics,
		Logger:          logr,
		EnableDashboard: cfg.Dashboard.Enabled,
		EnableDocs:      cfg.Env != config.EnvProduction,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func readinessChecks(db *sqlx.DB, cacheRepo *repository.CacheRepository) map[string]handler.Pinger {
	return map[string]handler.Pinger{
		"database": handler.PingFunc(db.PingContext),
		"redis":    cacheRepo,
	}
}
