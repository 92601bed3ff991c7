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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/pranavraok/hostelvoice-api/api/swagger"
	"github.com/pranavraok/hostelvoice-api/internal/handler"
	"github.com/pranavraok/hostelvoice-api/internal/middleware"
	"github.com/pranavraok/hostelvoice-api/internal/models"
	"github.com/pranavraok/hostelvoice-api/internal/repository"
	"github.com/pranavraok/hostelvoice-api/internal/service"
	"github.com/pranavraok/hostelvoice-api/pkg/cache"
	"github.com/pranavraok/hostelvoice-api/pkg/config"
	"github.com/pranavraok/hostelvoice-api/pkg/database"
	"github.com/pranavraok/hostelvoice-api/pkg/jobs"
	"github.com/pranavraok/hostelvoice-api/pkg/logger"
	corsmiddleware "github.com/pranavraok/hostelvoice-api/pkg/middleware/cors"
	reqidmiddleware "github.com/pranavraok/hostelvoice-api/pkg/middleware/requestid"
	"github.com/pranavraok/hostelvoice-api/pkg/storage"
)

// @title HostelVoice API
// @version 1.0.0
// @description Hostel issue reporting and duplicate merge service
// @BasePath /api/v1
// @schemes http
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	issueRepo := repository.NewIssueRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	lostFoundRepo := repository.NewLostFoundRepository(db)
	residentRepo := repository.NewResidentRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	reportRepo := repository.NewReportRepository(db)
	uploadRepo := repository.NewUploadRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Analytics.CacheTTL, logr, cfg.Analytics.Enabled)
	auditSvc := service.NewAuditService(auditRepo, logr)

	notificationSvc := service.NewNotificationService(notificationRepo, logr)
	notificationQueue := jobs.NewQueue("notifications", notificationSvc.ProcessDispatchJob, jobs.QueueConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		BufferSize: cfg.Notifications.QueueBuffer,
		Logger:     logr,
	})
	notificationSvc.AttachQueue(notificationQueue)
	notificationQueue.Start(ctx)
	defer notificationQueue.Stop()

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "hostelvoice-api",
	})
	userSvc := service.NewUserService(userRepo, notificationSvc, nil, logr)
	issueSvc := service.NewIssueService(issueRepo, notificationSvc, nil, logr)
	mergeSvc := service.NewIssueMergeService(issueRepo, auditSvc, notificationSvc, metricsSvc, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, nil, logr)
	lostFoundSvc := service.NewLostFoundService(lostFoundRepo, notificationSvc, nil, logr)
	residentSvc := service.NewResidentService(residentRepo, nil, logr)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, auditRepo, cacheSvc, metricsSvc, logr)

	uploadStorage, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	uploadSigner := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)
	uploadSvc := service.NewUploadService(uploadRepo, issueRepo, uploadStorage, uploadSigner, auditSvc, logr, service.UploadServiceConfig{
		MaxFileSize:  cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Uploads.AllowedMIMEs,
		APIPrefix:    cfg.APIPrefix,
	})

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		reportStorage, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		reportSigner := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exportSvc := service.NewExportService(issueRepo, analyticsSvc, reportStorage, reportSigner, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Reports.SignedURLTTL,
		}, logr, nil, nil)
		reportWorker := service.NewReportWorker(reportRepo, exportSvc, cfg.Reports.WorkerRetries, logr)
		reportQueue := jobs.NewQueue("reports", reportWorker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportQueue.Start(ctx)
		defer reportQueue.Stop()

		reportSvc = service.NewReportService(reportRepo, reportQueue, exportSvc, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
			MaxRetries:      cfg.Reports.WorkerRetries,
		})
		reportSvc.RecoverPendingJobs(ctx)
		reportSvc.StartCleanup(ctx)
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc, userSvc)
	userHandler := handler.NewUserHandler(userSvc)
	issueHandler := handler.NewIssueHandler(issueSvc, mergeSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	announcementHandler := handler.NewAnnouncementHandler(announcementSvc)
	lostFoundHandler := handler.NewLostFoundHandler(lostFoundSvc)
	residentHandler := handler.NewResidentHandler(residentSvc)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsSvc)
	uploadHandler := handler.NewUploadHandler(uploadSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/register", authHandler.Register)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))
	protected.Use(middleware.WithResponseMeta())
	{
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/me", authHandler.Me)
		protected.POST("/auth/change-password", authHandler.ChangePassword)

		issues := protected.Group("/issues")
		{
			issues.GET("", issueHandler.List)
			issues.POST("", issueHandler.Create)
			issues.GET("/:id", issueHandler.Get)
			issues.PUT("/:id",
				middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleWarden),
				issueHandler.Update)
			issues.GET("/:id/duplicates", issueHandler.Duplicates)
			issues.POST("/:id/merge",
				middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleWarden),
				middleware.Audit(auditRepo, models.AuditActionIssueMerge, "issues"),
				issueHandler.Merge)
		}

		notifications := protected.Group("/notifications")
		{
			notifications.GET("", notificationHandler.List)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.PUT("/:id/read", notificationHandler.MarkRead)
			notifications.PUT("/read-all", notificationHandler.MarkAllRead)
		}

		announcements := protected.Group("/announcements")
		{
			announcements.GET("", announcementHandler.List)
			announcements.GET("/:id", announcementHandler.Get)
			staffOnly := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleWarden)
			announcements.POST("", staffOnly, announcementHandler.Create)
			announcements.PUT("/:id", staffOnly, announcementHandler.Update)
			announcements.DELETE("/:id", staffOnly, announcementHandler.Delete)
		}

		lostFound := protected.Group("/lost-found")
		{
			lostFound.GET("", lostFoundHandler.List)
			lostFound.POST("", lostFoundHandler.Create)
			lostFound.GET("/:id", lostFoundHandler.Get)
			lostFound.POST("/:id/claim", lostFoundHandler.Claim)
			lostFound.POST("/:id/resolve",
				middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleWarden),
				lostFoundHandler.Resolve)
			lostFound.DELETE("/:id", lostFoundHandler.Delete)
		}

		residents := protected.Group("/residents")
		residents.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleWarden))
		{
			residents.GET("", residentHandler.List)
			residents.POST("", residentHandler.Create)
			residents.GET("/:id", residentHandler.Get)
			residents.PUT("/:id", residentHandler.Update)
			residents.POST("/:id/check-out", residentHandler.CheckOut)
		}

		users := protected.Group("/users")
		users.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
		{
			users.GET("", userHandler.List)
			users.POST("", userHandler.Create)
			users.GET("/:id", userHandler.Get)
			users.PUT("/:id", userHandler.Update)
			users.POST("/:id/approve", userHandler.Approve)
			users.POST("/:id/reject", userHandler.Reject)
			users.DELETE("/:id", middleware.RequireRoles(models.RoleSuperAdmin), userHandler.Delete)
		}

		uploads := protected.Group("/uploads")
		{
			uploads.GET("", uploadHandler.List)
			uploads.POST("", uploadHandler.Create)
			uploads.GET("/:id", uploadHandler.Get)
			uploads.GET("/:id/download", uploadHandler.Download)
			uploads.DELETE("/:id", uploadHandler.Delete)
		}

		if cfg.Analytics.Enabled {
			analytics := protected.Group("/analytics")
			analytics.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleWarden))
			{
				analytics.GET("/issues", analyticsHandler.Issues)
				analytics.GET("/system", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), analyticsHandler.System)
			}
		}

		if reportSvc != nil {
			reportHandler := handler.NewReportHandler(reportSvc)
			reports := protected.Group("/reports")
			reports.Use(middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleWarden))
			{
				reports.POST("", reportHandler.Generate)
				reports.GET("/:id", reportHandler.Status)
			}
			// Download stays tokenized so links can be shared without a session.
			api.GET("/export/:token", reportHandler.Download)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
