package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/plantops/workflow-api/api/swagger"
	"github.com/plantops/workflow-api/internal/handler"
	"github.com/plantops/workflow-api/internal/middleware"
	"github.com/plantops/workflow-api/internal/repository"
	"github.com/plantops/workflow-api/internal/service"
	"github.com/plantops/workflow-api/pkg/cache"
	"github.com/plantops/workflow-api/pkg/config"
	"github.com/plantops/workflow-api/pkg/database"
	"github.com/plantops/workflow-api/pkg/export"
	"github.com/plantops/workflow-api/pkg/logger"
	corsmiddleware "github.com/plantops/workflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/plantops/workflow-api/pkg/middleware/requestid"
	"github.com/plantops/workflow-api/pkg/storage"
)

// @title Plant Ops Workflow API
// @version 1.0.0
// @description Approval workflow engine for plant operation requests
// @BasePath /api/v1
// @schemes http

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
		logr.Sugar().Fatalw("failed to connect postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect redis", "error", err)
	}
	defer redisClient.Close()

	blobStore, err := storage.NewLocalStorage(cfg.Attachments.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init attachment storage", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	routeRepo := repository.NewRouteRepository(db)
	appRepo := repository.NewApplicationRepository(db, cfg.Workflow.NumberPrefix, cfg.Workflow.NumberRetries)
	commentRepo := repository.NewCommentRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services
	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	capabilitySvc := service.NewCapabilityService(roleRepo, routeRepo, cacheRepo, metricsSvc, cfg.Workflow.CapabilityCacheTTL, logr)
	notificationSvc := service.NewNotificationService(roleRepo, routeRepo, userRepo, service.NewLogNotifier(logr), metricsSvc, service.NotificationConfig{
		Enabled:    cfg.Notifications.Enabled,
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		BaseURL:    cfg.Notifications.BaseURL,
	}, logr)
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

	workflowSvc := service.NewWorkflowService(appRepo, capabilitySvc, roleRepo, commentRepo, attachmentRepo, notificationSvc, metricsSvc, logr)
	dashboardSvc := service.NewDashboardService(appRepo, capabilitySvc, logr)
	roleSvc := service.NewRoleService(roleRepo, routeRepo, userRepo, capabilitySvc, logr)
	attachmentSvc := service.NewAttachmentService(attachmentRepo, appRepo, blobStore, service.AttachmentPolicy{
		MaxFileSizeBytes:  cfg.Attachments.MaxFileSizeBytes,
		AllowedExtensions: cfg.Attachments.AllowedExtensions,
	}, logr)
	commentSvc := service.NewCommentService(commentRepo, appRepo, logr)
	exportSvc := service.NewExportService(workflowSvc, dashboardSvc, export.NewCSVExporter(), export.NewPDFExporter(), logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, handler.Handlers{
		Auth:        handler.NewAuthHandler(authSvc),
		Application: handler.NewApplicationHandler(workflowSvc, capabilitySvc),
		Dashboard:   handler.NewDashboardHandler(dashboardSvc),
		Admin:       handler.NewAdminHandler(roleSvc),
		Attachment:  handler.NewAttachmentHandler(attachmentSvc),
		Comment:     handler.NewCommentHandler(commentSvc),
		Export:      handler.NewExportHandler(exportSvc),
	}, authSvc, metricsSvc)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
