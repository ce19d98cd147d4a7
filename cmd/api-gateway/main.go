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

	_ "github.com/colegio-gt/unidades-api/api/swagger"
	"github.com/colegio-gt/unidades-api/internal/handler"
	"github.com/colegio-gt/unidades-api/internal/middleware"
	"github.com/colegio-gt/unidades-api/internal/models"
	"github.com/colegio-gt/unidades-api/internal/repository"
	"github.com/colegio-gt/unidades-api/internal/service"
	"github.com/colegio-gt/unidades-api/pkg/cache"
	"github.com/colegio-gt/unidades-api/pkg/config"
	"github.com/colegio-gt/unidades-api/pkg/database"
	"github.com/colegio-gt/unidades-api/pkg/logger"
	corsmiddleware "github.com/colegio-gt/unidades-api/pkg/middleware/cors"
	reqidmiddleware "github.com/colegio-gt/unidades-api/pkg/middleware/requestid"
)

// @title Unidades API
// @version 1.0.0
// @description Unit closure and grade consolidation service
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	// Redis is an accelerator for readiness reads, not a dependency. A
	// failed connection downgrades every lookup to the database.
	var cacheRepo service.CacheRepository
	if redisClient, redisErr := cache.NewRedis(cfg.Redis); redisErr != nil {
		logr.Sugar().Warnw("redis unavailable, readiness cache disabled", "error", redisErr)
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Readiness.CacheTTL, logr)

	unitRepo := repository.NewUnitRepository(db)
	offeringRepo := repository.NewOfferingRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	unitGradeRepo := repository.NewUnitGradeRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	readinessRepo := repository.NewReadinessRepository(db)
	reopeningRepo := repository.NewReopeningRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	readinessSvc := service.NewReadinessService(db, unitRepo, offeringRepo, activityRepo,
		gradeRepo, enrollmentRepo, readinessRepo, cacheSvc, logr)
	unitSvc := service.NewUnitService(db, unitRepo, offeringRepo, nil, logr)
	activitySvc := service.NewActivityService(db, activityRepo, unitRepo, offeringRepo,
		enrollmentRepo, gradeRepo, readinessSvc, nil, logr)
	gradeSvc := service.NewGradeService(db, gradeRepo, activityRepo, unitRepo,
		offeringRepo, readinessSvc, nil, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, unitRepo,
		offeringRepo, readinessRepo, readinessSvc, service.NotificationConfig{
			Enabled:          cfg.Notifications.Enabled,
			DeadlineFallback: cfg.Notifications.DeadlineFallback,
			WorkerCount:      cfg.Notifications.WorkerConcurrency,
		}, metricsSvc, logr)
	closureSvc := service.NewClosureService(db, unitRepo, offeringRepo, enrollmentRepo,
		gradeRepo, unitGradeRepo, readinessSvc, cacheSvc, notificationSvc, metricsSvc, logr)
	reopeningSvc := service.NewReopeningService(db, reopeningRepo, unitRepo,
		offeringRepo, nil, metricsSvc, logr)

	unitHandler := handler.NewUnitHandler(unitSvc)
	activityHandler := handler.NewActivityHandler(activitySvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	readinessHandler := handler.NewReadinessHandler(readinessSvc)
	closureHandler := handler.NewClosureHandler(closureSvc)
	reopeningHandler := handler.NewReopeningHandler(reopeningSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if cfg.Metrics.Enabled {
		r.Use(middleware.Metrics(metricsSvc))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Metrics.Enabled {
		r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleOperator)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	api.POST("/units", staff, unitHandler.Create)
	api.GET("/units/:id", unitHandler.Get)
	api.POST("/units/:id/activate", staff, unitHandler.Activate)
	api.GET("/offerings/:id/units", unitHandler.ListByOffering)

	api.POST("/activities", activityHandler.Create)
	api.PUT("/activities/:id", activityHandler.Update)
	api.DELETE("/activities/:id", activityHandler.Deactivate)
	api.GET("/units/:id/activities", activityHandler.ListByUnit)

	api.PUT("/grades", gradeHandler.Upsert)
	api.GET("/activities/:id/grades/:studentId", gradeHandler.Get)
	api.POST("/units/:id/students/:studentId/seed", staff, gradeHandler.SeedTransfer)

	api.GET("/units/:id/readiness", readinessHandler.Get)
	api.POST("/units/:id/readiness/evaluate", readinessHandler.Evaluate)

	api.POST("/units/:id/close", adminOnly, closureHandler.Close)
	api.POST("/units/:id/recompute", adminOnly, closureHandler.Recompute)
	api.POST("/offerings/:id/advance", adminOnly, closureHandler.Advance)
	api.GET("/units/:id/grades", closureHandler.UnitGrades)
	api.GET("/units/:id/grades/:studentId", closureHandler.UnitGrade)
	api.GET("/students/:id/grades", closureHandler.StudentGrades)

	api.POST("/reopenings", reopeningHandler.Create)
	api.GET("/reopenings/mine", reopeningHandler.ListMine)
	api.GET("/reopenings/pending", adminOnly, reopeningHandler.ListPending)
	api.POST("/reopenings/:id/process", adminOnly, reopeningHandler.Process)

	api.POST("/units/:id/notifications", staff, notificationHandler.Generate)
	api.GET("/notifications", notificationHandler.List)
	api.POST("/notifications/:id/read", notificationHandler.MarkRead)
	api.DELETE("/notifications/read", notificationHandler.DeleteRead)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()

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
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown incomplete", "error", err)
	}
}
