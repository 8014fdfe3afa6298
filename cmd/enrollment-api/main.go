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
	"go.uber.org/zap"

	_ "github.com/learnsphere/enrollment-api/api/swagger"
	"github.com/learnsphere/enrollment-api/internal/client"
	"github.com/learnsphere/enrollment-api/internal/events"
	"github.com/learnsphere/enrollment-api/internal/handler"
	"github.com/learnsphere/enrollment-api/internal/middleware"
	"github.com/learnsphere/enrollment-api/internal/models"
	"github.com/learnsphere/enrollment-api/internal/repository"
	"github.com/learnsphere/enrollment-api/internal/service"
	"github.com/learnsphere/enrollment-api/pkg/broker"
	"github.com/learnsphere/enrollment-api/pkg/cache"
	"github.com/learnsphere/enrollment-api/pkg/config"
	"github.com/learnsphere/enrollment-api/pkg/database"
	"github.com/learnsphere/enrollment-api/pkg/logger"
	corsmiddleware "github.com/learnsphere/enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/learnsphere/enrollment-api/pkg/middleware/requestid"
	"github.com/learnsphere/enrollment-api/pkg/storage"
)

// @title LearnSphere Enrollment API
// @version 1.0.0
// @description Enrollment, progress tracking, analytics and reporting service
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, cache degrades to pass-through", zap.Error(err))
		redisClient = nil
	}

	channel, err := broker.NewRabbitMQ(cfg.Broker.URL, cfg.Broker.Exchange, logr)
	if err != nil {
		logr.Fatal("failed to connect to broker", zap.Error(err))
	}
	defer channel.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	publisher := events.NewPublisher(channel, metricsSvc, logr)
	validate := validator.New()

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	courseRepo := repository.NewCourseReplicaRepository(db)
	gradeRepo := repository.NewGradeReplicaRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	reportRepo := repository.NewReportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	courseClient := client.NewCourseClient(cfg.Services.CourseBaseURL, cfg.Services.Timeout, logr)
	userClient := client.NewUserClient(cfg.Services.UserBaseURL, cfg.Services.Timeout, logr)

	authSvc := service.NewAuthService(cfg.JWT.Secret, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, courseClient, userClient,
		publisher, cacheSvc, validate, logr)
	analyticsSvc := service.NewAnalyticsService(analyticsRepo, courseRepo, cacheSvc,
		cfg.Analytics.CacheTTL, cfg.Analytics.TrendDays, logr)
	reportSvc := service.NewReportService(reportRepo, courseRepo, publisher, validate, logr)

	runner := events.NewRunner(channel, cfg.Broker.QueuePrefix, metricsSvc, logr)
	runner.Register(
		events.NewCourseCreatedListener(courseRepo, logr),
		events.NewCourseUpdatedListener(courseRepo, logr),
		events.NewCourseDeletedListener(courseRepo, logr),
		events.NewGradeRecordedListener(gradeRepo, logr),
		events.NewGradeDeletedListener(gradeRepo, logr),
		events.NewDiscussionCreatedListener(activityRepo, logr),
	)

	var reportStore *storage.LocalStore
	if cfg.Reports.Enabled {
		reportStore, err = storage.NewLocalStore(cfg.Reports.StorageDir)
		if err != nil {
			logr.Fatal("failed to prepare report storage", zap.Error(err))
		}
		reportWorker := service.NewReportWorker(reportRepo, analyticsSvc, reportStore, publisher,
			metricsSvc, cfg.APIPrefix, cfg.Reports.WorkerConcurrency, cfg.Reports.WorkerRetries, logr)
		reportWorker.Start(ctx)
		defer reportWorker.Stop()

		runner.Register(
			events.NewReportRequestedListener(reportWorker, logr),
			events.NewReportCompletedListener(reportRepo, logr),
		)
	}

	if err := runner.Start(); err != nil {
		logr.Fatal("failed to start event listeners", zap.Error(err))
	}

	healthSvc := service.NewHealthService(map[string]service.Pinger{
		"postgres": service.PingerFunc(db.PingContext),
		"redis": service.PingerFunc(func(ctx context.Context) error {
			if redisClient == nil {
				return nil
			}
			return redisClient.Ping(ctx).Err()
		}),
		"broker": channel,
	}, cfg.Health.ProbeInterval, cfg.Health.ProbeTimeout, logr)
	healthSvc.Start(ctx)

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsSvc)
	reportHandler := handler.NewReportHandler(reportSvc, reportStore)

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
		status := http.StatusOK
		if !healthSvc.Ready() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"dependencies": healthSvc.Status()})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))
	{
		enrollments := api.Group("/enrollments")
		{
			enrollments.POST("", middleware.RequireRoles(models.RoleStudent), enrollmentHandler.Create)
			enrollments.GET("/me", enrollmentHandler.ListMine)
			enrollments.POST("/courses/:courseId/lessons/:lessonId/complete",
				middleware.RequireRoles(models.RoleStudent), enrollmentHandler.CompleteLesson)
			enrollments.POST("/courses/:courseId/reset",
				middleware.RequireRoles(models.RoleStudent), enrollmentHandler.ResetProgress)
			enrollments.POST("/:id/suspend",
				middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), enrollmentHandler.Suspend)
			enrollments.POST("/:id/reinstate",
				middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), enrollmentHandler.Reinstate)
		}

		api.GET("/courses/:courseId/enrollments",
			middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), enrollmentHandler.ListByCourse)

		analytics := api.Group("/analytics")
		{
			analytics.GET("/instructors/:userId",
				middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), analyticsHandler.InstructorSummary)
			analytics.GET("/courses/:courseId",
				middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin), analyticsHandler.CourseSummary)
			analytics.GET("/students/:userId",
				middleware.RBAC(string(models.RoleAdmin), "SELF"), analyticsHandler.StudentSummary)
		}

		if cfg.Reports.Enabled {
			reports := api.Group("/reports")
			reports.Use(middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin))
			{
				reports.POST("", reportHandler.Create)
				reports.GET("", reportHandler.List)
				reports.GET("/:id", reportHandler.Get)
				reports.GET("/:id/download", reportHandler.Download)
			}
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logr.Error("server shutdown failed", zap.Error(err))
	}
}
