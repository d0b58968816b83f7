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

	_ "github.com/sh1v-ansh/cs426-final/api/swagger"
	"github.com/sh1v-ansh/cs426-final/internal/clients"
	"github.com/sh1v-ansh/cs426-final/internal/handler"
	"github.com/sh1v-ansh/cs426-final/internal/middleware"
	"github.com/sh1v-ansh/cs426-final/internal/repository"
	"github.com/sh1v-ansh/cs426-final/internal/service"
	"github.com/sh1v-ansh/cs426-final/pkg/cache"
	"github.com/sh1v-ansh/cs426-final/pkg/config"
	"github.com/sh1v-ansh/cs426-final/pkg/database"
	"github.com/sh1v-ansh/cs426-final/pkg/logger"
	corsmiddleware "github.com/sh1v-ansh/cs426-final/pkg/middleware/cors"
	reqidmiddleware "github.com/sh1v-ansh/cs426-final/pkg/middleware/requestid"
	"github.com/sh1v-ansh/cs426-final/pkg/queue"
)

// @title Course Enrollment Service
// @version 0.1.0
// @description Coordinates course enrollment across catalog, roster and seat ledger
// @BasePath /
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
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledgerRepo := repository.NewLedgerRepository(db)
	requestRepo := repository.NewRequestRepository(db)

	catalogClient := clients.NewCatalogClient(cfg.Catalog)
	rosterClient := clients.NewRosterClient(cfg.Roster)

	metricsSvc := service.NewMetricsService()

	// The queue handler delegates to the processor, which itself drives the
	// coordinator; the pointer is assigned before workers start.
	var processorSvc *service.ProcessorService
	jobQueue := queue.New(cfg.Queue.Name, rdb, func(ctx context.Context, job queue.Job) error {
		return processorSvc.HandleJob(ctx, job)
	}, queue.Config{
		Workers:    cfg.Queue.Workers,
		MaxRetries: cfg.Queue.MaxRetries,
		RetryDelay: cfg.Queue.RetryDelay,
		Logger:     logr,
		OnExhausted: func(ctx context.Context, job queue.Job) {
			processorSvc.HandleExhausted(ctx, job)
		},
	})

	coordinatorSvc := service.NewCoordinatorService(
		catalogClient, rosterClient, ledgerRepo, requestRepo, jobQueue,
		service.CoordinatorConfig{
			Deadline:     cfg.Submit.Deadline,
			CatalogRetry: service.RetryPolicy{Attempts: cfg.Catalog.RetryAttempts, Backoff: cfg.Catalog.RetryBackoff},
			RosterRetry:  service.RetryPolicy{Attempts: cfg.Roster.RetryAttempts, Backoff: cfg.Roster.RetryBackoff},
		},
		nil, metricsSvc, logr,
	)
	processorSvc = service.NewProcessorService(coordinatorSvc, ledgerRepo, requestRepo, cfg.Queue.PendingThreshold, metricsSvc, logr)
	exportSvc := service.NewExportService(ledgerRepo, logr)

	jobQueue.Start(ctx)
	defer jobQueue.Stop()
	go processorSvc.RunRecovery(ctx, cfg.Queue.RecoveryInterval)
	go pollQueueDepth(ctx, jobQueue, metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/metrics/summary", metricsHandler.Snapshot)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	enrollmentHandler := handler.NewEnrollmentHandler(coordinatorSvc)
	api := r.Group(cfg.APIPrefix)
	api.POST("/enroll", enrollmentHandler.Enroll)
	api.POST("/enroll/async", enrollmentHandler.EnrollAsync)
	api.POST("/drop", enrollmentHandler.Drop)
	api.POST("/drop/async", enrollmentHandler.DropAsync)
	api.GET("/enrollment-status/:correlationId", enrollmentHandler.Status)
	api.GET("/enrollments", enrollmentHandler.List)

	if cfg.Exports.Enabled {
		exportHandler := handler.NewExportHandler(exportSvc)
		api.GET("/courses/:id/roster/export", exportHandler.Roster)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}

func pollQueueDepth(ctx context.Context, q *queue.Queue, metrics *service.MetricsService) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := q.Depth(ctx); err == nil {
				metrics.SetQueueDepth(depth)
			}
		}
	}
}
