package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"webchat-backend/internal/config"
	"webchat-backend/internal/logger"
	"webchat-backend/internal/queue"
	"webchat-backend/internal/session"
	"webchat-backend/internal/telemetry"
	"webchat-backend/middleware"
	"webchat-backend/routes"
	"webchat-backend/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Telemetry is opt-in; traces are dropped without a collector.
	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.InitTracer("webchat-backend", cfg.OTLPEndpoint)
		if err != nil {
			logger.Warn("tracer init failed, continuing without traces", "error", err)
		} else {
			defer shutdown()
		}
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	sessions := session.NewManager(cfg)

	// Sessions live in process memory, so the background worker runs
	// embedded rather than as a separate binary.
	var queueClient *queue.Client
	var worker *queue.Server
	if cfg.WorkerEnabled {
		queueClient = queue.NewClient(cfg)
		worker = queue.NewServer(cfg, sessions)
		if err := worker.Start(); err != nil {
			log.Fatal("Failed to start background worker:", err)
		}
	}

	sweeper := services.NewSweeperService(cfg, sessions)
	if err := sweeper.Start(); err != nil {
		log.Fatal("Failed to start session sweeper:", err)
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))

	// Rate limiting needs Redis; without it the limiter is skipped.
	if rdb, err := config.NewRedisClient(cfg); err != nil {
		logger.Warn("redis unavailable, rate limiting disabled", "error", err)
	} else {
		router.Use(middleware.RateLimitMiddleware(rdb, cfg))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"sessions":  sessions.Count(),
			"timestamp": time.Now(),
		})
	})

	// Setup routes
	routes.SetupSessionRoutes(router, sessions)
	routes.SetupChatRoutes(router, sessions, queueClient, metrics)
	routes.SetupExportRoutes(router, sessions, services.NewExportService())

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "provider", cfg.DefaultProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	sweeper.Stop()
	if worker != nil {
		worker.Shutdown()
	}
	if queueClient != nil {
		queueClient.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("server exited")
}
