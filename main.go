package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rigel07/invoice-extractor/config"
	"github.com/Rigel07/invoice-extractor/handler"
	"github.com/Rigel07/invoice-extractor/middleware"
	"github.com/Rigel07/invoice-extractor/pkg/logger"
	"github.com/Rigel07/invoice-extractor/service"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully", "providers", len(cfg.Providers))

	// Select the persistence backend
	var store service.KVStore
	switch cfg.Storage.Backend {
	case "redis":
		redisStore, err := service.NewRedisStore(&cfg.Storage.Redis)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore
	default:
		store = service.NewMemoryStore()
	}
	slog.Info("storage backend initialized", "backend", cfg.Storage.Backend)

	// Optional object-storage archival
	var archive *service.ArchiveService
	if cfg.Archive.Enabled {
		archive, err = service.NewArchiveService(&cfg.Archive)
		if err != nil {
			slog.Error("failed to initialize archive service", "error", err)
			os.Exit(1)
		}
		if err := archive.EnsureBucket(context.Background()); err != nil {
			slog.Error("failed to ensure archive bucket", "error", err)
			os.Exit(1)
		}
	}

	// Core services
	registry := service.NewProviderRegistry(cfg.Providers, &cfg.Extraction)
	cache := service.NewContentCache(store, time.Duration(cfg.Cache.TTLHours)*time.Hour)
	invoker := service.NewGeminiInvoker(time.Duration(cfg.Extraction.CallTimeoutSeconds) * time.Second)
	extractor := service.NewExtractor(registry, invoker, cache, &cfg.Extraction)
	jobs := service.NewJobService(store, extractor, archive, &cfg.Jobs, &cfg.Extraction)
	synth := service.NewLedgerSynthesizer()

	// Handlers
	authHandler := handler.NewAuthHandler(cfg)
	jobHandler := handler.NewJobHandler(jobs, synth, archive)
	providerHandler := handler.NewProviderHandler(registry)
	systemHandler := handler.NewSystemHandler(jobs, registry)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New() // Use New() instead of Default() to avoid default middleware

	// Add custom middleware
	router.Use(middleware.RequestID())                 // Request ID for tracing
	router.Use(middleware.Recovery())                  // Panic recovery
	router.Use(middleware.RequestLogger())             // Access logging
	router.Use(corsMiddleware())                       // CORS
	router.Use(middleware.RateLimit(100, time.Minute)) // Rate limiting: 100 requests per minute

	// Health check and diagnostics
	router.GET("/health", systemHandler.Health)
	router.GET("/stats", systemHandler.Stats)

	// Public routes
	api := router.Group("/api")
	{
		api.POST("/auth/login", authHandler.Login)
		api.POST("/jobs", jobHandler.Create)
		api.GET("/jobs/:id/status", jobHandler.Status)
		api.GET("/jobs/:id/ledger", jobHandler.Ledger)
		api.GET("/jobs/:id/ledger.xml", jobHandler.LedgerXML)
		api.GET("/jobs/:id/export.csv", jobHandler.ExportCSV)
		api.GET("/providers/health", providerHandler.Health)
	}

	// Protected routes
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(&cfg.Auth))
	{
		protected.GET("/auth/me", authHandler.GetCurrentUser)
		protected.POST("/providers/reset", providerHandler.Reset)
	}

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
