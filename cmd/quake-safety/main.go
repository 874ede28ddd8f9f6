package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/mr1hm/go-quake-safety/internal/api"
	"github.com/mr1hm/go-quake-safety/internal/app"
	"github.com/mr1hm/go-quake-safety/internal/broadcast"
	"github.com/mr1hm/go-quake-safety/internal/config"
	"github.com/mr1hm/go-quake-safety/internal/ingestion"
	"github.com/mr1hm/go-quake-safety/internal/logging"
	"github.com/mr1hm/go-quake-safety/internal/repository"
	"github.com/mr1hm/go-quake-safety/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "quake_source", cfg.Upstream.QuakeSource)

	if err := os.MkdirAll(filepath.Dir(cfg.DB.Path), 0o755); err != nil {
		logging.Fatalf("Failed to create database directory: %v", err)
	}
	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := telemetry.NewMetrics()

	// Fans ingested events out to SSE clients
	broadcaster := broadcast.NewBroadcaster()

	mgr := ingestion.NewManager(cfg, db, broadcaster, metrics, app.Pollers(cfg, metrics)...)
	mgr.Start(ctx)

	// IP geolocation would locate this host rather than the caller, so the
	// server only falls back to the configured default.
	svc, err := app.NewService(cfg, db, app.Locator(cfg, false, metrics), metrics)
	if err != nil {
		logging.Fatalf("Failed to build service: %v", err)
	}

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router, err := api.NewEngine(cfg.Server.TrustedProxies)
	if err != nil {
		logging.Fatalf("Failed to build router: %v", err)
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RequestIDMiddleware())
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(svc, db, broadcaster, metrics)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	mgr.Stop()
	broadcaster.Close() // Close all streams gracefully

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}
