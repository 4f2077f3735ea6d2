package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"codelab/internal/activity"
	"codelab/internal/analytics"
	"codelab/internal/auth"
	"codelab/internal/cache"
	"codelab/internal/config"
	"codelab/internal/db"
	"codelab/internal/fabric"
	"codelab/internal/grading"
	"codelab/internal/handlers"
	"codelab/internal/labsession"
	"codelab/internal/logging"
	"codelab/internal/monitoring"
	"codelab/internal/snapshot"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	if err := godotenv.Load(); err != nil {
		godotenv.Load("../.env")
	}

	cfg := config.Load()
	logging.Init()
	defer logging.Sync()
	log := logging.S()

	if err := cfg.Validate(); err != nil {
		log.Fatalw("invalid configuration", "error", err)
	}

	database, err := db.New(cfg.Database)
	if err != nil {
		log.Fatalw("database connection failed", "error", err)
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		log.Fatalw("migration failed", "error", err)
	}

	liveCache := cache.New(cfg.RedisURL, 5*time.Second)
	defer liveCache.Close()

	jwtService := auth.NewJWTService(cfg.JWTSecret, "codelab", 24*time.Hour)
	authService := auth.NewService(database.DB, jwtService)

	hub := fabric.NewHub()
	sessions := labsession.NewCoordinator(database.DB, hub)
	activities := activity.NewService(database.DB, hub)
	snapshots := snapshot.NewEngine(database.DB)
	grader := grading.NewGrader(database.DB, snapshots, hub)
	pipeline := monitoring.NewPipeline(database.DB, hub, hub)
	analyticsService := analytics.NewService(database.DB, liveCache, hub)

	sweeperStop := make(chan struct{})
	go pipeline.RunSweeper(sweeperStop)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	handler := handlers.New(authService, sessions, activities, snapshots, grader, pipeline, analyticsService, hub)
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Infow("server listening", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Fatalw("server failed", "error", err)
	case sig := <-shutdown:
		log.Infow("shutting down", "signal", sig.String())
	}

	close(sweeperStop)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warnw("graceful shutdown failed", "error", err)
		server.Close()
	}
}
