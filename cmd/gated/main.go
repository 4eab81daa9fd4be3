package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"gate-attendance-backend/config"
	"gate-attendance-backend/internal/app"
	"gate-attendance-backend/internal/db"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "gate-attendance ", log.LstdFlags)

	// A local .env is optional.
	if err := godotenv.Load(); err == nil {
		logger.Println("loaded environment from .env")
	}

	configPath := pflag.StringP("config", "c", "", "path to the YAML configuration file")
	pflag.Parse()
	if *configPath == "" {
		*configPath = os.Getenv("CONFIG_PATH")
	}
	if *configPath == "" {
		*configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", *configPath, err)
	}
	logger.Printf("configuration loaded from %s", *configPath)

	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Printf("database initialized (%s)", cfg.Database.Driver)

	application, err := app.New(cfg, gormDB, nil)
	if err != nil {
		logger.Fatalf("failed to assemble services: %v", err)
	}
	defer application.Close()
	logger.Printf("canonical timezone %s, device offset %s", application.Clock.Location(), cfg.Clock.DeviceOffset)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           application.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return application.Run(ctx)
	})
	g.Go(func() error {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Println("Shutdown signal received, stopping services...")

		// Create a deadline to wait for.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("server stopped with error: %v", err)
	}
	logger.Println("Server gracefully stopped")
}
