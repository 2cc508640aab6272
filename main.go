package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nimbleworks/chatrelay/internal/cache"
	"github.com/nimbleworks/chatrelay/internal/config"
	"github.com/nimbleworks/chatrelay/internal/policy"
	"github.com/nimbleworks/chatrelay/internal/remote"
	"github.com/nimbleworks/chatrelay/internal/service"
	"github.com/nimbleworks/chatrelay/internal/state"
	v1 "github.com/nimbleworks/chatrelay/internal/transport/http/v1"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: no .env file loaded: %v", err)
	}

	// Load configuration
	cfg := config.Load()

	log.Printf("Starting chatrelay...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Remote backend: %s", cfg.RemoteBaseURL)
	log.Printf("Database: %s", cfg.DatabaseURL)

	// Initialize offline cache
	offline, err := cache.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize offline cache: %v", err)
	}
	defer offline.Close()

	// Initialize remote backend client
	backend := remote.NewClient(cfg.RemoteBaseURL, cfg.RemoteAPIToken, cfg.LLMTimeout)

	// Initialize credential policy engine
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize service
	svc := service.New(state.NewStore(), offline, backend, policyEngine, service.Config{
		UserID:       cfg.DefaultUserID,
		SyncInterval: cfg.SyncInterval,
		SyncMinGap:   cfg.SyncMinGap,
		MaxAttempts:  cfg.SyncMaxAttempts,
		BackoffBase:  cfg.SyncBackoffBase,
		OnSyncFailure: func(err error) {
			log.Printf("ERROR: sync exhausted retries: %v", err)
		},
	})

	// Hydrate from the offline cache, then reconcile in the background
	svc.Hydrate(ctx)
	svc.StartInboundSync(ctx)

	// Initialize handler
	h := v1.NewHandler(svc)

	// Create Echo server
	server := echo.New()
	server.HideBanner = true

	// Middleware
	server.Use(middleware.Logger())
	server.Use(middleware.Recover())
	server.Use(middleware.CORS())

	// Register routes
	h.RegisterRoutes(server)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down chatrelay...")

	// Stop the sync loop before the server so no pass races shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("chatrelay stopped")
}
