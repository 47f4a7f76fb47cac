/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the billing engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and the yaml/env configuration
  2. Parse command-line flags (flags win over config)
  3. Initialize SQLite store and seed the global floor
  4. Assemble the billing engine and API handler
  5. Start the notification sweep scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides BILLING_PORT)
  -db      SQLite database path (overrides BILLING_DB_PATH)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweep scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/billing.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

ENVIRONMENT:
  BILLING_CONFIG, BILLING_PORT, BILLING_DB_PATH, BILLING_TIMEZONE,
  BILLING_WEEKLY_BASE, BILLING_WORKING_DAYS, BILLING_GLOBAL_FLOOR,
  BILLING_NOTIFY_OFFSET_DAYS. A .env file in the working directory is
  loaded first.

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration loading
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/warp/billing-engine/api"
	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/config"
	"github.com/warp/billing-engine/store/sqlite"
)

func main() {
	// .env is optional; real env always wins.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Flags (override config)
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Assemble the engine
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	engine, err := billing.New(store, engineCfg)
	if err != nil {
		log.Fatalf("Failed to assemble billing engine: %v", err)
	}

	// Seed the global counting floor when configured and not yet set.
	if floor, err := cfg.FloorDay(); err != nil {
		log.Fatalf("Invalid global floor: %v", err)
	} else if floor != nil {
		existing, err := engine.GlobalFloor(context.Background())
		if err != nil {
			log.Fatalf("Failed to read global floor: %v", err)
		}
		if existing == nil {
			if err := engine.SetGlobalFloor(context.Background(), *floor); err != nil {
				log.Fatalf("Failed to set global floor: %v", err)
			}
			log.Printf("Global counting floor set to %s", floor)
		}
	}

	// Initialize handler and router
	handler := api.NewHandler(engine)
	router := api.NewRouter(handler)

	// Start the notification sweep scheduler
	scheduler := api.NewSweepScheduler(engine)
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
