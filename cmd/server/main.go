/*
main.go - Application entry point

PURPOSE:
  Starts the commission engine HTTP server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (defaults, TOML, .env, CRM_* variables, flags)
  3. Build the zap logger
  4. Open the store (SQLite or PostgreSQL)
  5. Wire the engine, handler and router
  6. Start the scheduler when enabled
  7. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -config  TOML configuration file (default: config.toml, optional)
  -env     .env file (default: .env, optional)
  -port    HTTP server port (overrides configuration)
  -db      SQLite database path (overrides configuration)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the database connection

EXAMPLES:
  # Run with a file database
  ./server -db="./data/crm.db"

  # Run against PostgreSQL
  CRM_DB_DRIVER=postgres CRM_DB_DSN="postgres://crm@localhost/crm" ./server

SEE ALSO:
  - config/config.go: Configuration sources
  - api/server.go: Router configuration
  - engine/engine.go: Component wiring
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/commission-engine/api"
	"github.com/warp/commission-engine/config"
	"github.com/warp/commission-engine/engine"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// Flags
	configPath := flag.String("config", "config.toml", "TOML configuration file")
	envPath := flag.String("env", ".env", "dotenv file")
	port := flag.Int("port", 0, "HTTP server port")
	dbPath := flag.String("db", "", "SQLite database path")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.Path = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	db, err := cfg.Database.Open(ctx, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	objectivesOpts, exceptions, err := cfg.EngineOptions()
	if err != nil {
		return err
	}
	e := engine.New(db, engine.Options{Objectives: objectivesOpts, JanuaryExceptions: exceptions}, logger)

	router := api.NewRouter(api.NewHandler(e, logger), api.RouterOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		Log:         logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	scheduler := api.NewScheduler(e, cfg.Scheduler.Interval.Duration, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Start()
	defer scheduler.Stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("driver", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
