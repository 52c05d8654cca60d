package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yanga-finance/yanga/internal/api"
	"github.com/yanga-finance/yanga/internal/categorize"
	"github.com/yanga-finance/yanga/internal/config"
	"github.com/yanga-finance/yanga/internal/data/postgres"
	"github.com/yanga-finance/yanga/internal/ingest"
	"github.com/yanga-finance/yanga/internal/logger"
	"github.com/yanga-finance/yanga/internal/platform/persistence"
	"github.com/yanga-finance/yanga/internal/report"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize database with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	// Initialize categorizer assets. The rule table and classifier are
	// startup-fatal when broken; an absent memory map just starts empty.
	rules, err := categorize.LoadRuleTable(cfg.Categorizer.RulesPath)
	if err != nil {
		log.Error("Failed to load rule table", "error", err)
		os.Exit(1)
	}
	classifier, err := categorize.LoadModel(cfg.Categorizer.ModelPath)
	if err != nil {
		log.Error("Failed to load classifier artifact", "error", err)
		os.Exit(1)
	}
	memory := categorize.LoadMemory(cfg.Categorizer.MemoryPath, log)
	resolver := categorize.NewResolver(memory, rules, classifier, log)

	// Initialize repository and services
	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	uploadService, err := ingest.NewUploadService(transactionRepo, resolver, memory, cfg.WorkerPool.Size, cfg.Uploads.Dir, log)
	if err != nil {
		log.Error("Failed to initialize upload service", "error", err)
		os.Exit(1)
	}
	reportService := report.NewService(transactionRepo, log)

	// Initialize REST server
	server := api.NewServer(log, cfg, uploadService, reportService, transactionRepo)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	uploadService.Shutdown()
	postgresDB.Close()

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
