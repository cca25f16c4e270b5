// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aegisx/aegisgate-go/internal/application/container"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/logging"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/observability/performance"
	"github.com/aegisx/aegisgate-go/internal/infrastructure/persistence/database"
	"github.com/aegisx/aegisgate-go/internal/presentation/http/server"
	"github.com/aegisx/aegisgate-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// Initialize performs the complete startup sequence
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	// Step 1: Logging and performance tracking
	log.Println("Initializing...")
	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	perfTracker := performance.NewTracker(1000)

	// Step 2: Database connection and schema
	logger.Startup().Info("Opening database", "driver", config.DBDriver, "path", config.DBPath)
	dsn := database.DataSourceName(config.DBDriver, config.DBPath, config.DBAuthToken)
	db, err := database.NewConnectionWithLogger(config.DBDriver, dsn, logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	logger.Startup().Info("Database schema verified")

	// Step 3: Dependency injection container
	appContainer, err := container.NewContainer(db, logger, perfTracker)
	if err != nil {
		return fmt.Errorf("failed to build container: %w", err)
	}
	logger.Startup().Info("Dependency injection container created with singleton services")

	// Step 4: Background sweeper for token TTLs and quarantine windows
	logger.Startup().Info("Starting background sweeper", "interval", config.SweepInterval)
	go runSweeper(ctx, appContainer, logger)

	// Step 5: HTTP server
	httpServer := server.New(config.Port, appContainer)
	logger.Startup().Info("HTTP server initialized", "port", config.Port)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+config.Port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"engineMode", config.EngineMode,
		"port", config.Port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()
	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

// runSweeper expires stale tokens and lifts elapsed quarantines on a
// fixed interval until the context is cancelled.
func runSweeper(ctx context.Context, c *container.Container, logger *logging.ChanneledLogger) {
	ticker := time.NewTicker(config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Sweep().Info("Sweeper stopped")
			return
		case <-ticker.C:
			marker := c.PerfTracker.StartOperation("sweep")
			if _, err := c.SessionService.Sweep(); err != nil {
				logger.Sweep().Error("Token sweep failed", "error", err.Error())
				marker.SetError(err)
			}
			if _, err := c.ResolutionService.ReleaseExpiredQuarantines(); err != nil {
				logger.Sweep().Error("Quarantine sweep failed", "error", err.Error())
				marker.SetError(err)
			}
			marker.Complete()
		}
	}
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
}
