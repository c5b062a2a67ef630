package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/windserver/internal/api/http"
	"github.com/i474232898/windserver/internal/config"
	"github.com/i474232898/windserver/internal/converter"
	"github.com/i474232898/windserver/internal/logger"
	"github.com/i474232898/windserver/internal/scheduler"
	"github.com/i474232898/windserver/internal/store"
	"github.com/i474232898/windserver/internal/weather"
	"github.com/i474232898/windserver/internal/weather/providers"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer appLog.Sync()

	// Snapshot store on the local filesystem.
	snapshots := store.NewFileStore(cfg.DataDir)
	if err := snapshots.EnsureDirs(); err != nil {
		log.Fatalf("failed to prepare data directory: %v", err)
	}
	if n, err := snapshots.RemovePartials(); err != nil {
		appLog.Warn("Failed to clean interrupted writes", logger.Error(err))
	} else if n > 0 {
		appLog.Info("Removed interrupted writes", logger.Int("count", n))
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Upstream with resilience (backoff + circuit breaker).
	gfs := providers.NewGFSProvider(httpClient, providers.GFSConfig{
		BaseURL:    cfg.BaseURL,
		Resolution: cfg.Resolution,
		Wind:       cfg.Wind,
		Temp:       cfg.Temp,
		MaxRetries: cfg.FetchRetries,
	})

	conv := converter.New(converter.Config{
		Binary:    cfg.Grib2JSON,
		Timeout:   cfg.ConvertTimeout,
		MaxOutput: cfg.ConvertMaxOutput,
	}, snapshots, appLog)

	grid, err := weather.NewGrid(weather.DefaultGrid.IntervalHours, weather.DefaultGrid.StepHours)
	if err != nil {
		log.Fatalf("invalid grid: %v", err)
	}
	policy := weather.Policy{
		Grid:              grid,
		Lookback:          cfg.Lookback(),
		MaxForecastOffset: cfg.MaxForecastOffset,
		FetchTimeout:      cfg.HTTPTimeout,
	}

	if err := policy.Validate(); err != nil {
		log.Fatalf("invalid harvest policy: %v", err)
	}

	harvester := weather.NewHarvester(gfs, snapshots, conv, policy, appLog)
	locator := weather.NewLocator(snapshots, policy, appLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Scheduler that harvests at startup and then periodically.
	sched := scheduler.New(ctx, cfg.HarvestInterval, harvester, appLog)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "windserver",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          60 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	// API routes.
	httpapi.RegisterRoutes(app, locator, cfg.CORSOrigins)

	go func() {
		appLog.Info("Running wind server",
			logger.String("port", cfg.Port),
			logger.String("resolution", string(cfg.Resolution)),
			logger.Bool("wind", cfg.Wind),
			logger.Bool("temp", cfg.Temp))
		if err := app.Listen(":" + cfg.Port); err != nil {
			appLog.Error("Fiber server stopped", logger.Error(err))
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		appLog.Error("Error during shutdown", logger.Error(err))
	}
}
