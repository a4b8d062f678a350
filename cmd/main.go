package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"vpngrid/internal/bootstrap"
	"vpngrid/internal/config"
	cronpkg "vpngrid/internal/cron"
	"vpngrid/internal/middleware"
	"vpngrid/internal/panel"
	"vpngrid/internal/pkg/telegram"
	"vpngrid/internal/provision"
	"vpngrid/internal/registry"
	"vpngrid/internal/repository"
	"vpngrid/internal/router"
	"vpngrid/internal/selector"
	"vpngrid/internal/subscription"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if hasArg("--bootstrap-db") {
		if err := runDBBootstrap(logger); err != nil {
			logger.Fatal("Database bootstrap failed", zap.Error(err))
		}
		logger.Info("Database bootstrap completed")
		return
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.MigrateAndSeed(db); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}

	// --- Repositories ---
	clusterRepo := repository.NewClusterRepository(db)
	serverRepo := repository.NewServerRepository(db)
	tariffRepo := repository.NewTariffRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)

	// --- Core services ---
	reg := registry.New(clusterRepo, serverRepo, subRepo, logger)
	loads := selector.NewLoadTracker(serverRepo, subRepo)
	pick := selector.New(reg, loads, selector.Config{
		LoadThreshold: cfg.Selector.LoadThreshold,
		PoolSize:      cfg.Selector.PoolSize,
	}, logger)
	engine := subscription.NewEngine(subRepo, logger)
	panels := panel.NewFactory(cfg.Panel.Timeout)
	orchestrator := provision.NewOrchestrator(pick, panels, engine, tariffRepo, serverRepo,
		cfg.Panel.RetryBackoff, logger)

	// --- Telegram Bot API for operator alerts ---
	botAPI := telegram.NewBotAPI(cfg.Telegram.BotToken)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Payment event deduper (Redis with in-memory fallback) ---
	eventDeduper, dedupeErr := middleware.NewEventDeduper(
		cfg.Redis.Addr,
		cfg.Redis.Pass,
		cfg.Redis.DB,
		24*time.Hour,
	)
	if dedupeErr != nil {
		logger.Warn("Redis unavailable for event dedup, using in-memory fallback", zap.Error(dedupeErr))
	}

	// --- Routes ---
	router.Setup(e, &router.Deps{
		Registry:     reg,
		Loads:        loads,
		Tariffs:      tariffRepo,
		Engine:       engine,
		Orchestrator: orchestrator,
		EventDeduper: eventDeduper,
	}, cfg.API.Key, logger)

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(cfg, &cronpkg.Deps{
		Engine:   engine,
		Servers:  serverRepo,
		Clusters: clusterRepo,
		Loads:    loads,
		Panels:   panels,
	}, botAPI, logger)
	scheduler.Start()

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting vpngrid server", zap.String("addr", addr))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron
	ctx := scheduler.Stop()
	<-ctx.Done()

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}

func runDBBootstrap(logger *zap.Logger) error {
	dbCfg, err := config.LoadDatabaseOnly()
	if err != nil {
		return err
	}
	db, err := config.NewDatabase(dbCfg)
	if err != nil {
		return err
	}
	if err := bootstrap.MigrateAndSeed(db); err != nil {
		return err
	}
	logger.Info("Schema migration and default seed completed")
	return nil
}
