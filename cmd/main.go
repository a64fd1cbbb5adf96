package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"netgiropay/internal/bootstrap"
	"netgiropay/internal/config"
	cronpkg "netgiropay/internal/cron"
	"netgiropay/internal/events"
	"netgiropay/internal/handler"
	"netgiropay/internal/handler/api"
	"netgiropay/internal/metrics"
	"netgiropay/internal/middleware"
	"netgiropay/internal/payment"
	"netgiropay/internal/pkg/telegram"
	"netgiropay/internal/repository"
	"netgiropay/internal/router"
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
		if err := runDBBootstrap(logger, hasArg("--seed-demo")); err != nil {
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
	settings := cfg.Gateway.Settings()

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.MigrateAndSeed(db, false); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}
	orders := repository.NewOrderRepository(db)

	// --- Events (Kafka and Telegram, both optional) ---
	var publishers events.Multi
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := events.NewSyncProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			logger.Fatal("Failed to create Kafka producer", zap.Error(err))
		}
		kafka := events.NewKafkaPublisher(producer, cfg.Kafka.Topic)
		defer kafka.Close()
		publishers = append(publishers, kafka)
	}
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != "" {
		botAPI := telegram.NewBotAPI(cfg.Telegram.Token, cfg.Telegram.BaseURL)
		publishers = append(publishers, events.NewTelegramReporter(botAPI, cfg.Telegram.ChatID, settings.ShopName))
	}

	// --- Payment ---
	m := metrics.New(prometheus.DefaultRegisterer)
	client := payment.NewClient(settings, logger, m)
	processor := payment.NewProcessor(settings, orders, publishers, logger, m)
	gateway := payment.NewGateway(orders, client, publishers, logger)

	// --- Callback guard (Redis with in-memory fallback) ---
	guard, guardErr := middleware.NewInFlightGuard(cfg.Redis.Addr, cfg.Redis.Pass, cfg.Redis.DB, cfg.Redis.GuardTTL)
	if guardErr != nil {
		logger.Warn("Redis unavailable for callback guard, using in-memory fallback", zap.Error(guardErr))
	}

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Routes ---
	router.Setup(e, router.Deps{
		Netgiro:    handler.NewNetgiroHandler(settings, orders, processor, logger),
		Orders:     api.NewOrderHandler(orders, gateway, logger),
		Guard:      guard,
		GuardWait:  cfg.Redis.GuardWait,
		Gatherer:   prometheus.DefaultGatherer,
		APIKey:     cfg.Admin.APIKey,
		APIKeyHash: cfg.Admin.APIKeyHash,
		Logger:     logger,
	})

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(cfg.Reconcile, gateway, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start cron scheduler", zap.Error(err))
	}

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting Netgíró gateway server",
			zap.String("addr", addr),
			zap.Bool("test_mode", settings.TestMode),
			zap.String("confirmation_type", settings.ConfirmationType.String()),
		)
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

func runDBBootstrap(logger *zap.Logger, seedDemo bool) error {
	dbCfg, err := config.LoadDatabaseOnly()
	if err != nil {
		return err
	}
	db, err := config.NewDatabase(dbCfg, logger)
	if err != nil {
		return err
	}
	if err := bootstrap.MigrateAndSeed(db, seedDemo); err != nil {
		return err
	}
	logger.Info("Schema migration completed", zap.Bool("demo_seed", seedDemo))
	return nil
}
