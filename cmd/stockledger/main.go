package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/app"
	"github.com/odyssey-erp/stockledger/internal/barcode"
	"github.com/odyssey-erp/stockledger/internal/barcode/shipment"
	"github.com/odyssey-erp/stockledger/internal/dispatch"
	"github.com/odyssey-erp/stockledger/internal/masterinventory"
	"github.com/odyssey-erp/stockledger/internal/movement"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/rebalancing"
	"github.com/odyssey-erp/stockledger/internal/stockops"
	"github.com/odyssey-erp/stockledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	inventoryCache := masterinventory.NewCache(redisClient, cfg.InventoryCacheTTL)
	inventoryService := masterinventory.NewService(masterinventory.NewRepository(dbpool), inventoryCache, logger, masterinventory.ServiceConfig{
		Concurrency: cfg.SyncConcurrency,
	})

	var tracker shipment.Tracker
	if cfg.CarrierTrackingURL != "" {
		tracker = shipment.NewRetrying(shipment.NewHTTPTracker(cfg.CarrierTrackingURL, cfg.CarrierTimeout), shipment.RetryConfig{}, logger)
	}
	barcodeService := barcode.NewService(barcode.NewRepository(dbpool), inventoryService, tracker, logger)
	movementService := movement.NewService(movement.NewMovementQueries(dbpool), logger)
	rebalancingService := rebalancing.NewService(rebalancing.NewRepository(dbpool), inventoryService, logger)
	dispatchService := dispatch.NewService(dispatch.NewRepository(dbpool), inventoryService, logger)
	stockService := stockops.NewService(stockops.NewRepository(dbpool), inventoryService, cfg.Pricing(), logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		BarcodeHandler:     barcode.NewHandler(logger, barcodeService),
		MovementHandler:    movement.NewHandler(logger, movementService),
		InventoryHandler:   masterinventory.NewHandler(logger, inventoryService),
		RebalancingHandler: rebalancing.NewHandler(logger, rebalancingService),
		DispatchHandler:    dispatch.NewHandler(logger, dispatchService),
		StockHandler:       stockops.NewHandler(logger, stockService),
		JobHandler:         jobs.NewHandler(inspector, jobClient, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
