package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/internal/app"
	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/masterinventory"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/rebalancing"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/jobs"
)

const idempotencyRetention = 7 * 24 * time.Hour

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	inventoryService := masterinventory.NewService(
		masterinventory.NewRepository(pool),
		masterinventory.NewCache(redisClient, cfg.InventoryCacheTTL),
		logger,
		masterinventory.ServiceConfig{Concurrency: cfg.SyncConcurrency},
	)
	rebalancingService := rebalancing.NewService(rebalancing.NewRepository(pool), inventoryService, logger)

	jobMetrics := jobmetrics.NewMetrics(nil)
	locker := cache.NewLocker(redisClient)

	syncAllJob := jobs.NewSyncAllJob(inventoryService, locker, cfg.SyncLockTTL, logger, jobMetrics)
	syncProductJob := jobs.NewSyncProductJob(inventoryService, locker, time.Minute, logger, jobMetrics)
	suggestJob := &jobs.RebalanceSuggestJob{
		Suggester:  rebalancingService,
		AutoCreate: cfg.RebalanceAutoCreate,
		ActorID:    cfg.RebalanceActorID,
		Logger:     logger,
		Metrics:    jobMetrics,
	}
	cleanupJob := &jobs.CleanupJob{
		Cleaner:   shared.NewIdempotencyStore(pool),
		Retention: idempotencyRetention,
		Logger:    logger,
		Metrics:   jobMetrics,
	}

	syncAllTask, err := jobs.NewSyncAllTask(time.Now().UTC())
	if err != nil {
		logger.Error("build sync task", slog.Any("error", err))
		os.Exit(1)
	}
	suggestTask, err := jobs.NewRebalanceSuggestTask(nil)
	if err != nil {
		logger.Error("build suggest task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewCleanupTask(idempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInventorySyncAll, Handler: syncAllJob.Handle},
			{Type: jobs.TaskInventorySyncProduct, Handler: syncProductJob.Handle},
			{Type: jobs.TaskRebalanceSuggest, Handler: suggestJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SyncAllCron, Task: syncAllTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.RebalanceSuggestCron, Task: suggestTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 4 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
