package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/masterinventory"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

// InventorySyncer recomputes master inventory rows.
type InventorySyncer interface {
	SyncInventory(ctx context.Context, productID int64) (masterinventory.MasterInventory, error)
	SyncAllInventories(ctx context.Context) (masterinventory.SyncReport, error)
}

// Locker hands out exclusive leases keyed by name.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*cache.Lock, error)
}

// SyncAllJob reconciles every master inventory row against its batches.
type SyncAllJob struct {
	syncer  InventorySyncer
	locker  Locker
	lockTTL time.Duration
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSyncAllJob constructs the reconciliation job. A nil locker runs without a lease.
func NewSyncAllJob(syncer InventorySyncer, locker Locker, lockTTL time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *SyncAllJob {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	return &SyncAllJob{syncer: syncer, locker: locker, lockTTL: lockTTL, logger: logger, metrics: metrics}
}

// Handle executes the asynq task.
func (j *SyncAllJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.syncer == nil {
		return fmt.Errorf("sync all job not configured")
	}
	var payload SyncAllPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
		}
	}

	tracker := j.jobMetrics().Track(TaskInventorySyncAll)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.log()
	if j.locker != nil {
		lock, err := j.locker.Acquire(ctx, shared.InventorySyncLockKey, j.lockTTL)
		if errors.Is(err, cache.ErrLocked) {
			logger.Info("inventory sync already running, skipping")
			return nil
		}
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("release sync lock", slog.Any("error", err))
			}
		}()
	}

	report, err := j.syncer.SyncAllInventories(ctx)
	if err != nil {
		return err
	}
	j.jobMetrics().ObserveSync(report.Synced, len(report.Failed))
	if len(report.Failed) > 0 {
		logger.Warn("inventory sync finished with failures",
			slog.Int("synced", report.Synced),
			slog.Any("failed", report.Failed),
		)
		return nil
	}
	logger.Info("inventory sync finished", slog.Int("synced", report.Synced))
	return nil
}

func (j *SyncAllJob) jobMetrics() *jobmetrics.Metrics {
	if j != nil && j.metrics != nil {
		return j.metrics
	}
	return defaultJobMetrics
}

func (j *SyncAllJob) log() *slog.Logger {
	if j != nil && j.logger != nil {
		return j.logger.With(slog.String("job", TaskInventorySyncAll))
	}
	return slog.Default().With(slog.String("job", TaskInventorySyncAll))
}

// SyncProductJob recomputes a single product outside a mutation.
type SyncProductJob struct {
	syncer  InventorySyncer
	locker  Locker
	lockTTL time.Duration
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewSyncProductJob constructs the per product job.
func NewSyncProductJob(syncer InventorySyncer, locker Locker, lockTTL time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *SyncProductJob {
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &SyncProductJob{syncer: syncer, locker: locker, lockTTL: lockTTL, logger: logger, metrics: metrics}
}

// Handle executes the asynq task. A held lease is reported as an error so the task is retried.
func (j *SyncProductJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.syncer == nil {
		return fmt.Errorf("sync product job not configured")
	}
	var payload SyncProductPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.ProductID <= 0 {
		return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
	}

	metrics := j.metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskInventorySyncProduct)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := slog.Default()
	if j.logger != nil {
		logger = j.logger
	}
	logger = logger.With(slog.String("job", TaskInventorySyncProduct), slog.Int64("product_id", payload.ProductID))

	if j.locker != nil {
		lock, err := j.locker.Acquire(ctx, shared.ProductSyncLockKey(payload.ProductID), j.lockTTL)
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	}

	inv, err := j.syncer.SyncInventory(ctx, payload.ProductID)
	if errors.Is(err, shared.ErrValidation) || errors.Is(err, shared.ErrNotFound) {
		logger.Warn("product sync rejected", slog.Any("error", err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	metrics.ObserveSync(1, 0)
	logger.Info("product synced", slog.Int("total", inv.TotalQuantity), slog.String("status", string(inv.StockStatus)))
	return nil
}
