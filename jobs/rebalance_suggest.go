package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
	"github.com/odyssey-erp/stockledger/internal/rebalancing"
)

// Suggester computes and optionally opens rebalancing requests.
type Suggester interface {
	Suggest(ctx context.Context) ([]rebalancing.Suggestion, error)
	CreateSuggested(ctx context.Context, actor int64) ([]rebalancing.Request, error)
}

// RebalanceSuggestJob scans overstocked products for transfer candidates.
type RebalanceSuggestJob struct {
	Suggester  Suggester
	AutoCreate bool
	ActorID    int64
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handle executes the asynq task.
func (j *RebalanceSuggestJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Suggester == nil {
		return fmt.Errorf("rebalance suggest job not configured")
	}
	var payload RebalanceSuggestPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
		}
	}
	autoCreate := j.AutoCreate
	if payload.AutoCreate != nil {
		autoCreate = *payload.AutoCreate
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskRebalanceSuggest)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskRebalanceSuggest))

	if autoCreate {
		created, err := j.Suggester.CreateSuggested(ctx, j.ActorID)
		if err != nil {
			return err
		}
		metrics.AddSuggestions(len(created))
		logger.Info("rebalancing requests opened", slog.Int("count", len(created)))
		return nil
	}

	suggestions, err := j.Suggester.Suggest(ctx)
	if err != nil {
		return err
	}
	metrics.AddSuggestions(len(suggestions))
	for _, s := range suggestions {
		logger.Info("rebalancing suggested",
			slog.Int64("product_id", s.ProductID),
			slog.Int64("from_store", s.SourceStoreID),
			slog.Int64("to_store", s.DestinationStoreID),
			slog.Int("quantity", s.Quantity),
		)
	}
	return nil
}

// KeyCleaner prunes processed idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// CleanupJob removes idempotency keys past their retention.
type CleanupJob struct {
	Cleaner   KeyCleaner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle executes the asynq task.
func (j *CleanupJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Cleaner == nil {
		return fmt.Errorf("cleanup job not configured")
	}
	retention := j.Retention
	var payload CleanupPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("decode payload: %w", asynq.SkipRetry)
		}
		if payload.Retention > 0 {
			retention = payload.Retention
		}
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskIdempotencyCleanup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if err := j.Cleaner.Cleanup(ctx, retention); err != nil {
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("idempotency keys pruned", slog.String("job", TaskIdempotencyCleanup), slog.Duration("retention", retention))
	}
	return nil
}
