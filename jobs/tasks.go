package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/stockledger/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventorySyncAll recomputes every stocked product.
	TaskInventorySyncAll = "inventory:sync_all"
	// TaskInventorySyncProduct recomputes one product on demand.
	TaskInventorySyncProduct = "inventory:sync_product"
	// TaskRebalanceSuggest turns overstock into rebalancing suggestions.
	TaskRebalanceSuggest = "inventory:rebalance_suggest"
	// TaskIdempotencyCleanup prunes processed request keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SyncAllPayload carries scheduling metadata.
type SyncAllPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// SyncProductPayload names the product to recompute.
type SyncProductPayload struct {
	ProductID int64 `json:"product_id"`
}

// RebalanceSuggestPayload overrides whether suggestions become requests.
type RebalanceSuggestPayload struct {
	AutoCreate *bool `json:"auto_create,omitempty"`
}

// CleanupPayload sets how long processed keys are kept.
type CleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewSyncAllTask constructs the reconciliation task.
func NewSyncAllTask(at time.Time) (*asynq.Task, error) {
	return newTask(TaskInventorySyncAll, SyncAllPayload{ScheduledFor: at})
}

// NewSyncProductTask constructs a single product recomputation task.
func NewSyncProductTask(productID int64) (*asynq.Task, error) {
	return newTask(TaskInventorySyncProduct, SyncProductPayload{ProductID: productID})
}

// NewRebalanceSuggestTask constructs the suggestion task. A nil autoCreate keeps the job default.
func NewRebalanceSuggestTask(autoCreate *bool) (*asynq.Task, error) {
	return newTask(TaskRebalanceSuggest, RebalanceSuggestPayload{AutoCreate: autoCreate})
}

// NewCleanupTask constructs the idempotency pruning task.
func NewCleanupTask(retention time.Duration) (*asynq.Task, error) {
	return newTask(TaskIdempotencyCleanup, CleanupPayload{Retention: retention})
}

func newTask(typ string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, body, asynq.Queue(QueueDefault)), nil
}
