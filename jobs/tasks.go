package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/sitetrack/internal/procurement"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries budget ledger signals, which gate reporting.
	QueueCritical = "critical"

	// TaskBudgetReserve commits funds against a project when an order is approved.
	TaskBudgetReserve = "budget:reserve"
	// TaskBudgetRelease returns funds when an order is canceled.
	TaskBudgetRelease = "budget:release"
	// TaskAssetGenerate creates tracked assets for received line items.
	TaskAssetGenerate = "assets:generate"
	// TaskIdempotencyCleanup prunes old receipt idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// Ledger entry kinds stored in project_budget_ledger.
const (
	LedgerReserve = "reserve"
	LedgerRelease = "release"
)

// BudgetPayload is the body of budget reserve/release tasks.
type BudgetPayload struct {
	Kind   string                   `json:"kind"`
	Signal procurement.BudgetSignal `json:"signal"`
}

// AssetPayload is the body of asset generation tasks. RequestID keys the stored
// rows so a retried task does not duplicate them.
type AssetPayload struct {
	RequestID uuid.UUID                `json:"request_id"`
	Request   procurement.AssetRequest `json:"request"`
}

// CleanupPayload configures idempotency key retention.
type CleanupPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewBudgetTask builds a reserve or release task for signal.
func NewBudgetTask(kind string, signal procurement.BudgetSignal) (*asynq.Task, error) {
	var taskType string
	switch kind {
	case LedgerReserve:
		taskType = TaskBudgetReserve
	case LedgerRelease:
		taskType = TaskBudgetRelease
	default:
		return nil, fmt.Errorf("jobs: unknown ledger kind %q", kind)
	}
	if signal.OrderID <= 0 {
		return nil, fmt.Errorf("jobs: budget signal requires an order id")
	}
	body, err := json.Marshal(BudgetPayload{Kind: kind, Signal: signal})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueCritical), asynq.MaxRetry(10)), nil
}

// NewAssetTask builds an asset generation task.
func NewAssetTask(req procurement.AssetRequest) (*asynq.Task, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("jobs: asset request for order %d has no items", req.OrderID)
	}
	body, err := json.Marshal(AssetPayload{RequestID: uuid.New(), Request: req})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssetGenerate, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewIdempotencyCleanupTask builds the periodic cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	body, err := json.Marshal(CleanupPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
