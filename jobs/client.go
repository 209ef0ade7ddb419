package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/sitetrack/internal/procurement"
)

// Enqueuer is the subset of *asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// BudgetClient forwards budget signals to the worker. It satisfies
// procurement.BudgetLedger.
type BudgetClient struct {
	queue Enqueuer
}

// NewBudgetClient constructs a BudgetClient.
func NewBudgetClient(queue Enqueuer) *BudgetClient {
	return &BudgetClient{queue: queue}
}

// Reserve enqueues a reservation.
func (c *BudgetClient) Reserve(ctx context.Context, signal procurement.BudgetSignal) error {
	return c.enqueue(ctx, LedgerReserve, signal)
}

// Release enqueues a release. An enqueue failure is returned so the caller
// can abort the cancellation.
func (c *BudgetClient) Release(ctx context.Context, signal procurement.BudgetSignal) error {
	return c.enqueue(ctx, LedgerRelease, signal)
}

func (c *BudgetClient) enqueue(ctx context.Context, kind string, signal procurement.BudgetSignal) error {
	if c == nil || c.queue == nil {
		return errors.New("budget client: queue not configured")
	}
	task, err := NewBudgetTask(kind, signal)
	if err != nil {
		return err
	}
	_, err = c.queue.EnqueueContext(ctx, task)
	return err
}

// AssetClient forwards asset generation requests. It satisfies
// procurement.AssetRequester.
type AssetClient struct {
	queue Enqueuer
}

// NewAssetClient constructs an AssetClient.
func NewAssetClient(queue Enqueuer) *AssetClient {
	return &AssetClient{queue: queue}
}

// RequestAssets enqueues an asset generation task.
func (c *AssetClient) RequestAssets(ctx context.Context, req procurement.AssetRequest) error {
	if c == nil || c.queue == nil {
		return errors.New("asset client: queue not configured")
	}
	task, err := NewAssetTask(req)
	if err != nil {
		return err
	}
	_, err = c.queue.EnqueueContext(ctx, task)
	return err
}

var (
	_ procurement.BudgetLedger   = (*BudgetClient)(nil)
	_ procurement.AssetRequester = (*AssetClient)(nil)
)
