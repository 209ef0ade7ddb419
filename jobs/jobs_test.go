package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/sitetrack/internal/jobs"
	"github.com/odyssey-erp/sitetrack/internal/procurement"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type memoryLedger struct {
	statuses map[int64]procurement.OrderStatus
	entries  map[string]LedgerEntry
	err      error
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{statuses: map[int64]procurement.OrderStatus{}, entries: map[string]LedgerEntry{}}
}

func (m *memoryLedger) OrderStatus(_ context.Context, id int64) (procurement.OrderStatus, error) {
	status, ok := m.statuses[id]
	if !ok {
		return "", procurement.ErrNotFound
	}
	return status, nil
}

func (m *memoryLedger) InsertLedgerEntry(_ context.Context, entry LedgerEntry) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	key := entry.Kind + ":" + strconv.FormatInt(entry.OrderID, 10)
	if _, ok := m.entries[key]; ok {
		return false, nil
	}
	m.entries[key] = entry
	return true, nil
}

type memoryAssets struct {
	seen map[uuid.UUID]int
}

func (m *memoryAssets) InsertAssetRequests(_ context.Context, id uuid.UUID, req procurement.AssetRequest) (int, error) {
	if m.seen == nil {
		m.seen = map[uuid.UUID]int{}
	}
	if _, ok := m.seen[id]; ok {
		return 0, nil
	}
	m.seen[id] = len(req.Items)
	return len(req.Items), nil
}

type fakeCleaner struct {
	retention time.Duration
	removed   int64
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.retention = olderThan
	return f.removed, nil
}

type recordingQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *recordingQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func signal() procurement.BudgetSignal {
	return procurement.BudgetSignal{OrderID: 42, ProjectID: 7, ActorID: 3, Amount: decimal.RequireFromString("1250.00")}
}

func TestNewBudgetTask(t *testing.T) {
	task, err := NewBudgetTask(LedgerReserve, signal())
	require.NoError(t, err)
	require.Equal(t, TaskBudgetReserve, task.Type())

	var payload BudgetPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, LedgerReserve, payload.Kind)
	require.True(t, payload.Signal.Amount.Equal(decimal.RequireFromString("1250")))

	_, err = NewBudgetTask("refund", signal())
	require.Error(t, err)
	_, err = NewBudgetTask(LedgerRelease, procurement.BudgetSignal{})
	require.Error(t, err)
}

func TestBudgetReserveWritesOnce(t *testing.T) {
	store := newMemoryLedger()
	job := NewBudgetSignalJob(store, quietLogger, testMetrics())
	task, err := NewBudgetTask(LedgerReserve, signal())
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, store.entries, 1)
	require.Equal(t, int64(7), store.entries["reserve:42"].ProjectID)
}

func TestBudgetReleaseWaitsForCancellation(t *testing.T) {
	store := newMemoryLedger()
	store.statuses[42] = procurement.StatusApproved
	job := NewBudgetSignalJob(store, quietLogger, testMetrics())
	task, err := NewBudgetTask(LedgerRelease, signal())
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.ErrorIs(t, err, errNotCanceled)
	require.Empty(t, store.entries)

	store.statuses[42] = procurement.StatusCanceled
	require.NoError(t, job.Handle(context.Background(), task))
	require.Contains(t, store.entries, "release:42")
}

func TestBudgetReleaseUnknownOrderSkipsRetry(t *testing.T) {
	job := NewBudgetSignalJob(newMemoryLedger(), quietLogger, testMetrics())
	task, err := NewBudgetTask(LedgerRelease, signal())
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)
}

func TestBudgetHandlerRejectsBadPayload(t *testing.T) {
	job := NewBudgetSignalJob(newMemoryLedger(), quietLogger, testMetrics())
	err := job.Handle(context.Background(), asynq.NewTask(TaskBudgetReserve, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	body, _ := json.Marshal(BudgetPayload{Kind: "refund", Signal: signal()})
	err = job.Handle(context.Background(), asynq.NewTask(TaskBudgetReserve, body))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestBudgetStoreFailureIsRetried(t *testing.T) {
	store := newMemoryLedger()
	store.err = errors.New("db down")
	job := NewBudgetSignalJob(store, quietLogger, testMetrics())
	task, err := NewBudgetTask(LedgerReserve, signal())
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func assetRequest() procurement.AssetRequest {
	return procurement.AssetRequest{
		OrderID:   42,
		ProjectID: 7,
		ActorID:   3,
		Items: []procurement.AssetItem{
			{LineItemID: 1, Description: "Excavator bucket", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(900)},
			{LineItemID: 2, Description: "Laser level", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(350)},
		},
	}
}

func TestAssetGenerationIsIdempotentPerRequest(t *testing.T) {
	store := &memoryAssets{}
	job := NewAssetGenerationJob(store, quietLogger, testMetrics())
	task, err := NewAssetTask(assetRequest())
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, store.seen, 1)

	_, err = NewAssetTask(procurement.AssetRequest{OrderID: 42})
	require.Error(t, err)
}

func TestAssetGenerationRejectsUnreceivedItems(t *testing.T) {
	req := assetRequest()
	req.Items[1].Quantity = decimal.Zero
	body, _ := json.Marshal(AssetPayload{RequestID: uuid.New(), Request: req})

	job := NewAssetGenerationJob(&memoryAssets{}, quietLogger, testMetrics())
	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskAssetGenerate, body)), asynq.SkipRetry)
}

func TestIdempotencyCleanup(t *testing.T) {
	cleaner := &fakeCleaner{removed: 4}
	job := NewIdempotencyCleanupJob(cleaner, quietLogger, testMetrics())
	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 72*time.Hour, cleaner.retention)
}

func TestClientsEnqueue(t *testing.T) {
	queue := &recordingQueue{}
	budget := NewBudgetClient(queue)
	assets := NewAssetClient(queue)

	require.NoError(t, budget.Reserve(context.Background(), signal()))
	require.NoError(t, budget.Release(context.Background(), signal()))
	require.NoError(t, assets.RequestAssets(context.Background(), assetRequest()))

	require.Len(t, queue.tasks, 3)
	require.Equal(t, TaskBudgetReserve, queue.tasks[0].Type())
	require.Equal(t, TaskBudgetRelease, queue.tasks[1].Type())
	require.Equal(t, TaskAssetGenerate, queue.tasks[2].Type())
}

func TestReleaseEnqueueFailureSurfaces(t *testing.T) {
	boom := errors.New("redis unavailable")
	budget := NewBudgetClient(&recordingQueue{err: boom})
	require.ErrorIs(t, budget.Release(context.Background(), signal()), boom)

	var nilClient *BudgetClient
	require.Error(t, nilClient.Reserve(context.Background(), signal()))
}
