package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	jobmetrics "github.com/odyssey-erp/sitetrack/internal/jobs"
	"github.com/odyssey-erp/sitetrack/internal/procurement"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// errNotCanceled makes a release wait for the canceling transaction to commit.
var errNotCanceled = errors.New("budget release: order not canceled yet")

// LedgerEntry is one row of project_budget_ledger.
type LedgerEntry struct {
	OrderID   int64
	ProjectID int64
	ActorID   int64
	Kind      string
	Amount    decimal.Decimal
	Reason    string
}

// LedgerStore persists budget ledger rows.
type LedgerStore interface {
	OrderStatus(ctx context.Context, orderID int64) (procurement.OrderStatus, error)
	// InsertLedgerEntry reports false when the entry already exists.
	InsertLedgerEntry(ctx context.Context, entry LedgerEntry) (bool, error)
}

// BudgetSignalJob applies reserve and release signals to the ledger.
type BudgetSignalJob struct {
	Store   LedgerStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewBudgetSignalJob constructs the job handler.
func NewBudgetSignalJob(store LedgerStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *BudgetSignalJob {
	return &BudgetSignalJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskBudgetReserve and TaskBudgetRelease tasks.
func (j *BudgetSignalJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("budget signal: store not configured")
	}
	var payload BudgetPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("budget signal: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.Kind != LedgerReserve && payload.Kind != LedgerRelease {
		return fmt.Errorf("budget signal: unknown kind %q: %w", payload.Kind, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(task.Type())
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	signal := payload.Signal
	logger := j.log().With(slog.Int64("order_id", signal.OrderID), slog.String("kind", payload.Kind))

	if payload.Kind == LedgerRelease {
		status, err := j.Store.OrderStatus(ctx, signal.OrderID)
		if err != nil {
			if errors.Is(err, procurement.ErrNotFound) {
				return fmt.Errorf("budget release: order %d: %v: %w", signal.OrderID, err, asynq.SkipRetry)
			}
			return err
		}
		if status != procurement.StatusCanceled {
			logger.Info("order not canceled yet, retrying", slog.String("status", string(status)))
			return errNotCanceled
		}
	}

	inserted, err := j.Store.InsertLedgerEntry(ctx, LedgerEntry{
		OrderID:   signal.OrderID,
		ProjectID: signal.ProjectID,
		ActorID:   signal.ActorID,
		Kind:      payload.Kind,
		Amount:    signal.Amount,
		Reason:    signal.Reason,
	})
	if err != nil {
		logger.Error("insert ledger entry", slog.Any("error", err))
		return err
	}
	if !inserted {
		logger.Info("ledger entry already recorded")
		return nil
	}
	j.metrics().AddLedgerEntry(payload.Kind)
	logger.Info("ledger entry recorded", slog.String("amount", signal.Amount.StringFixed(2)))
	return nil
}

func (j *BudgetSignalJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *BudgetSignalJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", "budget_signal"))
	}
	return slog.Default().With(slog.String("job", "budget_signal"))
}
