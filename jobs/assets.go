package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/sitetrack/internal/jobs"
	"github.com/odyssey-erp/sitetrack/internal/procurement"
)

// AssetStore persists asset generation requests.
type AssetStore interface {
	// InsertAssetRequests stores one row per item and returns how many were new.
	InsertAssetRequests(ctx context.Context, requestID uuid.UUID, req procurement.AssetRequest) (int, error)
}

// AssetGenerationJob records received items for the asset register.
type AssetGenerationJob struct {
	Store   AssetStore
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAssetGenerationJob constructs the job handler.
func NewAssetGenerationJob(store AssetStore, logger *slog.Logger, metrics *jobmetrics.Metrics) *AssetGenerationJob {
	return &AssetGenerationJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskAssetGenerate tasks.
func (j *AssetGenerationJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Store == nil {
		return errors.New("asset generation: store not configured")
	}
	var payload AssetPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("asset generation: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RequestID == uuid.Nil || len(payload.Request.Items) == 0 {
		return fmt.Errorf("asset generation: empty request: %w", asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskAssetGenerate)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	for _, item := range payload.Request.Items {
		if !item.Quantity.IsPositive() {
			return fmt.Errorf("asset generation: item %d has no received quantity: %w", item.LineItemID, asynq.SkipRetry)
		}
	}

	created, err := j.Store.InsertAssetRequests(ctx, payload.RequestID, payload.Request)
	if err != nil {
		j.log().Error("insert asset requests", slog.Int64("order_id", payload.Request.OrderID), slog.Any("error", err))
		return err
	}
	j.metrics().AddAssetRequests(created)
	j.log().Info("asset requests recorded",
		slog.Int64("order_id", payload.Request.OrderID),
		slog.String("request_id", payload.RequestID.String()),
		slog.Int("items", created))
	return nil
}

func (j *AssetGenerationJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AssetGenerationJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAssetGenerate))
	}
	return slog.Default().With(slog.String("job", TaskAssetGenerate))
}
