package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

const defaultKeyRetention = 72 * time.Hour

// KeyPurger deletes idempotency keys older than a retention window.
type KeyPurger interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

// IdempotencyCleanupJob enforces the idempotency key retention.
type IdempotencyCleanupJob struct {
	Store   KeyPurger
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewIdempotencyCleanupJob initialises the cleanup handler.
func NewIdempotencyCleanupJob(store KeyPurger, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Store: store, Logger: logger, Metrics: metrics}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Store == nil {
		return errors.New("idempotency cleanup: store not configured")
	}
	var payload IdempotencyCleanupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("idempotency cleanup: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	retention := time.Duration(payload.RetentionHours) * time.Hour
	if retention <= 0 {
		retention = defaultKeyRetention
	}
	metrics := metricsOrDefault(j.Metrics)
	removed, err := j.Store.Cleanup(ctx, retention)
	if err != nil {
		return err
	}
	metrics.AddPurgedKeys(removed)
	jobLogger(j.Logger, TaskIdempotencyCleanup).Info("purged idempotency keys",
		slog.Int64("removed", removed),
		slog.Duration("retention", retention),
	)
	return nil
}
