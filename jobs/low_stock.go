package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

// LowStockAlertJob logs products that reached their reorder threshold.
type LowStockAlertJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockAlertJob initialises the alert handler.
func NewLowStockAlertJob(logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockAlertJob {
	return &LowStockAlertJob{Logger: logger, Metrics: metrics}
}

// Handle processes TaskLowStockAlert tasks.
func (j *LowStockAlertJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LowStockAlertPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("low stock alert: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	metrics := metricsOrDefault(j.Metrics)
	logger := jobLogger(j.Logger, TaskLowStockAlert)
	for _, p := range payload.Products {
		logger.Warn("product at or below minimum stock",
			slog.Int64("product_id", p.ProductID),
			slog.String("name", p.Name),
			slog.String("sku", p.SKU),
			slog.Int64("stock", p.Stock),
			slog.Int64("min_stock", p.MinStock),
			slog.Time("detected_at", payload.DetectedAt),
		)
	}
	metrics.AddLowStockAlerts(len(payload.Products))
	return nil
}

// InventorySource is the catalogue surface read by the scan.
type InventorySource interface {
	Stats(ctx context.Context) (catalog.InventoryStats, error)
	LowStock(ctx context.Context, limit int) ([]catalog.StockLevel, error)
}

// LowStockScanJob exports the number of products needing replenishment.
type LowStockScanJob struct {
	Source  InventorySource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the scan handler.
func NewLowStockScanJob(source InventorySource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Source: source, Logger: logger, Metrics: metrics}
}

// Handle processes TaskLowStockScan tasks.
func (j *LowStockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("low stock scan: source not configured")
	}
	var payload LowStockScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("low stock scan: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	if payload.Limit <= 0 {
		payload.Limit = 20
	}
	metrics := metricsOrDefault(j.Metrics)
	start := time.Now()
	logger := jobLogger(j.Logger, TaskLowStockScan)
	stats, err := j.Source.Stats(ctx)
	if err != nil {
		return fmt.Errorf("low stock scan: stats: %w", err)
	}
	metrics.SetLowStockProducts(int(stats.LowStockCount))
	if stats.LowStockCount == 0 {
		logger.Info("no products below minimum stock", slog.Duration("duration", time.Since(start)))
		return nil
	}

	levels, err := j.Source.LowStock(ctx, payload.Limit)
	if err != nil {
		return fmt.Errorf("low stock scan: list: %w", err)
	}
	ids := make([]int64, 0, len(levels))
	for _, l := range levels {
		ids = append(ids, l.ProductID)
	}
	logger.Warn("low stock backlog",
		slog.Int64("products", stats.LowStockCount),
		slog.Any("product_ids", ids),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func metricsOrDefault(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return jobmetrics.NewMetrics(nil)
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}
