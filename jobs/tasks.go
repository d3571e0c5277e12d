package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLowStockAlert reports products a committed change left at or below min stock.
	TaskLowStockAlert = "inventory:low_stock_alert"
	// TaskLowStockScan periodically measures the low stock backlog.
	TaskLowStockScan = "inventory:low_stock_scan"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// LowStockProduct is one product in a low stock alert.
type LowStockProduct struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	SKU       string `json:"sku"`
	Stock     int64  `json:"stock"`
	MinStock  int64  `json:"min_stock"`
}

// LowStockAlertPayload carries the products that crossed their threshold.
type LowStockAlertPayload struct {
	Products   []LowStockProduct `json:"products"`
	DetectedAt time.Time         `json:"detected_at"`
}

// NewLowStockAlertTask constructs an alert task for levels.
func NewLowStockAlertTask(levels []catalog.StockLevel, at time.Time) (*asynq.Task, error) {
	payload := LowStockAlertPayload{DetectedAt: at.UTC()}
	for _, l := range levels {
		payload.Products = append(payload.Products, LowStockProduct{
			ProductID: l.ProductID,
			Name:      l.Name,
			SKU:       l.SKU,
			Stock:     l.Stock,
			MinStock:  l.MinStock,
		})
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockAlert, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// LowStockScanPayload bounds how many products the scan logs.
type LowStockScanPayload struct {
	Limit int `json:"limit"`
}

// NewLowStockScanTask constructs the periodic scan task.
func NewLowStockScanTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockScanPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload sets how long keys are retained.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the retention task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
