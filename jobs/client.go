package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
)

// Enqueuer is the subset of asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client publishes inventory tasks from the API process. It satisfies the
// low-stock notifier ports of the catalog and orders services.
type Client struct {
	enqueuer Enqueuer
	now      func() time.Time
}

// NewClient dials the queue at redisOpts.
func NewClient(redisOpts asynq.RedisConnOpt) *Client {
	return NewClientWith(asynq.NewClient(redisOpts))
}

// NewClientWith wraps an existing enqueuer.
func NewClientWith(enqueuer Enqueuer) *Client {
	return &Client{enqueuer: enqueuer, now: time.Now}
}

// EnqueueLowStockAlert submits one alert task covering levels.
func (c *Client) EnqueueLowStockAlert(ctx context.Context, levels []catalog.StockLevel) (*asynq.TaskInfo, error) {
	task, err := NewLowStockAlertTask(levels, c.now())
	if err != nil {
		return nil, err
	}
	return c.enqueuer.EnqueueContext(ctx, task, asynq.MaxRetry(5))
}

// NotifyLowStock enqueues an alert; empty batches are dropped.
func (c *Client) NotifyLowStock(ctx context.Context, levels []catalog.StockLevel) error {
	if c == nil || len(levels) == 0 {
		return nil
	}
	_, err := c.EnqueueLowStockAlert(ctx, levels)
	return err
}

// Close releases the connection.
func (c *Client) Close() error {
	if c == nil || c.enqueuer == nil {
		return nil
	}
	return c.enqueuer.Close()
}
