package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

// Registration binds a task type to its handler.
type Registration struct {
	Type   string
	Handle asynq.HandlerFunc
}

// Schedule enqueues Task on the cron expression Spec, evaluated in UTC.
type Schedule struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects what the worker process needs.
type WorkerConfig struct {
	RedisOpts   asynq.RedisConnOpt
	Logger      *slog.Logger
	Metrics     *jobmetrics.Metrics
	Concurrency int
	Handlers    []Registration
	Schedules   []Schedule
}

// Worker processes queued tasks and runs the cron scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// NewWorker validates cfg and prepares the server. Every scheduled task type must
// have a handler.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.RedisOpts == nil {
		return nil, errors.New("jobs: redis options required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	mux := asynq.NewServeMux()
	mux.Use(instrument(cfg.Metrics, logger))
	handled := make(map[string]bool, len(cfg.Handlers))
	for _, reg := range cfg.Handlers {
		if reg.Type == "" || reg.Handle == nil {
			return nil, fmt.Errorf("jobs: incomplete registration for %q", reg.Type)
		}
		if handled[reg.Type] {
			return nil, fmt.Errorf("jobs: duplicate handler for %s", reg.Type)
		}
		handled[reg.Type] = true
		mux.HandleFunc(reg.Type, reg.Handle)
	}

	var scheduler *asynq.Scheduler
	for _, s := range cfg.Schedules {
		if s.Spec == "" || s.Task == nil {
			continue
		}
		if !handled[s.Task.Type()] {
			return nil, fmt.Errorf("jobs: schedule %q has no handler for %s", s.Spec, s.Task.Type())
		}
		if scheduler == nil {
			scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		}
		if _, err := scheduler.Register(s.Spec, s.Task, s.Options...); err != nil {
			return nil, fmt.Errorf("jobs: schedule %s: %w", s.Task.Type(), err)
		}
	}

	server := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueDefault: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error("task failed",
				slog.String("type", task.Type()),
				slog.Int("retry", retried),
				slog.Int("max_retry", maxRetry),
				slog.Any("error", err),
			)
		}),
	})
	return &Worker{server: server, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Run processes tasks until ctx is cancelled, then drains in-flight work.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return errors.New("jobs: worker not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("jobs: start server: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("jobs: start scheduler: %w", err)
		}
	}
	w.logger.Info("worker started")

	<-ctx.Done()
	w.logger.Info("worker stopping")
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return ctx.Err()
}

// instrument records the outcome of every task. Errors wrapping asynq.SkipRetry
// are counted as skipped since the task will not be retried.
func instrument(metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			start := time.Now()
			err := next.ProcessTask(ctx, task)
			outcome := jobmetrics.OutcomeOK
			switch {
			case errors.Is(err, asynq.SkipRetry):
				outcome = jobmetrics.OutcomeSkipped
			case err != nil:
				outcome = jobmetrics.OutcomeError
			}
			elapsed := time.Since(start)
			metrics.ObserveTask(task.Type(), elapsed, outcome)
			logger.Debug("task processed",
				slog.String("type", task.Type()),
				slog.String("outcome", outcome),
				slog.Duration("elapsed", elapsed),
			)
			return err
		})
	}
}
