package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/dashboard"
	"github.com/odyssey-erp/odyssey-pos/internal/ledger"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/orders"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
	"github.com/odyssey-erp/odyssey-pos/jobs"
	"github.com/odyssey-erp/odyssey-pos/migrations"
)

func main() {
	if app.SkipStartup("api") {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	if cfg.MigrateOnStart {
		if _, err := migrations.Apply(ctx, dbpool, logger); err != nil {
			logger.Error("apply migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	locker := shared.NewLocker(redisClient, cfg.OrderLockTTL)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	catalogService := catalog.NewService(catalog.NewRepository(dbpool), auditLogger, jobClient, logger)
	customersService := customers.NewService(customers.NewRepository(dbpool), logger)
	ledgerService := ledger.NewService(ledger.NewQueries(dbpool), logger)
	dashboardCache := dashboard.NewCache(redisClient, cfg.DashboardCacheTTL)
	ordersService := orders.NewService(orders.NewRepository(dbpool), orders.ServiceOptions{
		Audit:       auditLogger,
		Idempotency: idempotencyStore,
		Locker:      locker,
		Notifier:    jobClient,
		Observer:    metrics,
		Invalidator: dashboardCache,
		Logger:      logger,
	})
	dashboardService := dashboard.NewService(
		catalogService,
		ordersService,
		ledgerService,
		dashboardCache,
		logger,
	)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Metrics:          metrics,
		CatalogHandler:   catalog.NewHandler(logger, catalogService),
		CustomersHandler: customers.NewHandler(logger, customersService),
		PurchasesHandler: orders.NewHandler(logger, ordersService, orders.KindPurchase),
		SalesHandler:     orders.NewHandler(logger, ordersService, orders.KindSale),
		ExpensesHandler:  ledger.NewHandler(logger, ledgerService, ledger.KindExpense),
		IncomeHandler:    ledger.NewHandler(logger, ledgerService, ledger.KindIncome),
		DashboardHandler: dashboard.NewHandler(logger, dashboardService),
		JobHandler:       jobs.NewHandler(inspector, logger),
		Database:         dbpool,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
