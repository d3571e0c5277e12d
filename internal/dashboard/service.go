package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/ledger"
	"github.com/odyssey-erp/odyssey-pos/internal/orders"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const lowStockLimit = 10

// CatalogPort supplies inventory figures.
type CatalogPort interface {
	Stats(ctx context.Context) (catalog.InventoryStats, error)
	LowStock(ctx context.Context, limit int) ([]catalog.StockLevel, error)
}

// OrdersPort supplies fulfilled order statistics.
type OrdersPort interface {
	Stats(ctx context.Context, kind orders.Kind, filter orders.StatsFilter) (orders.Stats, error)
}

// LedgerPort supplies the income/expense balance.
type LedgerPort interface {
	Summary(ctx context.Context, from, to *time.Time) (ledger.Summary, error)
}

// Filter bounds the order and ledger figures to a date range.
type Filter struct {
	From *time.Time
	To   *time.Time
}

func (f Filter) token(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(shared.DateLayout)
}

// Overview is the dashboard payload.
type Overview struct {
	Inventory   catalog.InventoryStats `json:"inventory"`
	LowStock    []catalog.StockLevel   `json:"low_stock"`
	Sales       orders.Stats           `json:"sales"`
	Purchases   orders.Stats           `json:"purchases"`
	Ledger      ledger.Summary         `json:"ledger"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// Service assembles the overview from the catalog, order and ledger services.
type Service struct {
	catalog CatalogPort
	orders  OrdersPort
	ledger  LedgerPort
	cache   *Cache
	group   singleflight.Group
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the dashboard sources. cache may be nil.
func NewService(catalog CatalogPort, orders OrdersPort, ledger LedgerPort, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{catalog: catalog, orders: orders, ledger: ledger, cache: cache, logger: logger, now: time.Now}
}

// Overview returns the dashboard for filter. Concurrent requests for the same
// range share one build.
func (s *Service) Overview(ctx context.Context, filter Filter) (Overview, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return Overview{}, shared.NewValidationError("date_to", "must not be before date_from")
	}
	key, err := s.cache.BuildKey(ctx, "overview", filter.token(filter.From), filter.token(filter.To))
	if err != nil {
		s.logger.Warn("dashboard cache unavailable", slog.Any("error", err))
		return s.build(ctx, filter)
	}
	ch := s.group.DoChan(key, func() (any, error) {
		var out Overview
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			return s.build(ctx, filter)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return Overview{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Overview{}, res.Err
		}
		return res.Val.(Overview), nil
	}
}

// Refresh drops cached overviews.
func (s *Service) Refresh(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func (s *Service) build(ctx context.Context, filter Filter) (Overview, error) {
	out := Overview{GeneratedAt: s.now().UTC()}
	stats := orders.StatsFilter{From: filter.From, To: filter.To}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		inv, err := s.catalog.Stats(ctx)
		if err != nil {
			return fmt.Errorf("inventory stats: %w", err)
		}
		out.Inventory = inv
		return nil
	})
	g.Go(func() error {
		levels, err := s.catalog.LowStock(ctx, lowStockLimit)
		if err != nil {
			return fmt.Errorf("low stock: %w", err)
		}
		out.LowStock = levels
		return nil
	})
	g.Go(func() error {
		sales, err := s.orders.Stats(ctx, orders.KindSale, stats)
		if err != nil {
			return fmt.Errorf("sales stats: %w", err)
		}
		out.Sales = sales
		return nil
	})
	g.Go(func() error {
		purchases, err := s.orders.Stats(ctx, orders.KindPurchase, stats)
		if err != nil {
			return fmt.Errorf("purchase stats: %w", err)
		}
		out.Purchases = purchases
		return nil
	})
	g.Go(func() error {
		summary, err := s.ledger.Summary(ctx, filter.From, filter.To)
		if err != nil {
			return fmt.Errorf("ledger summary: %w", err)
		}
		out.Ledger = summary
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, fmt.Errorf("dashboard: %w", err)
	}
	if out.LowStock == nil {
		out.LowStock = []catalog.StockLevel{}
	}
	return out, nil
}
