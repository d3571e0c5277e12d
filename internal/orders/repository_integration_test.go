package orders_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/ledger"
	"github.com/odyssey-erp/odyssey-pos/internal/orders"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db/dbtest"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type pgFixture struct {
	pool     *pgxpool.Pool
	repo     *orders.Repository
	svc      *orders.Service
	customer int64
	supplier int64
}

func setupOrdersDB(t *testing.T) *pgFixture {
	t.Helper()
	pool := dbtest.Open(t)
	repo := orders.NewRepository(pool)
	return &pgFixture{
		pool:     pool,
		repo:     repo,
		svc:      orders.NewService(repo, orders.ServiceOptions{}),
		customer: dbtest.Seed(t, pool, `INSERT INTO customers (first_name, last_name) VALUES ('Ana', 'Ruiz') RETURNING id`),
		supplier: dbtest.Seed(t, pool, `INSERT INTO suppliers (name) VALUES ('Northwind') RETURNING id`),
	}
}

func (f *pgFixture) product(t *testing.T, sku string, stock int64, price, cost string) int64 {
	t.Helper()
	return dbtest.Seed(t, f.pool, `INSERT INTO products (name, sku, stock, price, cost) VALUES ($1, $1, $2, $3, $4) RETURNING id`,
		sku, stock, decimal.RequireFromString(price), decimal.RequireFromString(cost))
}

func (f *pgFixture) stock(t *testing.T, id int64) int64 {
	t.Helper()
	var stock int64
	require.NoError(t, f.pool.QueryRow(context.Background(), `SELECT stock FROM products WHERE id = $1`, id).Scan(&stock))
	return stock
}

func (f *pgFixture) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func (f *pgFixture) sale(t *testing.T, status orders.Status, lines ...orders.LineInput) (orders.Order, error) {
	t.Helper()
	day, err := shared.ParseDate("2024-06-01")
	require.NoError(t, err)
	return f.svc.Create(context.Background(), orders.KindSale, orders.CreateInput{
		Date:           day,
		CounterpartyID: f.customer,
		Status:         status,
		Lines:          lines,
	}, "")
}

func priced(productID, qty int64, unit string) orders.LineInput {
	amount := decimal.RequireFromString(unit)
	return orders.LineInput{ProductID: productID, Quantity: qty, UnitAmount: &amount}
}

func TestPostgresSaleFulfilAndCancel(t *testing.T) {
	f := setupOrdersDB(t)
	ctx := context.Background()
	p := f.product(t, "COF-1", 5, "4.50", "2.00")

	sale, err := f.sale(t, orders.StatusPending, priced(p, 3, "4.50"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.stock(t, p))
	assert.Zero(t, f.count(t, "income"))

	outcome, err := f.svc.Transition(ctx, orders.KindSale, sale.ID, orders.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.stock(t, p))
	require.NotNil(t, outcome.Order.LedgerEntryID)

	var amount decimal.Decimal
	var saleID int64
	require.NoError(t, f.pool.QueryRow(ctx, `SELECT amount, sale_id FROM income`).Scan(&amount, &saleID))
	assert.True(t, amount.Equal(decimal.RequireFromString("13.50")), amount.String())
	assert.Equal(t, sale.ID, saleID)

	_, err = f.svc.Transition(ctx, orders.KindSale, sale.ID, orders.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.stock(t, p))
	assert.Equal(t, int64(1), f.count(t, "income"))

	_, err = f.svc.Transition(ctx, orders.KindSale, sale.ID, orders.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, int64(5), f.stock(t, p))
	assert.Zero(t, f.count(t, "income"))

	require.NoError(t, f.svc.Delete(ctx, orders.KindSale, sale.ID))
	assert.Zero(t, f.count(t, "sales"))
	assert.Zero(t, f.count(t, "sale_items"))
}

func TestPostgresInsufficientStockRollsBackEverything(t *testing.T) {
	f := setupOrdersDB(t)
	plenty := f.product(t, "PEN-1", 50, "1.00", "0.50")
	scarce := f.product(t, "TEA-1", 2, "3.00", "1.00")

	_, err := f.sale(t, orders.StatusCompleted, priced(plenty, 4, "1.00"), priced(scarce, 5, "3.00"))
	var stockErr *shared.InsufficientStockError
	require.True(t, errors.As(err, &stockErr), "got %v", err)
	assert.Equal(t, scarce, stockErr.ProductID)
	assert.Equal(t, int64(2), stockErr.Available)
	assert.Equal(t, int64(5), stockErr.Requested)

	assert.Equal(t, int64(50), f.stock(t, plenty))
	assert.Equal(t, int64(2), f.stock(t, scarce))
	assert.Zero(t, f.count(t, "sales"))
	assert.Zero(t, f.count(t, "sale_items"))
	assert.Zero(t, f.count(t, "income"))
}

func TestPostgresFailedUnitRollsBackStock(t *testing.T) {
	f := setupOrdersDB(t)
	p := f.product(t, "MUG-1", 10, "7.00", "3.00")
	boom := errors.New("boom")

	err := f.repo.WithTx(context.Background(), func(ctx context.Context, tx orders.TxRepository) error {
		level, err := tx.AdjustStock(ctx, p, -4)
		require.NoError(t, err)
		require.Equal(t, int64(6), level.Stock)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(10), f.stock(t, p))
}

func TestPostgresGuardedStockUpdateNeverGoesNegative(t *testing.T) {
	f := setupOrdersDB(t)
	p := f.product(t, "NAIL-1", 3, "0.10", "0.05")

	err := f.repo.WithTx(context.Background(), func(ctx context.Context, tx orders.TxRepository) error {
		_, err := tx.AdjustStock(ctx, p, -4)
		return err
	})
	var stockErr *shared.InsufficientStockError
	require.True(t, errors.As(err, &stockErr), "got %v", err)
	assert.Equal(t, int64(3), stockErr.Available)
	assert.Equal(t, int64(3), f.stock(t, p))

	err = f.repo.WithTx(context.Background(), func(ctx context.Context, tx orders.TxRepository) error {
		_, err := tx.AdjustStock(ctx, p+1000, 1)
		return err
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPostgresLinkedLedgerEntryIsUnique(t *testing.T) {
	f := setupOrdersDB(t)
	ctx := context.Background()
	p := f.product(t, "JAM-1", 10, "2.00", "1.00")
	sale, err := f.sale(t, orders.StatusCompleted, priced(p, 1, "2.00"))
	require.NoError(t, err)

	err = f.repo.WithTx(ctx, func(ctx context.Context, tx orders.TxRepository) error {
		_, err := tx.InsertLedgerEntry(ctx, ledger.Entry{
			Kind:        ledger.KindIncome,
			Date:        sale.Date,
			Description: "duplicate",
			Amount:      sale.Total,
			OrderID:     &sale.ID,
		})
		return err
	})
	require.ErrorIs(t, err, shared.ErrDuplicate)
	assert.Equal(t, int64(1), f.count(t, "income"))
}

func TestPostgresLockProductsReturnsCatalogueAmounts(t *testing.T) {
	f := setupOrdersDB(t)
	a := f.product(t, "A-1", 1, "9.99", "4.25")
	b := f.product(t, "B-1", 2, "1.00", "0.40")

	err := f.repo.WithTx(context.Background(), func(ctx context.Context, tx orders.TxRepository) error {
		levels, err := tx.LockProducts(ctx, []int64{a, b, b + 1000})
		require.NoError(t, err)
		require.Len(t, levels, 2)
		assert.True(t, levels[a].Price.Equal(decimal.RequireFromString("9.99")))
		assert.True(t, levels[a].Cost.Equal(decimal.RequireFromString("4.25")))
		assert.Equal(t, int64(2), levels[b].Stock)
		return nil
	})
	require.NoError(t, err)
}

func TestPostgresConcurrentCompletionsNeverOversell(t *testing.T) {
	f := setupOrdersDB(t)
	ctx := context.Background()
	p := f.product(t, "TIX-1", 3, "15.00", "5.00")

	first, err := f.sale(t, orders.StatusPending, priced(p, 2, "15"))
	require.NoError(t, err)
	second, err := f.sale(t, orders.StatusPending, priced(p, 2, "15"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []int64{first.ID, second.ID} {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = f.svc.Transition(ctx, orders.KindSale, id, orders.StatusCompleted)
		}(i, id)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, shared.ErrInsufficientStock), errors.Is(err, shared.ErrConflict):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, int64(1), f.stock(t, p))
	assert.Equal(t, int64(1), f.count(t, "income"))
}

func TestPostgresStatsTopProducts(t *testing.T) {
	f := setupOrdersDB(t)
	ctx := context.Background()
	tea := f.product(t, "TEA-2", 100, "3.00", "1.00")
	cake := f.product(t, "CAKE-2", 100, "5.00", "2.00")

	_, err := f.sale(t, orders.StatusCompleted, priced(tea, 4, "3.00"), priced(cake, 1, "5.00"))
	require.NoError(t, err)
	_, err = f.sale(t, orders.StatusCompleted, orders.LineInput{ProductID: cake, Quantity: 2})
	require.NoError(t, err)
	_, err = f.sale(t, orders.StatusPending, priced(cake, 50, "5.00"))
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx, orders.KindSale, orders.StatsFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Count)
	assert.True(t, stats.Total.Equal(decimal.RequireFromString("27.00")), stats.Total.String())
	require.Len(t, stats.ByCounterparty, 1)
	assert.Equal(t, "Ana Ruiz", stats.ByCounterparty[0].Name)
	require.Len(t, stats.TopProducts, 2)
	assert.Equal(t, tea, stats.TopProducts[0].ProductID)
	assert.Equal(t, int64(4), stats.TopProducts[0].Quantity)
	assert.True(t, stats.TopProducts[0].Total.Equal(decimal.RequireFromString("12.00")))
	assert.Equal(t, cake, stats.TopProducts[1].ProductID)
	assert.Equal(t, int64(3), stats.TopProducts[1].Quantity)
	assert.True(t, stats.TopProducts[1].Total.Equal(decimal.RequireFromString("15.00")))
}
