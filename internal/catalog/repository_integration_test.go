package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db/dbtest"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func TestPostgresProductStock(t *testing.T) {
	pool := dbtest.Open(t)
	ctx := context.Background()
	repo := catalog.NewRepository(pool)

	p, err := repo.CreateProduct(ctx, catalog.Product{
		Name: "Rope", SKU: "ROPE-1", Price: decimal.RequireFromString("6.00"), Cost: decimal.RequireFromString("2.50"),
		Stock: 4, MinStock: 2, IsActive: true,
	})
	require.NoError(t, err)

	_, err = repo.CreateProduct(ctx, catalog.Product{Name: "Rope again", SKU: "ROPE-1", IsActive: true})
	require.ErrorIs(t, err, shared.ErrDuplicate)

	level, err := repo.AdjustStock(ctx, p.ID, -2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), level.Stock)
	assert.True(t, level.LowStock())
	assert.True(t, level.Cost.Equal(decimal.RequireFromString("2.50")))

	_, err = repo.AdjustStock(ctx, p.ID, -3)
	var stockErr *shared.InsufficientStockError
	require.True(t, errors.As(err, &stockErr), "got %v", err)
	assert.Equal(t, int64(2), stockErr.Available)
	assert.Equal(t, int64(3), stockErr.Requested)

	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Stock)

	low, err := repo.LowStock(ctx, 10)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, p.ID, low[0].ProductID)
	assert.True(t, low[0].Price.Equal(decimal.RequireFromString("6.00")))
}

func TestPostgresStockQueriesShareTheCallersTransaction(t *testing.T) {
	pool := dbtest.Open(t)
	ctx := context.Background()
	first := dbtest.Seed(t, pool, `INSERT INTO products (name, sku, stock) VALUES ('Cup', 'CUP-1', 5) RETURNING id`)
	second := dbtest.Seed(t, pool, `INSERT INTO products (name, sku, stock) VALUES ('Plate', 'PLT-1', 1) RETURNING id`)

	boom := errors.New("boom")
	err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		stock := catalog.NewStockQueries(tx)
		levels, err := stock.LockProducts(ctx, []int64{second, first})
		require.NoError(t, err)
		require.Len(t, levels, 2)
		_, err = stock.AdjustStock(ctx, first, -5)
		require.NoError(t, err)
		_, err = stock.AdjustStock(ctx, second, 10)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	levels, err := catalog.NewStockQueries(pool).ProductLevels(ctx, []int64{first, second})
	require.NoError(t, err)
	assert.Equal(t, int64(5), levels[first].Stock)
	assert.Equal(t, int64(1), levels[second].Stock)
}
