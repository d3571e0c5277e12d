package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const levelColumns = `id, name, sku, stock, min_stock, price, cost`

func scanLevel(row pgx.Row, lvl *StockLevel) error {
	return row.Scan(&lvl.ProductID, &lvl.Name, &lvl.SKU, &lvl.Stock, &lvl.MinStock, &lvl.Price, &lvl.Cost)
}

// StockQueries reads and mutates product stock through any Querier, typically the
// pgx.Tx owned by an order operation so stock and ledger writes commit together.
type StockQueries struct {
	q db.Querier
}

// NewStockQueries binds stock queries to q.
func NewStockQueries(q db.Querier) *StockQueries {
	return &StockQueries{q: q}
}

// ProductLevels returns the current stock of the given products keyed by id.
// Unknown ids are simply absent from the result.
func (s *StockQueries) ProductLevels(ctx context.Context, ids []int64) (map[int64]StockLevel, error) {
	return s.levels(ctx, ids, false)
}

// LockProducts behaves like ProductLevels but takes row locks in ascending id order,
// holding them until the surrounding transaction ends.
func (s *StockQueries) LockProducts(ctx context.Context, ids []int64) (map[int64]StockLevel, error) {
	return s.levels(ctx, ids, true)
}

func (s *StockQueries) levels(ctx context.Context, ids []int64, lock bool) (map[int64]StockLevel, error) {
	out := make(map[int64]StockLevel, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT ` + levelColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := s.q.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("catalog: product levels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var lvl StockLevel
		if err := scanLevel(rows, &lvl); err != nil {
			return nil, fmt.Errorf("catalog: scan product level: %w", err)
		}
		out[lvl.ProductID] = lvl
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: product levels: %w", err)
	}
	return out, nil
}

// AdjustStock applies delta to a product's stock in a single guarded statement and
// returns the resulting level. A decrement below zero is rejected, never clamped.
func (s *StockQueries) AdjustStock(ctx context.Context, productID, delta int64) (StockLevel, error) {
	var lvl StockLevel
	row := s.q.QueryRow(ctx, `UPDATE products SET stock = stock + $2, updated_at = NOW()
WHERE id = $1 AND stock + $2 >= 0
RETURNING `+levelColumns, productID, delta)
	err := scanLevel(row, &lvl)
	if err == nil {
		return lvl, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		if db.IsCheckViolation(err, "products_stock_check") {
			return StockLevel{}, &shared.InsufficientStockError{ProductID: productID, Requested: -delta}
		}
		return StockLevel{}, fmt.Errorf("catalog: adjust stock: %w", err)
	}

	var name string
	var stock int64
	err = s.q.QueryRow(ctx, `SELECT name, stock FROM products WHERE id = $1`, productID).Scan(&name, &stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return StockLevel{}, shared.NewNotFoundError("product", productID)
	}
	if err != nil {
		return StockLevel{}, fmt.Errorf("catalog: adjust stock: %w", err)
	}
	return StockLevel{}, &shared.InsufficientStockError{ProductID: productID, ProductName: name, Available: stock, Requested: -delta}
}

const maxLowStock = 100

// LowStock lists active products at or below their reorder threshold.
func (s *StockQueries) LowStock(ctx context.Context, limit int) ([]StockLevel, error) {
	if limit <= 0 || limit > maxLowStock {
		limit = maxLowStock
	}
	rows, err := s.q.Query(ctx, `SELECT `+levelColumns+` FROM products
WHERE is_active AND stock <= min_stock
ORDER BY stock ASC, id ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: low stock: %w", err)
	}
	defer rows.Close()
	levels := []StockLevel{}
	for rows.Next() {
		var lvl StockLevel
		if err := scanLevel(rows, &lvl); err != nil {
			return nil, fmt.Errorf("catalog: scan low stock: %w", err)
		}
		levels = append(levels, lvl)
	}
	return levels, rows.Err()
}
