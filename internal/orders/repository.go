package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/ledger"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Repository persists purchases and sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations of one order unit of work.
type TxRepository interface {
	EffectStore
	LockOrder(ctx context.Context, kind Kind, id int64) (Order, error)
	ListLines(ctx context.Context, kind Kind, orderID int64) ([]Line, error)
	ProductLevels(ctx context.Context, ids []int64) (map[int64]catalog.StockLevel, error)
	CounterpartyExists(ctx context.Context, kind Kind, id int64) (bool, error)
	InsertOrder(ctx context.Context, order Order) (Order, error)
	UpdateHeader(ctx context.Context, order Order) error
	SetStatus(ctx context.Context, kind Kind, id int64, status Status) error
	ReplaceLines(ctx context.Context, kind Kind, orderID int64, lines []Line) ([]Line, error)
	DeleteOrder(ctx context.Context, kind Kind, id int64) error
}

type txRepo struct {
	*catalog.StockQueries
	tx     pgx.Tx
	ledger *ledger.Queries
}

// WithTx runs fn in a READ COMMITTED transaction. Rows are locked explicitly by
// the callers; serialization failures and deadlocks surface as ConflictError.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{StockQueries: catalog.NewStockQueries(tx), tx: tx, ledger: ledger.NewQueries(tx)})
	})
	if db.IsRetryable(err) {
		return fmt.Errorf("orders: %w", &shared.ConflictError{Resource: "order"})
	}
	return err
}

func headerColumns(kind Kind) string {
	return `o.id, o.order_date, o.` + kind.counterpartyColumn() + `, o.status, o.total, o.notes, o.created_at, o.updated_at`
}

func scanHeader(kind Kind, row pgx.Row, extra ...any) (Order, error) {
	o := Order{Kind: kind}
	dest := append([]any{&o.ID, &o.Date.Time, &o.CounterpartyID, &o.Status, &o.Total, &o.Notes, &o.CreatedAt, &o.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Order{}, err
	}
	return o, nil
}

func counterpartyName(kind Kind) string {
	if kind == KindSale {
		return `TRIM(c.first_name || ' ' || c.last_name)`
	}
	return `c.name`
}

func selectOrders(kind Kind) string {
	table := "expenses"
	if kind == KindSale {
		table = "income"
	}
	return `SELECT ` + headerColumns(kind) + `, ` + counterpartyName(kind) + `, le.id
FROM ` + kind.table() + ` o
JOIN ` + kind.counterpartyTable() + ` c ON c.id = o.` + kind.counterpartyColumn() + `
LEFT JOIN ` + table + ` le ON le.` + kind.itemsKey() + ` = o.id`
}

func scanOrder(kind Kind, row pgx.Row) (Order, error) {
	var name string
	var entryID *int64
	o, err := scanHeader(kind, row, &name, &entryID)
	if err != nil {
		return Order{}, err
	}
	o.CounterpartyName = name
	o.LedgerEntryID = entryID
	return o, nil
}

// Get loads an order with its lines.
func (r *Repository) Get(ctx context.Context, kind Kind, id int64) (Order, error) {
	o, err := scanOrder(kind, r.pool.QueryRow(ctx, selectOrders(kind)+` WHERE o.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, shared.NewNotFoundError(string(kind), id)
	}
	if err != nil {
		return Order{}, fmt.Errorf("orders: get %s: %w", kind, err)
	}
	o.Lines, err = listLines(ctx, r.pool, kind, id)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// List returns one page of order headers and the total match count.
func (r *Repository) List(ctx context.Context, kind Kind, filter ListFilter) ([]Order, int, error) {
	var f db.Filter
	if filter.From != nil {
		f.Add("o.order_date >= $%[1]d", *filter.From)
	}
	if filter.To != nil {
		f.Add("o.order_date <= $%[1]d", *filter.To)
	}
	if filter.Status != "" {
		f.Add("o.status = $%[1]d", string(filter.Status))
	}
	if filter.CounterpartyID != nil {
		f.Add("o."+kind.counterpartyColumn()+" = $%[1]d", *filter.CounterpartyID)
	}
	if filter.MinTotal != nil {
		f.Add("o.total >= $%[1]d", *filter.MinTotal)
	}
	if filter.MaxTotal != nil {
		f.Add("o.total <= $%[1]d", *filter.MaxTotal)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+kind.table()+` o `+f.Where(), f.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("orders: count %s: %w", kind, err)
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	limit, args := f.Page(page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, selectOrders(kind)+` `+f.Where()+` ORDER BY o.order_date DESC, o.id DESC `+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("orders: list %s: %w", kind, err)
	}
	defer rows.Close()
	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(kind, rows)
		if err != nil {
			return nil, 0, fmt.Errorf("orders: scan %s: %w", kind, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("orders: list %s: %w", kind, err)
	}
	return out, total, nil
}

// Stats aggregates fulfilled orders per counterparty and per month.
func (r *Repository) Stats(ctx context.Context, kind Kind, filter StatsFilter) (Stats, error) {
	var f db.Filter
	f.Add("o.status = $%[1]d", string(kind.FulfilledStatus()))
	if filter.From != nil {
		f.Add("o.order_date >= $%[1]d", *filter.From)
	}
	if filter.To != nil {
		f.Add("o.order_date <= $%[1]d", *filter.To)
	}
	stats := Stats{Kind: kind, ByCounterparty: []CounterpartyStat{}, Monthly: []MonthlyStat{}, TopProducts: []ProductStat{}}

	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(o.total), 0) FROM `+kind.table()+` o `+f.Where(), f.Args()...).
		Scan(&stats.Count, &stats.Total); err != nil {
		return Stats{}, fmt.Errorf("orders: %s stats: %w", kind, err)
	}

	rows, err := r.pool.Query(ctx, `SELECT o.`+kind.counterpartyColumn()+`, `+counterpartyName(kind)+`, COUNT(*), SUM(o.total)
FROM `+kind.table()+` o
JOIN `+kind.counterpartyTable()+` c ON c.id = o.`+kind.counterpartyColumn()+`
`+f.Where()+`
GROUP BY 1, 2
ORDER BY 4 DESC, 1 ASC
LIMIT `+strconv.Itoa(TopCounterparties), f.Args()...)
	if err != nil {
		return Stats{}, fmt.Errorf("orders: %s counterparty stats: %w", kind, err)
	}
	for rows.Next() {
		var s CounterpartyStat
		if err := rows.Scan(&s.CounterpartyID, &s.Name, &s.Count, &s.Total); err != nil {
			rows.Close()
			return Stats{}, fmt.Errorf("orders: scan counterparty stats: %w", err)
		}
		stats.ByCounterparty = append(stats.ByCounterparty, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("orders: %s counterparty stats: %w", kind, err)
	}

	rows, err = r.pool.Query(ctx, `SELECT TO_CHAR(o.order_date, 'YYYY-MM'), COUNT(*), SUM(o.total)
FROM `+kind.table()+` o
`+f.Where()+`
GROUP BY 1
ORDER BY 1 ASC`, f.Args()...)
	if err != nil {
		return Stats{}, fmt.Errorf("orders: %s monthly stats: %w", kind, err)
	}
	for rows.Next() {
		var m MonthlyStat
		if err := rows.Scan(&m.Month, &m.Count, &m.Total); err != nil {
			rows.Close()
			return Stats{}, fmt.Errorf("orders: scan monthly stats: %w", err)
		}
		stats.Monthly = append(stats.Monthly, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("orders: %s monthly stats: %w", kind, err)
	}

	rows, err = r.pool.Query(ctx, `SELECT i.product_id, p.name, p.sku, SUM(i.quantity)::BIGINT, SUM(i.subtotal)
FROM `+kind.itemsTable()+` i
JOIN `+kind.table()+` o ON o.id = i.`+kind.itemsKey()+`
JOIN products p ON p.id = i.product_id
`+f.Where()+`
GROUP BY 1, 2, 3
ORDER BY 4 DESC, 5 DESC, 1 ASC
LIMIT `+strconv.Itoa(TopProducts), f.Args()...)
	if err != nil {
		return Stats{}, fmt.Errorf("orders: %s product stats: %w", kind, err)
	}
	defer rows.Close()
	for rows.Next() {
		var p ProductStat
		if err := rows.Scan(&p.ProductID, &p.Name, &p.SKU, &p.Quantity, &p.Total); err != nil {
			return Stats{}, fmt.Errorf("orders: scan product stats: %w", err)
		}
		stats.TopProducts = append(stats.TopProducts, p)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("orders: %s product stats: %w", kind, err)
	}
	return stats, nil
}

func listLines(ctx context.Context, q db.Querier, kind Kind, orderID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, `+kind.itemsKey()+`, product_id, position, quantity, unit_amount, subtotal
FROM `+kind.itemsTable()+`
WHERE `+kind.itemsKey()+` = $1
ORDER BY position ASC, id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders: list %s lines: %w", kind, err)
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.Position, &l.Quantity, &l.UnitAmount, &l.Subtotal); err != nil {
			return nil, fmt.Errorf("orders: scan %s line: %w", kind, err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orders: list %s lines: %w", kind, err)
	}
	return lines, nil
}

func (r *txRepo) LockOrder(ctx context.Context, kind Kind, id int64) (Order, error) {
	o, err := scanHeader(kind, r.tx.QueryRow(ctx, `SELECT `+headerColumns(kind)+` FROM `+kind.table()+` o WHERE o.id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, shared.NewNotFoundError(string(kind), id)
	}
	if err != nil {
		return Order{}, fmt.Errorf("orders: lock %s: %w", kind, err)
	}
	return o, nil
}

func (r *txRepo) ListLines(ctx context.Context, kind Kind, orderID int64) ([]Line, error) {
	return listLines(ctx, r.tx, kind, orderID)
}

func (r *txRepo) CounterpartyExists(ctx context.Context, kind Kind, id int64) (bool, error) {
	var exists bool
	if err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+kind.counterpartyTable()+` WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("orders: check %s: %w", kind.Counterparty(), err)
	}
	return exists, nil
}

func (r *txRepo) InsertOrder(ctx context.Context, order Order) (Order, error) {
	saved, err := scanHeader(order.Kind, r.tx.QueryRow(ctx, `INSERT INTO `+order.Kind.table()+` AS o (order_date, `+order.Kind.counterpartyColumn()+`, status, total, notes)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+headerColumns(order.Kind), order.Date.Time, order.CounterpartyID, string(order.Status), order.Total, order.Notes))
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Order{}, shared.NewNotFoundError(order.Kind.Counterparty(), order.CounterpartyID)
		}
		return Order{}, fmt.Errorf("orders: insert %s: %w", order.Kind, err)
	}
	return saved, nil
}

func (r *txRepo) UpdateHeader(ctx context.Context, order Order) error {
	_, err := r.tx.Exec(ctx, `UPDATE `+order.Kind.table()+`
SET order_date = $2, `+order.Kind.counterpartyColumn()+` = $3, total = $4, notes = $5, updated_at = NOW()
WHERE id = $1`, order.ID, order.Date.Time, order.CounterpartyID, order.Total, order.Notes)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return shared.NewNotFoundError(order.Kind.Counterparty(), order.CounterpartyID)
		}
		return fmt.Errorf("orders: update %s: %w", order.Kind, err)
	}
	return nil
}

func (r *txRepo) SetStatus(ctx context.Context, kind Kind, id int64, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE `+kind.table()+` SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("orders: set %s status: %w", kind, err)
	}
	return nil
}

func (r *txRepo) ReplaceLines(ctx context.Context, kind Kind, orderID int64, lines []Line) ([]Line, error) {
	if _, err := r.tx.Exec(ctx, `DELETE FROM `+kind.itemsTable()+` WHERE `+kind.itemsKey()+` = $1`, orderID); err != nil {
		return nil, fmt.Errorf("orders: clear %s lines: %w", kind, err)
	}
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		l.OrderID = orderID
		err := r.tx.QueryRow(ctx, `INSERT INTO `+kind.itemsTable()+` (`+kind.itemsKey()+`, product_id, position, quantity, unit_amount, subtotal)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id`, orderID, l.ProductID, l.Position, l.Quantity, l.UnitAmount, l.Subtotal).Scan(&l.ID)
		if err != nil {
			if db.IsForeignKeyViolation(err) {
				return nil, shared.NewNotFoundError("product", l.ProductID)
			}
			return nil, fmt.Errorf("orders: insert %s line: %w", kind, err)
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *txRepo) DeleteOrder(ctx context.Context, kind Kind, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM `+kind.table()+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("orders: delete %s: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError(string(kind), id)
	}
	return nil
}

func (r *txRepo) FindLedgerEntry(ctx context.Context, kind ledger.Kind, orderID int64) (ledger.Entry, bool, error) {
	return r.ledger.FindByOrder(ctx, kind, orderID)
}

func (r *txRepo) InsertLedgerEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	return r.ledger.Insert(ctx, entry)
}

func (r *txRepo) DeleteLedgerEntry(ctx context.Context, kind ledger.Kind, orderID int64) (int64, bool, error) {
	return r.ledger.DeleteByOrder(ctx, kind, orderID)
}
