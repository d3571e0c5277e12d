package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Queries reads and writes ledger rows on a pool or inside a caller's transaction.
type Queries struct {
	q db.Querier
}

// NewQueries binds Queries to q.
func NewQueries(q db.Querier) *Queries {
	return &Queries{q: q}
}

func columns(kind Kind) string {
	return `id, entry_date, description, amount, category, ` + kind.orderColumn() + `, source_ref, created_at, updated_at`
}

func scanEntry(kind Kind, row pgx.Row) (Entry, error) {
	e := Entry{Kind: kind}
	var ref pgtype.UUID
	if err := row.Scan(&e.ID, &e.Date.Time, &e.Description, &e.Amount, &e.Category, &e.OrderID, &ref, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Entry{}, err
	}
	if ref.Valid {
		u := uuid.UUID(ref.Bytes)
		e.SourceRef = &u
	}
	return e, nil
}

// Get loads an entry by id.
func (l *Queries) Get(ctx context.Context, kind Kind, id int64) (Entry, error) {
	e, err := scanEntry(kind, l.q.QueryRow(ctx, `SELECT `+columns(kind)+` FROM `+kind.table()+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, shared.NewNotFoundError(string(kind), id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: get %s: %w", kind, err)
	}
	return e, nil
}

// FindByOrder returns the entry linked to an order, if any.
func (l *Queries) FindByOrder(ctx context.Context, kind Kind, orderID int64) (Entry, bool, error) {
	e, err := scanEntry(kind, l.q.QueryRow(ctx, `SELECT `+columns(kind)+` FROM `+kind.table()+` WHERE `+kind.orderColumn()+` = $1`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("ledger: find %s by order: %w", kind, err)
	}
	return e, true, nil
}

// Insert stores a new entry.
func (l *Queries) Insert(ctx context.Context, e Entry) (Entry, error) {
	row := l.q.QueryRow(ctx, `INSERT INTO `+e.Kind.table()+` (entry_date, description, amount, category, `+e.Kind.orderColumn()+`, source_ref)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+columns(e.Kind), e.Date.Time, e.Description, e.Amount, e.Category, e.OrderID, e.SourceRef)
	saved, err := scanEntry(e.Kind, row)
	if err != nil {
		if db.IsUniqueViolation(err, e.Kind.orderConstraint()) {
			return Entry{}, &shared.DuplicateError{Entity: string(e.Kind), Constraint: "order", Value: orderValue(e.OrderID)}
		}
		return Entry{}, fmt.Errorf("ledger: insert %s: %w", e.Kind, err)
	}
	return saved, nil
}

// Update rewrites the editable fields of an entry.
func (l *Queries) Update(ctx context.Context, e Entry) (Entry, error) {
	row := l.q.QueryRow(ctx, `UPDATE `+e.Kind.table()+`
SET entry_date = $2, description = $3, amount = $4, category = $5, updated_at = NOW()
WHERE id = $1
RETURNING `+columns(e.Kind), e.ID, e.Date.Time, e.Description, e.Amount, e.Category)
	saved, err := scanEntry(e.Kind, row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, shared.NewNotFoundError(string(e.Kind), e.ID)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: update %s: %w", e.Kind, err)
	}
	return saved, nil
}

// Delete removes an entry by id.
func (l *Queries) Delete(ctx context.Context, kind Kind, id int64) error {
	tag, err := l.q.Exec(ctx, `DELETE FROM `+kind.table()+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ledger: delete %s: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError(string(kind), id)
	}
	return nil
}

// DeleteByOrder removes the entry linked to an order and reports its id.
func (l *Queries) DeleteByOrder(ctx context.Context, kind Kind, orderID int64) (int64, bool, error) {
	var id int64
	err := l.q.QueryRow(ctx, `DELETE FROM `+kind.table()+` WHERE `+kind.orderColumn()+` = $1 RETURNING id`, orderID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("ledger: delete %s by order: %w", kind, err)
	}
	return id, true, nil
}

func dateFilter(f *db.Filter, from, to *time.Time) {
	if from != nil {
		f.Add("entry_date >= $%[1]d", *from)
	}
	if to != nil {
		f.Add("entry_date <= $%[1]d", *to)
	}
}

// List returns one page of entries and the total match count.
func (l *Queries) List(ctx context.Context, kind Kind, filter ListFilter) ([]Entry, int, error) {
	var f db.Filter
	dateFilter(&f, filter.From, filter.To)
	if filter.Category != "" {
		f.Add("LOWER(category) = LOWER($%[1]d)", filter.Category)
	}
	var total int
	if err := l.q.QueryRow(ctx, `SELECT COUNT(*) FROM `+kind.table()+` `+f.Where(), f.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ledger: count %s: %w", kind, err)
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	limit, args := f.Page(page.PerPage, page.Offset())
	rows, err := l.q.Query(ctx, `SELECT `+columns(kind)+` FROM `+kind.table()+` `+f.Where()+` ORDER BY entry_date DESC, id DESC `+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ledger: list %s: %w", kind, err)
	}
	defer rows.Close()
	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(kind, rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ledger: scan %s: %w", kind, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ledger: list %s: %w", kind, err)
	}
	return out, total, nil
}

// Totals groups entries of a period by category, largest first.
func (l *Queries) Totals(ctx context.Context, kind Kind, from, to *time.Time) ([]CategoryTotal, error) {
	var f db.Filter
	dateFilter(&f, from, to)
	rows, err := l.q.Query(ctx, `SELECT category, COUNT(*), COALESCE(SUM(amount), 0)
FROM `+kind.table()+` `+f.Where()+`
GROUP BY category
ORDER BY 3 DESC, category ASC`, f.Args()...)
	if err != nil {
		return nil, fmt.Errorf("ledger: %s totals: %w", kind, err)
	}
	defer rows.Close()
	out := []CategoryTotal{}
	for rows.Next() {
		var t CategoryTotal
		if err := rows.Scan(&t.Category, &t.Count, &t.Total); err != nil {
			return nil, fmt.Errorf("ledger: scan %s totals: %w", kind, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Sum adds up the amounts of a period.
func (l *Queries) Sum(ctx context.Context, kind Kind, from, to *time.Time) (decimal.Decimal, error) {
	var f db.Filter
	dateFilter(&f, from, to)
	var sum decimal.Decimal
	if err := l.q.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM `+kind.table()+` `+f.Where(), f.Args()...).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("ledger: sum %s: %w", kind, err)
	}
	return sum, nil
}

func orderValue(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
