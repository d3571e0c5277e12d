package customers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Repository persists customers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const columns = `id, first_name, last_name, document_id, phone, email, address, city, state, postal_code, is_active, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.DocumentID, &c.Phone, &c.Email, &c.Address,
		&c.City, &c.State, &c.PostalCode, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// Get loads a customer by id.
func (r *Repository) Get(ctx context.Context, id int64) (Customer, error) {
	c, err := scanCustomer(r.pool.QueryRow(ctx, `SELECT `+columns+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.NewNotFoundError("customer", id)
	}
	if err != nil {
		return Customer{}, fmt.Errorf("customers: get: %w", err)
	}
	return c, nil
}

// List returns one page of customers and the total match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Customer, int, error) {
	var f db.Filter
	if !filter.IncludeInactive {
		f.AddRaw("is_active")
	}
	if filter.Search != "" {
		f.Add(`(first_name ILIKE $%[1]d OR last_name ILIKE $%[1]d OR email ILIKE $%[1]d OR phone ILIKE $%[1]d OR document_id ILIKE $%[1]d)`, "%"+filter.Search+"%")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers `+f.Where(), f.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("customers: count: %w", err)
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	limit, args := f.Page(page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+columns+` FROM customers `+f.Where()+` ORDER BY first_name ASC, last_name ASC, id ASC `+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("customers: list: %w", err)
	}
	defer rows.Close()
	out := []Customer{}
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("customers: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("customers: list: %w", err)
	}
	return out, total, nil
}

// Save inserts a customer when ID is zero and updates it otherwise.
func (r *Repository) Save(ctx context.Context, c Customer) (Customer, error) {
	var row pgx.Row
	if c.ID == 0 {
		row = r.pool.QueryRow(ctx, `INSERT INTO customers (first_name, last_name, document_id, phone, email, address, city, state, postal_code, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+columns, c.FirstName, c.LastName, c.DocumentID, c.Phone, c.Email, c.Address, c.City, c.State, c.PostalCode, c.IsActive)
	} else {
		row = r.pool.QueryRow(ctx, `UPDATE customers
SET first_name = $2, last_name = $3, document_id = $4, phone = $5, email = $6, address = $7, city = $8, state = $9, postal_code = $10, is_active = $11, updated_at = NOW()
WHERE id = $1
RETURNING `+columns, c.ID, c.FirstName, c.LastName, c.DocumentID, c.Phone, c.Email, c.Address, c.City, c.State, c.PostalCode, c.IsActive)
	}
	saved, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, shared.NewNotFoundError("customer", c.ID)
	}
	if err != nil {
		return Customer{}, fmt.Errorf("customers: save: %w", err)
	}
	return saved, nil
}

// SetActive toggles the soft-delete flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE customers SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("customers: set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError("customer", id)
	}
	return nil
}
