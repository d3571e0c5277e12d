package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Repository persists catalogue data in PostgreSQL.
type Repository struct {
	pool  *pgxpool.Pool
	stock *StockQueries
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, stock: NewStockQueries(pool)}
}

const productColumns = `id, name, description, sku, price, cost, stock, min_stock, category_id, supplier_id, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.SKU, &p.Price, &p.Cost, &p.Stock, &p.MinStock,
		&p.CategoryID, &p.SupplierID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetProduct loads a product by id.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.NewNotFoundError("product", id)
	}
	if err != nil {
		return Product{}, fmt.Errorf("catalog: get product: %w", err)
	}
	return p, nil
}

// FindProductBySKU loads a product by its canonical SKU.
func (r *Repository) FindProductBySKU(ctx context.Context, sku string) (Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.NewNotFoundError("product", sku)
	}
	if err != nil {
		return Product{}, fmt.Errorf("catalog: find product by sku: %w", err)
	}
	return p, nil
}

// ListProducts returns one page of products and the total match count.
func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	var f db.Filter
	if filter.Search != "" {
		f.Add("(name ILIKE $%[1]d OR sku ILIKE $%[1]d OR description ILIKE $%[1]d)", "%"+filter.Search+"%")
	}
	if filter.CategoryID != nil {
		f.Add("category_id = $%[1]d", *filter.CategoryID)
	}
	if filter.SupplierID != nil {
		f.Add("supplier_id = $%[1]d", *filter.SupplierID)
	}
	if filter.Active != nil {
		f.Add("is_active = $%[1]d", *filter.Active)
	}
	if filter.LowStock {
		f.AddRaw("stock <= min_stock")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products `+f.Where(), f.Args()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count products: %w", err)
	}

	page := shared.NewPagination(filter.Page, filter.PerPage, total)
	limit, args := f.Page(page.PerPage, page.Offset())
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products `+f.Where()+` ORDER BY name ASC, id ASC `+limit, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("catalog: scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("catalog: list products: %w", err)
	}
	return products, total, nil
}

// CreateProduct inserts a product and returns the stored row.
func (r *Repository) CreateProduct(ctx context.Context, p Product) (Product, error) {
	created, err := scanProduct(r.pool.QueryRow(ctx, `INSERT INTO products (name, description, sku, price, cost, stock, min_stock, category_id, supplier_id, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING `+productColumns, p.Name, p.Description, p.SKU, p.Price, p.Cost, p.Stock, p.MinStock, p.CategoryID, p.SupplierID, p.IsActive))
	if err != nil {
		return Product{}, mapProductWriteError(err, p)
	}
	return created, nil
}

// UpdateProduct rewrites the mutable product fields. Stock is not touched.
func (r *Repository) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	updated, err := scanProduct(r.pool.QueryRow(ctx, `UPDATE products
SET name = $2, description = $3, sku = $4, price = $5, cost = $6, min_stock = $7, category_id = $8, supplier_id = $9, is_active = $10, updated_at = NOW()
WHERE id = $1
RETURNING `+productColumns, p.ID, p.Name, p.Description, p.SKU, p.Price, p.Cost, p.MinStock, p.CategoryID, p.SupplierID, p.IsActive))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, shared.NewNotFoundError("product", p.ID)
	}
	if err != nil {
		return Product{}, mapProductWriteError(err, p)
	}
	return updated, nil
}

// DeleteProduct removes the product row. Products referenced by order lines cannot be removed.
func (r *Repository) DeleteProduct(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return &shared.InvalidStateError{Entity: "product", Status: "referenced by orders", Action: "delete"}
		}
		return fmt.Errorf("catalog: delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError("product", id)
	}
	return nil
}

// AdjustStock applies a standalone stock correction outside any order transaction.
func (r *Repository) AdjustStock(ctx context.Context, productID, delta int64) (StockLevel, error) {
	return r.stock.AdjustStock(ctx, productID, delta)
}

// LowStock lists active products at or below their reorder threshold.
func (r *Repository) LowStock(ctx context.Context, limit int) ([]StockLevel, error) {
	return r.stock.LowStock(ctx, limit)
}

// InventoryStats aggregates product counts and stock valuation.
func (r *Repository) InventoryStats(ctx context.Context) (InventoryStats, error) {
	var stats InventoryStats
	err := r.pool.QueryRow(ctx, `SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE is_active),
	COUNT(*) FILTER (WHERE is_active AND stock <= min_stock),
	COALESCE(ROUND(AVG(price) FILTER (WHERE is_active), 2), 0),
	COALESCE(SUM(stock * cost) FILTER (WHERE is_active), 0)
FROM products`).Scan(&stats.TotalProducts, &stats.ActiveProducts, &stats.LowStockCount, &stats.AveragePrice, &stats.InventoryValue)
	if err != nil {
		return InventoryStats{}, fmt.Errorf("catalog: inventory stats: %w", err)
	}
	return stats, nil
}

func mapProductWriteError(err error, p Product) error {
	switch {
	case db.IsUniqueViolation(err, "products_sku_key"):
		return &shared.DuplicateError{Entity: "product", Constraint: "sku", Value: p.SKU}
	case db.IsForeignKeyViolation(err):
		return shared.NewValidationError("category_id", "references an unknown category or supplier")
	default:
		return fmt.Errorf("catalog: write product: %w", err)
	}
}

// GetCategory loads a category by id.
func (r *Repository) GetCategory(ctx context.Context, id int64) (Category, error) {
	var c Category
	err := r.pool.QueryRow(ctx, `SELECT id, name, description, created_at, updated_at FROM categories WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Category{}, shared.NewNotFoundError("category", id)
	}
	if err != nil {
		return Category{}, fmt.Errorf("catalog: get category: %w", err)
	}
	return c, nil
}

// ListCategories returns every category ordered by name.
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list categories: %w", err)
	}
	defer rows.Close()
	categories := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// SaveCategory inserts a category when ID is zero and updates it otherwise.
func (r *Repository) SaveCategory(ctx context.Context, c Category) (Category, error) {
	var row pgx.Row
	if c.ID == 0 {
		row = r.pool.QueryRow(ctx, `INSERT INTO categories (name, description) VALUES ($1, $2)
RETURNING id, name, description, created_at, updated_at`, c.Name, c.Description)
	} else {
		row = r.pool.QueryRow(ctx, `UPDATE categories SET name = $2, description = $3, updated_at = NOW() WHERE id = $1
RETURNING id, name, description, created_at, updated_at`, c.ID, c.Name, c.Description)
	}
	var saved Category
	err := row.Scan(&saved.ID, &saved.Name, &saved.Description, &saved.CreatedAt, &saved.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Category{}, shared.NewNotFoundError("category", c.ID)
	case db.IsUniqueViolation(err, "categories_name_key"):
		return Category{}, &shared.DuplicateError{Entity: "category", Constraint: "name", Value: c.Name}
	case err != nil:
		return Category{}, fmt.Errorf("catalog: save category: %w", err)
	}
	return saved, nil
}

// DeleteCategory removes a category that no product references.
func (r *Repository) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return &shared.InvalidStateError{Entity: "category", Status: "referenced by products", Action: "delete"}
		}
		return fmt.Errorf("catalog: delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError("category", id)
	}
	return nil
}

const supplierColumns = `id, name, contact, email, phone, address, created_at, updated_at`

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	err := row.Scan(&s.ID, &s.Name, &s.Contact, &s.Email, &s.Phone, &s.Address, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

// GetSupplier loads a supplier by id.
func (r *Repository) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	s, err := scanSupplier(r.pool.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, shared.NewNotFoundError("supplier", id)
	}
	if err != nil {
		return Supplier{}, fmt.Errorf("catalog: get supplier: %w", err)
	}
	return s, nil
}

// ListSuppliers returns suppliers ordered by name, optionally filtered by a search term.
func (r *Repository) ListSuppliers(ctx context.Context, search string) ([]Supplier, error) {
	var f db.Filter
	if search != "" {
		f.Add("(name ILIKE $%[1]d OR contact ILIKE $%[1]d OR email ILIKE $%[1]d)", "%"+search+"%")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+supplierColumns+` FROM suppliers `+f.Where()+` ORDER BY name ASC`, f.Args()...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list suppliers: %w", err)
	}
	defer rows.Close()
	suppliers := []Supplier{}
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan supplier: %w", err)
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, rows.Err()
}

// SaveSupplier inserts a supplier when ID is zero and updates it otherwise.
func (r *Repository) SaveSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	var row pgx.Row
	if s.ID == 0 {
		row = r.pool.QueryRow(ctx, `INSERT INTO suppliers (name, contact, email, phone, address) VALUES ($1, $2, $3, $4, $5)
RETURNING `+supplierColumns, s.Name, s.Contact, s.Email, s.Phone, s.Address)
	} else {
		row = r.pool.QueryRow(ctx, `UPDATE suppliers SET name = $2, contact = $3, email = $4, phone = $5, address = $6, updated_at = NOW() WHERE id = $1
RETURNING `+supplierColumns, s.ID, s.Name, s.Contact, s.Email, s.Phone, s.Address)
	}
	saved, err := scanSupplier(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Supplier{}, shared.NewNotFoundError("supplier", s.ID)
	case db.IsUniqueViolation(err, "suppliers_email_key"):
		email := ""
		if s.Email != nil {
			email = *s.Email
		}
		return Supplier{}, &shared.DuplicateError{Entity: "supplier", Constraint: "email", Value: email}
	case err != nil:
		return Supplier{}, fmt.Errorf("catalog: save supplier: %w", err)
	}
	return saved, nil
}

// DeleteSupplier removes a supplier that no product or purchase references.
func (r *Repository) DeleteSupplier(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return &shared.InvalidStateError{Entity: "supplier", Status: "referenced by products or purchases", Action: "delete"}
		}
		return fmt.Errorf("catalog: delete supplier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.NewNotFoundError("supplier", id)
	}
	return nil
}
