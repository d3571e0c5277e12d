package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable and purchasable item tracked in stock.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	SKU         string          `json:"sku"`
	Price       decimal.Decimal `json:"price"`
	Cost        decimal.Decimal `json:"cost"`
	Stock       int64           `json:"stock"`
	MinStock    int64           `json:"min_stock"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	SupplierID  *int64          `json:"supplier_id,omitempty"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// LowStock reports whether stock has reached the reorder threshold.
func (p Product) LowStock() bool {
	return p.Stock <= p.MinStock
}

// StockLevel is the slice of a product row needed for stock arithmetic.
// Price and Cost default unpriced order lines.
type StockLevel struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku"`
	Stock     int64           `json:"stock"`
	MinStock  int64           `json:"min_stock"`
	Price     decimal.Decimal `json:"price"`
	Cost      decimal.Decimal `json:"cost"`
}

// LowStock reports whether the level is at or below its threshold.
func (l StockLevel) LowStock() bool {
	return l.Stock <= l.MinStock
}

// Category groups products.
type Category struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Supplier provides products and is the counterparty of purchases.
type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Email     *string   `json:"email,omitempty"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateProductInput carries the fields accepted when registering a product.
type CreateProductInput struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	SKU         string          `json:"sku" validate:"required,max=64"`
	Price       decimal.Decimal `json:"price"`
	Cost        decimal.Decimal `json:"cost"`
	Stock       int64           `json:"stock" validate:"gte=0"`
	MinStock    int64           `json:"min_stock" validate:"gte=0"`
	CategoryID  *int64          `json:"category_id" validate:"omitempty,gt=0"`
	SupplierID  *int64          `json:"supplier_id" validate:"omitempty,gt=0"`
}

// UpdateProductInput is a partial update; nil fields are left untouched. A zero
// CategoryID or SupplierID detaches the product. Stock changes go through AdjustStock.
type UpdateProductInput struct {
	Name        *string          `json:"name" validate:"omitempty,max=200"`
	Description *string          `json:"description" validate:"omitempty,max=2000"`
	SKU         *string          `json:"sku" validate:"omitempty,max=64"`
	Price       *decimal.Decimal `json:"price"`
	Cost        *decimal.Decimal `json:"cost"`
	MinStock    *int64           `json:"min_stock" validate:"omitempty,gte=0"`
	CategoryID  *int64           `json:"category_id" validate:"omitempty,gte=0"`
	SupplierID  *int64           `json:"supplier_id" validate:"omitempty,gte=0"`
	IsActive    *bool            `json:"is_active"`
}

// AdjustStockInput is a manual stock correction (count, breakage, return).
type AdjustStockInput struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason" validate:"max=500"`
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	Search     string
	CategoryID *int64
	SupplierID *int64
	Active     *bool
	LowStock   bool
	Page       int
	PerPage    int
}

// InventoryStats summarises the catalogue.
type InventoryStats struct {
	TotalProducts  int64           `json:"total_products"`
	ActiveProducts int64           `json:"active_products"`
	LowStockCount  int64           `json:"low_stock_count"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	InventoryValue decimal.Decimal `json:"inventory_value"`
}

// CategoryInput creates or replaces a category.
type CategoryInput struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=1000"`
}

// SupplierInput creates or replaces a supplier.
type SupplierInput struct {
	Name    string  `json:"name" validate:"required,max=200"`
	Contact string  `json:"contact" validate:"max=200"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Phone   string  `json:"phone" validate:"max=50"`
	Address string  `json:"address" validate:"max=500"`
}
