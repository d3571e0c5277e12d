package catalog

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts catalogue persistence for the service.
type RepositoryPort interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	FindProductBySKU(ctx context.Context, sku string) (Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error)
	CreateProduct(ctx context.Context, p Product) (Product, error)
	UpdateProduct(ctx context.Context, p Product) (Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	AdjustStock(ctx context.Context, productID, delta int64) (StockLevel, error)
	LowStock(ctx context.Context, limit int) ([]StockLevel, error)
	InventoryStats(ctx context.Context) (InventoryStats, error)

	GetCategory(ctx context.Context, id int64) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	SaveCategory(ctx context.Context, c Category) (Category, error)
	DeleteCategory(ctx context.Context, id int64) error

	GetSupplier(ctx context.Context, id int64) (Supplier, error)
	ListSuppliers(ctx context.Context, search string) ([]Supplier, error)
	SaveSupplier(ctx context.Context, s Supplier) (Supplier, error)
	DeleteSupplier(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LowStockNotifier is told about products that dropped to their reorder threshold.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, levels []StockLevel) error
}

// Service coordinates catalogue operations.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier LowStockNotifier
	logger   *slog.Logger
}

// NewService builds Service. audit and notifier are optional.
func NewService(repo RepositoryPort, audit AuditPort, notifier LowStockNotifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, logger: logger}
}

// GetProduct returns a product by id.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	return s.repo.GetProduct(ctx, id)
}

// FindBySKU returns the product carrying sku after canonicalisation.
func (s *Service) FindBySKU(ctx context.Context, sku string) (Product, error) {
	canonical, err := CanonicalSKU(sku)
	if err != nil {
		return Product{}, err
	}
	return s.repo.FindProductBySKU(ctx, canonical)
}

// SKUExists reports whether sku is taken, ignoring the product excludeID.
func (s *Service) SKUExists(ctx context.Context, sku string, excludeID int64) (bool, error) {
	p, err := s.FindBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return p.ID != excludeID, nil
}

// ListProducts returns a page of products.
func (s *Service) ListProducts(ctx context.Context, filter ProductFilter) (shared.Page[Product], error) {
	filter.Search = strings.TrimSpace(filter.Search)
	items, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return shared.Page[Product]{}, err
	}
	return shared.Page[Product]{Items: items, Pagination: shared.NewPagination(filter.Page, filter.PerPage, total)}, nil
}

// CreateProduct validates and registers a product.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput) (Product, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Product{}, err
	}
	if err := nonNegative("price", input.Price); err != nil {
		return Product{}, err
	}
	if err := nonNegative("cost", input.Cost); err != nil {
		return Product{}, err
	}
	sku, err := CanonicalSKU(input.SKU)
	if err != nil {
		return Product{}, err
	}
	if err := s.checkReferences(ctx, input.CategoryID, input.SupplierID); err != nil {
		return Product{}, err
	}
	product, err := s.repo.CreateProduct(ctx, Product{
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		SKU:         sku,
		Price:       input.Price,
		Cost:        input.Cost,
		Stock:       input.Stock,
		MinStock:    input.MinStock,
		CategoryID:  input.CategoryID,
		SupplierID:  input.SupplierID,
		IsActive:    true,
	})
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, "catalog:product_create", "product", product.ID, map[string]any{"sku": product.SKU, "stock": product.Stock})
	return product, nil
}

// UpdateProduct applies a partial update.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input UpdateProductInput) (Product, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Product{}, err
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return Product{}, shared.NewValidationError("name", "is required")
		}
		product.Name = name
	}
	if input.Description != nil {
		product.Description = strings.TrimSpace(*input.Description)
	}
	if input.SKU != nil {
		sku, err := CanonicalSKU(*input.SKU)
		if err != nil {
			return Product{}, err
		}
		product.SKU = sku
	}
	if input.Price != nil {
		if err := nonNegative("price", *input.Price); err != nil {
			return Product{}, err
		}
		product.Price = *input.Price
	}
	if input.Cost != nil {
		if err := nonNegative("cost", *input.Cost); err != nil {
			return Product{}, err
		}
		product.Cost = *input.Cost
	}
	if input.MinStock != nil {
		product.MinStock = *input.MinStock
	}
	if input.CategoryID != nil {
		product.CategoryID = optionalID(*input.CategoryID)
	}
	if input.SupplierID != nil {
		product.SupplierID = optionalID(*input.SupplierID)
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}
	if err := s.checkReferences(ctx, product.CategoryID, product.SupplierID); err != nil {
		return Product{}, err
	}
	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return Product{}, err
	}
	s.record(ctx, "catalog:product_update", "product", id, map[string]any{"sku": updated.SKU})
	return updated, nil
}

// DeleteProduct deactivates a product, or removes it entirely when hard is set.
func (s *Service) DeleteProduct(ctx context.Context, id int64, hard bool) error {
	if hard {
		if err := s.repo.DeleteProduct(ctx, id); err != nil {
			return err
		}
		s.record(ctx, "catalog:product_delete", "product", id, map[string]any{"hard": true})
		return nil
	}
	inactive := false
	if _, err := s.UpdateProduct(ctx, id, UpdateProductInput{IsActive: &inactive}); err != nil {
		return err
	}
	s.record(ctx, "catalog:product_deactivate", "product", id, nil)
	return nil
}

// AdjustStock applies a manual stock correction. Decrements below zero fail with
// InsufficientStockError.
func (s *Service) AdjustStock(ctx context.Context, productID int64, input AdjustStockInput) (StockLevel, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return StockLevel{}, err
	}
	if input.Delta == 0 {
		return StockLevel{}, shared.NewValidationError("delta", "must not be zero")
	}
	level, err := s.repo.AdjustStock(ctx, productID, input.Delta)
	if err != nil {
		return StockLevel{}, err
	}
	s.record(ctx, "catalog:stock_adjust", "product", productID, map[string]any{"delta": input.Delta, "reason": input.Reason, "stock": level.Stock})
	if input.Delta < 0 && level.LowStock() && s.notifier != nil {
		if err := s.notifier.NotifyLowStock(ctx, []StockLevel{level}); err != nil {
			s.logger.Warn("notify low stock", slog.Int64("product_id", productID), slog.Any("error", err))
		}
	}
	return level, nil
}

// LowStock lists products at or below their reorder threshold.
func (s *Service) LowStock(ctx context.Context, limit int) ([]StockLevel, error) {
	return s.repo.LowStock(ctx, limit)
}

// Stats summarises the catalogue.
func (s *Service) Stats(ctx context.Context) (InventoryStats, error) {
	return s.repo.InventoryStats(ctx)
}

// GetCategory returns a category by id.
func (s *Service) GetCategory(ctx context.Context, id int64) (Category, error) {
	return s.repo.GetCategory(ctx, id)
}

// ListCategories lists all categories.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

// CreateCategory registers a category with a unique name.
func (s *Service) CreateCategory(ctx context.Context, input CategoryInput) (Category, error) {
	return s.saveCategory(ctx, 0, input)
}

// UpdateCategory replaces a category's fields.
func (s *Service) UpdateCategory(ctx context.Context, id int64, input CategoryInput) (Category, error) {
	return s.saveCategory(ctx, id, input)
}

func (s *Service) saveCategory(ctx context.Context, id int64, input CategoryInput) (Category, error) {
	input.Name = strings.TrimSpace(input.Name)
	if err := shared.ValidateStruct(input); err != nil {
		return Category{}, err
	}
	return s.repo.SaveCategory(ctx, Category{ID: id, Name: input.Name, Description: strings.TrimSpace(input.Description)})
}

// DeleteCategory removes a category no product references.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	return s.repo.DeleteCategory(ctx, id)
}

// CategoryProducts lists the products of one category.
func (s *Service) CategoryProducts(ctx context.Context, id int64, page, perPage int) (shared.Page[Product], error) {
	if _, err := s.repo.GetCategory(ctx, id); err != nil {
		return shared.Page[Product]{}, err
	}
	return s.ListProducts(ctx, ProductFilter{CategoryID: &id, Page: page, PerPage: perPage})
}

// GetSupplier returns a supplier by id.
func (s *Service) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

// ListSuppliers lists suppliers matching search.
func (s *Service) ListSuppliers(ctx context.Context, search string) ([]Supplier, error) {
	return s.repo.ListSuppliers(ctx, strings.TrimSpace(search))
}

// CreateSupplier registers a supplier.
func (s *Service) CreateSupplier(ctx context.Context, input SupplierInput) (Supplier, error) {
	return s.saveSupplier(ctx, 0, input)
}

// UpdateSupplier replaces a supplier's fields.
func (s *Service) UpdateSupplier(ctx context.Context, id int64, input SupplierInput) (Supplier, error) {
	return s.saveSupplier(ctx, id, input)
}

func (s *Service) saveSupplier(ctx context.Context, id int64, input SupplierInput) (Supplier, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*input.Email))
		input.Email = &email
		if email == "" {
			input.Email = nil
		}
	}
	if err := shared.ValidateStruct(input); err != nil {
		return Supplier{}, err
	}
	return s.repo.SaveSupplier(ctx, Supplier{
		ID:      id,
		Name:    input.Name,
		Contact: strings.TrimSpace(input.Contact),
		Email:   input.Email,
		Phone:   strings.TrimSpace(input.Phone),
		Address: strings.TrimSpace(input.Address),
	})
}

// DeleteSupplier removes a supplier nothing references.
func (s *Service) DeleteSupplier(ctx context.Context, id int64) error {
	return s.repo.DeleteSupplier(ctx, id)
}

func (s *Service) checkReferences(ctx context.Context, categoryID, supplierID *int64) error {
	if categoryID != nil {
		if _, err := s.repo.GetCategory(ctx, *categoryID); err != nil {
			return err
		}
	}
	if supplierID != nil {
		if _, err := s.repo.GetSupplier(ctx, *supplierID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: entity, EntityID: strconv.FormatInt(id, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func nonNegative(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return shared.NewValidationError(field, "must not be negative")
	}
	return nil
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}
