package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type memoryRepo struct {
	mu         sync.Mutex
	products   map[int64]Product
	categories map[int64]Category
	suppliers  map[int64]Supplier
	referenced map[int64]bool
	nextID     int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:   make(map[int64]Product),
		categories: make(map[int64]Category),
		suppliers:  make(map[int64]Supplier),
		referenced: make(map[int64]bool),
	}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[id]
	if !ok {
		return Product{}, shared.NewNotFoundError("product", id)
	}
	return p, nil
}

func (r *memoryRepo) FindProductBySKU(ctx context.Context, sku string) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if p.SKU == sku {
			return p, nil
		}
	}
	return Product{}, shared.NewNotFoundError("product", sku)
}

func (r *memoryRepo) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Product
	for _, p := range r.products {
		if filter.Search != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.SKU), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.CategoryID != nil && (p.CategoryID == nil || *p.CategoryID != *filter.CategoryID) {
			continue
		}
		if filter.SupplierID != nil && (p.SupplierID == nil || *p.SupplierID != *filter.SupplierID) {
			continue
		}
		if filter.Active != nil && p.IsActive != *filter.Active {
			continue
		}
		if filter.LowStock && !p.LowStock() {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	page := shared.NewPagination(filter.Page, filter.PerPage, len(out))
	start := page.Offset()
	if start > len(out) {
		start = len(out)
	}
	end := start + page.PerPage
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], len(out), nil
}

func (r *memoryRepo) CreateProduct(ctx context.Context, p Product) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.products {
		if existing.SKU == p.SKU {
			return Product{}, &shared.DuplicateError{Entity: "product", Constraint: "sku", Value: p.SKU}
		}
	}
	p.ID = r.id()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) UpdateProduct(ctx context.Context, p Product) (Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.products[p.ID]
	if !ok {
		return Product{}, shared.NewNotFoundError("product", p.ID)
	}
	for _, existing := range r.products {
		if existing.ID != p.ID && existing.SKU == p.SKU {
			return Product{}, &shared.DuplicateError{Entity: "product", Constraint: "sku", Value: p.SKU}
		}
	}
	p.Stock = current.Stock
	p.UpdatedAt = time.Now()
	r.products[p.ID] = p
	return p, nil
}

func (r *memoryRepo) DeleteProduct(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[id]; !ok {
		return shared.NewNotFoundError("product", id)
	}
	if r.referenced[id] {
		return &shared.InvalidStateError{Entity: "product", Status: "referenced by orders", Action: "delete"}
	}
	delete(r.products, id)
	return nil
}

func (r *memoryRepo) AdjustStock(ctx context.Context, productID, delta int64) (StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.products[productID]
	if !ok {
		return StockLevel{}, shared.NewNotFoundError("product", productID)
	}
	if p.Stock+delta < 0 {
		return StockLevel{}, &shared.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Available: p.Stock, Requested: -delta}
	}
	p.Stock += delta
	r.products[productID] = p
	return StockLevel{ProductID: p.ID, Name: p.Name, SKU: p.SKU, Stock: p.Stock, MinStock: p.MinStock}, nil
}

func (r *memoryRepo) LowStock(ctx context.Context, limit int) ([]StockLevel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StockLevel
	for _, p := range r.products {
		if p.IsActive && p.LowStock() {
			out = append(out, StockLevel{ProductID: p.ID, Name: p.Name, SKU: p.SKU, Stock: p.Stock, MinStock: p.MinStock})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (r *memoryRepo) InventoryStats(ctx context.Context) (InventoryStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats InventoryStats
	priceSum := decimal.Zero
	for _, p := range r.products {
		stats.TotalProducts++
		if !p.IsActive {
			continue
		}
		stats.ActiveProducts++
		if p.LowStock() {
			stats.LowStockCount++
		}
		priceSum = priceSum.Add(p.Price)
		stats.InventoryValue = stats.InventoryValue.Add(p.Cost.Mul(decimal.NewFromInt(p.Stock)))
	}
	if stats.ActiveProducts > 0 {
		stats.AveragePrice = priceSum.Div(decimal.NewFromInt(stats.ActiveProducts)).Round(2)
	}
	return stats, nil
}

func (r *memoryRepo) GetCategory(ctx context.Context, id int64) (Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.categories[id]
	if !ok {
		return Category{}, shared.NewNotFoundError("category", id)
	}
	return c, nil
}

func (r *memoryRepo) ListCategories(ctx context.Context) ([]Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Category{}
	for _, c := range r.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) SaveCategory(ctx context.Context, c Category) (Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.categories {
		if existing.ID != c.ID && strings.EqualFold(existing.Name, c.Name) {
			return Category{}, &shared.DuplicateError{Entity: "category", Constraint: "name", Value: c.Name}
		}
	}
	if c.ID == 0 {
		c.ID = r.id()
	} else if _, ok := r.categories[c.ID]; !ok {
		return Category{}, shared.NewNotFoundError("category", c.ID)
	}
	r.categories[c.ID] = c
	return c, nil
}

func (r *memoryRepo) DeleteCategory(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.categories[id]; !ok {
		return shared.NewNotFoundError("category", id)
	}
	for _, p := range r.products {
		if p.CategoryID != nil && *p.CategoryID == id {
			return &shared.InvalidStateError{Entity: "category", Status: "referenced by products", Action: "delete"}
		}
	}
	delete(r.categories, id)
	return nil
}

func (r *memoryRepo) GetSupplier(ctx context.Context, id int64) (Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.suppliers[id]
	if !ok {
		return Supplier{}, shared.NewNotFoundError("supplier", id)
	}
	return s, nil
}

func (r *memoryRepo) ListSuppliers(ctx context.Context, search string) ([]Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []Supplier{}
	for _, s := range r.suppliers {
		if search == "" || strings.Contains(strings.ToLower(s.Name), strings.ToLower(search)) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryRepo) SaveSupplier(ctx context.Context, s Supplier) (Supplier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Email != nil {
		for _, existing := range r.suppliers {
			if existing.ID != s.ID && existing.Email != nil && *existing.Email == *s.Email {
				return Supplier{}, &shared.DuplicateError{Entity: "supplier", Constraint: "email", Value: *s.Email}
			}
		}
	}
	if s.ID == 0 {
		s.ID = r.id()
	} else if _, ok := r.suppliers[s.ID]; !ok {
		return Supplier{}, shared.NewNotFoundError("supplier", s.ID)
	}
	r.suppliers[s.ID] = s
	return s, nil
}

func (r *memoryRepo) DeleteSupplier(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.suppliers[id]; !ok {
		return shared.NewNotFoundError("supplier", id)
	}
	for _, p := range r.products {
		if p.SupplierID != nil && *p.SupplierID == id {
			return &shared.InvalidStateError{Entity: "supplier", Status: "referenced by products or purchases", Action: "delete"}
		}
	}
	delete(r.suppliers, id)
	return nil
}

type recordingNotifier struct {
	levels []StockLevel
}

func (n *recordingNotifier) NotifyLowStock(ctx context.Context, levels []StockLevel) error {
	n.levels = append(n.levels, levels...)
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}
