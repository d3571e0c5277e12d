package catalog

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Handler wires HTTP endpoints for products, categories and suppliers.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the catalogue handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountProductRoutes registers product routes.
func (h *Handler) MountProductRoutes(r chi.Router) {
	r.Get("/", h.listProducts)
	r.Post("/", h.createProduct)
	r.Get("/stats", h.stats)
	r.Get("/low-stock", h.lowStock)
	r.Get("/sku/{sku}", h.productBySKU)
	r.Get("/{id}", h.getProduct)
	r.Put("/{id}", h.updateProduct)
	r.Delete("/{id}", h.deleteProduct)
	r.Post("/{id}/stock", h.adjustStock)
}

// MountCategoryRoutes registers category routes.
func (h *Handler) MountCategoryRoutes(r chi.Router) {
	r.Get("/", h.listCategories)
	r.Post("/", h.createCategory)
	r.Get("/{id}", h.getCategory)
	r.Put("/{id}", h.updateCategory)
	r.Delete("/{id}", h.deleteCategory)
	r.Get("/{id}/products", h.categoryProducts)
}

// MountSupplierRoutes registers supplier routes.
func (h *Handler) MountSupplierRoutes(r chi.Router) {
	r.Get("/", h.listSuppliers)
	r.Post("/", h.createSupplier)
	r.Get("/{id}", h.getSupplier)
	r.Put("/{id}", h.updateSupplier)
	r.Delete("/{id}", h.deleteSupplier)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	filter := ProductFilter{Search: r.URL.Query().Get("search")}
	var err error
	if filter.CategoryID, err = httpx.QueryInt64(r, "category_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.SupplierID, err = httpx.QueryInt64(r, "supplier_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Active, err = httpx.QueryBool(r, "active"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	lowStock, err := httpx.QueryBool(r, "low_stock")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.LowStock = lowStock != nil && *lowStock
	if filter.Page, err = httpx.QueryInt(r, "page", 1); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.PerPage, err = httpx.QueryInt(r, "per_page", 20); err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var input CreateProductInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), input)
	if err != nil {
		httpx.Fail(w, h.logger, "create product", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "get product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) productBySKU(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.FindBySKU(r.Context(), chi.URLParam(r, "sku"))
	if err != nil {
		httpx.Fail(w, h.logger, "find product by sku", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input UpdateProductInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, input)
	if err != nil {
		httpx.Fail(w, h.logger, "update product", err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	hard, err := httpx.QueryBool(r, "hard")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteProduct(r.Context(), id, hard != nil && *hard); err != nil {
		httpx.Fail(w, h.logger, "delete product", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input AdjustStockInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	level, err := h.service.AdjustStock(r.Context(), id, input)
	if err != nil {
		httpx.Fail(w, h.logger, "adjust stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		httpx.Fail(w, h.logger, "inventory stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	limit, err := httpx.QueryInt(r, "limit", 100)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	levels, err := h.service.LowStock(r.Context(), limit)
	if err != nil {
		httpx.Fail(w, h.logger, "low stock", err)
		return
	}
	httpx.JSON(w, http.StatusOK, levels)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		httpx.Fail(w, h.logger, "list categories", err)
		return
	}
	httpx.JSON(w, http.StatusOK, categories)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var input CategoryInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	category, err := h.service.CreateCategory(r.Context(), input)
	if err != nil {
		httpx.Fail(w, h.logger, "create category", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, category)
}

func (h *Handler) getCategory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	category, err := h.service.GetCategory(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "get category", err)
		return
	}
	httpx.JSON(w, http.StatusOK, category)
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input CategoryInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	category, err := h.service.UpdateCategory(r.Context(), id, input)
	if err != nil {
		httpx.Fail(w, h.logger, "update category", err)
		return
	}
	httpx.JSON(w, http.StatusOK, category)
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		httpx.Fail(w, h.logger, "delete category", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) categoryProducts(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := httpx.QueryInt(r, "page", 1)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	perPage, err := httpx.QueryInt(r, "per_page", 20)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	products, err := h.service.CategoryProducts(r.Context(), id, page, perPage)
	if err != nil {
		httpx.Fail(w, h.logger, "category products", err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) listSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := h.service.ListSuppliers(r.Context(), strings.TrimSpace(r.URL.Query().Get("search")))
	if err != nil {
		httpx.Fail(w, h.logger, "list suppliers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, suppliers)
}

func (h *Handler) createSupplier(w http.ResponseWriter, r *http.Request) {
	var input SupplierInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	supplier, err := h.service.CreateSupplier(r.Context(), input)
	if err != nil {
		httpx.Fail(w, h.logger, "create supplier", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, supplier)
}

func (h *Handler) getSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	supplier, err := h.service.GetSupplier(r.Context(), id)
	if err != nil {
		httpx.Fail(w, h.logger, "get supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) updateSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input SupplierInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	supplier, err := h.service.UpdateSupplier(r.Context(), id, input)
	if err != nil {
		httpx.Fail(w, h.logger, "update supplier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, supplier)
}

func (h *Handler) deleteSupplier(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteSupplier(r.Context(), id); err != nil {
		httpx.Fail(w, h.logger, "delete supplier", err)
		return
	}
	httpx.NoContent(w)
}
