package ledger

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Handler serves one ledger book over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	kind    Kind
}

// NewHandler constructs a Handler bound to kind.
func NewHandler(logger *slog.Logger, service *Service, kind Kind) *Handler {
	return &Handler{logger: logger, service: service, kind: kind}
}

// MountRoutes registers the book's routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/totals", h.totals)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

func dateRange(r *http.Request) (from, to *time.Time, err error) {
	if from, err = httpx.QueryDate(r, "date_from"); err != nil {
		return nil, nil, err
	}
	if to, err = httpx.QueryDate(r, "date_to"); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter := ListFilter{From: from, To: to, Category: r.URL.Query().Get("category")}
	if filter.Page, err = httpx.QueryInt(r, "page", 1); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.PerPage, err = httpx.QueryInt(r, "per_page", 20); err != nil {
		httpx.RespondError(w, err)
		return
	}
	page, err := h.service.List(r.Context(), h.kind, filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list ledger entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	totals, err := h.service.Totals(r.Context(), h.kind, from, to)
	if err != nil {
		httpx.Fail(w, h.logger, "ledger totals", err)
		return
	}
	httpx.JSON(w, http.StatusOK, totals)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Create(r.Context(), h.kind, input)
	if err != nil {
		httpx.Fail(w, h.logger, "create ledger entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Get(r.Context(), h.kind, id)
	if err != nil {
		httpx.Fail(w, h.logger, "get ledger entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	entry, err := h.service.Update(r.Context(), h.kind, id, input)
	if err != nil {
		httpx.Fail(w, h.logger, "update ledger entry", err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), h.kind, id); err != nil {
		httpx.Fail(w, h.logger, "delete ledger entry", err)
		return
	}
	httpx.NoContent(w)
}
