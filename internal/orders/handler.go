package orders

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// IdempotencyHeader carries the client's replay key on create requests.
const IdempotencyHeader = "Idempotency-Key"

// Handler serves one order kind over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
	kind    Kind
}

// NewHandler constructs a Handler bound to kind.
func NewHandler(logger *slog.Logger, service *Service, kind Kind) *Handler {
	return &Handler{logger: logger, service: service, kind: kind}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/stats", h.stats)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	r.Put("/{id}/lines", h.replaceLines)
	r.Post("/{id}/status", h.transition)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	var filter ListFilter
	var err error
	if filter.From, err = httpx.QueryDate(r, "date_from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = httpx.QueryDate(r, "date_to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.CounterpartyID, err = httpx.QueryInt64(r, "counterparty_id"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.MinTotal, err = httpx.QueryDecimal(r, "min_total"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.MaxTotal, err = httpx.QueryDecimal(r, "max_total"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Page, err = httpx.QueryInt(r, "page", 1); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.PerPage, err = httpx.QueryInt(r, "per_page", 20); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter.Status = Status(r.URL.Query().Get("status"))
	page, err := h.service.List(r.Context(), h.kind, filter)
	if err != nil {
		httpx.Fail(w, h.logger, "list orders", err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	var filter StatsFilter
	var err error
	if filter.From, err = httpx.QueryDate(r, "date_from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = httpx.QueryDate(r, "date_to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	stats, err := h.service.Stats(r.Context(), h.kind, filter)
	if err != nil {
		httpx.Fail(w, h.logger, "order stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Create(r.Context(), h.kind, input, r.Header.Get(IdempotencyHeader))
	if err != nil {
		httpx.Fail(w, h.logger, "create order", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Get(r.Context(), h.kind, id)
	if err != nil {
		httpx.Fail(w, h.logger, "get order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input UpdateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Update(r.Context(), h.kind, id, input)
	if err != nil {
		httpx.Fail(w, h.logger, "update order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) replaceLines(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var lines []LineInput
	if err := httpx.DecodeJSON(r, &lines); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.ReplaceLines(r.Context(), h.kind, id, lines)
	if err != nil {
		httpx.Fail(w, h.logger, "replace order lines", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var input TransitionInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	outcome, err := h.service.Transition(r.Context(), h.kind, id, input.Status)
	if err != nil {
		httpx.Fail(w, h.logger, "transition order", err)
		return
	}
	httpx.JSON(w, http.StatusOK, outcome)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), h.kind, id); err != nil {
		httpx.Fail(w, h.logger, "delete order", err)
		return
	}
	httpx.NoContent(w)
}
