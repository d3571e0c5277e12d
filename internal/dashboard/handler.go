package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Handler serves the dashboard endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.overview)
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	var filter Filter
	var err error
	if filter.From, err = httpx.QueryDate(r, "date_from"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.To, err = httpx.QueryDate(r, "date_to"); err != nil {
		httpx.RespondError(w, err)
		return
	}
	refresh, err := httpx.QueryBool(r, "refresh")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if refresh != nil && *refresh {
		if err := h.service.Refresh(r.Context()); err != nil {
			httpx.Fail(w, h.logger, "refresh dashboard", err)
			return
		}
	}
	overview, err := h.service.Overview(r.Context(), filter)
	if err != nil {
		httpx.Fail(w, h.logger, "load dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, overview)
}
