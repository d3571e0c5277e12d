package jobs

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// QueueInspector is the subset of asynq.Inspector read by the health endpoint.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler serves queue status for operators.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler builds the jobs endpoints. A nil inspector reports the queue as
// not configured.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.queueHealth)
}

type queueStatus struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Paused    bool   `json:"paused"`
	Available bool   `json:"available"`
}

func (h *Handler) queueHealth(w http.ResponseWriter, r *http.Request) {
	status := queueStatus{Queue: QueueDefault}
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, status)
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	switch {
	case errors.Is(err, asynq.ErrQueueNotFound):
		// never received a task yet
		status.Available = true
	case err != nil:
		h.logger.Warn("queue inspection failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "job queue is not reachable")
		return
	default:
		status = queueStatus{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Paused:    info.Paused,
			Available: true,
		}
	}
	httpx.JSON(w, http.StatusOK, status)
}
