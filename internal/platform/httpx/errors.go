package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// ErrBadRequest marks malformed requests (undecodable body, bad path or query parameters).
var ErrBadRequest = errors.New("bad request")

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var (
		stockErr *shared.InsufficientStockError
		valErr   *shared.ValidationError
	)
	switch {
	case errors.As(err, &stockErr):
		WriteProblem(w, ProblemDetail{
			Type:   "/problems/insufficient-stock",
			Title:  "Insufficient Stock",
			Status: http.StatusConflict,
			Detail: stockErr.Error(),
			Extensions: map[string]any{
				"product_id":   stockErr.ProductID,
				"product_name": stockErr.ProductName,
				"available":    stockErr.Available,
				"requested":    stockErr.Requested,
			},
		})
	case errors.As(err, &valErr):
		p := ProblemDetail{Type: "/problems/validation", Title: "Validation Failed", Status: http.StatusBadRequest, Detail: valErr.Error()}
		if valErr.Field != "" {
			p.Extensions = map[string]any{"field": valErr.Field}
		}
		WriteProblem(w, p)
	case errors.Is(err, shared.ErrValidation), errors.Is(err, ErrBadRequest):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, shared.ErrInvalidState):
		Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// StatusFor reports the HTTP status RespondError would use for err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrValidation), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrInsufficientStock),
		errors.Is(err, shared.ErrDuplicate),
		errors.Is(err, shared.ErrInvalidState),
		errors.Is(err, shared.ErrConflict),
		errors.Is(err, shared.ErrIdempotencyConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Fail logs server-side failures and writes the problem response for err.
func Fail(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	if logger != nil && StatusFor(err) >= http.StatusInternalServerError {
		logger.Error(msg, slog.Any("error", err))
	}
	RespondError(w, err)
}
