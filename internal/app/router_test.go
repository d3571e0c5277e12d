package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/customers"
	"github.com/odyssey-erp/odyssey-pos/internal/dashboard"
	"github.com/odyssey-erp/odyssey-pos/internal/ledger"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/orders"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func newTestRouter(t *testing.T, db Pinger) (http.Handler, *observability.Metrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetrics()
	catalogService := catalog.NewService(nil, nil, nil, logger)
	ledgerService := ledger.NewService(nil, logger)
	ordersService := orders.NewService(nil, orders.ServiceOptions{Logger: logger})
	router := NewRouter(RouterParams{
		Logger:           logger,
		Config:           &Config{AppEnv: "test"},
		Metrics:          metrics,
		CatalogHandler:   catalog.NewHandler(logger, catalogService),
		CustomersHandler: customers.NewHandler(logger, customers.NewService(nil, logger)),
		PurchasesHandler: orders.NewHandler(logger, ordersService, orders.KindPurchase),
		SalesHandler:     orders.NewHandler(logger, ordersService, orders.KindSale),
		ExpensesHandler:  ledger.NewHandler(logger, ledgerService, ledger.KindExpense),
		IncomeHandler:    ledger.NewHandler(logger, ledgerService, ledger.KindIncome),
		DashboardHandler: dashboard.NewHandler(logger, dashboard.NewService(catalogService, ordersService, ledgerService, nil, logger)),
		JobHandler:       jobs.NewHandler(nil, logger),
		Database:         db,
	})
	return router, metrics
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
	return rr
}

func TestHealthAndReadiness(t *testing.T) {
	router, _ := newTestRouter(t, fakePinger{})

	rr := serve(router, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = serve(router, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	down, _ := newTestRouter(t, fakePinger{err: errors.New("connection refused")})
	rr = serve(down, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/problem+json")
}

func TestUnknownRoutesReturnProblems(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rr := serve(router, http.MethodGet, "/api/v1/nowhere")
	require.Equal(t, http.StatusNotFound, rr.Code)
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.EqualValues(t, http.StatusNotFound, problem["status"])

	rr = serve(router, http.MethodPatch, "/healthz")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	serve(router, http.MethodGet, "/healthz")

	rr := serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "pos_http_requests_total")
	assert.Contains(t, body, `route="/healthz"`)
}

func TestRouterMountsResources(t *testing.T) {
	router, _ := newTestRouter(t, nil)
	mux, ok := router.(chi.Routes)
	require.True(t, ok)

	routes := map[string]bool{}
	require.NoError(t, chi.Walk(mux, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes[method+" "+strings.TrimSuffix(route, "/")] = true
		return nil
	}))

	for _, want := range []string{
		"GET /api/v1/products",
		"POST /api/v1/products/{id}/stock",
		"GET /api/v1/categories/{id}/products",
		"GET /api/v1/suppliers",
		"GET /api/v1/customers",
		"POST /api/v1/purchases/{id}/status",
		"POST /api/v1/sales/{id}/status",
		"GET /api/v1/sales/stats",
		"GET /api/v1/expenses/totals",
		"GET /api/v1/income",
		"GET /api/v1/dashboard",
		"GET /jobs/health",
		"GET /metrics",
	} {
		assert.True(t, routes[want], want)
	}
}
