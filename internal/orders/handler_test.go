package orders

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/ledger"
)

func newTestRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	r := chi.NewRouter()
	r.Route("/sales", NewHandler(nil, f.svc, KindSale).MountRoutes)
	r.Route("/purchases", NewHandler(nil, f.svc, KindPurchase).MountRoutes)
	return r, f
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestSaleHandlersLifecycle(t *testing.T) {
	router, f := newTestRouter(t)
	p := f.repo.addProduct("Coffee", 5, 1)

	body := fmt.Sprintf(`{"date":"2024-03-01","counterparty_id":%d,"lines":[{"product_id":%d,"quantity":3,"unit_amount":"4.50"}]}`, f.customer, p)
	rr := doJSON(t, router, http.MethodPost, "/sales", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, StatusPending, created.Status)
	assert.Equal(t, "13.5", created.Total.String())
	assert.Equal(t, "2024-03-01", created.Date.String())

	rr = doJSON(t, router, http.MethodPost, fmt.Sprintf("/sales/%d/status", created.ID), `{"status":"completed"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var outcome TransitionOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &outcome))
	assert.Equal(t, StatusPending, outcome.PreviousStatus)
	assert.Equal(t, StatusCompleted, outcome.Order.Status)
	assert.Equal(t, LedgerCreated, outcome.Transition.LedgerAction)
	require.Len(t, outcome.Transition.StockDeltas, 1)
	assert.Equal(t, int64(2), outcome.Transition.StockDeltas[0].Stock)

	rr = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/sales/%d", created.ID), "")
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, router, http.MethodPut, fmt.Sprintf("/sales/%d/lines", created.ID), fmt.Sprintf(`[{"product_id":%d,"quantity":1,"unit_amount":"1"}]`, p))
	require.Equal(t, http.StatusConflict, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/sales/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Count)

	rr = doJSON(t, router, http.MethodPost, fmt.Sprintf("/sales/%d/status", created.ID), `{"status":"cancelled"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(5), f.repo.stock(p))
	assert.Empty(t, f.repo.ledgerEntries(ledger.KindIncome))

	rr = doJSON(t, router, http.MethodDelete, fmt.Sprintf("/sales/%d", created.ID), "")
	require.Equal(t, http.StatusNoContent, rr.Code)
	rr = doJSON(t, router, http.MethodGet, fmt.Sprintf("/sales/%d", created.ID), "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSaleHandlerPricesOmittedUnitAmount(t *testing.T) {
	router, f := newTestRouter(t)
	p := f.repo.addProduct("Biscuits", 5, 0)
	f.repo.setPrices(p, "2.50", "1.10")

	body := fmt.Sprintf(`{"date":"2024-03-01","counterparty_id":%d,"status":"completed","lines":[{"product_id":%d,"quantity":3}]}`, f.customer, p)
	rr := doJSON(t, router, http.MethodPost, "/sales", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "7.5", created.Total.String())
	assert.Equal(t, int64(2), f.repo.stock(p))
	income := f.repo.ledgerEntries(ledger.KindIncome)
	require.Len(t, income, 1)
	assert.Equal(t, "7.5", income[0].Amount.String())

	rr = doJSON(t, router, http.MethodPost, "/sales", fmt.Sprintf(`{"date":"2024-03-01","counterparty_id":%d,"lines":[{"product_id":%d,"quantity":3,"unit_amount":"0.004"}]}`, f.customer, p))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOrderListCapsPageSize(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := doJSON(t, router, http.MethodGet, "/sales?per_page=10000000", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var page struct {
		Pagination struct {
			PerPage int `json:"per_page"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Equal(t, 100, page.Pagination.PerPage)
}

func TestSaleHandlerReportsInsufficientStock(t *testing.T) {
	router, f := newTestRouter(t)
	p := f.repo.addProduct("Tea", 2, 0)

	body := fmt.Sprintf(`{"date":"2024-03-01","counterparty_id":%d,"status":"completed","lines":[{"product_id":%d,"quantity":5,"unit_amount":"3"}]}`, f.customer, p)
	rr := doJSON(t, router, http.MethodPost, "/sales", body)
	require.Equal(t, http.StatusConflict, rr.Code)
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, float64(p), problem["product_id"])
	assert.Equal(t, "Tea", problem["product_name"])
	assert.Equal(t, float64(2), problem["available"])
	assert.Equal(t, float64(5), problem["requested"])
	assert.Equal(t, int64(2), f.repo.stock(p))
}

func TestOrderHandlerValidation(t *testing.T) {
	router, f := newTestRouter(t)
	p := f.repo.addProduct("Nails", 0, 0)

	rr := doJSON(t, router, http.MethodPost, "/purchases", fmt.Sprintf(`{"date":"2024-03-01","counterparty_id":%d,"lines":[]}`, f.supplier))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/purchases", fmt.Sprintf(`{"date":"2024-03-01","counterparty_id":%d,"lines":[{"product_id":%d,"quantity":-1,"unit_amount":"1"}]}`, f.supplier, p))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	assert.Equal(t, "lines[0].quantity", problem["field"])

	rr = doJSON(t, router, http.MethodGet, "/purchases?status=completed", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/purchases?date_from=yesterday", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/purchases/1/status", `{}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/purchases/999/status", `{"status":"received"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOrderHandlerIdempotencyKey(t *testing.T) {
	router, f := newTestRouter(t)
	p := f.repo.addProduct("Boards", 0, 0)
	body := fmt.Sprintf(`{"date":"2024-03-01","counterparty_id":%d,"status":"received","lines":[{"product_id":%d,"quantity":4,"unit_amount":"12"}]}`, f.supplier, p)

	rr := doJSON(t, router, http.MethodPost, "/purchases", body, IdempotencyHeader, "abc-123")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, int64(4), f.repo.stock(p))
	assert.Len(t, f.repo.ledgerEntries(ledger.KindExpense), 1)

	rr = doJSON(t, router, http.MethodPost, "/purchases", body, IdempotencyHeader, "abc-123")
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, int64(4), f.repo.stock(p))
	assert.Equal(t, 1, f.repo.orderCount(KindPurchase))

	rr = doJSON(t, router, http.MethodGet, "/purchases?min_total=40&max_total=60", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var page struct {
		Items []Order `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Acme Wholesale", page.Items[0].CounterpartyName)
}
