package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"ms-service-orders/internal/logger"
	"ms-service-orders/internal/models"
	"ms-service-orders/internal/order"
	"ms-service-orders/internal/order/api"
	"ms-service-orders/internal/order/memory"
	"ms-service-orders/internal/orderid"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type failingStore struct {
	*memory.Store
	fail atomic.Bool
}

func (f *failingStore) SaveOrder(ctx context.Context, o models.ServiceOrder) error {
	if f.fail.Load() {
		return errors.New("disk full")
	}
	return f.Store.SaveOrder(ctx, o)
}

func newServer(t *testing.T) (*httptest.Server, *failingStore) {
	t.Helper()
	log := logger.NewWithWriter(&bytes.Buffer{})
	store := &failingStore{Store: memory.New()}

	ids := orderid.NewAllocator(store, log, orderid.WithSeed(7))
	require.NoError(t, ids.Initialize(context.Background()))

	svc := order.NewOrderService(store, ids, nil, log)
	require.NoError(t, svc.Load(context.Background()))

	srv := httptest.NewServer(api.NewHandler(svc, log).Routes())
	t.Cleanup(srv.Close)
	return srv, store
}

func call(t *testing.T, srv *httptest.Server, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func createOrder(t *testing.T, srv *httptest.Server) models.ServiceOrder {
	t.Helper()
	code, env := call(t, srv, http.MethodPost, "/api/orders", models.IntakeForm{
		CustomerName:  "Dana Reyes",
		CustomerPhone: "555-0100",
		Items:         []models.IntakeItem{{ItemType: "laptop", Quantity: 1, Description: "no power"}},
	})
	require.Equal(t, http.StatusCreated, code)

	var orders []models.ServiceOrder
	require.NoError(t, json.Unmarshal(env.Data, &orders))
	require.Len(t, orders, 1)
	return orders[0]
}

func TestCreateAndGet(t *testing.T) {
	srv, _ := newServer(t)
	created := createOrder(t, srv)
	assert.Equal(t, models.StatusReceived, created.Status)

	code, env := call(t, srv, http.MethodGet, "/api/orders/"+created.ID, nil)
	require.Equal(t, http.StatusOK, code)

	var got models.ServiceOrder
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Len(t, got.StatusHistory, 1)
}

func TestCreate_ValidationIsBadRequest(t *testing.T) {
	srv, _ := newServer(t)

	code, env := call(t, srv, http.MethodPost, "/api/orders", models.IntakeForm{CustomerName: "Dana"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

func TestCreate_MalformedBody(t *testing.T) {
	srv, _ := newServer(t)

	resp, err := http.Post(srv.URL+"/api/orders", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGet_UnknownIsNotFound(t *testing.T) {
	srv, _ := newServer(t)

	code, _ := call(t, srv, http.MethodGet, "/api/orders/999", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatusArchiveDeleteFlow(t *testing.T) {
	srv, _ := newServer(t)
	o := createOrder(t, srv)

	code, _ := call(t, srv, http.MethodPost, "/api/orders/"+o.ID+"/archive", nil)
	assert.Equal(t, http.StatusConflict, code, "received orders cannot be archived")

	code, _ = call(t, srv, http.MethodDelete, "/api/orders/"+o.ID, nil)
	assert.Equal(t, http.StatusConflict, code, "only archived orders can be deleted")

	code, env := call(t, srv, http.MethodPut, "/api/orders/"+o.ID+"/status", map[string]string{"status": "ready", "notes": "fixed"})
	require.Equal(t, http.StatusOK, code)
	var updated models.ServiceOrder
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, models.StatusReady, updated.Status)

	code, _ = call(t, srv, http.MethodPost, "/api/orders/"+o.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, code)

	code, env = call(t, srv, http.MethodGet, "/api/orders?partition=archived", nil)
	require.Equal(t, http.StatusOK, code)
	var archived []models.ServiceOrder
	require.NoError(t, json.Unmarshal(env.Data, &archived))
	require.Len(t, archived, 1)
	assert.Equal(t, o.ID, archived[0].ID)

	code, _ = call(t, srv, http.MethodDelete, "/api/orders/"+o.ID, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = call(t, srv, http.MethodGet, "/api/orders/"+o.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUpdateDetails(t *testing.T) {
	srv, _ := newServer(t)
	o := createOrder(t, srv)

	body := map[string]interface{}{
		"labor":   []map[string]interface{}{{"description": "diagnose", "hours": "2", "rate": "50"}},
		"taxRate": "10",
	}
	code, env := call(t, srv, http.MethodPut, "/api/orders/"+o.ID, body)
	require.Equal(t, http.StatusOK, code)

	var updated models.ServiceOrder
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "110", updated.Financials.Total.String())
}

func TestList_RejectsUnknownPartitionAndSort(t *testing.T) {
	srv, _ := newServer(t)

	code, _ := call(t, srv, http.MethodGet, "/api/orders?partition=deleted", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = call(t, srv, http.MethodGet, "/api/orders?sort=price", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStatsAndQuotes(t *testing.T) {
	srv, _ := newServer(t)
	o := createOrder(t, srv)
	call(t, srv, http.MethodPut, "/api/orders/"+o.ID+"/status", map[string]string{"status": "needs-quote"})

	code, env := call(t, srv, http.MethodGet, "/api/orders/stats", nil)
	require.Equal(t, http.StatusOK, code)
	var counts map[string]int
	require.NoError(t, json.Unmarshal(env.Data, &counts))
	assert.Equal(t, 1, counts["needs-quote"])
	assert.Equal(t, 0, counts["received"])

	code, env = call(t, srv, http.MethodGet, "/api/orders/quotes", nil)
	require.Equal(t, http.StatusOK, code)
	var queue []models.ServiceOrder
	require.NoError(t, json.Unmarshal(env.Data, &queue))
	assert.Len(t, queue, 1)

	code, env = call(t, srv, http.MethodGet, "/api/order-ids/stats", nil)
	require.Equal(t, http.StatusOK, code)
	var stats orderid.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, 1, stats.Used)
}

func TestPersistenceFailureStillReturnsOrder(t *testing.T) {
	srv, store := newServer(t)
	o := createOrder(t, srv)
	store.fail.Store(true)

	code, env := call(t, srv, http.MethodPut, "/api/orders/"+o.ID+"/status", map[string]string{"status": "in-progress"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, env.Success)

	var applied models.ServiceOrder
	require.NoError(t, json.Unmarshal(env.Data, &applied))
	assert.Equal(t, models.StatusInProgress, applied.Status)
}

func TestExportImportRoundTrip(t *testing.T) {
	srv, _ := newServer(t)
	o := createOrder(t, srv)

	resp, err := http.Get(srv.URL + "/api/export?includeArchived=true&exportedBy=front-desk")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".json")

	var doc models.ExportDocument
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, 1, doc.RecordCount)
	assert.Equal(t, "front-desk", doc.ExportedBy)

	other, _ := newServer(t)
	code, env := call(t, other, http.MethodPost, "/api/import", doc)
	require.Equal(t, http.StatusOK, code)
	var result models.ImportResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.Added)

	code, _ = call(t, other, http.MethodGet, "/api/orders/"+o.ID, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestExportWorkbook(t *testing.T) {
	srv, _ := newServer(t)
	o := createOrder(t, srv)

	resp, err := http.Get(srv.URL + "/api/export?format=xlsx")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Orders")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, o.ID, rows[1][0])
}

func TestExport_UnknownFormat(t *testing.T) {
	srv, _ := newServer(t)

	code, _ := call(t, srv, http.MethodGet, "/api/export?format=csv", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
