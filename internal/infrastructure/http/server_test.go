package http

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
	"github.com/mrops-br/products-kv-api/internal/app/dto"
	"github.com/mrops-br/products-kv-api/internal/app/service"
	"github.com/mrops-br/products-kv-api/internal/domain"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/config"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/http/handler"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/http/middleware"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/http/response"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/repository/memory"
	"github.com/mrops-br/products-kv-api/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	t       *testing.T
	handler http.Handler
	product *handler.ProductHandler
}

func newTestAPI(t *testing.T, repo domain.ProductRepository, limiter *middleware.RateLimiter) *testAPI {
	t.Helper()

	telem, err := telemetry.NewNoOpTelemetry(
		&config.OTLPConfig{ServiceName: "products-api-test", Environment: "test"},
		&config.LogConfig{Level: "error"},
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = telem.Shutdown(context.Background()) })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer := telem.TracerProvider.Tracer("test")
	if repo == nil {
		repo = memory.NewProductRepository(tracer, logger)
	}

	svc := service.NewProductService(repo, tracer, telem.MeterProvider.Meter("test"), logger)
	h := handler.NewProductHandler(svc, logger, 1<<20)
	srv := NewServer(&config.ServerConfig{Host: "127.0.0.1", Port: "0"}, h, limiter, logger, telem)

	return &testAPI{t: t, handler: srv.Handler(), product: h}
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func decodeProduct(t *testing.T, rec *httptest.ResponseRecorder) dto.ProductResponse {
	t.Helper()
	var p dto.ProductResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p), rec.Body.String())
	return p
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) response.ErrorResponse {
	t.Helper()
	var e response.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

// failingRepo fails every store call
type failingRepo struct{ err error }

func (r failingRepo) Scan(context.Context) ([]*domain.Product, error) { return nil, r.err }
func (r failingRepo) Load(context.Context, domain.ProductKey) (*domain.Product, error) {
	return nil, r.err
}
func (r failingRepo) Save(context.Context, *domain.Product) error { return r.err }
func (r failingRepo) Insert(context.Context, *domain.Product) error { return r.err }
func (r failingRepo) Replace(context.Context, *domain.Product) error { return r.err }
func (r failingRepo) Delete(context.Context, domain.ProductKey) error { return r.err }
func (r failingRepo) Ping(context.Context) error { return r.err }

func TestProductLifecycle(t *testing.T) {
	api := newTestAPI(t, nil, nil)

	rec := api.do(http.MethodPost, "/api/v1/products", `{"Id":"1","Barcode":"123","Name":"Widget","Price":9.99}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decodeProduct(t, rec)
	assert.Equal(t, "Widget", created.Name)

	rec = api.do(http.MethodGet, "/api/v1/products/1/123", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeProduct(t, rec)
	assert.Equal(t, "1", got.ID)
	assert.Equal(t, "123", got.Barcode)
	assert.Equal(t, "Widget", got.Name)
	assert.Empty(t, got.Description)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("9.99")))

	rec = api.do(http.MethodPost, "/api/v1/products", `{"Id":"1","Barcode":"123","Name":"Other","Price":1}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Product with Id 1 and Barcode 123 already exists.", decodeError(t, rec).Message)

	rec = api.do(http.MethodGet, "/api/v1/products/1/123", "")
	assert.Equal(t, "Widget", decodeProduct(t, rec).Name, "a rejected create leaves the record untouched")

	rec = api.do(http.MethodPut, "/api/v1/products", `{"Id":"1","Barcode":"123","Name":"Widget v2","Price":12.50}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodGet, "/api/v1/products/1/123", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got = decodeProduct(t, rec)
	assert.Equal(t, "Widget v2", got.Name)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("12.50")))

	rec = api.do(http.MethodDelete, "/api/v1/products/1/123", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = api.do(http.MethodGet, "/api/v1/products/1/123", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No product found with this specified id.", decodeError(t, rec).Message)

	rec = api.do(http.MethodDelete, "/api/v1/products/1/123", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateOverwritesAllFields(t *testing.T) {
	api := newTestAPI(t, nil, nil)

	rec := api.do(http.MethodPost, "/api/v1/products", `{"Id":"7","Barcode":"b","Name":"Lamp","Description":"Desk lamp","Price":30}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodPut, "/api/v1/products", `{"Id":"7","Barcode":"b","Price":25}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeProduct(t, api.do(http.MethodGet, "/api/v1/products/7/b", ""))
	assert.Empty(t, got.Name)
	assert.Empty(t, got.Description)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(25)))
}

func TestUpdateMissing(t *testing.T) {
	api := newTestAPI(t, nil, nil)

	rec := api.do(http.MethodPut, "/api/v1/products", `{"Id":"1","Barcode":"123","Name":"Ghost"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No product found with the specified id and barcode.", decodeError(t, rec).Message)

	rec = api.do(http.MethodGet, "/api/v1/products/1/123", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "update must not create")
}

func TestListProducts(t *testing.T) {
	api := newTestAPI(t, nil, nil)

	rec := api.do(http.MethodGet, "/api/v1/products/list", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	for _, body := range []string{
		`{"Id":"1","Barcode":"a","Price":1}`,
		`{"Id":"1","Barcode":"b","Price":2}`,
		`{"Id":"2","Barcode":"a","Price":3}`,
	} {
		require.Equal(t, http.StatusOK, api.do(http.MethodPost, "/api/v1/products", body).Code)
	}

	rec = api.do(http.MethodGet, "/api/v1/products/list", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var products []dto.ProductResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	assert.Len(t, products, 3)
}

func TestRequestBodyErrors(t *testing.T) {
	api := newTestAPI(t, nil, nil)

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "null create",
			method:     http.MethodPost,
			body:       `null`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"bad_request","message":"Request body must contain a product."}`,
		},
		{
			name:       "null update",
			method:     http.MethodPut,
			body:       `null`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"bad_request","message":"Request body must contain a product."}`,
		},
		{
			name:       "empty body",
			method:     http.MethodPost,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"bad_request","message":"Invalid request body: body must not be empty"}`,
		},
		{
			name:       "two values",
			method:     http.MethodPost,
			body:       `{"Id":"1","Barcode":"2"}{"Id":"3","Barcode":"4"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"bad_request","message":"Invalid request body: body must have only a single json value"}`,
		},
		{
			name:       "missing id",
			method:     http.MethodPost,
			body:       `{"Barcode":"123","Name":"Widget"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"validation_errors":{"Id":"failed on rule: required"}}`,
		},
		{
			name:       "missing both key parts on update",
			method:     http.MethodPut,
			body:       `{"Name":"Widget"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"validation_errors":{"Id":"failed on rule: required","Barcode":"failed on rule: required"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := api.do(tt.method, "/api/v1/products", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}

	rec := api.do(http.MethodGet, "/api/v1/products/list", "")
	assert.JSONEq(t, `[]`, rec.Body.String(), "rejected bodies must not be written")
}

func TestMalformedJSON(t *testing.T) {
	api := newTestAPI(t, nil, nil)

	for _, body := range []string{`{"Id":`, `{"Id":"1","Barcode":"2","Price":"abc"}`, `[1,2]`} {
		rec := api.do(http.MethodPost, "/api/v1/products", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "bad_request", decodeError(t, rec).Error)
	}
}

func TestBodyTooLarge(t *testing.T) {
	api := newTestAPI(t, nil, nil)

	body := `{"Id":"1","Barcode":"2","Description":"` + strings.Repeat("x", 2<<20) + `"}`
	rec := api.do(http.MethodPost, "/api/v1/products", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestEmptyKeyPart(t *testing.T) {
	api := newTestAPI(t, failingRepo{err: errors.New("store must not be called")}, nil)

	for _, tt := range []struct {
		name    string
		id      string
		barcode string
		call    http.HandlerFunc
	}{
		{"get empty id", "", "123", api.product.GetProduct},
		{"get empty barcode", "1", "", api.product.GetProduct},
		{"delete empty id", "", "123", api.product.DeleteProduct},
		{"delete empty barcode", "1", "", api.product.DeleteProduct},
	} {
		t.Run(tt.name, func(t *testing.T) {
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", tt.id)
			rctx.URLParams.Add("barcode", tt.barcode)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			rec := httptest.NewRecorder()
			tt.call(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Both id and barcode are required.", decodeError(t, rec).Message)
		})
	}
}

func TestStoreFailureIsInternalError(t *testing.T) {
	api := newTestAPI(t, failingRepo{err: errors.New("connection reset")}, nil)

	for _, tt := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/v1/products/list", ""},
		{http.MethodGet, "/api/v1/products/1/123", ""},
		{http.MethodPost, "/api/v1/products", `{"Id":"1","Barcode":"123"}`},
		{http.MethodPut, "/api/v1/products", `{"Id":"1","Barcode":"123"}`},
		{http.MethodDelete, "/api/v1/products/1/123", ""},
	} {
		rec := api.do(tt.method, tt.path, tt.body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, tt.method+" "+tt.path)
		e := decodeError(t, rec)
		assert.Equal(t, "internal_server_error", e.Error)
		assert.NotContains(t, e.Message, "connection reset")
	}
}

func TestRouteAliases(t *testing.T) {
	api := newTestAPI(t, nil, nil)

	rec := api.do(http.MethodPost, "/api/v1/Products/Create", `{"Id":"9","Barcode":"z","Name":"Alias"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/Products/GetById/9/z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Alias", decodeProduct(t, rec).Name)

	rec = api.do(http.MethodPut, "/api/v1/Products/Update", `{"Id":"9","Barcode":"z","Name":"Alias v2"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/api/v1/Products/List", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Alias v2")

	rec = api.do(http.MethodDelete, "/api/v1/Products/Delete/9/z", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealth(t *testing.T) {
	rec := newTestAPI(t, nil, nil).do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = newTestAPI(t, failingRepo{err: errors.New("down")}, nil).do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, nil, nil)
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/v1/products/list", "").Code)

	rec := api.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "products_operations")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, nil, middleware.NewRateLimiter(1, 1))

	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/api/v1/products/list", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, api.do(http.MethodGet, "/api/v1/products/list", "").Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/health", "").Code, "health is not rate limited")
}

func TestRequestIDHeader(t *testing.T) {
	rec := newTestAPI(t, nil, nil).do(http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}
