package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/storefront-importer/internal/database"
	"github.com/maltedev/storefront-importer/internal/pipeline"
)

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Process(ctx context.Context, url string) (pipeline.Result, error) {
	args := m.Called(ctx, url)
	return args.Get(0).(pipeline.Result), args.Error(1)
}

type MockLookup struct {
	mock.Mock
}

func (m *MockLookup) LookupProduct(ctx context.Context, key, canonicalURL string) (*database.ProductSummary, error) {
	args := m.Called(ctx, key, canonicalURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.ProductSummary), args.Error(1)
}

type stubBacklog struct {
	pending, dead int64
	err           error
}

func (s stubBacklog) Backlog(context.Context) (int64, int64, error) {
	return s.pending, s.dead, s.err
}

const itemURL = "https://detail.1688.com/offer/612345678901.html"

func newTestServer(runner Processor, lookup ProductLookup, backlog Backlog) http.Handler {
	return newTestServerWithQueue(runner, lookup, nil, backlog)
}

func newTestServerWithQueue(runner Processor, lookup ProductLookup, tasks TaskQueue, backlog Backlog) http.Handler {
	h := NewHandlers(runner, lookup, tasks, backlog, slog.Default())
	return NewRouter(h, RouterOptions{})
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestImportItem(t *testing.T) {
	t.Run("persisted", func(t *testing.T) {
		runner := new(MockProcessor)
		id := uuid.New()
		runner.On("Process", mock.Anything, itemURL).Return(pipeline.Result{
			URL:       itemURL,
			Outcome:   pipeline.OutcomePersisted,
			ProductID: id,
			Variants:  4,
			Duration:  3 * time.Second,
		}, nil)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(`{"url": "`+itemURL+`"}`))
		newTestServer(runner, new(MockLookup), nil).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "persisted", body["outcome"])
		assert.Equal(t, id.String(), body["product_id"])
		assert.Equal(t, float64(4), body["variants"])
		assert.Equal(t, float64(3), body["seconds"])
	})

	t.Run("duplicate", func(t *testing.T) {
		runner := new(MockProcessor)
		runner.On("Process", mock.Anything, itemURL).Return(pipeline.Result{
			URL:       itemURL,
			Outcome:   pipeline.OutcomeDuplicate,
			ProductID: uuid.New(),
		}, nil)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(`{"url": "`+itemURL+`"}`))
		newTestServer(runner, new(MockLookup), nil).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "duplicate", decodeBody(t, rec)["outcome"])
	})

	t.Run("skipped", func(t *testing.T) {
		runner := new(MockProcessor)
		runner.On("Process", mock.Anything, itemURL).Return(pipeline.Result{
			URL:     itemURL,
			Outcome: pipeline.OutcomeSkipped,
			Stage:   pipeline.StageEnrich,
			Err:     errors.New("item skipped: enrich: translation attempts exhausted"),
		}, nil)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(`{"url": "`+itemURL+`"}`))
		newTestServer(runner, new(MockLookup), nil).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "enrich", body["stage"])
		assert.Contains(t, body["reason"], "exhausted")
		assert.NotContains(t, body, "product_id")
	})

	t.Run("interrupted", func(t *testing.T) {
		runner := new(MockProcessor)
		runner.On("Process", mock.Anything, itemURL).Return(pipeline.Result{URL: itemURL}, context.Canceled)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(`{"url": "`+itemURL+`"}`))
		newTestServer(runner, new(MockLookup), nil).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("invalid input", func(t *testing.T) {
		for _, body := range []string{`{`, `{}`, `{"url": "not a url"}`, `{"url": "   "}`} {
			runner := new(MockProcessor)
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/items", strings.NewReader(body))
			newTestServer(runner, new(MockLookup), nil).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
			runner.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
		}
	})
}

func TestLookupItem(t *testing.T) {
	t.Run("found by canonical key", func(t *testing.T) {
		lookup := new(MockLookup)
		id := uuid.New()
		lookup.On("LookupProduct", mock.Anything, "offer:612345678901", mock.Anything).Return(&database.ProductSummary{
			ID:         id,
			SourceKey:  "offer:612345678901",
			Name:       "여름 남성 티셔츠",
			FinalPrice: decimal.NewFromInt(8500),
		}, nil)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/items/lookup?url="+itemURL+"%3Fspm%3Dabc", nil)
		newTestServer(new(MockProcessor), lookup, nil).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, id.String(), body["id"])
		assert.Equal(t, "8500", body["final_price"])
	})

	t.Run("url without item id matches the stored canonical url", func(t *testing.T) {
		lookup := new(MockLookup)
		lookup.On("LookupProduct", mock.Anything, "https://m.example.com/detail/summer-tee", "https://m.example.com/detail/summer-tee").
			Return(&database.ProductSummary{ID: uuid.New(), SourceKey: "offer:42", FinalPrice: decimal.NewFromInt(9000)}, nil)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/items/lookup?url=http://M.example.com/detail/summer-tee/%3Fspm%3Dx", nil)
		newTestServer(new(MockProcessor), lookup, nil).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "offer:42", decodeBody(t, rec)["source_key"])
		lookup.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		lookup := new(MockLookup)
		lookup.On("LookupProduct", mock.Anything, "offer:1234567", "https://detail.1688.com/offer/1234567.html").Return(nil, nil)

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/items/lookup?url=https://detail.1688.com/offer/1234567.html", nil)
		newTestServer(new(MockProcessor), lookup, nil).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing url", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/items/lookup", nil)
		newTestServer(new(MockProcessor), new(MockLookup), nil).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		lookup := new(MockLookup)
		lookup.On("LookupProduct", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/items/lookup?url="+itemURL, nil)
		newTestServer(new(MockProcessor), lookup, nil).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		backlog    Backlog
		wantCode   int
		wantStatus string
	}{
		{"stream backend", nil, http.StatusOK, "ok"},
		{"healthy outbox", stubBacklog{pending: 3}, http.StatusOK, "ok"},
		{"pending backlog", stubBacklog{pending: 1500}, http.StatusOK, "warning"},
		{"dead letters", stubBacklog{dead: 101}, http.StatusServiceUnavailable, "error"},
		{"outbox unavailable", stubBacklog{err: errors.New("db down")}, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			newTestServer(new(MockProcessor), new(MockLookup), tt.backlog).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantStatus, decodeBody(t, rec)["status"])
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	pipeline.TranslateObserver{}.Attempt("gemini-2.5-flash", nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	newTestServer(new(MockProcessor), new(MockLookup), nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "importer_translate_attempts_total")
}
