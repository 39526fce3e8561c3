package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	"Overlord/internal/service/feedstore"
	"Overlord/internal/service/ratelimit"
	"Overlord/internal/usecase"
	"Overlord/pkg/cache"
	xlogger "Overlord/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type queuedUpdates struct {
	updates []*models.Update
}

func (q *queuedUpdates) Publish(_ context.Context, u *models.Update) error {
	q.updates = append(q.updates, u)
	return nil
}

func (q *queuedUpdates) Close() error { return nil }

func newFeedServer(t *testing.T, backend string, pub drepo.UpdatePublisher) (*echo.Echo, *feedstore.Store) {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	store := feedstore.New(mc)

	proc, err := usecase.NewUpdateProcessor(store, pub, drepo.NopMetrics{}, xlogger.NewNop(), backend)
	require.NoError(t, err)

	e := echo.New()
	NewFeedEchoHandler(xlogger.NewNop(), store, proc).RegisterRoutes(e)
	return e, store
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestFeedIndexAndHealth(t *testing.T) {
	e, _ := newFeedServer(t, usecase.BackendDirect, nil)

	rec := do(e, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var index struct {
		Name      string            `json:"name"`
		Endpoints map[string]string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &index))
	require.Contains(t, index.Endpoints, "POST /api/webhook/price")

	rec = do(e, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestFeedDataServesDefaultsBeforeAnyWebhook(t *testing.T) {
	e, _ := newFeedServer(t, usecase.BackendDirect, nil)

	rec := do(e, http.MethodGet, "/api/data", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, "Unknown", snap.AISentiment)
	require.NotNil(t, snap.Signals)
}

func TestWebhookMerge(t *testing.T) {
	e, store := newFeedServer(t, usecase.BackendDirect, nil)

	rec := do(e, http.MethodPost, "/api/webhook", `{"btc_price": 50000, "ai_sentiment": "Bullish"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "success", resp.Status)
	require.NotEmpty(t, resp.ID)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 50000.0, snap.BTCPrice)
	require.Equal(t, "Bullish", snap.AISentiment)
}

func TestWebhookMergeRejectsNonObjects(t *testing.T) {
	e, _ := newFeedServer(t, usecase.BackendDirect, nil)

	for _, body := range []string{"", "{}", "[1,2]", "not json"} {
		rec := do(e, http.MethodPost, "/api/webhook", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	rec := do(e, http.MethodPost, "/api/webhook", "")
	require.Contains(t, rec.Body.String(), "No JSON payload provided")
}

func TestWebhookMergeRejectsMistypedFields(t *testing.T) {
	e, _ := newFeedServer(t, usecase.BackendDirect, nil)

	rec := do(e, http.MethodPost, "/api/webhook", `{"btc_price": "high"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookPriceValidation(t *testing.T) {
	e, store := newFeedServer(t, usecase.BackendDirect, nil)

	rec := do(e, http.MethodPost, "/api/webhook/price", `{"btc_change_24h": 1.5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "btc_price")

	rec = do(e, http.MethodPost, "/api/webhook/price", `{"btc_price": 43750.25, "btc_change_24h": 2.5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 43750.25, snap.BTCPrice)
	require.Equal(t, 2.5, snap.BTCChange24h)
}

func TestWebhookListEndpoints(t *testing.T) {
	e, store := newFeedServer(t, usecase.BackendDirect, nil)

	rec := do(e, http.MethodPost, "/api/webhook/predictions",
		`{"predictions": [{"model": "LSTM", "value": "+2.5%", "confidence": 80}, {"model": "GRU", "value": "-1%", "confidence": 60}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodPost, "/api/webhook/patterns", `{"patterns": [{"name": "Double Bottom", "detected": "2h ago", "confidence": "High"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodPost, "/api/webhook/signals", `{"signal": {"time": "14:23", "text": "Volume spike", "type": "bullish"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodPost, "/api/webhook/reports", `{"report": {"name": "Daily Summary", "date": "2025-11-13", "time": "14:00"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Predictions, 2)
	require.Equal(t, 2, snap.ActiveModels)
	require.Len(t, snap.Patterns, 1)
	require.Equal(t, "Volume spike", snap.Signals[0].Text)
	require.Equal(t, "Daily Summary", snap.Reports[0].Name)
}

func TestWebhookSignalRejectsUnknownType(t *testing.T) {
	e, _ := newFeedServer(t, usecase.BackendDirect, nil)

	rec := do(e, http.MethodPost, "/api/webhook/signals", `{"signal": {"time": "14:23", "text": "x", "type": "sideways"}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/api/webhook/signals", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookKafkaBackendAccepts(t *testing.T) {
	pub := &queuedUpdates{}
	e, store := newFeedServer(t, usecase.BackendKafka, pub)

	rec := do(e, http.MethodPost, "/api/webhook/price", `{"btc_price": 43000}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, pub.updates, 1)
	require.Equal(t, models.UpdatePrice, pub.updates[0].Kind)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Zero(t, snap.BTCPrice)

	rec = do(e, http.MethodPost, "/api/webhook", `{"btc_price": "high"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, pub.updates, 1)
}

func TestWebhookMiddlewareGuardsOnlyWebhooks(t *testing.T) {
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	store := feedstore.New(mc)
	proc, err := usecase.NewUpdateProcessor(store, nil, drepo.NopMetrics{}, xlogger.NewNop(), usecase.BackendDirect)
	require.NoError(t, err)

	e := echo.New()
	lim := ratelimit.New(1, 0.001)
	NewFeedEchoHandler(xlogger.NewNop(), store, proc,
		WithWebhookMiddleware(ratelimit.Middleware(lim, nil)),
	).RegisterRoutes(e)

	require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/api/webhook/price", `{"btc_price":43000}`).Code)
	require.Equal(t, http.StatusTooManyRequests, do(e, http.MethodPost, "/api/webhook/price", `{"btc_price":43100}`).Code)

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, do(e, http.MethodGet, "/api/data", "").Code)
	}
}
