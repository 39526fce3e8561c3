package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	"Overlord/internal/usecase"
	xhttp "Overlord/pkg/http"
	xlogger "Overlord/pkg/logger"

	"github.com/labstack/echo/v4"
)

const maxWebhookBody = 1 << 20

// WebhookResponse acknowledges an accepted webhook.
type WebhookResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

// FeedEchoHandler serves the feed API: the current snapshot plus the
// webhooks that update it.
type FeedEchoHandler struct {
	logger *xlogger.Logger
	store  drepo.FeedStore
	proc   *usecase.UpdateProcessor
	now    func() time.Time
	guards []echo.MiddlewareFunc
}

// FeedOption configures FeedEchoHandler.
type FeedOption func(*FeedEchoHandler)

// WithWebhookMiddleware installs middleware on the webhook routes only.
func WithWebhookMiddleware(mw ...echo.MiddlewareFunc) FeedOption {
	return func(h *FeedEchoHandler) { h.guards = append(h.guards, mw...) }
}

func NewFeedEchoHandler(logger *xlogger.Logger, store drepo.FeedStore, proc *usecase.UpdateProcessor, opts ...FeedOption) *FeedEchoHandler {
	h := &FeedEchoHandler{logger: logger.With("feed_api"), store: store, proc: proc, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *FeedEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Index)

	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/data", h.Data)

	w := g.Group("/webhook", h.guards...)
	w.POST("", h.Merge)
	w.POST("/price", h.Price)
	w.POST("/predictions", h.Predictions)
	w.POST("/patterns", h.Patterns)
	w.POST("/signals", h.Signal)
	w.POST("/reports", h.Report)
}

func (h *FeedEchoHandler) Index(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"name":    "Bitcoin Overlord Webhook API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"GET /api/data":                 "Get current dashboard data",
			"POST /api/webhook":             "Receive updates from local system",
			"POST /api/webhook/price":       "Update Bitcoin price data",
			"POST /api/webhook/predictions": "Update AI predictions",
			"POST /api/webhook/patterns":    "Update pattern detections",
			"POST /api/webhook/signals":     "Add trading signals",
			"POST /api/webhook/reports":     "Add generated reports",
			"GET /api/health":               "Health check endpoint",
		},
	})
}

func (h *FeedEchoHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// Data returns the stored snapshot as-is, the shape the polling dashboard reads.
func (h *FeedEchoHandler) Data(c echo.Context) error {
	snap, err := h.store.Load(c.Request().Context())
	if err != nil {
		h.logger.Error("load snapshot", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("feed storage unavailable").WithError(err))
	}
	return c.JSON(http.StatusOK, snap)
}

// Merge accepts any JSON object and merges its top-level keys.
func (h *FeedEchoHandler) Merge(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("", "could not read body").WithError(err))
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil || len(keys) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("", "No JSON payload provided"))
	}
	return h.process(c, models.UpdateMerge, json.RawMessage(body), "Data updated successfully")
}

func (h *FeedEchoHandler) Price(c echo.Context) error {
	req := &models.PriceUpdateRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.process(c, models.UpdatePrice, req, "Price updated")
}

func (h *FeedEchoHandler) Predictions(c echo.Context) error {
	req := &models.PredictionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.process(c, models.UpdatePredictions, req, "Predictions updated")
}

func (h *FeedEchoHandler) Patterns(c echo.Context) error {
	req := &models.PatternsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.process(c, models.UpdatePatterns, req, "Patterns updated")
}

func (h *FeedEchoHandler) Signal(c echo.Context) error {
	req := &models.SignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.process(c, models.UpdateSignal, req, "Signal added")
}

func (h *FeedEchoHandler) Report(c echo.Context) error {
	req := &models.ReportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return h.process(c, models.UpdateReport, req, "Report added")
}

func (h *FeedEchoHandler) process(c echo.Context, kind models.UpdateKind, payload interface{}, msg string) error {
	u, err := h.proc.Process(c.Request().Context(), kind, payload)
	if err != nil {
		if errors.Is(err, models.ErrInvalidUpdate) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("", err.Error()).WithError(err))
		}
		h.logger.Error("webhook failed", xlogger.String("kind", string(kind)), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("Failed to save data").WithError(err))
	}

	status := http.StatusOK
	if h.proc.Async() {
		status = http.StatusAccepted
	}
	return c.JSON(status, WebhookResponse{
		Status:    "success",
		Message:   msg,
		ID:        u.ID,
		Timestamp: u.ReceivedAt.Format(time.RFC3339),
	})
}
