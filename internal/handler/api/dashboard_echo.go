package api

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"Overlord/internal/dashboard/polling"
	"Overlord/internal/dashboard/streaming"
	"Overlord/internal/domain/models"
	"Overlord/pkg/dom"
	xhttp "Overlord/pkg/http"
	xlogger "Overlord/pkg/logger"

	"github.com/labstack/echo/v4"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta http-equiv="refresh" content="{{.Refresh}}">
</head>
<body>
{{.Body}}
</body>
</html>
`))

// DashboardEchoHandler serves the rendered dashboards and their actions.
// Either controller may be nil; its routes are then not registered.
type DashboardEchoHandler struct {
	logger    *xlogger.Logger
	polling   *polling.Controller
	streaming *streaming.Controller
}

func NewDashboardEchoHandler(logger *xlogger.Logger, p *polling.Controller, s *streaming.Controller) *DashboardEchoHandler {
	return &DashboardEchoHandler{logger: logger.With("dashboard_api"), polling: p, streaming: s}
}

func (h *DashboardEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/dashboard")

	if h.polling != nil {
		p := g.Group("/polling")
		p.GET("", h.PollingPage)
		p.GET("/fragments", h.PollingFragments)
		p.GET("/state", h.PollingState)
		p.POST("/range", h.SelectRange)
		p.POST("/reports/refresh", h.RefreshReports)
	}

	if h.streaming != nil {
		s := g.Group("/streaming")
		s.GET("", h.StreamingPage)
		s.GET("/fragments", h.StreamingFragments)
		s.GET("/state", h.StreamingState)
		s.POST("/panels/:card/toggle", h.TogglePanel)
		s.POST("/feed/pause", h.PauseFeed)
		s.POST("/feed/clear", h.ClearFeed)
		s.POST("/emergency-stop", h.EmergencyStop)
		s.GET("/positions/:asset", h.PositionDetails)
		s.POST("/positions/:asset/close", h.ClosePosition)
	}
}

func (h *DashboardEchoHandler) PollingPage(c echo.Context) error {
	return renderPage(c, "Bitcoin Overlord", 10, h.polling.Document().OuterHTML(polling.IDRoot))
}

func (h *DashboardEchoHandler) StreamingPage(c echo.Context) error {
	return renderPage(c, "Bitcoin Overlord Mission Control", 30, h.streaming.Document().OuterHTML(streaming.IDRoot))
}

func renderPage(c echo.Context, title string, refresh int, body string) error {
	var b strings.Builder
	err := pageTemplate.Execute(&b, struct {
		Title   string
		Refresh int
		Body    template.HTML
	}{title, refresh, template.HTML(body)})
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalError("render page").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.HTML(http.StatusOK, b.String())
}

func (h *DashboardEchoHandler) PollingFragments(c echo.Context) error {
	return fragments(c, h.polling.Document())
}

func (h *DashboardEchoHandler) StreamingFragments(c echo.Context) error {
	return fragments(c, h.streaming.Document())
}

// fragments returns each element's own outer HTML keyed by id, so a client
// can diff two responses and patch only what changed.
func fragments(c echo.Context, doc *dom.Document) error {
	req := &models.FragmentsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	all := doc.Snapshot()
	if req.IDs == "" {
		return xhttp.SuccessResponse(c, all)
	}

	out := make(map[string]string)
	for _, id := range strings.Split(req.IDs, ",") {
		id = strings.TrimSpace(id)
		if html, ok := all[id]; ok {
			out[id] = html
		}
	}
	return xhttp.SuccessResponse(c, out)
}

func (h *DashboardEchoHandler) PollingState(c echo.Context) error {
	v := h.polling.View()
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"connection": v.Connection,
		"range":      v.Range,
		"snapshot":   v.Snapshot,
	})
}

func (h *DashboardEchoHandler) SelectRange(c echo.Context) error {
	req := &models.RangeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.polling.SelectRange(req.Range); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("range", err.Error()))
	}
	return xhttp.SuccessResponse(c, models.ActionResult{Action: "select_range", Done: true, State: req.Range})
}

func (h *DashboardEchoHandler) RefreshReports(c echo.Context) error {
	h.polling.RefreshReports(c.Request().Context())
	return xhttp.SuccessResponse(c, models.ActionResult{
		Action: "refresh_reports",
		Done:   true,
		State:  h.polling.View().Snapshot.Reports,
	})
}

func (h *DashboardEchoHandler) StreamingState(c echo.Context) error {
	state, loaded := h.streaming.MissionState()
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"connection":   h.streaming.Connection(),
		"auto_refresh": h.streaming.AutoRefresh(),
		"loaded":       loaded,
		"state":        state,
	})
}

func (h *DashboardEchoHandler) TogglePanel(c echo.Context) error {
	card := c.Param("card")
	expanded, err := h.streaming.TogglePanel(card)
	if err != nil {
		if errors.Is(err, streaming.ErrUnknownCard) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown card %q", card))
		}
		h.logger.Error("toggle panel", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("toggle panel").WithError(err))
	}
	return xhttp.SuccessResponse(c, models.ActionResult{Action: "toggle_panel", Done: true, State: expanded})
}

func (h *DashboardEchoHandler) PauseFeed(c echo.Context) error {
	active := h.streaming.PauseFeed()
	return xhttp.SuccessResponse(c, models.ActionResult{Action: "pause_feed", Done: true, State: active})
}

func (h *DashboardEchoHandler) ClearFeed(c echo.Context) error {
	h.streaming.ClearFeed()
	return xhttp.SuccessResponse(c, models.ActionResult{Action: "clear_feed", Done: true})
}

func (h *DashboardEchoHandler) EmergencyStop(c echo.Context) error {
	req := &models.ConfirmRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.streaming.EmergencyStop(answer(req.Confirmed)) {
		return xhttp.AppErrorResponse(c, xhttp.ConfirmationRequiredError("emergency stop"))
	}
	return xhttp.SuccessResponse(c, models.ActionResult{Action: "emergency_stop", Done: true})
}

func (h *DashboardEchoHandler) PositionDetails(c echo.Context) error {
	asset := c.Param("asset")
	pos, err := h.streaming.ShowPositionDetails(asset)
	if err != nil {
		return h.positionError(c, asset, err)
	}
	return xhttp.SuccessResponse(c, pos)
}

func (h *DashboardEchoHandler) ClosePosition(c echo.Context) error {
	asset := c.Param("asset")
	req := &models.ConfirmRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	done, err := h.streaming.ClosePosition(asset, answer(req.Confirmed))
	if err != nil {
		return h.positionError(c, asset, err)
	}
	if !done {
		return xhttp.AppErrorResponse(c, xhttp.ConfirmationRequiredError(fmt.Sprintf("closing %s", asset)))
	}
	return xhttp.SuccessResponse(c, models.ActionResult{Action: "close_position", Done: true, State: asset})
}

func (h *DashboardEchoHandler) positionError(c echo.Context, asset string, err error) error {
	if errors.Is(err, streaming.ErrUnknownPosition) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no open position for %s", asset))
	}
	h.logger.Error("position action", xlogger.String("asset", asset), xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError("position action").WithError(err))
}

// answer is the confirmation the request body already carries.
func answer(confirmed bool) streaming.Confirmer {
	return func(string) bool { return confirmed }
}
