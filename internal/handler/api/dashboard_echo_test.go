package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"testing"
	"time"

	"Overlord/internal/dashboard/polling"
	"Overlord/internal/dashboard/streaming"
	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	xhttp "Overlord/pkg/http"
	xlogger "Overlord/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 11, 13, 14, 37, 0, 0, time.UTC)

type staticSnapshots struct {
	snap *models.Snapshot
	err  error
}

func (s staticSnapshots) FetchSnapshot(context.Context) (*models.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.snap
	return &cp, nil
}

type staticMission struct {
	state models.MissionState
}

func (m staticMission) Health(context.Context) (*models.Health, error) {
	h := m.state.Health
	return &h, nil
}

func (m staticMission) Portfolio(context.Context) (*models.Portfolio, error) {
	p := m.state.Portfolio
	return &p, nil
}

func (m staticMission) Regime(context.Context) (*models.Regime, error) {
	r := m.state.Regime
	return &r, nil
}

func (m staticMission) RecentTrades(context.Context, int) ([]models.Trade, error) {
	return m.state.Trades, nil
}

func missionFixture() models.MissionState {
	return models.MissionState{
		Health: models.Health{Status: "operational"},
		Portfolio: models.Portfolio{
			TotalValue: 10000,
			Cash:       2500,
			Positions: []models.Position{{
				Asset: "BTC", Size: 0.17, Value: 7500, EntryPrice: 43000, CurrentPrice: 43750,
			}},
		},
		Regime: models.Regime{Regime: "BULL", Confidence: 0.78},
		Trades: []models.Trade{{Timestamp: "2025-11-13T14:23:00Z", Action: "BUY", Strategy: "Grid", Asset: "BTC", Price: 43750}},
	}
}

func newDashboardServer(t *testing.T) (*echo.Echo, *polling.Controller, *streaming.Controller) {
	t.Helper()
	l := xlogger.NewNop()

	snap := models.DefaultSnapshot()
	snap.BTCPrice = 43750.25
	snap.Reports = []models.Report{{Name: "Daily Summary", Date: "2025-11-13", Time: "14:00"}}
	demo := polling.NewDemoGenerator(rand.New(rand.NewSource(1)), func() time.Time { return fixedNow })
	pc := polling.NewController(staticSnapshots{snap: &snap}, demo, drepo.NopMetrics{}, l)
	pc.Refresh(context.Background())

	sc := streaming.NewController(staticMission{state: missionFixture()}, nil, drepo.NopMetrics{}, l, streaming.Options{
		Now: func() time.Time { return fixedNow },
	})
	require.NoError(t, sc.LoadInitial(context.Background()))

	e := echo.New()
	NewDashboardEchoHandler(l, pc, sc).RegisterRoutes(e)
	return e, pc, sc
}

func decodeData(t *testing.T, body []byte, dest interface{}) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

func TestDashboardPages(t *testing.T) {
	e, _, _ := newDashboardServer(t)

	rec := do(e, http.MethodGet, "/dashboard/polling", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `id="`+polling.IDPrice+`"`)
	require.Contains(t, rec.Body.String(), "$43,750.25")

	rec = do(e, http.MethodGet, "/dashboard/streaming", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `id="`+streaming.IDTopBar+`"`)
	require.Contains(t, rec.Body.String(), "MARKET: [BULL] 78%")
}

func TestDashboardFragmentsFilter(t *testing.T) {
	e, pc, _ := newDashboardServer(t)

	rec := do(e, http.MethodGet, "/dashboard/polling/fragments?ids="+polling.IDPrice+",missing", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var frags map[string]string
	decodeData(t, rec.Body.Bytes(), &frags)
	require.Len(t, frags, 1)
	require.Equal(t, pc.Document().Snapshot()[polling.IDPrice], frags[polling.IDPrice])

	rec = do(e, http.MethodGet, "/dashboard/polling/fragments", "")
	decodeData(t, rec.Body.Bytes(), &frags)
	require.Equal(t, pc.Document().Snapshot(), frags)
}

func TestDashboardSelectRange(t *testing.T) {
	e, pc, _ := newDashboardServer(t)

	rec := do(e, http.MethodPost, "/dashboard/polling/range", `{"range": "7D"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "7D", pc.View().Range)

	rec = do(e, http.MethodPost, "/dashboard/polling/range", `{"range": "2Y"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "7D", pc.View().Range)
}

func TestDashboardRefreshReports(t *testing.T) {
	e, _, _ := newDashboardServer(t)

	rec := do(e, http.MethodPost, "/dashboard/polling/reports/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var res models.ActionResult
	decodeData(t, rec.Body.Bytes(), &res)
	require.True(t, res.Done)
	require.Contains(t, rec.Body.String(), "Daily Summary")
}

func TestDashboardTogglePanel(t *testing.T) {
	e, _, sc := newDashboardServer(t)

	rec := do(e, http.MethodPost, "/dashboard/streaming/panels/"+streaming.CardSignals+"/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	el, ok := sc.Document().Element(streaming.CardSignals)
	require.True(t, ok)
	require.True(t, el.HasClass("expanded"))

	rec = do(e, http.MethodPost, "/dashboard/streaming/panels/card-nope/toggle", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardFeedControls(t *testing.T) {
	e, _, sc := newDashboardServer(t)

	rec := do(e, http.MethodPost, "/dashboard/streaming/feed/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, sc.AutoRefresh())

	rec = do(e, http.MethodPost, "/dashboard/streaming/feed/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, sc.Document().ChildCount(streaming.IDActivityFeed))
}

func TestDashboardGuardedActionsNeedConfirmation(t *testing.T) {
	e, _, _ := newDashboardServer(t)

	rec := do(e, http.MethodPost, "/dashboard/streaming/emergency-stop", "")
	require.Equal(t, http.StatusPreconditionRequired, rec.Code)

	rec = do(e, http.MethodPost, "/dashboard/streaming/emergency-stop", `{"confirmed": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodPost, "/dashboard/streaming/positions/BTC/close", `{"confirmed": false}`)
	require.Equal(t, http.StatusPreconditionRequired, rec.Code)

	rec = do(e, http.MethodPost, "/dashboard/streaming/positions/BTC/close", `{"confirmed": true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, http.MethodPost, "/dashboard/streaming/positions/ETH/close", `{"confirmed": true}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardPositionDetails(t *testing.T) {
	e, _, _ := newDashboardServer(t)

	rec := do(e, http.MethodGet, "/dashboard/streaming/positions/BTC", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pos models.Position
	decodeData(t, rec.Body.Bytes(), &pos)
	require.Equal(t, 43000.0, pos.EntryPrice)

	rec = do(e, http.MethodGet, "/dashboard/streaming/positions/DOGE", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var errs []xhttp.AppError
	decodeData(t, rec.Body.Bytes(), &errs)
	require.Equal(t, "ERR_NOT_FOUND", errs[0].Code)
}

func TestDashboardRoutesOnlyForConfiguredControllers(t *testing.T) {
	l := xlogger.NewNop()
	demo := polling.NewDemoGenerator(rand.New(rand.NewSource(1)), time.Now)
	pc := polling.NewController(staticSnapshots{err: errors.New("down")}, demo, drepo.NopMetrics{}, l)

	e := echo.New()
	NewDashboardEchoHandler(l, pc, nil).RegisterRoutes(e)

	require.Equal(t, http.StatusOK, do(e, http.MethodGet, "/dashboard/polling", "").Code)
	require.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/dashboard/streaming", "").Code)
}
