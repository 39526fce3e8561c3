package streaming

import (
	"strings"
	"testing"
	"time"

	"Overlord/internal/domain/models"
	"Overlord/pkg/dom"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 11, 13, 14, 37, 0, 0, time.UTC)

func sampleState() models.MissionState {
	opened := testNow.Add(-2*time.Hour - 14*time.Minute)
	return models.MissionState{
		Health: models.Health{Status: "operational"},
		Portfolio: models.Portfolio{
			TotalValue: 10000,
			Cash:       2500,
			PnLToday:   models.PnL{Dollars: 125.5, Percent: 1.27},
			Positions: []models.Position{{
				Asset: "BTC", Size: 0.17142, Value: 7500, EntryPrice: 43000, CurrentPrice: 43750.25,
				UnrealizedPnL: 128.61, UnrealizedPnLPercent: 1.74, OpenedAt: &opened,
			}},
		},
		Regime: models.Regime{Regime: "BULL", Confidence: 0.784, LLMReasoning: "Higher highs on rising volume"},
		Trades: []models.Trade{
			{Timestamp: "2025-11-13T14:23:00Z", Action: "BUY", Strategy: "Grid", Asset: "BTC", Price: 43750.25},
			{Timestamp: "2025-11-13T13:02:10Z", Action: "SELL", Strategy: "DCA", Asset: "BTC", Price: 43610},
		},
	}
}

func renderAll(s models.MissionState) *dom.Document {
	d := dom.NewDocument()
	d.Apply(dom.Fragment{RenderLayout(), RenderErrorBanner(""), RenderNotifications(nil), RenderConnectivity(models.ConnectionConnected)})
	d.Apply(dom.Fragment{RenderTopBar(s, testNow)})
	d.Apply(RenderLeftPanel(s.Regime, s.Portfolio, DefaultExpanded(), testNow))
	d.Apply(dom.Fragment{RenderMainCanvas(s.Portfolio, testNow)})
	d.Apply(RenderBottomBar(s.Trades))
	return d
}

func TestTopBar(t *testing.T) {
	d := renderAll(sampleState())
	text := d.Text(IDTopBar)

	require.Contains(t, text, "MARKET: [BULL] 78%")
	require.Contains(t, text, "+$125.50 (+1.27%)")
	require.Contains(t, text, "Last trade: 14m ago")
	require.Contains(t, text, "EMERGENCY STOP")
	require.Contains(t, d.OuterHTML(IDTopBar), `class="system-status-indicator operational"`)
	require.Equal(t, 3, strings.Count(d.OuterHTML(IDTopBar), `connectivity-icon connected`))
}

func TestStatusClass(t *testing.T) {
	require.Equal(t, "operational", statusClass("operational"))
	require.Equal(t, "degraded", statusClass("degraded"))
	require.Equal(t, "critical", statusClass("down"))
	require.Equal(t, "critical", statusClass(""))
}

func TestLeftPanel(t *testing.T) {
	d := renderAll(sampleState())

	require.Equal(t, "BULL - 78%", d.Text(IDRegimeBadge))
	require.Equal(t, "$10000.00", d.Text(IDPortfolioValue))
	text := d.Text(IDLeftPanel)
	require.Contains(t, text, "Higher highs on rising volume")
	require.Contains(t, text, "Cash: $2500.00 (25.0%)")
	require.Contains(t, text, "BTC: 0.1714 ($7500.00)")

	regime, _ := d.Element(CardRegime)
	require.True(t, regime.HasClass("expanded"))
	signals, _ := d.Element(CardSignals)
	require.False(t, signals.HasClass("expanded"))
}

func TestLeftPanelWithoutReasoning(t *testing.T) {
	s := sampleState()
	s.Regime.LLMReasoning = ""
	d := renderAll(s)
	require.Contains(t, d.Text(IDLeftPanel), "No reasoning available")
}

func TestPositionsTable(t *testing.T) {
	d := renderAll(sampleState())
	text := d.Text(IDMainCanvas)
	require.Contains(t, text, "ASSET SIZE ENTRY CURRENT P&L DURATION ACTIONS")
	require.Contains(t, text, "BTC 0.1714 $43000.00 $43750.25 +$128.61 (+1.74%) 2h 14m Close")
	require.Contains(t, d.OuterHTML(IDMainCanvas), `class="text-green"`)
}

func TestEmptyPositionsPlaceholder(t *testing.T) {
	s := sampleState()
	s.Portfolio.Positions = []models.Position{}
	e := RenderMainCanvas(s.Portfolio, testNow)

	require.Equal(t, 1, strings.Count(e.HTML, "<tr class=\"empty-row\">"))
	require.Contains(t, e.HTML, `<td colspan="7">No open positions</td>`)
	require.Equal(t, 1, strings.Count(e.HTML, "<tbody><tr"))
}

func TestActivityFeed(t *testing.T) {
	d := renderAll(sampleState())
	require.Equal(t, 2, d.ChildCount(IDActivityFeed))
	require.Contains(t, d.Text(IDActivityFeed), "2:23:00 PM | 🟢 BUY | Grid | BTC @ $43750.25")
	require.Contains(t, d.Text(IDActivityFeed), "🔴 SELL | DCA")

	empty := RenderActivityFeed(nil)
	require.Equal(t, "No recent activity", dom.TextContent(empty.HTML))

	many := make([]models.Trade, 15)
	for i := range many {
		many[i] = models.Trade{Action: "BUY", Asset: "BTC"}
	}
	require.Equal(t, FeedPreview, strings.Count(RenderActivityFeed(many).HTML, "activity-feed-item"))
}

func TestRenderIsIdempotent(t *testing.T) {
	s := sampleState()
	first := renderAll(s).Snapshot()
	second := renderAll(s).Snapshot()
	require.Equal(t, first, second)
}

func TestErrorBanner(t *testing.T) {
	hidden := RenderErrorBanner("")
	require.True(t, hidden.HasClass("hidden"))

	shown := RenderErrorBanner(LoadErrorMsg)
	require.False(t, shown.HasClass("hidden"))
	require.Equal(t, LoadErrorMsg, dom.TextContent(shown.HTML))
}
