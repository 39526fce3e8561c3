package streaming

import (
	"bytes"
	"html/template"
	"sort"
	"strings"
	"time"

	"Overlord/internal/domain/models"
	"Overlord/pkg/dom"
	"Overlord/pkg/format"
	"Overlord/pkg/util"
)

// Container ids.
const (
	IDRoot           = "streaming-root"
	IDTopBar         = "top-bar"
	IDConnectivity   = "connectivity-status"
	IDLeftPanel      = "left-panel"
	IDRegimeBadge    = "regime-badge"
	IDPortfolioValue = "portfolio-value"
	IDMainCanvas     = "main-canvas"
	IDBottomBar      = "bottom-bar"
	IDActivityFeed   = "activity-feed"
	IDErrorBanner    = "error-banner"
	IDNotifications  = "notifications"
)

// Left panel cards, in display order.
const (
	CardRegime    = "card-regime"
	CardPortfolio = "card-portfolio"
	CardSignals   = "card-signals"
	CardActions   = "card-actions"
)

var Cards = []string{CardRegime, CardPortfolio, CardSignals, CardActions}

// DefaultExpanded is the card state before any toggle.
func DefaultExpanded() map[string]bool {
	return map[string]bool{CardRegime: true, CardPortfolio: true}
}

const (
	FeedPreview  = 10
	LoadErrorMsg = "Failed to connect to API. Is the server running?"
)

// connectivityTargets are the upstreams shown as status dots.
var connectivityTargets = []string{"Kraken API", "Database", "LLM"}

var templates = template.Must(template.New("streaming").Parse(`
{{define "top-bar"}}<div class="system-status-indicator {{.StatusClass}}" title="{{.Status}}"></div>
<div class="market-conditions {{.RegimeClass}}">MARKET: [{{.Regime}}] {{.Confidence}}%</div>
<div class="active-strategies"><span class="strategy-badge">Grid 40%</span><span class="strategy-badge">DCA 10%</span></div>
<div class="pnl-today {{.PnLClass}}">{{.PnL}}</div>
{{.Connectivity}}
<div class="last-action-time">Last trade: {{.LastTrade}}</div>
<button class="panic-button" data-action="emergency-stop">EMERGENCY STOP</button>{{end}}
{{define "connectivity"}}{{range .}}<div class="connectivity-icon {{.Class}}" title="{{.Name}}"></div>{{end}}{{end}}
{{define "card"}}<div class="panel-card-header" data-toggle="{{.ID}}"><span class="panel-card-title">{{.Title}}</span></div><div class="panel-card-content">{{.Body}}</div>{{end}}
{{define "regime-body"}}{{.Badge}}<div class="regime-updated">Last update: {{.Updated}}</div><div class="regime-reasoning">{{.Reasoning}}</div>{{end}}
{{define "portfolio-body"}}{{.Value}}<div class="asset-breakdown">💵 Cash: {{.Cash}} ({{.CashPct}}%)</div><div class="asset-breakdown">₿ BTC: {{.BTCSize}} ({{.BTCValue}})</div><div class="pnl-line {{.PnLClass}}">Today: {{.PnL}} {{.PnLIcon}}</div>{{end}}
{{define "positions"}}<div class="position-dashboard"><div class="positions-table"><h3>Open Positions</h3><table><thead><tr><th>ASSET</th><th>SIZE</th><th>ENTRY</th><th>CURRENT</th><th>P&amp;L</th><th>DURATION</th><th>ACTIONS</th></tr></thead><tbody>{{range .}}<tr data-asset="{{.Asset}}"><td>{{.Asset}}</td><td>{{.Size}}</td><td>{{.Entry}}</td><td>{{.Current}}</td><td class="{{.PnLClass}}">{{.PnL}}</td><td>{{.Duration}}</td><td><button class="close-position" data-asset="{{.Asset}}">Close</button></td></tr>{{else}}<tr class="empty-row"><td colspan="7">No open positions</td></tr>{{end}}</tbody></table></div></div>{{end}}
{{define "feed-item"}}<div class="activity-feed-item trade {{.Class}}">{{.Time}} | {{.Action}} | {{.Strategy}} | {{.Asset}} @ {{.Price}}</div>{{end}}
{{define "notifications"}}{{range .}}<div class="toast {{.Kind}}" data-id="{{.ID}}">{{.Message}}</div>{{end}}{{end}}
`))

// RenderTopBar renders status, market conditions, today's PnL and the last
// trade age. The connectivity dots are a separate slotted element.
func RenderTopBar(s models.MissionState, now time.Time) dom.Element {
	data := struct {
		Status, StatusClass, Regime, RegimeClass, Confidence string
		PnL, PnLClass, LastTrade                             string
		Connectivity                                         template.HTML
	}{
		Status:       s.Health.Status,
		StatusClass:  statusClass(s.Health.Status),
		Regime:       s.Regime.Regime,
		RegimeClass:  strings.ToLower(s.Regime.Regime),
		Confidence:   format.Ratio(s.Regime.Confidence),
		PnL:          pnlText(s.Portfolio.PnLToday),
		PnLClass:     signClass(s.Portfolio.PnLToday.Dollars),
		LastTrade:    lastTradeAge(s.Trades, now),
		Connectivity: template.HTML(dom.Slot(IDConnectivity)),
	}
	return dom.New(IDTopBar, "header", execute("top-bar", data), "top-bar")
}

// RenderConnectivity renders the upstream status dots for state.
func RenderConnectivity(state models.ConnectionState) dom.Element {
	class := "disconnected"
	if state == models.ConnectionConnected {
		class = "connected"
	}
	type dot struct{ Name, Class string }
	dots := make([]dot, len(connectivityTargets))
	for i, name := range connectivityTargets {
		dots[i] = dot{Name: name, Class: class}
	}
	return dom.New(IDConnectivity, "div", execute("connectivity", dots), "connectivity-status", string(state))
}

// RenderLeftPanel renders the panel skeleton, its four cards and the two
// independently patched values inside them.
func RenderLeftPanel(regime models.Regime, portfolio models.Portfolio, expanded map[string]bool, now time.Time) dom.Fragment {
	var skeleton strings.Builder
	for _, id := range Cards {
		skeleton.WriteString(dom.Slot(id))
	}

	reasoning := regime.LLMReasoning
	if reasoning == "" {
		reasoning = "No reasoning available"
	}
	updated := "unknown"
	if regime.UpdatedAt != nil {
		updated = util.Ago(now.Sub(*regime.UpdatedAt))
	}
	regimeBody := execute("regime-body", struct {
		Badge              template.HTML
		Updated, Reasoning string
	}{template.HTML(dom.Slot(IDRegimeBadge)), updated, reasoning})

	cashPct := "0.0"
	if portfolio.TotalValue != 0 {
		cashPct = format.Fixed(portfolio.Cash/portfolio.TotalValue*100, 1)
	}
	btcSize, btcValue := "0", "$0"
	if btc, ok := portfolio.Position("BTC"); ok {
		btcSize = format.Fixed(btc.Size, 4)
		btcValue = format.Dollars(btc.Value)
	}
	pnlIcon := "🟢"
	if portfolio.PnLToday.Dollars < 0 {
		pnlIcon = "🔴"
	}
	portfolioBody := execute("portfolio-body", struct {
		Value                                 template.HTML
		Cash, CashPct, BTCSize, BTCValue, PnL string
		PnLClass, PnLIcon                     string
	}{
		Value:    template.HTML(dom.Slot(IDPortfolioValue)),
		Cash:     format.Dollars(portfolio.Cash),
		CashPct:  cashPct,
		BTCSize:  btcSize,
		BTCValue: btcValue,
		PnL:      pnlText(portfolio.PnLToday),
		PnLClass: signClass(portfolio.PnLToday.Dollars),
		PnLIcon:  pnlIcon,
	})

	return dom.Fragment{
		dom.New(IDLeftPanel, "aside", skeleton.String(), "left-panel"),
		renderCard(CardRegime, "Regime Overview", regimeBody, expanded[CardRegime]),
		renderCard(CardPortfolio, "Portfolio State", portfolioBody, expanded[CardPortfolio]),
		renderCard(CardSignals, "🎯 Pending Signals (0)", `<div class="muted">No pending signals</div>`, expanded[CardSignals]),
		renderCard(CardActions, "Quick Actions",
			`<button data-action="pause-trading">Pause All Trading</button>`+
				`<button data-action="regime-recheck">Force Regime Recheck</button>`+
				`<button data-action="export-trades">Export Today's Trades</button>`,
			expanded[CardActions]),
		RenderRegimeBadge(regime),
		RenderPortfolioValue(portfolio.TotalValue),
	}
}

// RenderRegimeBadge renders "BULL - 78%".
func RenderRegimeBadge(r models.Regime) dom.Element {
	return dom.New(IDRegimeBadge, "div",
		template.HTMLEscapeString(r.Regime+" - "+format.Ratio(r.Confidence)+"%"),
		"regime-badge", strings.ToLower(r.Regime))
}

// RenderPortfolioValue renders the total value display.
func RenderPortfolioValue(total float64) dom.Element {
	return dom.New(IDPortfolioValue, "div", template.HTMLEscapeString(format.Dollars(total)), "portfolio-value")
}

// RenderMainCanvas renders the positions table. An empty portfolio yields a
// single placeholder row spanning all seven columns.
func RenderMainCanvas(p models.Portfolio, now time.Time) dom.Element {
	type row struct {
		Asset, Size, Entry, Current, PnL, PnLClass, Duration string
	}
	rows := make([]row, 0, len(p.Positions))
	for _, pos := range p.Positions {
		rows = append(rows, row{
			Asset:    pos.Asset,
			Size:     format.Fixed(pos.Size, 4),
			Entry:    format.Dollars(pos.EntryPrice),
			Current:  format.Dollars(pos.CurrentPrice),
			PnL:      format.SignedDollars(pos.UnrealizedPnL) + " (" + format.SignedPercent(pos.UnrealizedPnLPercent) + ")",
			PnLClass: textSignClass(pos.UnrealizedPnL),
			Duration: holdDuration(pos.OpenedAt, now),
		})
	}
	return dom.New(IDMainCanvas, "section", execute("positions", rows), "main-canvas")
}

// RenderBottomBar renders the feed controls and the first trades.
func RenderBottomBar(trades []models.Trade) dom.Fragment {
	bar := `<div class="feed-header"><strong>ACTIVITY FEED (Live)</strong>` +
		`<div><button data-action="pause-feed">Pause</button><button data-action="clear-feed">Clear</button></div></div>` +
		dom.Slot(IDActivityFeed)
	return dom.Fragment{
		dom.New(IDBottomBar, "footer", bar, "bottom-bar"),
		RenderActivityFeed(trades),
	}
}

// RenderActivityFeed renders up to FeedPreview trades, newest first as given.
func RenderActivityFeed(trades []models.Trade) dom.Element {
	if len(trades) > FeedPreview {
		trades = trades[:FeedPreview]
	}
	var b strings.Builder
	for _, t := range trades {
		b.WriteString(RenderFeedItem(t))
	}
	if len(trades) == 0 {
		b.WriteString(`<div class="activity-feed-item ` + dom.PlaceholderClass + `">No recent activity</div>`)
	}
	return dom.New(IDActivityFeed, "div", b.String(), "activity-feed")
}

// RenderFeedItem renders "2:23:00 PM | 🟢 BUY | Grid | BTC @ $43750.25".
func RenderFeedItem(t models.Trade) string {
	action, class := "🔴 SELL", "sell"
	if strings.EqualFold(t.Action, "BUY") {
		action, class = "🟢 BUY", "buy"
	}
	ts := t.Timestamp
	if parsed, ok := util.ParseTime(t.Timestamp); ok {
		ts = parsed.Format("3:04:05 PM")
	}
	return execute("feed-item", struct {
		Time, Action, Strategy, Asset, Price, Class string
	}{ts, action, t.Strategy, t.Asset, format.Dollars(t.Price), class})
}

// RenderErrorBanner shows msg, or hides the banner when msg is empty.
func RenderErrorBanner(msg string) dom.Element {
	if msg == "" {
		return dom.New(IDErrorBanner, "div", "", "error-banner", "hidden")
	}
	return dom.New(IDErrorBanner, "div", template.HTMLEscapeString(msg), "error-banner")
}

// Notification is a transient toast or alert.
type Notification struct {
	ID      uint64
	Kind    string
	Message string
}

// RenderNotifications renders the visible toasts, oldest first.
func RenderNotifications(list []Notification) dom.Element {
	sorted := append([]Notification(nil), list...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return dom.New(IDNotifications, "div", execute("notifications", sorted), "notifications")
}

// RenderLayout returns the static page skeleton.
func RenderLayout() dom.Element {
	return dom.New(IDRoot, "div",
		dom.Slot(IDErrorBanner)+dom.Slot(IDNotifications)+dom.Slot(IDTopBar)+
			`<div class="mission-body">`+dom.Slot(IDLeftPanel)+dom.Slot(IDMainCanvas)+`</div>`+
			dom.Slot(IDBottomBar),
		"mission-control")
}

func renderCard(id, title, body string, expanded bool) dom.Element {
	classes := []string{"panel-card"}
	if expanded {
		classes = append(classes, "expanded")
	}
	html := execute("card", struct {
		ID, Title string
		Body      template.HTML
	}{id, title, template.HTML(body)})
	return dom.New(id, "div", html, classes...)
}

func statusClass(status string) string {
	switch status {
	case "operational", "degraded":
		return status
	default:
		return "critical"
	}
}

func pnlText(p models.PnL) string {
	return format.SignedDollars(p.Dollars) + " (" + format.SignedPercent(p.Percent) + ")"
}

func signClass(v float64) string {
	if v >= 0 {
		return "positive"
	}
	return "negative"
}

func textSignClass(v float64) string {
	if v >= 0 {
		return "text-green"
	}
	return "text-red"
}

func lastTradeAge(trades []models.Trade, now time.Time) string {
	if len(trades) == 0 {
		return "none"
	}
	at, ok := util.ParseTime(trades[0].Timestamp)
	if !ok {
		return "unknown"
	}
	return util.Ago(now.Sub(at))
}

func holdDuration(opened *time.Time, now time.Time) string {
	if opened == nil {
		return "-"
	}
	d := now.Sub(*opened)
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return format.Number(float64(h)) + "h " + format.Number(float64(m)) + "m"
}

func execute(name string, data interface{}) string {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		// only reachable through a template bug
		return `<div class="render-error">` + template.HTMLEscapeString(err.Error()) + `</div>`
	}
	return buf.String()
}
