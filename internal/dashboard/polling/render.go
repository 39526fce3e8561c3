package polling

import (
	"bytes"
	"html/template"
	"strings"
	"time"

	"Overlord/internal/domain/models"
	"Overlord/pkg/dom"
	"Overlord/pkg/format"
)

// Container ids.
const (
	IDRoot             = "polling-root"
	IDPrice            = "btc-price"
	IDChange           = "change-value"
	IDSentiment        = "ai-sentiment"
	IDSentimentFill    = "sentiment-fill"
	IDTrend            = "market-trend"
	IDTrendConfidence  = "trend-confidence"
	IDConsensus        = "consensus-score"
	IDActiveModels     = "active-models"
	IDPredictions      = "predictions-list"
	IDPatterns         = "patterns-list"
	IDSignals          = "signals-list"
	IDReports          = "reports-list"
	IDChart            = "price-chart"
	IDChartRange       = "chart-range"
	IDConnectionStatus = "connection-status"
	IDLastUpdate       = "last-update"
)

// Ranges offered by the chart range selector. Selecting one is cosmetic.
var Ranges = []string{"1H", "24H", "7D", "30D"}

const DefaultRange = "24H"

// View is everything the polling page is rendered from.
type View struct {
	Snapshot   models.Snapshot
	Chart      *models.ChartSeries
	Connection models.ConnectionState
	Range      string
}

var listTemplates = template.Must(template.New("lists").Parse(`
{{define "predictions"}}{{range .}}<div class="prediction-item"><span class="model-name">{{.Model}}</span><span class="prediction-value">{{.Value}}</span></div>{{end}}{{end}}
{{define "patterns"}}{{range .}}<div class="pattern-item"><div><strong>{{.Name}}</strong></div><div class="pattern-meta">Detected: {{.Detected}} | Confidence: {{.Confidence}}</div></div>{{end}}{{end}}
{{define "signals"}}{{range .}}<div class="signal-item {{.Type}}"><span class="signal-time">{{.Time}}</span><span class="signal-text">{{.Text}}</span></div>{{end}}{{end}}
{{define "reports"}}{{range .}}<div class="report-item"><span class="report-name">{{.Name}}</span><span class="report-date">{{.Date}} {{.Time}}</span></div>{{end}}{{end}}
{{define "ranges"}}{{range .}}<button class="range-btn{{if .Active}} active{{end}}" data-range="{{.Name}}">{{.Name}}</button>{{end}}{{end}}
`))

// Render is a pure function of v: the same view always yields the same
// fragment, and every container it names is replaced in full.
func Render(v View) dom.Fragment {
	s := v.Snapshot

	changeClass := "negative"
	if s.BTCChange24h >= 0 {
		changeClass = "positive"
	}

	return dom.Fragment{
		dom.New(IDPrice, "span", text(format.Price(s.BTCPrice)), "price"),
		dom.New(IDChange, "span", text(format.ChangePercent(s.BTCChange24h)), "change-value", changeClass),
		dom.New(IDSentiment, "span", text(s.AISentiment)),
		dom.New(IDSentimentFill, "div", "", "sentiment-fill").
			WithAttr("style", "width: "+format.Number(s.SentimentScore)+"%; background: "+sentimentColor(s.SentimentScore)),
		dom.New(IDTrend, "span", text(s.MarketTrend)),
		dom.New(IDTrendConfidence, "span", text("Confidence: "+format.Number(s.TrendConfidence)+"%")),
		dom.New(IDConsensus, "span", text(format.Number(s.ConsensusScore)+"%")),
		dom.New(IDActiveModels, "span", text(format.Number(float64(s.ActiveModels))+" models active")),
		dom.New(IDPredictions, "div", execute("predictions", s.Predictions)),
		dom.New(IDPatterns, "div", execute("patterns", s.Patterns)),
		dom.New(IDSignals, "div", execute("signals", s.Signals)),
		dom.New(IDReports, "div", execute("reports", s.Reports)),
		dom.New(IDChart, "div", RenderChart(v.Chart), "chart-container"),
		RenderRange(v.Range),
		RenderConnection(v.Connection),
		dom.New(IDLastUpdate, "span", text(lastUpdate(s.FetchedAt))),
	}
}

// RenderRange renders the range selector with r highlighted.
func RenderRange(r string) dom.Element {
	type rangeButton struct {
		Name   string
		Active bool
	}
	if r == "" {
		r = DefaultRange
	}
	buttons := make([]rangeButton, len(Ranges))
	for i, name := range Ranges {
		buttons[i] = rangeButton{Name: name, Active: name == r}
	}
	return dom.New(IDChartRange, "div", execute("ranges", buttons), "chart-controls")
}

// RenderConnection renders the status pill.
func RenderConnection(state models.ConnectionState) dom.Element {
	switch state {
	case models.ConnectionConnected:
		return dom.New(IDConnectionStatus, "span", `<i class="fas fa-circle"></i> Connected`, "status-indicator", "connected")
	case models.ConnectionDemo:
		return dom.New(IDConnectionStatus, "span", `<i class="fas fa-circle"></i> Demo Mode`, "status-indicator", "disconnected")
	default:
		return dom.New(IDConnectionStatus, "span", `<i class="fas fa-circle"></i> Connecting...`, "status-indicator")
	}
}

// RenderLayout returns the static page skeleton. Every container is a slot,
// so the skeleton never needs re-rendering.
func RenderLayout() dom.Element {
	var b strings.Builder
	b.WriteString(`<header class="header"><h1>Bitcoin Overlord</h1>` + dom.Slot(IDConnectionStatus) + dom.Slot(IDLastUpdate) + `</header>`)
	b.WriteString(`<section class="price-card"><h2>BTC/USD</h2>` + dom.Slot(IDPrice) + dom.Slot(IDChange) + `</section>`)
	b.WriteString(`<section class="sentiment-card"><h2>AI Sentiment</h2>` + dom.Slot(IDSentiment) +
		`<div class="sentiment-bar">` + dom.Slot(IDSentimentFill) + `</div></section>`)
	b.WriteString(`<section class="trend-card"><h2>Market Trend</h2>` + dom.Slot(IDTrend) + dom.Slot(IDTrendConfidence) + `</section>`)
	b.WriteString(`<section class="consensus-card"><h2>Model Consensus</h2>` + dom.Slot(IDConsensus) + dom.Slot(IDActiveModels) + `</section>`)
	b.WriteString(`<section class="chart-card"><h2>Price &amp; Prediction</h2>` + dom.Slot(IDChartRange) + dom.Slot(IDChart) + `</section>`)
	b.WriteString(`<section><h2>AI Predictions (24h)</h2>` + dom.Slot(IDPredictions) + `</section>`)
	b.WriteString(`<section><h2>Detected Patterns</h2>` + dom.Slot(IDPatterns) + `</section>`)
	b.WriteString(`<section><h2>Recent Signals</h2>` + dom.Slot(IDSignals) + `</section>`)
	b.WriteString(`<section><h2>Reports</h2><button id="refresh-reports" data-action="refresh-reports">Refresh</button>` + dom.Slot(IDReports) + `</section>`)
	return dom.New(IDRoot, "main", b.String(), "dashboard")
}

func sentimentColor(score float64) string {
	switch {
	case score >= 70:
		return "#2ecc71"
	case score >= 40:
		return "#f39c12"
	default:
		return "#e74c3c"
	}
}

func lastUpdate(t time.Time) string {
	if t.IsZero() {
		return "Last Update: --"
	}
	return "Last Update: " + t.Format("03:04:05 PM")
}

func text(s string) string {
	return template.HTMLEscapeString(s)
}

func execute(name string, data interface{}) string {
	var buf bytes.Buffer
	if err := listTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		// only reachable through a template bug
		return `<div class="render-error">` + template.HTMLEscapeString(err.Error()) + `</div>`
	}
	return buf.String()
}
