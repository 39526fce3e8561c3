package polling

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"Overlord/internal/domain/models"
)

// DemoGenerator synthesizes the snapshot shown when the backend is
// unreachable. The shape is fixed; only the chart values are random.
type DemoGenerator struct {
	mu   sync.Mutex
	rand *rand.Rand
	now  func() time.Time
}

// NewDemoGenerator uses r for chart noise and now for chart labels.
func NewDemoGenerator(r *rand.Rand, now func() time.Time) *DemoGenerator {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &DemoGenerator{rand: r, now: now}
}

// Snapshot returns a complete demo snapshot with a fresh chart.
func (g *DemoGenerator) Snapshot() *models.Snapshot {
	return &models.Snapshot{
		BTCPrice:        43750.25,
		BTCChange24h:    2.47,
		AISentiment:     "Bullish",
		SentimentScore:  72,
		MarketTrend:     "Uptrend",
		TrendConfidence: 85,
		ConsensusScore:  78,
		ActiveModels:    5,
		Predictions: []models.Prediction{
			{Model: "LSTM Neural Net", Value: "$44,200", Confidence: 82},
			{Model: "Random Forest", Value: "$43,950", Confidence: 76},
			{Model: "XGBoost", Value: "$44,100", Confidence: 79},
			{Model: "ARIMA", Value: "$43,800", Confidence: 71},
			{Model: "Transformer", Value: "$44,350", Confidence: 84},
		},
		Patterns: []models.Pattern{
			{Name: "Bullish Engulfing", Detected: "2h ago", Confidence: "High"},
			{Name: "Golden Cross Forming", Detected: "4h ago", Confidence: "Medium"},
			{Name: "Volume Spike", Detected: "1h ago", Confidence: "High"},
		},
		Signals: []models.Signal{
			{Time: "14:23", Text: "Strong buy signal detected", Type: "bullish"},
			{Time: "13:45", Text: "Market volatility increasing", Type: "neutral"},
			{Time: "12:10", Text: "Resistance at $44,000 broken", Type: "bullish"},
			{Time: "11:30", Text: "Trading volume above average", Type: "bullish"},
		},
		Reports: []models.Report{
			{Name: "Daily Market Analysis", Date: "2025-11-13", Time: "08:00"},
			{Name: "Weekly Prediction Report", Date: "2025-11-11", Time: "09:00"},
			{Name: "Risk Assessment", Date: "2025-11-10", Time: "15:30"},
		},
		ChartData: g.Chart(),
	}
}

// Chart returns one point per hour for the last 24 hours: a gentle uptrend
// of $10/h with ±$500 noise, and a prediction $100 above price for the
// newest half of the window.
func (g *DemoGenerator) Chart() *models.ChartSeries {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	series := &models.ChartSeries{
		Labels:      make([]string, 0, models.ChartWindow),
		Prices:      make([]float64, 0, models.ChartWindow),
		Predictions: make([]*float64, 0, models.ChartWindow),
	}

	for i := models.ChartWindow - 1; i >= 0; i-- {
		at := now.Add(-time.Duration(i) * time.Hour)
		trend := float64(models.ChartWindow-1-i) * 10
		variance := (g.rand.Float64() - 0.5) * 1000
		price := round2(43500 + trend + variance)

		series.Labels = append(series.Labels, at.Format("03:04 PM"))
		series.Prices = append(series.Prices, price)
		if i <= (models.ChartWindow-1)/2 {
			series.Predictions = append(series.Predictions, models.Float(round2(price+100)))
		} else {
			series.Predictions = append(series.Predictions, nil)
		}
	}
	return series
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
