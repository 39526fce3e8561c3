package models

import "time"

// ChartWindow is the fixed number of points every rendered chart holds.
const ChartWindow = 25

// Snapshot is the full display state returned by GET /api/data.
// It is produced wholesale by one fetch (or by the demo generator).
type Snapshot struct {
	BTCPrice        float64      `json:"btc_price"`
	BTCChange24h    float64      `json:"btc_change_24h"`
	AISentiment     string       `json:"ai_sentiment"`
	SentimentScore  float64      `json:"sentiment_score"`
	MarketTrend     string       `json:"market_trend"`
	TrendConfidence float64      `json:"trend_confidence"`
	ConsensusScore  float64      `json:"consensus_score"`
	ActiveModels    int          `json:"active_models"`
	Predictions     []Prediction `json:"predictions"`
	Patterns        []Pattern    `json:"patterns"`
	Signals         []Signal     `json:"signals"`
	Reports         []Report     `json:"reports"`
	ChartData       *ChartSeries `json:"chart_data,omitempty"`
	LastUpdated     *time.Time   `json:"last_updated"`

	// FetchedAt is stamped by the controller when the snapshot is accepted.
	FetchedAt time.Time `json:"-"`
}

type Prediction struct {
	Model      string  `json:"model" validate:"required"`
	Value      string  `json:"value" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=100"`
}

type Pattern struct {
	Name       string `json:"name" validate:"required"`
	Detected   string `json:"detected"`
	Confidence string `json:"confidence"`
}

type Signal struct {
	Time string `json:"time" validate:"required"`
	Text string `json:"text" validate:"required"`
	Type string `json:"type" default:"neutral" validate:"omitempty,oneof=bullish bearish neutral"`
}

type Report struct {
	Name string `json:"name" validate:"required"`
	Date string `json:"date"`
	Time string `json:"time"`
}

// DefaultSnapshot is what the feed API serves before any update arrives.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		AISentiment:    "Unknown",
		SentimentScore: 50,
		MarketTrend:    "Unknown",
		Predictions:    []Prediction{},
		Patterns:       []Pattern{},
		Signals:        []Signal{},
		Reports:        []Report{},
	}
}
