package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"Overlord/internal/domain/models"
	"Overlord/pkg/format"
	applogger "Overlord/pkg/logger"
	"Overlord/pkg/scheduler"

	"github.com/shopspring/decimal"
)

const (
	DefaultSimulatorInterval = 5 * time.Second
	simulatorBasePrice       = 43500.0
	signalEvery              = 3
	patternEvery             = 5
)

// Webhook paths on the feed API.
const (
	PathWebhook         = "/api/webhook"
	PathWebhookPrice    = "/api/webhook/price"
	PathWebhookPredict  = "/api/webhook/predictions"
	PathWebhookPatterns = "/api/webhook/patterns"
	PathWebhookSignals  = "/api/webhook/signals"
	PathWebhookReports  = "/api/webhook/reports"
)

// FeedPoster is the part of pkg/http.Client the simulator needs.
type FeedPoster interface {
	PostJSON(ctx context.Context, path string, body, dest interface{}) error
}

// ComprehensiveUpdate is the body of POST /api/webhook sent by the simulator.
type ComprehensiveUpdate struct {
	BTCPrice        float64             `json:"btc_price"`
	BTCChange24h    float64             `json:"btc_change_24h"`
	AISentiment     string              `json:"ai_sentiment"`
	SentimentScore  int                 `json:"sentiment_score"`
	MarketTrend     string              `json:"market_trend"`
	TrendConfidence int                 `json:"trend_confidence"`
	ConsensusScore  int                 `json:"consensus_score"`
	ActiveModels    int                 `json:"active_models"`
	Predictions     []models.Prediction `json:"predictions"`
}

type predictionModel struct {
	name           string
	offLo, offHi   float64
	confLo, confHi int
}

var simulatedModels = []predictionModel{
	{"LSTM Neural Net", -200, 300, 75, 90},
	{"Random Forest", -150, 250, 70, 85},
	{"XGBoost", -180, 280, 72, 88},
	{"ARIMA", -100, 200, 65, 80},
	{"Transformer", -220, 320, 78, 92},
}

var (
	signalTexts = []string{
		"Strong buy signal detected",
		"Resistance level broken",
		"Volume spike observed",
		"Support level holding",
		"Momentum increasing",
	}
	signalTypes  = []string{"bullish", "bearish", "neutral"}
	patternNames = []string{
		"Bullish Engulfing",
		"Golden Cross Forming",
		"Volume Spike",
		"Double Bottom",
		"Cup and Handle",
	}
	patternConfidence = []string{"High", "Medium", "Low"}
)

// Simulator posts randomized updates to a feed API.
type Simulator struct {
	client FeedPoster
	now    func() time.Time
	log    *applogger.Logger

	mu        sync.Mutex
	rnd       *rand.Rand
	iteration int
}

func NewSimulator(client FeedPoster, rnd *rand.Rand, now func() time.Time, l *applogger.Logger) *Simulator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &Simulator{client: client, rnd: rnd, now: now, log: l.With("simulator")}
}

// Start runs one Tick now and then every interval.
func (s *Simulator) Start(ctx context.Context, sched *scheduler.Scheduler, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSimulatorInterval
	}
	s.tickLogged(ctx)
	return sched.Every("simulator", interval, s.tickLogged)
}

func (s *Simulator) tickLogged(ctx context.Context) {
	if err := s.Tick(ctx); err != nil {
		s.log.Warn("simulator update failed", applogger.Error(err))
	}
}

// Tick sends one comprehensive update, plus a signal every third and a
// pattern every fifth iteration.
func (s *Simulator) Tick(ctx context.Context) error {
	s.mu.Lock()
	s.iteration++
	iteration := s.iteration
	update := s.comprehensive()
	var (
		signal   *models.Signal
		patterns []models.Pattern
	)
	if iteration%signalEvery == 0 {
		sig := s.signal()
		signal = &sig
	}
	if iteration%patternEvery == 0 {
		patterns = []models.Pattern{s.pattern()}
	}
	s.mu.Unlock()

	if err := s.client.PostJSON(ctx, PathWebhook, update, nil); err != nil {
		return fmt.Errorf("update #%d: %w", iteration, err)
	}
	s.log.Info("update sent",
		applogger.Int("iteration", iteration),
		applogger.String("price", format.Dollars(update.BTCPrice)),
		applogger.String("change", format.SignedPercent(update.BTCChange24h)),
		applogger.String("sentiment", update.AISentiment),
	)

	if signal != nil {
		if err := s.client.PostJSON(ctx, PathWebhookSignals, models.SignalRequest{Signal: signal}, nil); err != nil {
			return fmt.Errorf("signal #%d: %w", iteration, err)
		}
		s.log.Info("signal sent", applogger.String("text", signal.Text))
	}
	if patterns != nil {
		if err := s.client.PostJSON(ctx, PathWebhookPatterns, models.PatternsRequest{Patterns: patterns}, nil); err != nil {
			return fmt.Errorf("pattern #%d: %w", iteration, err)
		}
		s.log.Info("pattern sent",
			applogger.String("name", patterns[0].Name),
			applogger.String("confidence", patterns[0].Confidence),
		)
	}
	return nil
}

// comprehensive builds the main update. Callers hold mu.
func (s *Simulator) comprehensive() ComprehensiveUpdate {
	price := simulatorBasePrice + s.uniform(-500, 500)
	change := s.uniform(-5, 5)

	predictions := make([]models.Prediction, len(simulatedModels))
	for i, m := range simulatedModels {
		predictions[i] = models.Prediction{
			Model:      m.name,
			Value:      format.Dollars(price + s.uniform(m.offLo, m.offHi)),
			Confidence: float64(s.intn(m.confLo, m.confHi)),
		}
	}

	sentiment, score := "Neutral", 45+s.intn(0, 15)
	switch {
	case change > 2:
		sentiment, score = "Bullish", 70+s.intn(0, 20)
	case change < -2:
		sentiment, score = "Bearish", 20+s.intn(0, 20)
	}
	trend := "Downtrend"
	if change > 0 {
		trend = "Uptrend"
	}

	return ComprehensiveUpdate{
		BTCPrice:        round2(price),
		BTCChange24h:    round2(change),
		AISentiment:     sentiment,
		SentimentScore:  score,
		MarketTrend:     trend,
		TrendConfidence: s.intn(70, 95),
		ConsensusScore:  s.intn(65, 85),
		ActiveModels:    len(predictions),
		Predictions:     predictions,
	}
}

func (s *Simulator) signal() models.Signal {
	return models.Signal{
		Time: s.now().Format("15:04"),
		Text: signalTexts[s.rnd.Intn(len(signalTexts))],
		Type: signalTypes[s.rnd.Intn(len(signalTypes))],
	}
}

func (s *Simulator) pattern() models.Pattern {
	return models.Pattern{
		Name:       patternNames[s.rnd.Intn(len(patternNames))],
		Detected:   fmt.Sprintf("%dh ago", s.intn(1, 5)),
		Confidence: patternConfidence[s.rnd.Intn(len(patternConfidence))],
	}
}

func (s *Simulator) uniform(lo, hi float64) float64 {
	return lo + s.rnd.Float64()*(hi-lo)
}

// intn returns an int in [lo, hi].
func (s *Simulator) intn(lo, hi int) int {
	return lo + s.rnd.Intn(hi-lo+1)
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
