package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectionStates = []string{"idle", "connected", "demo", "reconnecting"}

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetches         *prometheus.CounterVec
	pushEvents      *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	connectionState *prometheus.GaugeVec
	feedUpdates     *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	lastPrice       prometheus.Gauge
	latency         *prometheus.HistogramVec
}

// New creates a recorder registered with the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder registered with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overlord_fetches_total",
				Help: "Backend fetches by dashboard, endpoint and result (ok, error, stale)",
			},
			[]string{"dashboard", "endpoint", "result"},
		),
		pushEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overlord_push_events_total",
				Help: "Push channel messages by event type",
			},
			[]string{"type"},
		),
		reconnects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overlord_channel_reconnects_total",
				Help: "Push channel reconnect attempts",
			},
			[]string{"dashboard"},
		),
		connectionState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "overlord_connection_state",
				Help: "Current connection state per dashboard (1 for the active state)",
			},
			[]string{"dashboard", "state"},
		),
		feedUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overlord_feed_updates_total",
				Help: "Webhook updates accepted by the feed API",
			},
			[]string{"kind", "backend"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overlord_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "overlord_last_btc_price",
				Help: "Last BTC price rendered or stored",
			},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "overlord_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordFetch counts a backend fetch outcome.
func (r *Recorder) RecordFetch(dashboard, endpoint, result string) {
	r.fetches.WithLabelValues(dashboard, endpoint, result).Inc()
}

// RecordPushEvent counts a push channel message.
func (r *Recorder) RecordPushEvent(eventType string) {
	r.pushEvents.WithLabelValues(eventType).Inc()
}

// RecordReconnect counts a reconnect attempt.
func (r *Recorder) RecordReconnect(dashboard string) {
	r.reconnects.WithLabelValues(dashboard).Inc()
}

// SetConnectionState flips the state gauge so exactly one state reads 1.
func (r *Recorder) SetConnectionState(dashboard, state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.connectionState.WithLabelValues(dashboard, s).Set(v)
	}
}

// RecordFeedUpdate counts an accepted webhook update.
func (r *Recorder) RecordFeedUpdate(kind, backend string) {
	r.feedUpdates.WithLabelValues(kind, backend).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last BTC price seen.
func (r *Recorder) RecordLastPrice(price float64) {
	r.lastPrice.Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
