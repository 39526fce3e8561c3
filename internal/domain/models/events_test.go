package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePushEvent(t *testing.T) {
	ev, err := ParsePushEvent([]byte(`{"type":"portfolio_update","total_value":10250.5}`))
	require.NoError(t, err)
	require.Equal(t, EventPortfolioUpdate, ev.Type)
	require.NotNil(t, ev.PortfolioUpdate)
	require.Equal(t, 10250.5, ev.PortfolioUpdate.TotalValue)
	require.Nil(t, ev.TradeExecuted)

	ev, err = ParsePushEvent([]byte(`{"type":"trade_executed","timestamp":"2025-11-13T14:23:00Z","action":"BUY","strategy":"Grid","asset":"BTC","price":43750.25}`))
	require.NoError(t, err)
	require.Equal(t, "BUY", ev.TradeExecuted.Action)
	require.Equal(t, 43750.25, ev.TradeExecuted.Price)

	ev, err = ParsePushEvent([]byte(`{"type":"initial_state","health":{"status":"operational"},"portfolio":{"total_value":1},"regime":{"regime":"BULL","confidence":0.8}}`))
	require.NoError(t, err)
	require.Equal(t, "operational", ev.InitialState.Health.Status)
	require.Equal(t, "BULL", ev.InitialState.Regime.Regime)
}

func TestParsePushEventRejects(t *testing.T) {
	_, err := ParsePushEvent([]byte(`{"type":"heartbeat"}`))
	require.ErrorIs(t, err, ErrUnknownEvent)

	_, err = ParsePushEvent([]byte(`not json`))
	require.ErrorIs(t, err, ErrMalformedEvent)

	_, err = ParsePushEvent([]byte(`{"type":"regime_change","confidence":"high"}`))
	require.ErrorIs(t, err, ErrMalformedEvent)
}

func TestChartNormalize(t *testing.T) {
	long := &ChartSeries{}
	for i := 0; i < 40; i++ {
		long.Labels = append(long.Labels, string(rune('A'+i%26)))
		long.Prices = append(long.Prices, float64(i))
		long.Predictions = append(long.Predictions, nil)
	}
	n := long.Normalize(ChartWindow)
	require.Len(t, n.Labels, ChartWindow)
	require.Len(t, n.Prices, ChartWindow)
	require.Len(t, n.Predictions, ChartWindow)
	require.Equal(t, 15.0, n.Prices[0])
	require.Equal(t, 39.0, n.Prices[ChartWindow-1])

	short := &ChartSeries{
		Labels:      []string{"a", "b"},
		Prices:      []float64{10, 11},
		Predictions: []*float64{nil, Float(12)},
	}
	n = short.Normalize(ChartWindow)
	require.Len(t, n.Prices, ChartWindow)
	require.Equal(t, 10.0, n.Prices[0])
	require.Equal(t, "", n.Labels[0])
	require.Equal(t, 12.0, *n.Predictions[ChartWindow-1])

	var empty *ChartSeries
	require.Nil(t, empty.Normalize(ChartWindow))
}
