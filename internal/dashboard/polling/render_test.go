package polling

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"Overlord/internal/domain/models"
	"Overlord/pkg/dom"

	"github.com/stretchr/testify/require"
)

func sampleView() View {
	g := NewDemoGenerator(rand.New(rand.NewSource(42)), fixedClock)
	s := g.Snapshot()
	s.FetchedAt = time.Date(2025, 11, 13, 14, 5, 9, 0, time.UTC)
	return View{
		Snapshot:   *s,
		Chart:      s.ChartData.Normalize(models.ChartWindow),
		Connection: models.ConnectionConnected,
		Range:      DefaultRange,
	}
}

func TestRenderIsIdempotent(t *testing.T) {
	v := sampleView()
	require.Equal(t, Render(v), Render(v))

	d := dom.NewDocument()
	d.Apply(dom.Fragment{RenderLayout()})
	d.Apply(Render(v))
	first := d.Snapshot()
	firstText := d.Text(IDRoot)

	d.Apply(Render(v))
	require.Equal(t, first, d.Snapshot())
	require.Equal(t, firstText, d.Text(IDRoot))
}

func TestRenderPriceAndChange(t *testing.T) {
	v := View{Snapshot: models.Snapshot{BTCPrice: 43750.25, BTCChange24h: 2.47}}
	d := dom.NewDocument()
	d.Apply(Render(v))

	require.Equal(t, "$43,750.25", d.Text(IDPrice))
	require.Equal(t, "+2.47%", d.Text(IDChange))
	change, _ := d.Element(IDChange)
	require.True(t, change.HasClass("positive"))
	require.False(t, change.HasClass("negative"))

	v.Snapshot.BTCChange24h = -1.5
	d.Apply(Render(v))
	require.Equal(t, "-1.50%", d.Text(IDChange))
	change, _ = d.Element(IDChange)
	require.True(t, change.HasClass("negative"))
}

func TestRenderSentimentFill(t *testing.T) {
	cases := map[float64]string{72: "#2ecc71", 70: "#2ecc71", 55: "#f39c12", 40: "#f39c12", 12: "#e74c3c"}
	for score, color := range cases {
		frag := Render(View{Snapshot: models.Snapshot{SentimentScore: score}})
		var fill dom.Element
		for _, e := range frag {
			if e.ID == IDSentimentFill {
				fill = e
			}
		}
		require.Contains(t, fill.Attrs["style"], color, "score %v", score)
		require.True(t, strings.HasPrefix(fill.Attrs["style"], "width: "))
	}
}

func TestRenderTextFields(t *testing.T) {
	d := dom.NewDocument()
	d.Apply(Render(sampleView()))

	require.Equal(t, "Bullish", d.Text(IDSentiment))
	require.Equal(t, "Confidence: 85%", d.Text(IDTrendConfidence))
	require.Equal(t, "78%", d.Text(IDConsensus))
	require.Equal(t, "5 models active", d.Text(IDActiveModels))
	require.Equal(t, "Last Update: 02:05:09 PM", d.Text(IDLastUpdate))
	require.Equal(t, 5, d.ChildCount(IDPredictions))
	require.Equal(t, 3, d.ChildCount(IDPatterns))
	require.Contains(t, d.Text(IDPatterns), "Detected: 2h ago | Confidence: High")
	require.Contains(t, d.Text(IDReports), "Daily Market Analysis 2025-11-13 08:00")
}

func TestRenderEscapesBackendText(t *testing.T) {
	v := View{Snapshot: models.Snapshot{
		AISentiment: "<script>x</script>",
		Signals:     []models.Signal{{Time: "now", Text: "<b>pump</b>", Type: "bullish"}},
	}}
	for _, e := range Render(v) {
		require.NotContains(t, e.HTML, "<script>")
		require.NotContains(t, e.HTML, "<b>pump")
	}
}

func TestRenderConnection(t *testing.T) {
	connected := RenderConnection(models.ConnectionConnected)
	require.True(t, connected.HasClass("connected"))
	require.Equal(t, "Connected", dom.TextContent(connected.HTML))

	demo := RenderConnection(models.ConnectionDemo)
	require.True(t, demo.HasClass("disconnected"))
	require.Equal(t, "Demo Mode", dom.TextContent(demo.HTML))
}

func TestRenderChart(t *testing.T) {
	require.Contains(t, RenderChart(nil), "placeholder")

	svg := RenderChart(sampleView().Chart)
	require.Contains(t, svg, "<svg")
	require.NotContains(t, svg, "placeholder")
	require.Equal(t, svg, RenderChart(sampleView().Chart))
}

func TestRenderRangeHighlightsSelection(t *testing.T) {
	e := RenderRange("7D")
	require.Contains(t, e.HTML, `<button class="range-btn active" data-range="7D">7D</button>`)
	require.Equal(t, 1, strings.Count(e.HTML, "active"))
}
