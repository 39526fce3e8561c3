package polling

import (
	"bytes"
	"html/template"

	"Overlord/internal/domain/models"
	"Overlord/pkg/format"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	chartWidth     = 960
	chartHeight    = 320
	chartTickEvery = 4
)

var (
	priceColor      = drawing.ColorFromHex("f7931a")
	predictionColor = drawing.ColorFromHex("4a90e2")
)

// RenderChart draws series as an inline SVG. A nil series (never drawn) or a
// series go-chart cannot plot yields a placeholder instead.
func RenderChart(series *models.ChartSeries) string {
	if series == nil || series.Len() == 0 {
		return chartPlaceholder("Waiting for chart data")
	}

	svg, err := drawChart(series)
	if err != nil {
		return chartPlaceholder("Chart unavailable: " + err.Error())
	}
	return svg
}

func drawChart(series *models.ChartSeries) (string, error) {
	points := series.Points()

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	ticks := make([]chart.Tick, 0, len(points)/chartTickEvery+1)
	var predX, predY []float64

	for i, p := range points {
		xs[i] = float64(i)
		ys[i] = p.Price
		if i%chartTickEvery == 0 || i == len(points)-1 {
			ticks = append(ticks, chart.Tick{Value: float64(i), Label: p.Label})
		}
		if p.Predicted != nil {
			predX = append(predX, float64(i))
			predY = append(predY, *p.Predicted)
		}
	}

	graph := chart.Chart{
		Width:  chartWidth,
		Height: chartHeight,
		XAxis: chart.XAxis{
			Ticks: ticks,
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return "$" + format.Grouped(f, 0, 0)
				}
				return ""
			},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "BTC Price",
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeColor: priceColor,
					StrokeWidth: 2,
				},
			},
		},
	}

	if len(predX) > 1 {
		graph.Series = append(graph.Series, chart.ContinuousSeries{
			Name:    "AI Prediction",
			XValues: predX,
			YValues: predY,
			Style: chart.Style{
				StrokeColor:     predictionColor,
				StrokeWidth:     2,
				StrokeDashArray: []float64{5, 5},
			},
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.SVG, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func chartPlaceholder(msg string) string {
	return `<div class="chart-placeholder placeholder">` + template.HTMLEscapeString(msg) + `</div>`
}
