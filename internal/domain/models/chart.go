package models

// ChartSeries is the wire form of the price chart: three parallel arrays.
// A nil entry in Predictions means no prediction for that point.
type ChartSeries struct {
	Labels      []string   `json:"labels"`
	Prices      []float64  `json:"prices"`
	Predictions []*float64 `json:"predictions"`
}

// ChartPoint is one (label, price, predicted) triple.
type ChartPoint struct {
	Label     string
	Price     float64
	Predicted *float64
}

// Len returns the number of complete points (the shortest of the arrays
// that must be present).
func (c *ChartSeries) Len() int {
	if c == nil {
		return 0
	}
	n := len(c.Labels)
	if len(c.Prices) < n {
		n = len(c.Prices)
	}
	return n
}

// Points zips the arrays. Missing predictions are treated as absent.
func (c *ChartSeries) Points() []ChartPoint {
	n := c.Len()
	points := make([]ChartPoint, n)
	for i := 0; i < n; i++ {
		points[i] = ChartPoint{Label: c.Labels[i], Price: c.Prices[i]}
		if i < len(c.Predictions) && c.Predictions[i] != nil {
			v := *c.Predictions[i]
			points[i].Predicted = &v
		}
	}
	return points
}

// Normalize returns a series of exactly window points. Longer series keep
// their most recent points; shorter ones are left-padded by repeating the
// earliest price with an empty label and no prediction. An empty series
// returns nil: there is nothing to draw.
func (c *ChartSeries) Normalize(window int) *ChartSeries {
	points := c.Points()
	if len(points) == 0 || window <= 0 {
		return nil
	}
	if len(points) > window {
		points = points[len(points)-window:]
	}
	for len(points) < window {
		points = append([]ChartPoint{{Price: points[0].Price}}, points...)
	}

	out := &ChartSeries{
		Labels:      make([]string, window),
		Prices:      make([]float64, window),
		Predictions: make([]*float64, window),
	}
	for i, p := range points {
		out.Labels[i] = p.Label
		out.Prices[i] = p.Price
		out.Predictions[i] = p.Predicted
	}
	return out
}

// Float returns a pointer to v, for building prediction arrays.
func Float(v float64) *float64 {
	return &v
}
