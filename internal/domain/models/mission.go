package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Health is GET /api/system/health.
type Health struct {
	Status string `json:"status"`
}

// PnL is a dollar and percent pair.
type PnL struct {
	Dollars float64 `json:"dollars"`
	Percent float64 `json:"percent"`
}

// Position is one open position in the portfolio.
type Position struct {
	Asset                string     `json:"asset"`
	Size                 float64    `json:"size"`
	Value                float64    `json:"value"`
	EntryPrice           float64    `json:"entry_price"`
	CurrentPrice         float64    `json:"current_price"`
	UnrealizedPnL        float64    `json:"unrealized_pnl"`
	UnrealizedPnLPercent float64    `json:"unrealized_pnl_percent"`
	OpenedAt             *time.Time `json:"opened_at,omitempty"`
}

// Portfolio is GET /api/portfolio/current.
type Portfolio struct {
	TotalValue float64    `json:"total_value"`
	Cash       float64    `json:"cash"`
	PnLToday   PnL        `json:"pnl_today"`
	Positions  []Position `json:"positions"`
}

// Position returns the position for asset, if held.
func (p Portfolio) Position(asset string) (Position, bool) {
	for _, pos := range p.Positions {
		if pos.Asset == asset {
			return pos, true
		}
	}
	return Position{}, false
}

// Regime is GET /api/market/regime. Confidence is in [0, 1].
type Regime struct {
	Regime       string     `json:"regime"`
	Confidence   float64    `json:"confidence"`
	LLMReasoning string     `json:"llm_reasoning,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// Trade is one entry of GET /api/trades/recent. String timestamps are kept
// as sent because backends disagree on the layout; numeric epochs are
// rendered as RFC 3339 UTC.
type Trade struct {
	Timestamp string  `json:"timestamp"`
	Action    string  `json:"action"`
	Strategy  string  `json:"strategy"`
	Asset     string  `json:"asset"`
	Price     float64 `json:"price"`
}

// epochMillisCutoff separates epoch seconds from epoch milliseconds.
const epochMillisCutoff = 1e11

func (t *Trade) UnmarshalJSON(data []byte) error {
	type plain Trade
	var aux struct {
		plain
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = Trade(aux.plain)
	t.Timestamp = ""

	raw := bytes.TrimSpace(aux.Timestamp)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		return json.Unmarshal(raw, &t.Timestamp)
	default:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("trade timestamp: %w", err)
		}
		t.Timestamp = epochTime(n).UTC().Format(time.RFC3339)
	}
	return nil
}

func epochTime(n float64) time.Time {
	if math.Abs(n) >= epochMillisCutoff {
		return time.UnixMilli(int64(n))
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// MissionState is the composite result of the four startup fetches.
type MissionState struct {
	Health    Health
	Portfolio Portfolio
	Regime    Regime
	Trades    []Trade
}
