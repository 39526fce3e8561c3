package models

import (
	"encoding/json"
	"time"
)

// UpdateKind names the webhook that produced an update.
type UpdateKind string

const (
	UpdateMerge       UpdateKind = "merge"
	UpdatePrice       UpdateKind = "price"
	UpdatePredictions UpdateKind = "predictions"
	UpdatePatterns    UpdateKind = "patterns"
	UpdateSignal      UpdateKind = "signal"
	UpdateReport      UpdateKind = "report"
)

// QueueUpdateType is the message type updates carry on the Redis queue.
const QueueUpdateType = "feed.update"

const (
	// MaxSignals is how many signals the feed keeps, newest first.
	MaxSignals = 20
	// MaxReports is how many reports the feed keeps, newest first.
	MaxReports = 10
)

// Update is one accepted webhook call. It is the unit published to Kafka
// when ingestion is asynchronous.
type Update struct {
	ID         string          `json:"id"`
	Kind       UpdateKind      `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// PriceUpdateRequest is POST /api/webhook/price.
type PriceUpdateRequest struct {
	BTCPrice     *float64 `json:"btc_price" validate:"required"`
	BTCChange24h *float64 `json:"btc_change_24h,omitempty"`
}

// PredictionsRequest is POST /api/webhook/predictions.
type PredictionsRequest struct {
	Predictions []Prediction `json:"predictions" validate:"required,dive"`
}

// PatternsRequest is POST /api/webhook/patterns.
type PatternsRequest struct {
	Patterns []Pattern `json:"patterns" validate:"required,dive"`
}

// SignalRequest is POST /api/webhook/signals.
type SignalRequest struct {
	Signal *Signal `json:"signal" validate:"required"`
}

// ReportRequest is POST /api/webhook/reports.
type ReportRequest struct {
	Report *Report `json:"report" validate:"required"`
}
