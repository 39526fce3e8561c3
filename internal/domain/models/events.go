package models

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventInitialState    EventType = "initial_state"
	EventPortfolioUpdate EventType = "portfolio_update"
	EventTradeExecuted   EventType = "trade_executed"
	EventRegimeChange    EventType = "regime_change"
)

// InitialState carries the embedded health, portfolio and regime.
type InitialState struct {
	Health    Health    `json:"health"`
	Portfolio Portfolio `json:"portfolio"`
	Regime    Regime    `json:"regime"`
}

// PortfolioUpdate carries the new total value.
type PortfolioUpdate struct {
	TotalValue float64 `json:"total_value"`
	PnLToday   *PnL    `json:"pnl_today,omitempty"`
}

// PushEvent is a parsed push channel message. Exactly one payload field is
// set, matching Type.
type PushEvent struct {
	Type            EventType
	InitialState    *InitialState
	PortfolioUpdate *PortfolioUpdate
	TradeExecuted   *Trade
	RegimeChange    *Regime
}

// ParsePushEvent decodes a message whose fields sit next to its "type".
func ParsePushEvent(raw []byte) (PushEvent, error) {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PushEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	ev := PushEvent{Type: envelope.Type}
	var target interface{}
	switch envelope.Type {
	case EventInitialState:
		ev.InitialState = &InitialState{}
		target = ev.InitialState
	case EventPortfolioUpdate:
		ev.PortfolioUpdate = &PortfolioUpdate{}
		target = ev.PortfolioUpdate
	case EventTradeExecuted:
		ev.TradeExecuted = &Trade{}
		target = ev.TradeExecuted
	case EventRegimeChange:
		ev.RegimeChange = &Regime{}
		target = ev.RegimeChange
	default:
		return PushEvent{}, fmt.Errorf("%w: %q", ErrUnknownEvent, envelope.Type)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return PushEvent{}, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, envelope.Type, err)
	}
	return ev, nil
}
