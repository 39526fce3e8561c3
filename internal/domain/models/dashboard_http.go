package models

// RangeRequest is POST /dashboard/polling/range.
type RangeRequest struct {
	Range string `json:"range" validate:"required,oneof=1H 24H 7D 30D"`
}

// ConfirmRequest carries the operator's answer to a guarded action's prompt.
type ConfirmRequest struct {
	Confirmed bool `json:"confirmed"`
}

// FragmentsRequest selects which page elements to return. Empty means all.
type FragmentsRequest struct {
	IDs string `query:"ids"`
}

// ActionResult reports the outcome of a dashboard action.
type ActionResult struct {
	Action string      `json:"action"`
	Done   bool        `json:"done"`
	State  interface{} `json:"state,omitempty"`
}
