package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"

	"Overlord/internal/domain/models"
)

// ApplyUpdate folds one webhook update into s.
func ApplyUpdate(s *models.Snapshot, u *models.Update) error {
	switch u.Kind {
	case models.UpdateMerge:
		trimmed := bytes.TrimSpace(u.Payload)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return fmt.Errorf("%w: merge payload must be a JSON object", models.ErrInvalidUpdate)
		}
		merged, err := mergeTopLevel(s, trimmed)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrInvalidUpdate, err)
		}
		*s = merged

	case models.UpdatePrice:
		var req models.PriceUpdateRequest
		if err := decodePayload(u, &req); err != nil {
			return err
		}
		if req.BTCPrice == nil {
			return fmt.Errorf("%w: btc_price is required", models.ErrInvalidUpdate)
		}
		s.BTCPrice = *req.BTCPrice
		if req.BTCChange24h != nil {
			s.BTCChange24h = *req.BTCChange24h
		}

	case models.UpdatePredictions:
		var req models.PredictionsRequest
		if err := decodePayload(u, &req); err != nil {
			return err
		}
		s.Predictions = req.Predictions
		s.ActiveModels = len(req.Predictions)

	case models.UpdatePatterns:
		var req models.PatternsRequest
		if err := decodePayload(u, &req); err != nil {
			return err
		}
		s.Patterns = req.Patterns

	case models.UpdateSignal:
		var req models.SignalRequest
		if err := decodePayload(u, &req); err != nil {
			return err
		}
		if req.Signal == nil {
			return fmt.Errorf("%w: signal object is required", models.ErrInvalidUpdate)
		}
		s.Signals = prepend(s.Signals, *req.Signal, models.MaxSignals)

	case models.UpdateReport:
		var req models.ReportRequest
		if err := decodePayload(u, &req); err != nil {
			return err
		}
		if req.Report == nil {
			return fmt.Errorf("%w: report object is required", models.ErrInvalidUpdate)
		}
		s.Reports = prepend(s.Reports, *req.Report, models.MaxReports)

	default:
		return fmt.Errorf("%w: unknown kind %q", models.ErrInvalidUpdate, u.Kind)
	}
	return nil
}

// mergeTopLevel replaces every top-level key of s present in patch. Lists and
// objects are replaced wholesale, never merged element by element.
func mergeTopLevel(s *models.Snapshot, patch []byte) (models.Snapshot, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(patch, &keys); err != nil {
		return models.Snapshot{}, err
	}
	base, err := json.Marshal(s)
	if err != nil {
		return models.Snapshot{}, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return models.Snapshot{}, err
	}
	for k, v := range keys {
		fields[k] = v
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return models.Snapshot{}, err
	}
	var out models.Snapshot
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.Snapshot{}, err
	}
	out.FetchedAt = s.FetchedAt
	return out, nil
}

func decodePayload(u *models.Update, dest interface{}) error {
	if err := json.Unmarshal(u.Payload, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrInvalidUpdate, u.Kind, err)
	}
	return nil
}

// prepend puts v first and keeps at most max items.
func prepend[T any](list []T, v T, max int) []T {
	out := make([]T, 0, len(list)+1)
	out = append(out, v)
	out = append(out, list...)
	if len(out) > max {
		out = out[:max]
	}
	return out
}
