package streaming

import (
	"fmt"

	"Overlord/internal/domain/models"
	applogger "Overlord/pkg/logger"
)

const (
	emergencyStopPrompt = "Are you sure you want to EMERGENCY STOP all trading?"
	emergencyStopAlert  = "🚨 EMERGENCY STOP activated. All trading paused."
)

// EmergencyStop asks confirm and, if accepted, records the stop. The trading
// control plane is not wired, so nothing leaves this process.
func (c *Controller) EmergencyStop(confirm Confirmer) bool {
	if !confirm(emergencyStopPrompt) {
		c.log.Info("emergency stop cancelled")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Warn("emergency stop requested")
	c.notify("alert", emergencyStopAlert)
	return true
}

// ClosePosition asks confirm and, if accepted, logs the close request.
func (c *Controller) ClosePosition(asset string, confirm Confirmer) (bool, error) {
	if _, err := c.ShowPositionDetails(asset); err != nil {
		return false, err
	}
	if !confirm(fmt.Sprintf("Close %s position?", asset)) {
		return false, nil
	}
	c.log.Warn("close position requested", applogger.String("asset", asset))
	return true, nil
}

// ShowPositionDetails returns the held position for asset.
func (c *Controller) ShowPositionDetails(asset string) (models.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, ok := c.state.Portfolio.Position(asset)
	if !ok {
		return models.Position{}, fmt.Errorf("%w: %s", ErrUnknownPosition, asset)
	}
	c.log.Debug("position details", applogger.String("asset", asset))
	return pos, nil
}

// PauseFeed toggles the backstop refresh and returns whether it is now active.
func (c *Controller) PauseFeed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = !c.paused
	c.log.Info("auto refresh toggled", applogger.Bool("active", !c.paused))
	return !c.paused
}

// ClearFeed empties the activity feed.
func (c *Controller) ClearFeed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.doc.SetHTML(IDActivityFeed, ""); err != nil {
		c.log.Debug("clear feed before first render", applogger.Error(err))
	}
}

// TogglePanel expands or collapses a left panel card and returns whether it
// is now expanded.
func (c *Controller) TogglePanel(card string) (bool, error) {
	known := false
	for _, id := range Cards {
		if id == card {
			known = true
			break
		}
	}
	if !known {
		return false, fmt.Errorf("%w: %s", ErrUnknownCard, card)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.expanded[card] = !c.expanded[card]
	if _, ok := c.doc.Element(card); ok {
		if _, err := c.doc.ToggleClass(card, "expanded"); err != nil {
			return false, err
		}
	}
	return c.expanded[card], nil
}
