// Package backend reads dashboard data from the telemetry backend's HTTP API.
package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	xhttp "Overlord/pkg/http"
)

const (
	PathData         = "/api/data"
	PathHealth       = "/api/system/health"
	PathPortfolio    = "/api/portfolio/current"
	PathRegime       = "/api/market/regime"
	PathRecentTrades = "/api/trades/recent"
)

// Client implements SnapshotSource and MissionControl.
type Client struct {
	http    *xhttp.Client
	metrics drepo.Metrics
}

var (
	_ drepo.SnapshotSource = (*Client)(nil)
	_ drepo.MissionControl = (*Client)(nil)
)

// New creates a backend client for baseURL.
func New(baseURL string, timeout time.Duration, m drepo.Metrics) *Client {
	return &Client{
		http:    xhttp.NewClient(xhttp.WithBaseURL(baseURL), xhttp.WithTimeout(timeout)),
		metrics: m,
	}
}

// FetchSnapshot implements SnapshotSource.
func (c *Client) FetchSnapshot(ctx context.Context) (*models.Snapshot, error) {
	var s models.Snapshot
	if err := c.get(ctx, PathData, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Health implements MissionControl.
func (c *Client) Health(ctx context.Context) (*models.Health, error) {
	var h models.Health
	if err := c.get(ctx, PathHealth, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Portfolio implements MissionControl.
func (c *Client) Portfolio(ctx context.Context) (*models.Portfolio, error) {
	var p models.Portfolio
	if err := c.get(ctx, PathPortfolio, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Regime implements MissionControl.
func (c *Client) Regime(ctx context.Context) (*models.Regime, error) {
	var r models.Regime
	if err := c.get(ctx, PathRegime, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// RecentTrades implements MissionControl.
func (c *Client) RecentTrades(ctx context.Context, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	q := url.Values{"limit": []string{strconv.Itoa(limit)}}
	if err := c.get(ctx, PathRecentTrades, q, &trades); err != nil {
		return nil, err
	}
	if len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

// get wraps every failure, transport or status, as ErrNetworkUnavailable.
func (c *Client) get(ctx context.Context, path string, q url.Values, dest interface{}) error {
	start := time.Now()
	err := c.http.GetJSON(ctx, path, q, dest)
	c.metrics.RecordLatency("backend"+path, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", models.ErrNetworkUnavailable, path, err)
	}
	return nil
}
