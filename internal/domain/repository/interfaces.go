package repository

import (
	"context"

	"Overlord/internal/domain/models"
)

// SnapshotSource serves the polling dashboard's full snapshot.
type SnapshotSource interface {
	FetchSnapshot(ctx context.Context) (*models.Snapshot, error)
}

// MissionControl serves the four reads the streaming dashboard starts from.
type MissionControl interface {
	Health(ctx context.Context) (*models.Health, error)
	Portfolio(ctx context.Context) (*models.Portfolio, error)
	Regime(ctx context.Context) (*models.Regime, error)
	RecentTrades(ctx context.Context, limit int) ([]models.Trade, error)
}

// PushConn is one open push channel connection.
type PushConn interface {
	// ReadMessage blocks until a message arrives, the connection drops or
	// ctx is cancelled.
	ReadMessage(ctx context.Context) ([]byte, error)
	Close() error
}

// PushDialer opens push channel connections.
type PushDialer interface {
	Dial(ctx context.Context) (PushConn, error)
}

// FeedStore holds the feed API's current snapshot.
type FeedStore interface {
	// Load returns the stored snapshot, or the default one when nothing
	// has been stored yet.
	Load(ctx context.Context) (*models.Snapshot, error)
	// Update applies fn to the current snapshot and saves the result. Calls
	// are serialised so concurrent webhooks never lose each other's writes.
	Update(ctx context.Context, fn func(*models.Snapshot) error) (*models.Snapshot, error)
}

// UpdatePublisher hands accepted webhook updates to an asynchronous backend.
type UpdatePublisher interface {
	Publish(ctx context.Context, u *models.Update) error
	Close() error
}

type Metrics interface {
	RecordFetch(dashboard, endpoint, result string)
	RecordPushEvent(eventType string)
	RecordReconnect(dashboard string)
	SetConnectionState(dashboard, state string)
	RecordFeedUpdate(kind, backend string)
	RecordError(kind string)
	RecordLastPrice(price float64)
	RecordLatency(op string, seconds float64)
}
