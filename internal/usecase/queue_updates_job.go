package usecase

import (
	"context"
	"encoding/json"

	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	applogger "Overlord/pkg/logger"
	"Overlord/pkg/queue"
)

// QueueUpdatesJob applies updates taken from the Redis queue. A store
// failure is returned so the queue schedules a retry.
type QueueUpdatesJob struct {
	apply *consumedUpdates
}

func NewQueueUpdatesJob(store drepo.FeedStore, metrics drepo.Metrics, l *applogger.Logger) *QueueUpdatesJob {
	return &QueueUpdatesJob{
		apply: &consumedUpdates{store: store, metrics: metrics, log: l.With("queue_updates"), source: "queue_consumer"},
	}
}

func (j *QueueUpdatesJob) Name() string { return "feed_updates" }
func (j *QueueUpdatesJob) Type() string { return models.QueueUpdateType }

func (j *QueueUpdatesJob) Handle(ctx context.Context, payload json.RawMessage) error {
	return j.apply.handle(ctx, payload, "")
}

var _ queue.Job = (*QueueUpdatesJob)(nil)
