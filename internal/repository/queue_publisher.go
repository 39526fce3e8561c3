package repository

import (
	"context"

	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	"Overlord/pkg/queue"
)

// QueueUpdatePublisher implements UpdatePublisher on the Redis queue. The
// queue's lifecycle belongs to whoever started it, so Close is a no-op.
type QueueUpdatePublisher struct {
	q queue.QueueService
}

// NewQueueUpdatePublisher creates a queue publisher.
func NewQueueUpdatePublisher(q queue.QueueService) drepo.UpdatePublisher {
	return &QueueUpdatePublisher{q: q}
}

func (p *QueueUpdatePublisher) Publish(ctx context.Context, u *models.Update) error {
	return p.q.PublishMessage(ctx, models.QueueUpdateType, u)
}

func (p *QueueUpdatePublisher) Close() error { return nil }
