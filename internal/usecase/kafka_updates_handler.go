package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	pkgkafka "Overlord/pkg/kafka"
	applogger "Overlord/pkg/logger"
)

// KafkaUpdatesHandler consumes published updates and applies them to the store.
type KafkaUpdatesHandler struct {
	topic string
	apply *consumedUpdates
}

func NewKafkaUpdatesHandler(topic string, store drepo.FeedStore, metrics drepo.Metrics, l *applogger.Logger) *KafkaUpdatesHandler {
	return &KafkaUpdatesHandler{
		topic: topic,
		apply: &consumedUpdates{store: store, metrics: metrics, log: l.With("kafka_updates"), source: "kafka_consumer"},
	}
}

func (h *KafkaUpdatesHandler) Topic() string { return h.topic }

// Handle applies one update. Updates that can never apply are logged and
// acknowledged so they do not block the partition.
func (h *KafkaUpdatesHandler) Handle(ctx context.Context, b []byte) error {
	return h.apply.handle(ctx, b, pkgkafka.TraceID(ctx))
}

var _ pkgkafka.MessageHandler = (*KafkaUpdatesHandler)(nil)

// consumedUpdates applies updates that arrive through an asynchronous backend.
type consumedUpdates struct {
	store   drepo.FeedStore
	metrics drepo.Metrics
	log     *applogger.Logger
	source  string
}

// handle returns an error only when the store failed, so the caller retries.
func (c *consumedUpdates) handle(ctx context.Context, b []byte, traceID string) error {
	var u models.Update
	if err := json.Unmarshal(b, &u); err != nil {
		c.metrics.RecordError("consumer_unmarshal")
		c.log.Warn("skipping undecodable update", applogger.Error(err))
		return nil
	}
	if !u.ReceivedAt.IsZero() {
		c.metrics.RecordLatency("feed.ingest_e2e", time.Since(u.ReceivedAt).Seconds())
	}

	_, err := c.store.Update(ctx, func(s *models.Snapshot) error {
		return ApplyUpdate(s, &u)
	})
	if errors.Is(err, models.ErrInvalidUpdate) {
		c.metrics.RecordError("consumer_invalid")
		c.log.Warn("skipping invalid update",
			applogger.String("id", u.ID),
			applogger.String("trace_id", traceID),
			applogger.Error(err),
		)
		return nil
	}
	if err != nil {
		c.metrics.RecordError("consumer_store")
		return fmt.Errorf("apply update %s: %w", u.ID, err)
	}

	c.metrics.RecordFeedUpdate(string(u.Kind), c.source)
	return nil
}
