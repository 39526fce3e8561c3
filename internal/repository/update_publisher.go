package repository

import (
	"context"

	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	pkgkafka "Overlord/pkg/kafka"

	"github.com/segmentio/kafka-go"
)

// KafkaUpdatePublisher implements UpdatePublisher for Kafka. All updates
// share one key so they land on one partition and apply in order.
type KafkaUpdatePublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

const partitionKey = "feed"

// NewKafkaUpdatePublisher creates a Kafka publisher.
func NewKafkaUpdatePublisher(producer *pkgkafka.Producer, topic string) drepo.UpdatePublisher {
	return &KafkaUpdatePublisher{producer: producer, topic: topic}
}

func (p *KafkaUpdatePublisher) Publish(ctx context.Context, u *models.Update) error {
	return p.producer.Publish(ctx, p.topic, []byte(partitionKey), u,
		kafka.Header{Key: pkgkafka.TraceHeader, Value: []byte(u.ID)})
}

func (p *KafkaUpdatePublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
