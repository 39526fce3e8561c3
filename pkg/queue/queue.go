package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrEmpty is returned by Backend.Pop when nothing arrived before the timeout.
var ErrEmpty = errors.New("queue empty")

// QueueService publishes messages without consuming them.
type QueueService interface {
	PublishMessage(ctx context.Context, msgType string, payload interface{}) error
}

// Job defines a queue job handler.
type Job interface {
	// Name returns the unique identifier of the job.
	Name() string

	// Type returns the type of message that the job handles.
	Type() string

	// Handle processes the job with the given payload.
	Handle(ctx context.Context, payload json.RawMessage) error
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers     int           // number of workers
	RetryLimit  int           // number of maximum retries
	RetryDelay  time.Duration // time delay between retries
	PollTimeout time.Duration // how long a worker blocks on an empty queue
	RetryScan   time.Duration // how often due retries are moved back
}

// Message represents a message in the queue
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

// Backend is the storage the queue runs on: a list for pending messages and
// a time-ordered set for scheduled retries.
type Backend interface {
	Ping(ctx context.Context) error
	Push(ctx context.Context, key string, data []byte) error
	// Pop blocks up to timeout and returns ErrEmpty if nothing arrived.
	Pop(ctx context.Context, key string, timeout time.Duration) ([]byte, error)
	Schedule(ctx context.Context, key string, data []byte, at time.Time) error
	// Due returns scheduled entries whose time is at or before now.
	Due(ctx context.Context, key string, now time.Time) ([][]byte, error)
	// Requeue atomically moves one scheduled entry back to the pending list.
	Requeue(ctx context.Context, retryKey, queueKey string, data []byte) error
}

// ParsePayload decodes a message payload into T.
func ParsePayload[T any](payload json.RawMessage) (*T, error) {
	var result T
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return &result, nil
}
