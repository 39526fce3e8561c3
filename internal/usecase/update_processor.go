package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	applogger "Overlord/pkg/logger"

	"github.com/google/uuid"
)

const (
	// BackendDirect applies updates to the store inside the request.
	BackendDirect = "direct"
	// BackendKafka publishes updates; KafkaUpdatesHandler applies them.
	BackendKafka = "kafka"
	// BackendRedis enqueues updates; QueueUpdatesJob applies them.
	BackendRedis = "redis"
)

// UpdateProcessor turns accepted webhook payloads into updates and routes
// them to the configured backend.
type UpdateProcessor struct {
	store   drepo.FeedStore
	pub     drepo.UpdatePublisher
	metrics drepo.Metrics
	log     *applogger.Logger
	backend string
	now     func() time.Time
}

// NewUpdateProcessor creates a processor. pub may be nil for the direct backend.
func NewUpdateProcessor(
	store drepo.FeedStore,
	pub drepo.UpdatePublisher,
	metrics drepo.Metrics,
	l *applogger.Logger,
	backend string,
) (*UpdateProcessor, error) {
	switch backend {
	case BackendDirect:
	case BackendKafka, BackendRedis:
		if pub == nil {
			return nil, fmt.Errorf("%s backend needs a publisher", backend)
		}
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownBackend, backend)
	}
	return &UpdateProcessor{
		store:   store,
		pub:     pub,
		metrics: metrics,
		log:     l.With("update_processor"),
		backend: backend,
		now:     time.Now,
	}, nil
}

// Backend returns the configured backend name.
func (p *UpdateProcessor) Backend() string { return p.backend }

// Async reports whether updates are applied after Process returns.
func (p *UpdateProcessor) Async() bool { return p.backend != BackendDirect }

// Process wraps payload in an update and routes it.
func (p *UpdateProcessor) Process(ctx context.Context, kind models.UpdateKind, payload interface{}) (*models.Update, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidUpdate, err)
	}
	u := &models.Update{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    raw,
		ReceivedAt: p.now().UTC(),
	}

	// reject what can never apply before it reaches an asynchronous backend
	scratch := models.DefaultSnapshot()
	if err := ApplyUpdate(&scratch, u); err != nil {
		return nil, err
	}

	start := time.Now()
	switch p.backend {
	case BackendKafka, BackendRedis:
		err = p.pub.Publish(ctx, u)
	default:
		_, err = p.store.Update(ctx, func(s *models.Snapshot) error {
			return ApplyUpdate(s, u)
		})
	}

	if err != nil {
		p.metrics.RecordError("feed_update")
		return nil, fmt.Errorf("process %s update: %w", kind, err)
	}

	p.metrics.RecordFeedUpdate(string(kind), p.backend)
	p.metrics.RecordLatency("feed.process", time.Since(start).Seconds())
	p.log.Debug("update accepted",
		applogger.String("id", u.ID),
		applogger.String("kind", string(kind)),
		applogger.String("backend", p.backend),
	)
	return u, nil
}

// Close closes the publisher if any.
func (p *UpdateProcessor) Close() error {
	if p.pub != nil {
		return p.pub.Close()
	}
	return nil
}
