package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"Overlord/internal/domain/models"
	drepo "Overlord/internal/domain/repository"
	"Overlord/internal/service/feedstore"
	"Overlord/pkg/cache"
	applogger "Overlord/pkg/logger"

	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	published []*models.Update
	err       error
	closed    bool
}

func (p *recordingPublisher) Publish(_ context.Context, u *models.Update) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, u)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func newFeedStore(t *testing.T) *feedstore.Store {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	return feedstore.New(mc)
}

func TestProcessorDirectAppliesToStore(t *testing.T) {
	store := newFeedStore(t)
	p, err := NewUpdateProcessor(store, nil, drepo.NopMetrics{}, applogger.NewNop(), BackendDirect)
	require.NoError(t, err)

	price := 43750.25
	u, err := p.Process(context.Background(), models.UpdatePrice, models.PriceUpdateRequest{BTCPrice: &price})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 43750.25, snap.BTCPrice)
	require.NotNil(t, snap.LastUpdated)
}

func TestProcessorDirectSurfacesInvalidUpdates(t *testing.T) {
	p, err := NewUpdateProcessor(newFeedStore(t), nil, drepo.NopMetrics{}, applogger.NewNop(), BackendDirect)
	require.NoError(t, err)

	_, err = p.Process(context.Background(), models.UpdateMerge, []int{1})
	require.ErrorIs(t, err, models.ErrInvalidUpdate)
}

func TestProcessorKafkaPublishesWithoutTouchingStore(t *testing.T) {
	store := newFeedStore(t)
	pub := &recordingPublisher{}
	p, err := NewUpdateProcessor(store, pub, drepo.NopMetrics{}, applogger.NewNop(), BackendKafka)
	require.NoError(t, err)

	_, err = p.Process(context.Background(), models.UpdateSignal, models.SignalRequest{
		Signal: &models.Signal{Time: "14:23", Text: "Volume spike observed", Type: "bullish"},
	})
	require.NoError(t, err)
	require.Len(t, pub.published, 1)
	require.Equal(t, models.UpdateSignal, pub.published[0].Kind)

	var body models.SignalRequest
	require.NoError(t, json.Unmarshal(pub.published[0].Payload, &body))
	require.Equal(t, "Volume spike observed", body.Signal.Text)

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, snap.Signals)

	require.NoError(t, p.Close())
	require.True(t, pub.closed)
}

func TestProcessorKafkaPublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	p, err := NewUpdateProcessor(newFeedStore(t), pub, drepo.NopMetrics{}, applogger.NewNop(), BackendKafka)
	require.NoError(t, err)

	_, err = p.Process(context.Background(), models.UpdateMerge, map[string]interface{}{"btc_price": 1})
	require.ErrorContains(t, err, "broker down")
}

func TestNewProcessorValidatesBackend(t *testing.T) {
	_, err := NewUpdateProcessor(newFeedStore(t), nil, drepo.NopMetrics{}, applogger.NewNop(), "nats")
	require.ErrorIs(t, err, models.ErrUnknownBackend)

	_, err = NewUpdateProcessor(newFeedStore(t), nil, drepo.NopMetrics{}, applogger.NewNop(), BackendKafka)
	require.Error(t, err)
}

func TestKafkaHandlerAppliesPublishedUpdates(t *testing.T) {
	store := newFeedStore(t)
	pub := &recordingPublisher{}
	p, err := NewUpdateProcessor(store, pub, drepo.NopMetrics{}, applogger.NewNop(), BackendKafka)
	require.NoError(t, err)
	h := NewKafkaUpdatesHandler("overlord.feed.updates", store, drepo.NopMetrics{}, applogger.NewNop())
	require.Equal(t, "overlord.feed.updates", h.Topic())

	_, err = p.Process(context.Background(), models.UpdatePredictions, models.PredictionsRequest{
		Predictions: []models.Prediction{{Model: "ARIMA", Value: "$43,900", Confidence: 71}},
	})
	require.NoError(t, err)

	raw, err := json.Marshal(pub.published[0])
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), raw))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, snap.ActiveModels)
}

func TestKafkaHandlerAcknowledgesPoisonMessages(t *testing.T) {
	store := newFeedStore(t)
	h := NewKafkaUpdatesHandler("t", store, drepo.NopMetrics{}, applogger.NewNop())

	require.NoError(t, h.Handle(context.Background(), []byte(`not json`)))
	require.NoError(t, h.Handle(context.Background(), []byte(`{"id":"x","kind":"price","payload":{}}`)))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Nil(t, snap.LastUpdated)
}

type failingStore struct {
	drepo.FeedStore
}

func (failingStore) Update(context.Context, func(*models.Snapshot) error) (*models.Snapshot, error) {
	return nil, errors.New("lock timeout")
}

func TestQueueJobAppliesUpdates(t *testing.T) {
	store := newFeedStore(t)
	job := NewQueueUpdatesJob(store, drepo.NopMetrics{}, applogger.NewNop())
	require.Equal(t, models.QueueUpdateType, job.Type())
	require.Equal(t, "feed_updates", job.Name())

	raw := json.RawMessage(`{"id":"q1","kind":"price","payload":{"btc_price":43750.25}}`)
	require.NoError(t, job.Handle(context.Background(), raw))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap.LastUpdated)
}

func TestQueueJobRetriesStoreFailures(t *testing.T) {
	job := NewQueueUpdatesJob(failingStore{}, drepo.NopMetrics{}, applogger.NewNop())

	err := job.Handle(context.Background(), json.RawMessage(`{"id":"q2","kind":"price","payload":{"btc_price":1}}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "q2")

	require.NoError(t, job.Handle(context.Background(), json.RawMessage(`[]`)))
}

func TestRedisBackendNeedsPublisher(t *testing.T) {
	_, err := NewUpdateProcessor(newFeedStore(t), nil, drepo.NopMetrics{}, applogger.NewNop(), BackendRedis)
	require.Error(t, err)

	p, err := NewUpdateProcessor(newFeedStore(t), &recordingPublisher{}, drepo.NopMetrics{}, applogger.NewNop(), BackendRedis)
	require.NoError(t, err)
	require.True(t, p.Async())
}
