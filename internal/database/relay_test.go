package database

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRedisClient is a mock for Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

// MockOutboxRepository is a mock for OutboxRepository
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, err error) error {
	args := m.Called(ctx, id, err)
	return args.Error(0)
}

func (m *MockOutboxRepository) CountByStatus(ctx context.Context, statuses ...string) (int64, error) {
	args := m.Called(ctx, statuses)
	return args.Get(0).(int64), args.Error(1)
}

func embeddingEvent(t *testing.T) *OutboxEvent {
	t.Helper()
	event, err := NewEmbeddingEvent(uuid.New(), "offer:1")
	require.NoError(t, err)
	event.ID = uuid.New()
	event.CreatedAt = time.Now()
	return event
}

func newTestRelay(redisClient RedisClient, outbox OutboxRepo) *Relay {
	return NewRelay(outbox, redisClient, slog.Default(), RelayConfig{BatchSize: 10, PollInterval: 50 * time.Millisecond})
}

func TestRelay_ProcessEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and marks processed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox)

		events := []*OutboxEvent{embeddingEvent(t), embeddingEvent(t)}
		mockOutbox.On("GetPending", ctx, 10).Return(events, nil)

		for _, event := range events {
			mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
				values, _ := args.Values.(map[string]any)
				return args.Stream == StreamEmbeddingJobs &&
					values["event_type"] == EventEmbeddingRequested &&
					values["aggregate_id"] == event.AggregateID
			})).Return(nil)
			mockOutbox.On("MarkProcessed", ctx, event.ID).Return(nil)
		}

		require.NoError(t, relay.processEvents(ctx))

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("publish failure marks the event failed", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox)

		event := embeddingEvent(t)
		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{event}, nil)
		mockRedis.On("XAdd", ctx, mock.Anything).Return(errors.New("redis connection failed"))
		mockOutbox.On("MarkFailed", ctx, event.ID, mock.MatchedBy(func(err error) bool {
			return err.Error() == "failed to publish to redis: redis connection failed"
		})).Return(nil)

		assert.NoError(t, relay.processEvents(ctx))

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("empty batch does not touch redis", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(mockRedis, mockOutbox)

		mockOutbox.On("GetPending", ctx, 10).Return([]*OutboxEvent{}, nil)

		require.NoError(t, relay.processEvents(ctx))
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})

	t.Run("repository failure is returned", func(t *testing.T) {
		mockOutbox := new(MockOutboxRepository)
		relay := newTestRelay(new(MockRedisClient), mockOutbox)

		mockOutbox.On("GetPending", ctx, 10).Return(nil, errors.New("db down"))

		assert.ErrorContains(t, relay.processEvents(ctx), "db down")
	})
}

func TestRelay_PublishFormat(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	relay := newTestRelay(mockRedis, new(MockOutboxRepository))

	event := embeddingEvent(t)

	mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
		values, _ := args.Values.(map[string]any)
		val, ok := values["data"].(string)
		if !ok {
			return false
		}

		var data map[string]any
		if err := json.Unmarshal([]byte(val), &data); err != nil {
			return false
		}
		payload, ok := data["payload"].(map[string]any)
		if !ok {
			return false
		}
		metadata, ok := data["metadata"].(map[string]any)
		if !ok {
			return false
		}

		return data["type"] == EventEmbeddingRequested &&
			data["aggregate_id"] == event.AggregateID &&
			payload["product_id"] == event.AggregateID &&
			metadata["source"] == "storefront-importer"
	})).Return(nil)

	require.NoError(t, relay.publish(ctx, event))
	mockRedis.AssertExpectations(t)
}

func TestRelay_Backlog(t *testing.T) {
	ctx := context.Background()
	mockOutbox := new(MockOutboxRepository)
	relay := newTestRelay(new(MockRedisClient), mockOutbox)

	mockOutbox.On("CountByStatus", ctx, []string{OutboxStatusPending, OutboxStatusFailed}).Return(int64(4), nil)
	mockOutbox.On("CountByStatus", ctx, []string{OutboxStatusDeadLetter}).Return(int64(1), nil)

	pending, dead, err := relay.Backlog(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pending)
	assert.Equal(t, int64(1), dead)
}

func TestRelay_Start(t *testing.T) {
	mockOutbox := new(MockOutboxRepository)
	relay := newTestRelay(new(MockRedisClient), mockOutbox)

	mockOutbox.On("GetPending", mock.Anything, 10).Return([]*OutboxEvent{}, nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() {
		done <- relay.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on context cancellation")
	}
}
