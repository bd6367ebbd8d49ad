// Package events announces stored products to the embedding worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/storefront-importer/internal/database"
)

// OutboxTrigger writes an EMBEDDING_REQUESTED event to the transactional
// outbox; the relay forwards it to the Redis stream.
type OutboxTrigger struct {
	outbox *database.OutboxRepository
	logger *slog.Logger
}

func NewOutboxTrigger(db *database.DB, logger *slog.Logger) *OutboxTrigger {
	return &OutboxTrigger{
		outbox: database.NewOutboxRepository(db),
		logger: logger.With("component", "embedding_trigger", "backend", "outbox"),
	}
}

func (p *OutboxTrigger) TriggerEmbedding(ctx context.Context, productID uuid.UUID, sourceKey string) error {
	event, err := database.NewEmbeddingEvent(productID, sourceKey)
	if err != nil {
		return err
	}

	if err := p.outbox.Insert(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("embedding request written to outbox",
		"product_id", productID,
		"source_key", sourceKey,
		"outbox_id", event.ID,
	)
	return nil
}

// StreamTrigger appends the request straight to the Redis stream.
type StreamTrigger struct {
	client database.RedisClient
	stream string
	logger *slog.Logger
}

func NewStreamTrigger(client database.RedisClient, stream string, logger *slog.Logger) *StreamTrigger {
	if stream == "" {
		stream = database.StreamEmbeddingJobs
	}
	return &StreamTrigger{
		client: client,
		stream: stream,
		logger: logger.With("component", "embedding_trigger", "backend", "stream"),
	}
}

func (s *StreamTrigger) TriggerEmbedding(ctx context.Context, productID uuid.UUID, sourceKey string) error {
	now := time.Now().UTC()
	payload, err := json.Marshal(database.EmbeddingPayload{
		ProductID:   productID.String(),
		SourceKey:   sourceKey,
		RequestedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal embedding payload: %w", err)
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"data":           string(payload),
			"event_type":     database.EventEmbeddingRequested,
			"aggregate_type": database.AggregateProduct,
			"aggregate_id":   productID.String(),
			"timestamp":      strconv.FormatInt(now.UnixNano(), 10),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	s.logger.Info("embedding request published",
		"product_id", productID,
		"stream", s.stream,
		"entry_id", id,
	)
	return nil
}
