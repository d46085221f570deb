package redis

import (
	"context"
	"encoding/json"
	"time"

	"auction-chat/internal/domain"
	"auction-chat/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const snapshotKeyPrefix = "chat:snapshot:"

// SnapshotCache is a read-through query cache for conversation snapshots.
// Cache failures degrade to a direct chat API fetch.
type SnapshotCache struct {
	client *redis.Client
	api    domain.ChatAPI
	ttl    time.Duration
	log    logger.Logger
}

func NewSnapshotCache(client *redis.Client, api domain.ChatAPI, ttl time.Duration, log logger.Logger) *SnapshotCache {
	return &SnapshotCache{
		client: client,
		api:    api,
		ttl:    ttl,
		log:    log,
	}
}

func (c *SnapshotCache) Snapshot(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	key := snapshotKeyPrefix + conversationID

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var messages []*domain.Message
		if err := json.Unmarshal([]byte(cached), &messages); err == nil {
			return messages, nil
		}
		c.log.Warn("Discarding undecodable cached snapshot", "conversation_id", conversationID)
	} else if err != redis.Nil {
		c.log.Warn("Snapshot cache read failed", "conversation_id", conversationID, "error", err)
	}

	messages, err := c.api.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(messages); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.log.Warn("Snapshot cache write failed", "conversation_id", conversationID, "error", err)
		}
	}

	return messages, nil
}

func (c *SnapshotCache) Invalidate(ctx context.Context, conversationID string) error {
	return c.client.Del(ctx, snapshotKeyPrefix+conversationID).Err()
}
