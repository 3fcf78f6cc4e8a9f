package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"contract-relay/internal/models"
)

// EventPublisher fans validation events out over Redis pub/sub so that any
// server instance holding the session's websocket can deliver them.
type EventPublisher struct {
	redis *redis.Client
}

func NewEventPublisher(redisClient *redis.Client) *EventPublisher {
	return &EventPublisher{redis: redisClient}
}

func UpdatesChannel(sessionID string) string {
	return fmt.Sprintf("contract_updates:%s", sessionID)
}

func (p *EventPublisher) Publish(ctx context.Context, sessionID string, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return p.redis.Publish(ctx, UpdatesChannel(sessionID), data).Err()
}
