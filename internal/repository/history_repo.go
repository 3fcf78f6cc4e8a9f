package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"contract-relay/internal/models"
)

// HistoryRepo keeps each session's conversation in a Redis list so a chat
// handle rebuilt after eviction or restart continues where it left off.
type HistoryRepo struct {
	redis    *redis.Client
	ttl      time.Duration
	maxTurns int64
}

func NewHistoryRepo(redisClient *redis.Client, ttl time.Duration, maxTurns int) *HistoryRepo {
	// Trim to whole user/model exchanges.
	if maxTurns%2 != 0 {
		maxTurns++
	}
	return &HistoryRepo{redis: redisClient, ttl: ttl, maxTurns: int64(maxTurns)}
}

func HistoryKey(sessionID string) string {
	return fmt.Sprintf("contract_session:%s:history", sessionID)
}

func (r *HistoryRepo) Append(ctx context.Context, sessionID string, msgs ...models.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	key := HistoryKey(sessionID)

	pipe := r.redis.TxPipeline()
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to encode chat message: %w", err)
		}
		pipe.RPush(ctx, key, data)
	}
	if r.maxTurns > 0 {
		pipe.LTrim(ctx, key, -r.maxTurns, -1)
	}
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append session history: %w", err)
	}
	return nil
}

func (r *HistoryRepo) Load(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	items, err := r.redis.LRange(ctx, HistoryKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load session history: %w", err)
	}

	msgs := make([]models.ChatMessage, 0, len(items))
	for _, item := range items {
		var m models.ChatMessage
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (r *HistoryRepo) Clear(ctx context.Context, sessionID string) error {
	return r.redis.Del(ctx, HistoryKey(sessionID)).Err()
}
