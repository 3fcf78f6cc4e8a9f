package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"contract-relay/internal/models"
)

const ValidationQueue = "queue:contract-validation"

type JobQueue struct {
	redis *redis.Client
}

func NewJobQueue(redisClient *redis.Client) *JobQueue {
	return &JobQueue{redis: redisClient}
}

func (q *JobQueue) Push(ctx context.Context, job *models.ValidationJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	return q.redis.RPush(ctx, ValidationQueue, data).Err()
}

// Pop blocks up to timeout for the next job. It returns nil, nil when the
// wait times out.
func (q *JobQueue) Pop(ctx context.Context, timeout time.Duration) (*models.ValidationJob, error) {
	result, err := q.redis.BLPop(ctx, timeout, ValidationQueue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}

	var job models.ValidationJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	return &job, nil
}
