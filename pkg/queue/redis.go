package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cuemby/drover/pkg/log"
)

// brpopTimeout bounds each blocking pop so context cancellation is
// observed between polls.
const brpopTimeout = 5 * time.Second

// DefaultKey is the Redis list jobs are pushed to when no key is given
const DefaultKey = "drover:jobs"

// RedisQueue is a Queue backed by a Redis list. Jobs are LPUSHed by
// producers and BRPOPed by workers, giving FIFO delivery shared across
// coordinator processes.
type RedisQueue struct {
	client *redis.Client
	key    string
	logger zerolog.Logger
}

// NewRedisQueue connects to Redis and verifies the connection
func NewRedisQueue(addr, password string, db int, key string) (*RedisQueue, error) {
	if key == "" {
		key = DefaultKey
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisQueue{
		client: client,
		key:    key,
		logger: log.WithComponent("queue"),
	}, nil
}

// Enqueue implements Queue
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue implements Queue. Malformed payloads are logged and skipped so
// one poison entry cannot wedge the workers.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		result, err := q.client.BRPop(ctx, brpopTimeout, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Idle window expired, poll again.
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to dequeue job: %w", err)
		}

		if len(result) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			q.logger.Error().Err(err).Str("payload", result[1]).Msg("Failed to decode job payload")
			continue
		}
		return &job, nil
	}
}

// Close implements Queue
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
