package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lattice-run/coderunner/pkg/log"
	"github.com/lattice-run/coderunner/pkg/types"
)

// RedisConfig holds the connection settings for RedisQueue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisQueue is the production Queue, backed by a Redis list at Key.
// Push is RPUSH, BlockingPop is BLPOP, matching the at-least-once FIFO
// semantics spec.md §5 describes.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue dials Redis and verifies connectivity with a PING.
func NewRedisQueue(ctx context.Context, cfg RedisConfig) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("queue: connecting to redis at %s: %w", cfg.Addr, err)
	}

	log.WithComponent("queue").Info().Str("addr", cfg.Addr).Msg("connected to redis")

	return &RedisQueue{client: client}, nil
}

// Push serializes job to JSON and RPUSHes it onto Key.
func (q *RedisQueue) Push(ctx context.Context, job *types.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshaling job %s: %w", job.Token, err)
	}

	if err := q.client.RPush(ctx, Key, payload).Err(); err != nil {
		return fmt.Errorf("queue: pushing job %s: %w", job.Token, err)
	}

	return nil
}

// BlockingPop issues a BLPOP against Key and deserializes the result.
// go-redis returns redis.Nil when the timeout elapses with nothing
// popped; that case is translated into (nil, nil) rather than an error.
func (q *RedisQueue) BlockingPop(ctx context.Context, timeout time.Duration) (*types.Job, error) {
	result, err := q.client.BLPop(ctx, timeout, Key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: blocking pop: %w", err)
	}

	// BLPOP returns [key, value]; we only asked for one key.
	if len(result) != 2 {
		return nil, fmt.Errorf("queue: unexpected BLPOP reply shape: %d elements", len(result))
	}

	var job types.Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("queue: unmarshaling popped job: %w", err)
	}

	return &job, nil
}

// Length reports LLEN on Key.
func (q *RedisQueue) Length(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, Key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: length: %w", err)
	}
	return n, nil
}

// Close closes the underlying Redis connection pool.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
