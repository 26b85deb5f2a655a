package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"subsync/internal/config"
	"subsync/internal/models"

	"github.com/redis/go-redis/v9"
)

// Key layout: "sync_job:<job_id>" holds the serialized job state,
// "sync_job:<job_id>_lastrun" the RFC3339 timestamp of the last run.
const jobStateKeyPrefix = "sync_job:"

type RedisJobStateStore struct {
	client *redis.Client
}

// NewRedisClient creates a Redis client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisJobStateStore(client *redis.Client) *RedisJobStateStore {
	return &RedisJobStateStore{client: client}
}

func (r *RedisJobStateStore) Load(ctx context.Context, jobID string) (*models.SyncJobState, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, jobStateKeyPrefix+jobID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job state from redis: %w", err)
	}

	var state models.SyncJobState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job state: %w", err)
	}

	return &state, nil
}

func (r *RedisJobStateStore) Save(ctx context.Context, state *models.SyncJobState) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal job state: %w", err)
	}

	if err := r.client.Set(ctx, jobStateKeyPrefix+state.JobID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set job state in redis: %w", err)
	}

	return nil
}

func (r *RedisJobStateStore) LastRun(ctx context.Context, jobID string) (time.Time, error) {
	if r.client == nil {
		return time.Time{}, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, jobStateKeyPrefix+jobID+"_lastrun").Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last run from redis: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last run timestamp: %w", err)
	}
	return t, nil
}

func (r *RedisJobStateStore) SetLastRun(ctx context.Context, jobID string, t time.Time) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := jobStateKeyPrefix + jobID + "_lastrun"
	if err := r.client.Set(ctx, key, t.Format(time.RFC3339Nano), 0).Err(); err != nil {
		return fmt.Errorf("failed to set last run in redis: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
