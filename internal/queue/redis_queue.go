// Package queue coordinates the producer/consumer handoff between the
// scheduler and the pipeline worker in Redis.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"content-automation-pipeline/internal/config"
)

// RedisQueue tracks ready, in-flight, and scheduled jobs. The scheduler and
// API produce; pipeline workers consume with a visibility lease.
type RedisQueue struct {
	client        *redis.Client
	readyKey      string
	inflightKey   string
	scheduledKey  string
	lockPrefix    string
	visibilityTTL time.Duration
	lockTTL       time.Duration
}

// NewRedisQueue builds a queue client from config.
func NewRedisQueue(cfg config.Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewRedisQueueWithClient(client, cfg)
}

// NewRedisQueueWithClient wraps an existing client; used by tests.
func NewRedisQueueWithClient(client *redis.Client, cfg config.Config) *RedisQueue {
	visibility := cfg.VisibilityTimeout
	if visibility == 0 {
		visibility = 10 * time.Minute
	}
	lockTTL := cfg.AutomationLockTTL
	if lockTTL == 0 {
		lockTTL = 2 * time.Minute
	}
	return &RedisQueue{
		client:        client,
		readyKey:      "pipeline:ready",
		inflightKey:   "pipeline:inflight",
		scheduledKey:  "pipeline:scheduled",
		lockPrefix:    "pipeline:lock:automation:",
		visibilityTTL: visibility,
		lockTTL:       lockTTL,
	}
}

// Enqueue inserts a job into either the scheduled set or the ready queue.
func (q *RedisQueue) Enqueue(ctx context.Context, jobID string, runAt time.Time) error {
	if runAt.After(time.Now()) {
		return q.client.ZAdd(ctx, q.scheduledKey, redis.Z{
			Score:  float64(runAt.UnixMilli()),
			Member: jobID,
		}).Err()
	}
	return q.client.RPush(ctx, q.readyKey, jobID).Err()
}

// PromoteScheduled moves due scheduled jobs into the ready queue. It returns
// how many were promoted.
func (q *RedisQueue) PromoteScheduled(ctx context.Context, now time.Time, limit int64) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.scheduledKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.scheduledKey, id)
		pipe.RPush(ctx, q.readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// DequeueWithLease pops a job from the ready queue and places it into
// inflight with a visibility timeout.
func (q *RedisQueue) DequeueWithLease(ctx context.Context) (string, error) {
	keys := []string{q.readyKey, q.inflightKey}
	res, err := dequeueScript.Run(ctx, q.client, keys, time.Now().Add(q.visibilityTTL).UnixMilli()).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	jobID, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("unexpected type from dequeue script: %T", res)
	}
	return jobID, nil
}

// ExtendLease pushes the visibility deadline forward for an in-flight job.
// The worker extends when a run's provider budget exceeds the default window.
func (q *RedisQueue) ExtendLease(ctx context.Context, jobID string, extension time.Duration) error {
	return q.client.ZAdd(ctx, q.inflightKey, redis.Z{
		Score:  float64(time.Now().Add(extension).UnixMilli()),
		Member: jobID,
	}).Err()
}

// Ack removes a job from in-flight tracking.
func (q *RedisQueue) Ack(ctx context.Context, jobID string) error {
	return q.client.ZRem(ctx, q.inflightKey, jobID).Err()
}

// ExpiredLeases returns in-flight jobs whose lease deadline has passed and
// drops them from the inflight set. The caller decides their fate: a job
// still pending goes back to ready, one caught mid-processing is failed.
func (q *RedisQueue) ExpiredLeases(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, q.inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, q.inflightKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return ids, nil
}

// Requeue pushes a job back onto the ready queue.
func (q *RedisQueue) Requeue(ctx context.Context, jobID string) error {
	return q.client.RPush(ctx, q.readyKey, jobID).Err()
}

// ReadyDepth returns the length of the ready queue.
func (q *RedisQueue) ReadyDepth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.readyKey).Result()
}

// AcquireAutomationLock takes an advisory per-automation lock so overlapping
// scheduler ticks cannot double-fire the same automation. Returns false when
// another tick already holds it.
func (q *RedisQueue) AcquireAutomationLock(ctx context.Context, automationID string) (bool, error) {
	return q.client.SetNX(ctx, q.lockPrefix+automationID, "1", q.lockTTL).Result()
}

// ReleaseAutomationLock drops the advisory lock early. Expiry covers the
// crash case.
func (q *RedisQueue) ReleaseAutomationLock(ctx context.Context, automationID string) error {
	return q.client.Del(ctx, q.lockPrefix+automationID).Err()
}

var dequeueScript = redis.NewScript(`
local job = redis.call('LPOP', KEYS[1])
if job then
  redis.call('ZADD', KEYS[2], ARGV[1], job)
  return job
end
return nil
`)
