package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/banana-api/internal/domain"
	"github.com/phrazzld/banana-api/internal/events"
	"github.com/redis/go-redis/v9"
)

const resultKeyPrefix = "banana:task:result:"

// Connect parses a redis:// URL, opens a client and pings it.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.PoolTimeout = 5 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// ResultCache keeps terminal tasks in Redis so repeated status reads of a
// finished task skip the database. Only terminal tasks are ever stored: they
// never change again, so a cached entry cannot go stale.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewResultCache wraps client. Entries expire after ttl.
func NewResultCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *ResultCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultCache{
		client: client,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "result_cache")),
	}
}

func key(taskID string) string {
	return resultKeyPrefix + taskID
}

// Get returns the cached terminal task. A miss is (nil, false, nil).
func (c *ResultCache) Get(ctx context.Context, taskID string) (*domain.GenerationTask, bool, error) {
	data, err := c.client.Get(ctx, key(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var task domain.GenerationTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, false, fmt.Errorf("decode cached task %s: %w", taskID, err)
	}
	return &task, true, nil
}

// Set stores a terminal task. Non-terminal tasks are ignored.
func (c *ResultCache) Set(ctx context.Context, task *domain.GenerationTask) error {
	if task == nil || !task.Status.IsTerminal() {
		return nil
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	if err := c.client.Set(ctx, key(task.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete drops a cached entry.
func (c *ResultCache) Delete(ctx context.Context, taskID string) error {
	return c.client.Del(ctx, key(taskID)).Err()
}

// HandleEvent caches the terminal task carried by a task.finished event.
// Cache failures are logged and swallowed: the database stays authoritative.
func (c *ResultCache) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	if event.Type != events.TypeTaskFinished {
		return nil
	}

	var payload events.TaskFinished
	if err := event.UnmarshalPayload(&payload); err != nil {
		return fmt.Errorf("decode task.finished payload: %w", err)
	}
	if payload.Task == nil {
		return nil
	}

	if err := c.Set(ctx, payload.Task); err != nil {
		c.logger.Warn("failed to cache task result",
			slog.String("task_id", event.TaskID),
			slog.String("error", err.Error()))
	}
	return nil
}
