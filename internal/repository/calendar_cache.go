package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/install-dispatch/internal/domain"
)

// CalendarCache holds recent read-only calendar snapshots.
type CalendarCache interface {
	Get(ctx context.Context, from, to string) ([]domain.TechnicianSchedule, error)
	Set(ctx context.Context, from, to string, schedules []domain.TechnicianSchedule, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type redisCalendarCache struct {
	client *redis.Client
}

// NewCalendarCache constructs a Redis backed calendar cache. A nil client
// turns the cache into a permanent miss.
func NewCalendarCache(client *redis.Client) CalendarCache {
	return &redisCalendarCache{client: client}
}

func calendarKey(from, to string) string {
	return fmt.Sprintf("calendar:%s:%s", from, to)
}

func (c *redisCalendarCache) Get(ctx context.Context, from, to string) ([]domain.TechnicianSchedule, error) {
	if c.client == nil {
		return nil, ErrCacheMiss
	}
	key := calendarKey(from, to)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var schedules []domain.TechnicianSchedule
	if err := json.Unmarshal(raw, &schedules); err != nil {
		return nil, fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return schedules, nil
}

func (c *redisCalendarCache) Set(ctx context.Context, from, to string, schedules []domain.TechnicianSchedule, ttl time.Duration) error {
	if c.client == nil || ttl <= 0 {
		return nil
	}
	key := calendarKey(from, to)
	payload, err := json.Marshal(schedules)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Invalidate drops every cached window after availability or reservations change.
func (c *redisCalendarCache) Invalidate(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	iter := c.client.Scan(ctx, 0, "calendar:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis delete %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan calendar keys: %w", err)
	}
	return nil
}
