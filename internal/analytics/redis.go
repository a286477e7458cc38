// Package analytics persists notification lifecycle events: Redis keeps
// per-day counters for dashboards, Postgres keeps the full audit log.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iaai-platform/iaai-training-platform-sub002/internal/domain"
)

// DefaultRetention is how long counter keys live in Redis.
const DefaultRetention = 90 * 24 * time.Hour

type RedisSink struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client, retention: DefaultRetention}
}

// WithRetention overrides the counter key TTL.
func (s *RedisSink) WithRetention(retention time.Duration) *RedisSink {
	s.retention = retention
	return s
}

// Write increments the daily counter for the event type and, for fired
// events, the per-course recipient total.
func (s *RedisSink) Write(ctx context.Context, event domain.NotificationEvent) error {
	pipe := s.client.Pipeline()

	key := buildKey(string(event.Type), event.CreatedAt)
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)

	if event.Type == domain.EventFired && event.Recipients > 0 {
		recipientKey := fmt.Sprintf("notify:recipients:%s", event.CourseID)
		pipe.IncrBy(ctx, recipientKey, int64(event.Recipients))
		pipe.Expire(ctx, recipientKey, s.retention)
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}

	return nil
}

func buildKey(eventType string, t time.Time) string {
	return fmt.Sprintf("notify:events:%s:%s", eventType, t.UTC().Format("20060102"))
}
