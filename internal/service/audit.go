package service

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examina/examina-backend/internal/config"
	"github.com/examina/examina-backend/internal/model"
)

// RedisAuditPublisher publishes lifecycle events on a Redis PubSub
// channel for the downstream audit/notification collaborator. Publishing
// is fire-and-forget: a failure is logged, never propagated.
type RedisAuditPublisher struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisAuditPublisher creates a new RedisAuditPublisher.
func NewRedisAuditPublisher(rdb *redis.Client, log zerolog.Logger) *RedisAuditPublisher {
	return &RedisAuditPublisher{
		rdb: rdb,
		log: log.With().Str("component", "audit_publisher").Logger(),
	}
}

// Publish sends one event to the audit channel.
func (p *RedisAuditPublisher) Publish(ctx context.Context, event AuditEvent) {
	raw, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("type", event.Type).Msg("Marshal audit event failed")
		return
	}
	if err := p.rdb.Publish(ctx, config.CacheKey.AuditChannel(), raw).Err(); err != nil {
		p.log.Warn().Err(err).Str("type", event.Type).Msg("Audit publish failed")
	}
}

// RedisSnapshotQueue pushes snapshots onto the persist queue consumed by
// the snapshot worker.
type RedisSnapshotQueue struct {
	rdb *redis.Client
}

// NewRedisSnapshotQueue creates a new RedisSnapshotQueue.
func NewRedisSnapshotQueue(rdb *redis.Client) *RedisSnapshotQueue {
	return &RedisSnapshotQueue{rdb: rdb}
}

// Enqueue pushes one snapshot payload onto the Redis list.
func (q *RedisSnapshotQueue) Enqueue(ctx context.Context, s *model.Snapshot) error {
	payload, err := json.Marshal(map[string]interface{}{
		"uuid":       s.UUID.String(),
		"session_id": s.SessionID,
		"type":       string(s.SnapshotType),
		"data":       s.Data,
		"created_at": s.CreatedAt.Unix(),
	})
	if err != nil {
		return err
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistSnapshotsQueue, payload).Err()
}
