package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisRepository stores sessions as JSON under session:<sender>.
// keyTTL is only a storage bound; the idle policy lives in Store.
type RedisRepository struct {
	redis  *redis.Client
	keyTTL time.Duration
	tracer trace.Tracer
}

func NewRedisRepository(client *redis.Client, keyTTL time.Duration) *RedisRepository {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	return &RedisRepository{
		redis:  client,
		keyTTL: keyTTL,
		tracer: otel.Tracer("hospital.internal.session.redis"),
	}
}

func (r *RedisRepository) Load(ctx context.Context, senderID string) (*Session, error) {
	ctx, span := r.tracer.Start(ctx, "session.load")
	defer span.End()

	data, err := r.redis.Get(ctx, sessionKey(senderID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return &s, nil
}

func (r *RedisRepository) Save(ctx context.Context, s *Session) error {
	ctx, span := r.tracer.Start(ctx, "session.save")
	defer span.End()

	data, err := json.Marshal(s)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal: %w", err)
	}
	if err := r.redis.Set(ctx, sessionKey(s.SenderID), data, r.keyTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist: %w", err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, senderID string) error {
	ctx, span := r.tracer.Start(ctx, "session.delete")
	defer span.End()

	if err := r.redis.Del(ctx, sessionKey(senderID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to delete: %w", err)
	}
	return nil
}

func sessionKey(senderID string) string {
	return fmt.Sprintf("session:%s", senderID)
}
